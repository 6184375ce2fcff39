package publish

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Registry holds the configured channel publishers keyed by channel name,
// each wrapped in a circuit breaker so a flapping platform backs off instead
// of burning attempts.
type Registry struct {
	publishers map[string]Publisher
	breakers   map[string]*gobreaker.CircuitBreaker
	settings   BreakerSettings
}

// BreakerSettings tunes the per-channel circuit breakers.
type BreakerSettings struct {
	ConsecutiveFailures uint32
	Cooldown            time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry(settings BreakerSettings) *Registry {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = time.Minute
	}
	return &Registry{
		publishers: make(map[string]Publisher),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		settings:   settings,
	}
}

// Register adds a publisher for its channel, replacing any previous one.
func (r *Registry) Register(p Publisher) {
	channel := p.Channel()
	r.publishers[channel] = p

	threshold := r.settings.ConsecutiveFailures
	r.breakers[channel] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    channel,
		Timeout: r.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("channel", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Channel breaker state changed")
		},
	})
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []string {
	channels := make([]string, 0, len(r.publishers))
	for c := range r.publishers {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	return channels
}

// Attempt runs one publish attempt through the channel's breaker and returns
// a classified error on failure.
func (r *Registry) Attempt(ctx context.Context, req *Request) (*Result, *Error) {
	p, ok := r.publishers[req.Channel]
	if !ok {
		return nil, Permanent(fmt.Errorf("no publisher registered for channel %s", req.Channel))
	}

	breaker := r.breakers[req.Channel]
	out, err := breaker.Execute(func() (any, error) {
		return p.AttemptPublish(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// An open breaker is a deferral, not a verdict on the content.
			return nil, Transient(fmt.Errorf("channel %s breaker open: %w", req.Channel, err))
		}
		return nil, AsError(err)
	}

	res, ok := out.(*Result)
	if !ok || res == nil {
		return nil, &Error{Kind: KindUnknown, Err: fmt.Errorf("channel %s returned no result", req.Channel)}
	}
	return res, nil
}
