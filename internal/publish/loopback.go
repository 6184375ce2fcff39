package publish

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// LoopbackPublisher accepts every publish in-process and remembers what it
// received. Used as the development stand-in for unconfigured channels and in
// tests.
type LoopbackPublisher struct {
	channel string

	mu       sync.Mutex
	requests []Request
	fail     error
}

// NewLoopbackPublisher creates an in-process publisher for a channel.
func NewLoopbackPublisher(channel string) *LoopbackPublisher {
	return &LoopbackPublisher{channel: channel}
}

func (l *LoopbackPublisher) Channel() string {
	return l.channel
}

// FailWith makes subsequent attempts return err; nil restores success.
func (l *LoopbackPublisher) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

// Requests returns a copy of everything delivered so far.
func (l *LoopbackPublisher) Requests() []Request {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Request, len(l.requests))
	copy(out, l.requests)
	return out
}

func (l *LoopbackPublisher) AttemptPublish(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	l.requests = append(l.requests, *req)
	return &Result{ExternalPostID: uuid.NewString()}, nil
}
