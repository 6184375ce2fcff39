// Package policy implements the per-platform admission gate: time windows,
// daily caps, minimum intervals, night mode and the emergency bypass. A
// denial is a deferral, never a job failure.
package policy

import (
	"context"
	"fmt"
	"time"

	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/store"
)

// Denial reasons surfaced to the scheduler and the admin API.
const (
	ReasonDisabled          = "platform disabled"
	ReasonQueuedForMorning  = "queued for morning"
	ReasonOutsideWindow     = "outside allowed window"
	ReasonDailyLimitReached = "daily limit reached"
	ReasonMinInterval       = "min interval not elapsed"
)

// Verdict is the outcome of one admission check.
type Verdict struct {
	Allowed bool
	Reason  string

	// SilencePush is set when night mode lets the publish proceed but the
	// channel must suppress push notifications.
	SilencePush bool
}

// Usage is the log-derived bookkeeping a check needs: how many successes the
// platform had today (local time) and when the last one happened.
type Usage struct {
	PublishedToday int
	LastSuccessAt  *time.Time
}

// Evaluate applies the admission rules in order. Pure; usage is supplied by
// the caller so the decision is testable without a database.
func Evaluate(p *models.PublishingPolicy, now time.Time, isEmergency bool, usage Usage) Verdict {
	if !p.IsEnabled {
		return Verdict{Reason: ReasonDisabled}
	}

	if isEmergency && p.EmergencyOverride {
		return Verdict{Allowed: true, Reason: "emergency override"}
	}

	loc := p.Location()
	local := now.In(loc)
	nowMin := local.Hour()*60 + local.Minute()

	silencePush := false
	if p.NightStart.Valid && p.NightEnd.Valid {
		start, errS := models.ParseClock(p.NightStart.String)
		end, errE := models.ParseClock(p.NightEnd.String)
		if errS == nil && errE == nil && inWindow(nowMin, start, end) {
			if p.NightQueueForMorning {
				return Verdict{Reason: ReasonQueuedForMorning}
			}
			if p.NightSilencePush {
				silencePush = true
			}
		}
	}

	if len(p.AllowedWindows) > 0 && !inAnyWindow(nowMin, p.AllowedWindows) {
		return Verdict{Reason: ReasonOutsideWindow}
	}

	if p.DailyLimit > 0 && usage.PublishedToday >= p.DailyLimit {
		return Verdict{Reason: ReasonDailyLimitReached}
	}

	if p.MinIntervalMinutes > 0 && usage.LastSuccessAt != nil {
		elapsed := now.Sub(*usage.LastSuccessAt)
		if elapsed < time.Duration(p.MinIntervalMinutes)*time.Minute {
			return Verdict{Reason: ReasonMinInterval}
		}
	}

	return Verdict{Allowed: true, SilencePush: silencePush}
}

// inAnyWindow reports whether nowMin falls inside at least one window.
// Windows that fail to parse are skipped.
func inAnyWindow(nowMin int, windows models.WindowList) bool {
	for _, w := range windows {
		start, errS := models.ParseClock(w.Start)
		end, errE := models.ParseClock(w.End)
		if errS != nil || errE != nil {
			continue
		}
		if inWindow(nowMin, start, end) {
			return true
		}
	}
	return false
}

// inWindow checks start <= nowMin < end, wrapping past midnight when
// start > end.
func inWindow(nowMin, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return nowMin >= start && nowMin < end
	}
	return nowMin >= start || nowMin < end
}

// Gate answers admission checks against stored policies, deriving usage from
// the publish log so counters survive restarts.
type Gate struct {
	store *store.Store
}

// NewGate creates a store-backed admission gate.
func NewGate(s *store.Store) *Gate {
	return &Gate{store: s}
}

// CanPublishNow checks whether platform may publish at now, optionally with
// emergency bypass.
func (g *Gate) CanPublishNow(ctx context.Context, platform string, now time.Time, isEmergency bool) (Verdict, error) {
	p, err := g.store.GetPolicy(ctx, platform)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to load policy for %s: %w", platform, err)
	}

	usage, err := g.usage(ctx, p, now)
	if err != nil {
		return Verdict{}, err
	}

	return Evaluate(p, now, isEmergency, usage), nil
}

func (g *Gate) usage(ctx context.Context, p *models.PublishingPolicy, now time.Time) (Usage, error) {
	local := now.In(p.Location())
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.Location())

	count, err := g.store.CountSuccessSince(ctx, p.Platform, dayStart.UTC())
	if err != nil {
		return Usage{}, err
	}

	last, err := g.store.LastSuccessAt(ctx, p.Platform)
	if err != nil {
		return Usage{}, err
	}

	return Usage{PublishedToday: count, LastSuccessAt: last}, nil
}
