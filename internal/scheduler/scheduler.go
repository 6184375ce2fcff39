// Package scheduler drains due publish jobs: it claims each job with a
// compare-and-set, fans attempts out to the channel publishers through the
// admission gate, records every outcome in the idempotency ledger and decides
// whether the job finishes, retries or waits for policy to open up.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"newsdesk/pressroom/internal/alert"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/policy"
	"newsdesk/pressroom/internal/publish"
	"newsdesk/pressroom/internal/store"
)

// Config tunes one scheduler instance.
type Config struct {
	Interval       time.Duration
	MaxAttempts    int
	CallTimeout    time.Duration
	ChannelWorkers int
	BatchSize      int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.ChannelWorkers <= 0 {
		c.ChannelWorkers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// Stats counts what one scheduler pass did with the jobs it claimed.
type Stats struct {
	Claimed   int
	Succeeded int
	Failed    int
	Requeued  int
	Released  int
	Cancelled int
}

// Scheduler owns the publish job run loop.
type Scheduler struct {
	store    *store.Store
	gate     *policy.Gate
	registry *publish.Registry
	alerts   alert.Notifier
	cfg      Config
}

// New creates a scheduler.
func New(s *store.Store, gate *policy.Gate, registry *publish.Registry, alerts alert.Notifier, cfg Config) *Scheduler {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	return &Scheduler{
		store:    s,
		gate:     gate,
		registry: registry,
		alerts:   alerts,
		cfg:      cfg.withDefaults(),
	}
}

// Run processes due jobs on a fixed interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().
		Dur("interval", s.cfg.Interval).
		Int("workers", s.cfg.ChannelWorkers).
		Msg("Starting publish scheduler")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		stats, err := s.RunDue(ctx, time.Now().UTC())
		if err != nil {
			log.Error().Err(err).Msg("Scheduler pass failed")
		} else if stats.Claimed > 0 {
			log.Info().
				Int("claimed", stats.Claimed).
				Int("succeeded", stats.Succeeded).
				Int("requeued", stats.Requeued).
				Int("failed", stats.Failed).
				Int("released", stats.Released).
				Int("cancelled", stats.Cancelled).
				Msg("Scheduler pass finished")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping publish scheduler")
			return
		case <-ticker.C:
		}
	}
}

// RunDue claims and processes every job due at now. Safe to call from
// concurrent scheduler instances; the claim CAS makes each job land with
// exactly one of them.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	jobs, err := s.store.ListDueJobs(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return stats, err
	}

	for i := range jobs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		claimed, err := s.store.ClaimJob(ctx, jobs[i].ID, now)
		if err != nil {
			return stats, err
		}
		if !claimed {
			continue
		}
		stats.Claimed++

		s.processJob(ctx, &jobs[i], now, &stats)
	}

	return stats, nil
}

// RunJob claims and processes a single job immediately, bypassing the due
// query. Used by the emergency queue for publish-now.
func (s *Scheduler) RunJob(ctx context.Context, jobID int64, now time.Time) (Stats, error) {
	var stats Stats

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return stats, err
	}

	claimed, err := s.store.ClaimJob(ctx, job.ID, now)
	if err != nil {
		return stats, err
	}
	if !claimed {
		return stats, fmt.Errorf("job %d is not pending", jobID)
	}
	stats.Claimed++

	s.processJob(ctx, job, now, &stats)
	return stats, nil
}

// channelOutcome classifies one target channel after a pass.
type channelOutcome int

const (
	outcomeSuccess channelOutcome = iota
	outcomePermanent
	outcomeTransient
	outcomeDeferred
	outcomeDropped
)

func (s *Scheduler) processJob(ctx context.Context, job *models.PublishJob, now time.Time, stats *Stats) {
	logger := log.With().
		Str("run_id", uuid.NewString()).
		Int64("job_id", job.ID).
		Int64("content_item_id", job.ContentItemID).
		Int("version_no", job.VersionNo).
		Logger()

	item, err := s.store.GetContentItem(ctx, job.ContentItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.failJob(ctx, job, "content item no longer exists", now, stats, logger)
			return
		}
		s.requeueAfterError(ctx, job, err, now, stats, logger)
		return
	}

	if stale, reason := staleJob(job, item); stale {
		if _, err := s.store.CancelJob(ctx, job.ID, now); err != nil {
			logger.Error().Err(err).Msg("Failed to cancel stale job")
			return
		}
		stats.Cancelled++
		logger.Info().Str("reason", reason).Msg("Cancelled stale job")
		return
	}

	// A due scheduled or auto-ready item is now cleared for publishing.
	if item.Status == models.ContentScheduled || item.Status == models.ContentAutoReady {
		if err := s.store.UpdateContentStatus(ctx, item.ID, models.ContentReadyToPublish, now); err != nil {
			s.requeueAfterError(ctx, job, err, now, stats, logger)
			return
		}
		item.Status = models.ContentReadyToPublish
	}

	targets, err := s.resolveTargets(ctx, job)
	if err != nil {
		s.requeueAfterError(ctx, job, err, now, stats, logger)
		return
	}
	if len(targets) == 0 {
		s.failJob(ctx, job, "no target platforms configured", now, stats, logger)
		return
	}

	outcomes, lastErr := s.runChannels(ctx, job, item, targets, now, logger)
	s.finalize(ctx, job, item, outcomes, lastErr, now, stats, logger)
}

// staleJob reports whether the job no longer reflects the item it was created
// for: the content moved to a terminal state or a newer version superseded it.
func staleJob(job *models.PublishJob, item *models.ContentItem) (bool, string) {
	if item.IsRetracted {
		return true, "content retracted"
	}
	switch item.Status {
	case models.ContentRejected, models.ContentRetracted, models.ContentArchived, models.ContentBlocked:
		return true, "content in state " + string(item.Status)
	}
	if job.VersionNo != item.CurrentVersionNo {
		return true, fmt.Sprintf("superseded by version %d", item.CurrentVersionNo)
	}
	return false, ""
}

func (s *Scheduler) resolveTargets(ctx context.Context, job *models.PublishJob) ([]string, error) {
	if len(job.TargetPlatforms) > 0 {
		return job.TargetPlatforms, nil
	}
	return s.store.ListEnabledPlatforms(ctx)
}

// runChannels classifies every target channel: already published, permanently
// failed, deferred by policy, dropped, or attempted now through the registry.
func (s *Scheduler) runChannels(ctx context.Context, job *models.PublishJob, item *models.ContentItem, targets []string, now time.Time, logger zerolog.Logger) (map[string]channelOutcome, string) {
	outcomes := make(map[string]channelOutcome, len(targets))
	lastErr := ""

	done, err := s.store.SuccessChannels(ctx, item.ID, job.VersionNo)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load success channels")
		for _, ch := range targets {
			outcomes[ch] = outcomeTransient
		}
		return outcomes, err.Error()
	}

	type pending struct {
		channel     string
		silencePush bool
	}
	var attempts []pending

	for _, ch := range targets {
		if done[ch] {
			outcomes[ch] = outcomeSuccess
			continue
		}

		last, err := s.store.LastLogForChannel(ctx, item.ID, job.VersionNo, ch)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			outcomes[ch] = outcomeTransient
			lastErr = err.Error()
			continue
		}
		if last != nil && last.Status == models.LogFailed &&
			last.ErrorKind.Valid && last.ErrorKind.String == string(publish.KindPermanent) {
			outcomes[ch] = outcomePermanent
			continue
		}

		verdict, err := s.gate.CanPublishNow(ctx, ch, now, job.IsEmergency)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				outcomes[ch] = outcomeDropped
				s.recordDrop(ctx, job, item, ch, "no publishing policy", last, now, logger)
				continue
			}
			outcomes[ch] = outcomeTransient
			lastErr = err.Error()
			continue
		}
		if !verdict.Allowed {
			if verdict.Reason == policy.ReasonDisabled {
				outcomes[ch] = outcomeDropped
				s.recordDrop(ctx, job, item, ch, verdict.Reason, last, now, logger)
				continue
			}
			outcomes[ch] = outcomeDeferred
			logger.Debug().Str("channel", ch).Str("reason", verdict.Reason).Msg("Channel deferred by policy")
			continue
		}

		attempts = append(attempts, pending{channel: ch, silencePush: job.SilencePush || verdict.SilencePush})
	}

	if len(attempts) == 0 {
		return outcomes, lastErr
	}

	type result struct {
		channel string
		res     *publish.Result
		perr    *publish.Error
	}
	results := make([]result, len(attempts))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.ChannelWorkers)
	for i, att := range attempts {
		wg.Add(1)
		go func(i int, att pending) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()

			req := publish.Request{
				ContentItemID: item.ID,
				VersionNo:     job.VersionNo,
				Channel:       att.channel,
				Title:         item.Title,
				Body:          item.Body,
				Summary:       item.Summary,
				ExternalURL:   item.ExternalURL.String,
				IsBreaking:    item.IsBreaking,
				SilencePush:   att.silencePush,
			}
			res, perr := s.registry.Attempt(callCtx, &req)
			results[i] = result{channel: att.channel, res: res, perr: perr}
		}(i, att)
	}
	wg.Wait()

	// Ledger writes stay on this goroutine; SQLite rewards serialized writers.
	for _, r := range results {
		entry := &models.ChannelPublishLog{
			ContentItemID: item.ID,
			Channel:       r.channel,
			VersionNo:     job.VersionNo,
			CreatedAt:     now,
		}

		if r.perr == nil {
			entry.Status = models.LogSuccess
			if r.res.ExternalPostID != "" {
				entry.ExternalPostID = sqlNullString(r.res.ExternalPostID)
			}
			outcomes[r.channel] = outcomeSuccess
			logger.Info().Str("channel", r.channel).Msg("Channel publish succeeded")
		} else {
			entry.Status = models.LogFailed
			entry.ErrorKind = sqlNullString(string(r.perr.Kind))
			entry.Error = sqlNullString(r.perr.Error())
			lastErr = r.perr.Error()

			if r.perr.Retryable() {
				outcomes[r.channel] = outcomeTransient
			} else {
				outcomes[r.channel] = outcomePermanent
			}
			if r.perr.AuthError || r.perr.RateLimited {
				s.alerts.ChannelDegraded(r.channel, r.perr.AuthError, r.perr.RateLimited, r.perr)
			}
			logger.Warn().
				Str("channel", r.channel).
				Str("kind", string(r.perr.Kind)).
				Err(r.perr.Err).
				Msg("Channel publish failed")
		}

		if err := s.store.InsertLog(ctx, entry); err != nil {
			logger.Error().Err(err).Str("channel", r.channel).Msg("Failed to write ledger row")
		}
	}

	return outcomes, lastErr
}

// recordDrop writes one skipped ledger row for a channel removed from the
// job's completion set. Repeated passes do not stack rows.
func (s *Scheduler) recordDrop(ctx context.Context, job *models.PublishJob, item *models.ContentItem, channel, reason string, last *models.ChannelPublishLog, now time.Time, logger zerolog.Logger) {
	logger.Info().Str("channel", channel).Str("reason", reason).Msg("Channel dropped from job")
	if last != nil && last.Status == models.LogSkipped {
		return
	}
	entry := &models.ChannelPublishLog{
		ContentItemID: item.ID,
		Channel:       channel,
		VersionNo:     job.VersionNo,
		Status:        models.LogSkipped,
		Error:         sqlNullString(reason),
		CreatedAt:     now,
	}
	if err := s.store.InsertLog(ctx, entry); err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("Failed to write skip ledger row")
	}
}

// finalize applies the job-level verdict from the per-channel outcomes.
// Dropped channels no longer count toward completion.
func (s *Scheduler) finalize(ctx context.Context, job *models.PublishJob, item *models.ContentItem, outcomes map[string]channelOutcome, lastErr string, now time.Time, stats *Stats, logger zerolog.Logger) {
	var succeeded, permanent, transient, deferred int
	for _, o := range outcomes {
		switch o {
		case outcomeSuccess:
			succeeded++
		case outcomePermanent:
			permanent++
		case outcomeTransient:
			transient++
		case outcomeDeferred:
			deferred++
		}
	}

	switch {
	case transient == 0 && deferred == 0 && permanent == 0:
		ok, err := s.store.MarkJobSucceeded(ctx, job.ID, now)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to mark job succeeded")
			return
		}
		if !ok {
			// Cancelled mid-flight; the ledger rows stand, the job stays
			// cancelled.
			logger.Info().Msg("Job was cancelled during the run")
			stats.Cancelled++
			return
		}
		if err := s.store.MarkContentPublished(ctx, item.ID, now); err != nil {
			logger.Error().Err(err).Msg("Failed to mark content published")
		}
		if err := s.store.FinalizeEmergencyItems(ctx, item.ID, now); err != nil {
			logger.Error().Err(err).Msg("Failed to finalize emergency items")
		}
		stats.Succeeded++
		logger.Info().Int("channels", succeeded).Msg("Publish job succeeded")

	case transient == 0 && deferred == 0:
		// Only permanent failures remain; retrying cannot change them.
		s.failJob(ctx, job, nonEmpty(lastErr, "permanent channel failures"), now, stats, logger)

	case transient > 0:
		attempt := job.AttemptCount + 1
		maxAttempts := job.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = s.cfg.MaxAttempts
		}
		if attempt >= maxAttempts {
			s.failJob(ctx, job, nonEmpty(lastErr, "attempt budget exhausted"), now, stats, logger)
			return
		}
		nextRetry := now.Add(retryDelay(attempt))
		ok, err := s.store.RequeueJob(ctx, job.ID, attempt, nextRetry, nonEmpty(lastErr, "transient channel failures"), now)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to requeue job")
			return
		}
		if !ok {
			stats.Cancelled++
			return
		}
		stats.Requeued++
		logger.Info().
			Int("attempt", attempt).
			Time("next_retry_at", nextRetry).
			Msg("Publish job requeued")

	default:
		// Deferred channels only; policy will open up without costing an
		// attempt.
		ok, err := s.store.ReleaseJob(ctx, job.ID, now)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to release job")
			return
		}
		if !ok {
			stats.Cancelled++
			return
		}
		stats.Released++
		logger.Debug().Int("deferred", deferred).Msg("Publish job released, all channels deferred")
	}
}

func (s *Scheduler) failJob(ctx context.Context, job *models.PublishJob, reason string, now time.Time, stats *Stats, logger zerolog.Logger) {
	ok, err := s.store.MarkJobFailed(ctx, job.ID, reason, now)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mark job failed")
		return
	}
	if !ok {
		stats.Cancelled++
		return
	}
	stats.Failed++
	logger.Error().Str("reason", reason).Msg("Publish job permanently failed")
	s.alerts.JobFailed(job.ID, job.ContentItemID, reason)
}

// requeueAfterError puts a claimed job back without consuming an attempt when
// the pass itself broke (storage error, not a channel verdict).
func (s *Scheduler) requeueAfterError(ctx context.Context, job *models.PublishJob, cause error, now time.Time, stats *Stats, logger zerolog.Logger) {
	logger.Error().Err(cause).Msg("Job pass aborted")
	if _, err := s.store.ReleaseJob(ctx, job.ID, now); err != nil {
		logger.Error().Err(err).Msg("Failed to release job after error")
		return
	}
	stats.Released++
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

func sqlNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: true}
}
