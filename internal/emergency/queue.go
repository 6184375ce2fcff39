// Package emergency drives the manual side of breaking-news handling:
// publishing a queued escalation immediately with policy bypass, and
// cancelling one before it ships.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/scheduler"
	"newsdesk/pressroom/internal/store"
)

// ErrNotPending is returned when publish or cancel hits an item that already
// left the pending state.
var ErrNotPending = errors.New("emergency item is not pending")

// Queue operates on emergency queue items.
type Queue struct {
	store *store.Store
	sched *scheduler.Scheduler
}

// NewQueue creates an emergency queue service.
func NewQueue(s *store.Store, sched *scheduler.Scheduler) *Queue {
	return &Queue{store: s, sched: sched}
}

// List returns emergency items, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status *models.EmergencyStatus) ([]models.EmergencyQueueItem, error) {
	return q.store.ListEmergencyItems(ctx, status)
}

// Publish moves a pending item to publishing, guarantees an emergency publish
// job for the content's current version and runs it immediately. The admission
// gate still applies per platform; only policies with the emergency override
// are bypassed.
func (q *Queue) Publish(ctx context.Context, itemID int64) (scheduler.Stats, error) {
	var jobID int64

	err := q.store.Transact(ctx, func(tx *store.Tx) error {
		now := time.Now().UTC()

		queueItem, err := tx.GetEmergencyItem(ctx, itemID)
		if err != nil {
			return err
		}

		ok, err := tx.TransitionEmergencyItem(ctx, itemID, models.EmergencyPending, models.EmergencyPublishing, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("emergency item %d: %w", itemID, ErrNotPending)
		}

		content, err := tx.GetContentItem(ctx, queueItem.ContentItemID)
		if err != nil {
			return err
		}
		if content.IsRetracted || content.Status == models.ContentRejected {
			return fmt.Errorf("content item %d is %s and cannot be published", content.ID, content.Status)
		}

		job, err := tx.GetActiveJob(ctx, content.ID, content.CurrentVersionNo)
		switch {
		case err == nil:
			jobID = job.ID
			return tx.PromoteJobToEmergency(ctx, job.ID, now)
		case errors.Is(err, store.ErrNotFound):
			job := models.NewPublishJob(content.ID, content.CurrentVersionNo, now)
			job.IsEmergency = true
			job.TargetPlatforms = queueItem.TargetPlatforms
			jobID, err = tx.InsertJob(ctx, job)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return scheduler.Stats{}, err
	}

	log.Info().
		Int64("emergency_item_id", itemID).
		Int64("job_id", jobID).
		Msg("Emergency publish triggered")

	return q.sched.RunJob(ctx, jobID, time.Now().UTC())
}

// Cancel withdraws a pending escalation and cancels the emergency job it
// points at, unless that job is also serving a regular schedule.
func (q *Queue) Cancel(ctx context.Context, itemID int64) error {
	return q.store.Transact(ctx, func(tx *store.Tx) error {
		now := time.Now().UTC()

		queueItem, err := tx.GetEmergencyItem(ctx, itemID)
		if err != nil {
			return err
		}

		ok, err := tx.TransitionEmergencyItem(ctx, itemID, models.EmergencyPending, models.EmergencyCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("emergency item %d: %w", itemID, ErrNotPending)
		}

		content, err := tx.GetContentItem(ctx, queueItem.ContentItemID)
		if err != nil {
			return err
		}

		job, err := tx.GetActiveJob(ctx, content.ID, content.CurrentVersionNo)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !job.IsEmergency {
			return nil
		}

		if _, err := tx.CancelJob(ctx, job.ID, now); err != nil {
			return err
		}
		log.Info().
			Int64("emergency_item_id", itemID).
			Int64("job_id", job.ID).
			Msg("Emergency escalation cancelled")
		return nil
	})
}
