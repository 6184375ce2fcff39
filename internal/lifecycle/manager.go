// Package lifecycle owns the editorial state machine for content items:
// applying rule decisions, approvals, rejections, corrections, breaking-news
// escalation and retraction. Every action runs in one transaction so the item,
// its revision trail and its publish job never drift apart.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"newsdesk/pressroom/internal/alert"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/rules"
	"newsdesk/pressroom/internal/store"
)

// Manager applies editorial actions to content items.
type Manager struct {
	store  *store.Store
	alerts alert.Notifier
}

// NewManager creates a lifecycle manager.
func NewManager(s *store.Store, alerts alert.Notifier) *Manager {
	if alerts == nil {
		alerts = alert.Nop{}
	}
	return &Manager{store: s, alerts: alerts}
}

// Draft carries edited content fields. Empty fields keep the current value.
type Draft struct {
	Title   string
	Body    string
	Summary string
}

func (d Draft) resolve(item *models.ContentItem) (title, body, summary string) {
	title, body, summary = item.Title, item.Body, item.Summary
	if d.Title != "" {
		title = d.Title
	}
	if d.Body != "" {
		body = d.Body
	}
	if d.Summary != "" {
		summary = d.Summary
	}
	return title, body, summary
}

// Decide evaluates the enabled rules against an undecided item and applies the
// outcome: status, decision fields and, for auto-publish and schedule
// decisions, the publish job. Re-running on a decided item returns
// ErrAlreadyDecided.
func (m *Manager) Decide(ctx context.Context, contentItemID int64) (*rules.Decision, error) {
	var decision rules.Decision

	err := m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if item.Decided() {
			return ErrAlreadyDecided
		}

		source, err := tx.GetSource(ctx, item.SourceID)
		if err != nil {
			return err
		}

		ruleSet, err := tx.ListEnabledRules(ctx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		decision = rules.Evaluate(item, source, ruleSet, now)
		return applyDecision(ctx, tx, item, decision, now)
	})
	if err != nil {
		return nil, err
	}

	if decision.Misconfigured {
		m.alerts.RuleMisconfigured(decision.RuleID, contentItemID, decision.Reason)
	}

	log.Debug().
		Int64("content_item_id", contentItemID).
		Str("decision", string(decision.Type)).
		Int64("rule_id", decision.RuleID).
		Msg("Content item decided")

	return &decision, nil
}

// applyDecision writes the decision fields, the resulting status, and the
// publish job when the decision calls for one.
func applyDecision(ctx context.Context, tx *store.Tx, item *models.ContentItem, d rules.Decision, now time.Time) error {
	item.DecisionType = sql.NullString{String: string(d.Type), Valid: true}
	item.DecisionReason = sql.NullString{String: d.Reason, Valid: true}
	item.DecidedAt = sql.NullTime{Time: now, Valid: true}
	if d.RuleID != 0 {
		item.DecidedByRuleID = sql.NullInt64{Int64: d.RuleID, Valid: true}
	} else {
		item.DecidedByRuleID = sql.NullInt64{}
	}

	var jobAt *time.Time
	switch d.Type {
	case models.DecisionAutoPublish:
		item.Status = models.ContentAutoReady
		item.ScheduledAt = sql.NullTime{}
		jobAt = &now
	case models.DecisionRequireApproval:
		item.Status = models.ContentPendingApproval
		item.ScheduledAt = sql.NullTime{}
	case models.DecisionBlock:
		item.Status = models.ContentBlocked
		item.ScheduledAt = sql.NullTime{}
	case models.DecisionSchedule:
		item.Status = models.ContentScheduled
		item.ScheduledAt = sql.NullTime{Time: d.ScheduledAt.UTC(), Valid: true}
		jobAt = d.ScheduledAt
	default:
		return fmt.Errorf("unknown decision type %q", d.Type)
	}

	if err := tx.UpdateContentDecision(ctx, item, now); err != nil {
		return err
	}

	if jobAt == nil {
		return nil
	}
	return ensureJob(ctx, tx, item, *jobAt, false)
}

// ensureJob creates the pending job for the item's current version unless one
// is already active.
func ensureJob(ctx context.Context, tx *store.Tx, item *models.ContentItem, at time.Time, silencePush bool) error {
	_, err := tx.GetActiveJob(ctx, item.ID, item.CurrentVersionNo)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	job := models.NewPublishJob(item.ID, item.CurrentVersionNo, at)
	job.SilencePush = silencePush
	_, err = tx.InsertJob(ctx, job)
	return err
}

// Approve moves an item awaiting review to ready-to-publish, snapshots the
// approved draft as a revision and guarantees a publish job for the approved
// version. The version number is bumped only when the draft differs from the
// last approved snapshot; a bump cancels the previous version's active job.
func (m *Manager) Approve(ctx context.Context, contentItemID int64, draft Draft, note string) error {
	return m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if item.Status != models.ContentPendingApproval && item.Status != models.ContentAutoReady {
			return invalidTransition("approve", item.Status)
		}

		now := time.Now().UTC()
		title, body, summary := draft.resolve(item)

		prev, err := tx.LatestRevisionByAction(ctx, contentItemID, models.RevisionApproved)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		bump := prev != nil && (prev.Title != title || prev.Body != body || prev.Summary != summary)

		if bump {
			if err := cancelActiveJob(ctx, tx, item, now); err != nil {
				return err
			}
			item.CurrentVersionNo++
		}

		item.Title, item.Body, item.Summary = title, body, summary
		item.Status = models.ContentReadyToPublish
		if err := tx.UpdateContentDraft(ctx, item, now); err != nil {
			return err
		}

		if err := insertRevision(ctx, tx, item, models.RevisionApproved, note, now); err != nil {
			return err
		}

		return ensureJob(ctx, tx, item, now, false)
	})
}

// Reject ends the editorial path for an unpublished item and cancels any
// active publish job so nothing ships after the rejection.
func (m *Manager) Reject(ctx context.Context, contentItemID int64, reason string) error {
	return m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if !item.PrePublish() {
			return invalidTransition("reject", item.Status)
		}

		now := time.Now().UTC()
		if err := cancelActiveJob(ctx, tx, item, now); err != nil {
			return err
		}

		item.Status = models.ContentRejected
		if err := tx.UpdateContentStatus(ctx, contentItemID, models.ContentRejected, now); err != nil {
			return err
		}

		return insertRevision(ctx, tx, item, models.RevisionRejected, reason, now)
	})
}

// SaveDraft records an intermediate edit as a revision without changing the
// item's status or version.
func (m *Manager) SaveDraft(ctx context.Context, contentItemID int64, draft Draft, note string) error {
	return m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if !item.PrePublish() {
			return invalidTransition("save draft", item.Status)
		}

		now := time.Now().UTC()
		item.Title, item.Body, item.Summary = draft.resolve(item)
		if err := tx.UpdateContentDraft(ctx, item, now); err != nil {
			return err
		}

		return insertRevision(ctx, tx, item, models.RevisionDraftSaved, note, now)
	})
}

// Correct edits an already approved or published item. A changed draft bumps
// the version, cancels the previous version's active job and queues a new
// publish job so every channel receives the corrected version.
func (m *Manager) Correct(ctx context.Context, contentItemID int64, draft Draft, note string) error {
	return m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if item.Status != models.ContentReadyToPublish && item.Status != models.ContentPublished {
			return invalidTransition("correct", item.Status)
		}

		now := time.Now().UTC()
		title, body, summary := draft.resolve(item)
		changed := title != item.Title || body != item.Body || summary != item.Summary

		if changed {
			if err := cancelActiveJob(ctx, tx, item, now); err != nil {
				return err
			}
			item.CurrentVersionNo++
		}

		item.Title, item.Body, item.Summary = title, body, summary
		if err := tx.UpdateContentDraft(ctx, item, now); err != nil {
			return err
		}

		if err := insertRevision(ctx, tx, item, models.RevisionCorrected, note, now); err != nil {
			return err
		}

		if changed {
			return ensureJob(ctx, tx, item, now, false)
		}
		return nil
	})
}

// Escalation describes a breaking-news mark.
type Escalation struct {
	Priority        int
	Note            string
	Reason          string
	Keywords        []string
	TargetPlatforms []string
	PushRequired    bool
}

// MarkBreaking flags an item as breaking news and enqueues an emergency queue
// item in the same transaction. An active publish job is promoted to
// emergency; an item already cleared for publishing gets one created.
// Available before and after publication.
func (m *Manager) MarkBreaking(ctx context.Context, contentItemID int64, esc Escalation) (int64, error) {
	var queueItemID int64

	err := m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		switch item.Status {
		case models.ContentRejected, models.ContentRetracted, models.ContentArchived, models.ContentDuplicate:
			return invalidTransition("mark breaking", item.Status)
		}

		now := time.Now().UTC()
		item.IsBreaking = true
		item.BreakingPriority = sql.NullInt64{Int64: int64(esc.Priority), Valid: true}
		item.BreakingAt = sql.NullTime{Time: now, Valid: true}
		if esc.Note != "" {
			item.BreakingNote = sql.NullString{String: esc.Note, Valid: true}
		}
		if err := tx.UpdateContentBreaking(ctx, item, now); err != nil {
			return err
		}

		queueItem := models.NewEmergencyQueueItem(contentItemID, esc.Priority)
		queueItem.MatchedKeywords = models.StringList(esc.Keywords)
		queueItem.TargetPlatforms = models.StringList(esc.TargetPlatforms)
		if esc.Reason != "" {
			queueItem.DetectionReason = sql.NullString{String: esc.Reason, Valid: true}
		}
		queueItemID, err = tx.InsertEmergencyItem(ctx, queueItem)
		if err != nil {
			return err
		}

		job, err := tx.GetActiveJob(ctx, contentItemID, item.CurrentVersionNo)
		switch {
		case err == nil:
			return tx.PromoteJobToEmergency(ctx, job.ID, now)
		case errors.Is(err, store.ErrNotFound):
			if !publishableNow(item.Status) {
				// Awaiting editorial action; the emergency publish
				// endpoint can still force a job later.
				return nil
			}
			job := models.NewPublishJob(contentItemID, item.CurrentVersionNo, now)
			job.IsEmergency = true
			job.SilencePush = !esc.PushRequired
			job.TargetPlatforms = models.StringList(esc.TargetPlatforms)
			_, err := tx.InsertJob(ctx, job)
			return err
		default:
			return err
		}
	})
	if err != nil {
		return 0, err
	}

	m.alerts.BreakingDetected(contentItemID, esc.Priority, esc.Reason)
	return queueItemID, nil
}

// publishableNow reports whether a breaking mark may create a job immediately,
// without waiting for editorial approval.
func publishableNow(status models.ContentStatus) bool {
	switch status {
	case models.ContentAutoReady, models.ContentReadyToPublish,
		models.ContentScheduled, models.ContentPublished:
		return true
	}
	return false
}

// Retract pulls a published item. Channel adapters receive no delete call;
// the retraction is recorded and any still-active job is cancelled.
func (m *Manager) Retract(ctx context.Context, contentItemID int64, reason string) error {
	return m.store.Transact(ctx, func(tx *store.Tx) error {
		item, err := tx.GetContentItem(ctx, contentItemID)
		if err != nil {
			return err
		}
		if item.Status != models.ContentPublished {
			return invalidTransition("retract", item.Status)
		}

		now := time.Now().UTC()
		if err := cancelActiveJob(ctx, tx, item, now); err != nil {
			return err
		}

		if err := tx.UpdateContentRetracted(ctx, contentItemID, reason, now); err != nil {
			return err
		}

		item.Status = models.ContentRetracted
		return insertRevision(ctx, tx, item, models.RevisionRetracted, reason, now)
	})
}

// RecomputeReport summarizes a bulk decision recompute.
type RecomputeReport struct {
	Processed  int                         `json:"processed"`
	Changed    int                         `json:"changed"`
	ByDecision map[models.DecisionType]int `json:"by_decision"`
}

// RecomputeDecisions re-evaluates the rule set for every matching item that
// has not yet been approved or published. Items whose decision changes get the
// new status and job wiring; a decision change away from auto-publish or
// schedule cancels the stale job.
func (m *Manager) RecomputeDecisions(ctx context.Context, filter store.ContentFilter) (RecomputeReport, error) {
	report := RecomputeReport{ByDecision: make(map[models.DecisionType]int)}

	items, err := m.store.ListContentItems(ctx, filter)
	if err != nil {
		return report, err
	}

	for i := range items {
		if !recomputable(items[i].Status) {
			continue
		}

		var decision rules.Decision
		changed := false

		err := m.store.Transact(ctx, func(tx *store.Tx) error {
			item, err := tx.GetContentItem(ctx, items[i].ID)
			if err != nil {
				return err
			}
			if !recomputable(item.Status) {
				return nil
			}

			source, err := tx.GetSource(ctx, item.SourceID)
			if err != nil {
				return err
			}
			ruleSet, err := tx.ListEnabledRules(ctx)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			decision = rules.Evaluate(item, source, ruleSet, now)
			if item.DecisionType.Valid && item.DecisionType.String == string(decision.Type) {
				return nil
			}

			changed = true
			if err := cancelActiveJob(ctx, tx, item, now); err != nil {
				return err
			}
			return applyDecision(ctx, tx, item, decision, now)
		})
		if err != nil {
			return report, fmt.Errorf("failed to recompute content item %d: %w", items[i].ID, err)
		}

		report.Processed++
		if changed {
			report.Changed++
			report.ByDecision[decision.Type]++
			if decision.Misconfigured {
				m.alerts.RuleMisconfigured(decision.RuleID, items[i].ID, decision.Reason)
			}
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("changed", report.Changed).
		Msg("Decision recompute finished")

	return report, nil
}

// recomputable reports whether an item's decision may still be replaced.
// Anything an editor or the scheduler already acted on is off limits.
func recomputable(status models.ContentStatus) bool {
	switch status {
	case models.ContentNew, models.ContentPendingApproval, models.ContentBlocked,
		models.ContentScheduled, models.ContentAutoReady:
		return true
	}
	return false
}

func cancelActiveJob(ctx context.Context, tx *store.Tx, item *models.ContentItem, now time.Time) error {
	job, err := tx.GetActiveJob(ctx, item.ID, item.CurrentVersionNo)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = tx.CancelJob(ctx, job.ID, now)
	return err
}

func insertRevision(ctx context.Context, tx *store.Tx, item *models.ContentItem, action models.RevisionAction, note string, now time.Time) error {
	rev := &models.ContentRevision{
		ContentItemID: item.ID,
		VersionNo:     item.CurrentVersionNo,
		ActionType:    action,
		Title:         item.Title,
		Body:          item.Body,
		Summary:       item.Summary,
		Status:        item.Status,
		CreatedAt:     now,
	}
	if note != "" {
		rev.Note = sql.NullString{String: note, Valid: true}
	}
	_, err := tx.InsertRevision(ctx, rev)
	return err
}
