package lifecycle

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pressroom/internal/alert"
	"newsdesk/pressroom/internal/database"
	"newsdesk/pressroom/internal/models"
	"newsdesk/pressroom/internal/store"
)

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := store.New(db)
	return NewManager(s, alert.Nop{}), s
}

func seedSource(t *testing.T, s *store.Store, behavior models.DefaultBehavior) int64 {
	t.Helper()
	src := models.NewSource()
	src.Name = "wire"
	src.FeedURL = "https://example.com/" + t.Name()
	src.DefaultBehavior = behavior
	id, err := s.InsertSource(context.Background(), src)
	require.NoError(t, err)
	return id
}

func seedContent(t *testing.T, s *store.Store, sourceID int64, title string) int64 {
	t.Helper()
	item := models.NewContentItem()
	item.SourceID = sourceID
	item.ExternalURL = sql.NullString{String: "https://example.com/items/" + title, Valid: true}
	item.Title = title
	item.Body = "body of " + title
	item.TrustLevelSnapshot = 50
	id, err := s.InsertContentItem(context.Background(), item)
	require.NoError(t, err)
	return id
}

func seedRule(t *testing.T, s *store.Store, decision models.DecisionType, priority int, mutate func(*models.Rule)) int64 {
	t.Helper()
	rule := models.NewRule()
	rule.Name = string(decision) + " rule"
	rule.Priority = priority
	rule.DecisionType = decision
	if mutate != nil {
		mutate(rule)
	}
	id, err := s.InsertRule(context.Background(), rule)
	require.NoError(t, err)
	return id
}

func TestDecideAutoPublishCreatesJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	ruleID := seedRule(t, s, models.DecisionAutoPublish, 10, nil)
	contentID := seedContent(t, s, srcID, "auto")

	d, err := m.Decide(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionAutoPublish, d.Type)
	assert.Equal(t, ruleID, d.RuleID)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentAutoReady, item.Status)
	assert.True(t, item.Decided())

	job, err := s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)

	_, err = m.Decide(ctx, contentID)
	require.ErrorIs(t, err, ErrAlreadyDecided)
}

func TestDecideScheduleCreatesDelayedJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	seedRule(t, s, models.DecisionSchedule, 10, func(r *models.Rule) {
		r.ScheduleDelayMinutes = sql.NullInt64{Int64: 45, Valid: true}
	})
	contentID := seedContent(t, s, srcID, "scheduled")

	before := time.Now().UTC()
	d, err := m.Decide(ctx, contentID)
	require.NoError(t, err)
	require.Equal(t, models.DecisionSchedule, d.Type)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentScheduled, item.Status)
	require.True(t, item.ScheduledAt.Valid)

	job, err := s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)
	assert.False(t, job.ScheduledAt.Before(before.Add(44*time.Minute)))
}

func TestDecideBlockCreatesNoJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorAuto)
	seedRule(t, s, models.DecisionBlock, 10, nil)
	contentID := seedContent(t, s, srcID, "blocked")

	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentBlocked, item.Status)

	_, err = s.GetActiveJob(ctx, contentID, 1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDecideMisconfiguredScheduleFallsBack(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorAuto)
	seedRule(t, s, models.DecisionSchedule, 10, nil) // no delay
	contentID := seedContent(t, s, srcID, "misconfigured")

	d, err := m.Decide(ctx, contentID)
	require.NoError(t, err)
	assert.True(t, d.Misconfigured)
	assert.Equal(t, models.DecisionRequireApproval, d.Type)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentPendingApproval, item.Status)
}

func TestApproveCreatesRevisionAndJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	contentID := seedContent(t, s, srcID, "pending")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	require.NoError(t, m.Approve(ctx, contentID, Draft{}, "looks good"))

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentReadyToPublish, item.Status)
	assert.Equal(t, 1, item.CurrentVersionNo, "first approval does not bump the version")

	rev, err := s.LatestRevisionByAction(ctx, contentID, models.RevisionApproved)
	require.NoError(t, err)
	assert.Equal(t, "pending", rev.Title)
	require.True(t, rev.Note.Valid)
	assert.Equal(t, "looks good", rev.Note.String)

	_, err = s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)

	// Approving again from ready_to_publish is a state error.
	err = m.Approve(ctx, contentID, Draft{}, "")
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, models.ContentReadyToPublish, tErr.From)
}

func TestCorrectBumpsVersionAndReplacesJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	contentID := seedContent(t, s, srcID, "story")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)
	require.NoError(t, m.Approve(ctx, contentID, Draft{}, ""))

	oldJob, err := s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)

	require.NoError(t, m.Correct(ctx, contentID, Draft{Body: "corrected body"}, "typo fix"))

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.CurrentVersionNo)
	assert.Equal(t, "corrected body", item.Body)

	stale, err := s.GetJob(ctx, oldJob.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, stale.Status, "the superseded version's job is cancelled")

	_, err = s.GetActiveJob(ctx, contentID, 2)
	require.NoError(t, err)

	// An identical correction changes nothing.
	require.NoError(t, m.Correct(ctx, contentID, Draft{Body: "corrected body"}, "noop"))
	item, err = s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, 2, item.CurrentVersionNo)
}

func TestRejectCancelsActiveJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorAuto)
	contentID := seedContent(t, s, srcID, "rejectme")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	job, err := s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)

	require.NoError(t, m.Reject(ctx, contentID, "not newsworthy"))

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentRejected, item.Status)

	cancelled, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, cancelled.Status)

	rev, err := s.LatestRevisionByAction(ctx, contentID, models.RevisionRejected)
	require.NoError(t, err)
	require.True(t, rev.Note.Valid)
	assert.Equal(t, "not newsworthy", rev.Note.String)
}

func TestMarkBreakingPromotesActiveJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorAuto)
	contentID := seedContent(t, s, srcID, "breaking")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	queueItemID, err := m.MarkBreaking(ctx, contentID, Escalation{
		Priority: 9,
		Reason:   "editor call",
	})
	require.NoError(t, err)

	queueItem, err := s.GetEmergencyItem(ctx, queueItemID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyPending, queueItem.Status)
	assert.Equal(t, 9, queueItem.Priority)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.True(t, item.IsBreaking)

	job, err := s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)
	assert.True(t, job.IsEmergency)
}

func TestMarkBreakingAwaitingApprovalCreatesNoJob(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	contentID := seedContent(t, s, srcID, "pendingbreak")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	_, err = m.MarkBreaking(ctx, contentID, Escalation{Priority: 5})
	require.NoError(t, err)

	_, err = s.GetActiveJob(ctx, contentID, 1)
	require.ErrorIs(t, err, store.ErrNotFound, "approval still gates the publish")
}

func TestRetractOnlyFromPublished(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorAuto)
	contentID := seedContent(t, s, srcID, "retractme")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	err = m.Retract(ctx, contentID, "too early")
	var tErr *InvalidTransitionError
	require.ErrorAs(t, err, &tErr)

	require.NoError(t, s.MarkContentPublished(ctx, contentID, time.Now().UTC()))
	require.NoError(t, m.Retract(ctx, contentID, "factual error"))

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentRetracted, item.Status)
	assert.True(t, item.IsRetracted)
	require.True(t, item.RetractReason.Valid)
	assert.Equal(t, "factual error", item.RetractReason.String)
}

func TestRecomputeDecisionsAppliesNewRules(t *testing.T) {
	m, s := newTestManager(t)
	ctx := context.Background()

	srcID := seedSource(t, s, models.BehaviorEditorial)
	contentID := seedContent(t, s, srcID, "recompute")
	_, err := m.Decide(ctx, contentID)
	require.NoError(t, err)

	item, err := s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	require.Equal(t, models.ContentPendingApproval, item.Status)

	// A new auto-publish rule lands after the first decision.
	seedRule(t, s, models.DecisionAutoPublish, 100, nil)

	report, err := m.RecomputeDecisions(ctx, store.ContentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.ByDecision[models.DecisionAutoPublish])

	item, err = s.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentAutoReady, item.Status)

	_, err = s.GetActiveJob(ctx, contentID, 1)
	require.NoError(t, err)

	// A second pass is a no-op.
	report, err = m.RecomputeDecisions(ctx, store.ContentFilter{})
	require.NoError(t, err)
	assert.Zero(t, report.Changed)
}
