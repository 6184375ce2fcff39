package emergency

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
	"newsdesk/pressroom/internal/policy"
	"newsdesk/pressroom/internal/publish"
	"newsdesk/pressroom/internal/scheduler"
	"newsdesk/pressroom/internal/store"
)

type queueEnv struct {
	store *store.Store
	queue *Queue
	web   *publish.LoopbackPublisher
}

func newQueueEnv(t *testing.T) *queueEnv {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	web := publish.NewLoopbackPublisher("web")
	registry := publish.NewRegistry(publish.BreakerSettings{})
	registry.Register(web)
	sched := scheduler.New(s, policy.NewGate(s), registry, alert.Nop{}, scheduler.Config{})

	p := models.NewPublishingPolicy("web")
	p.EmergencyOverride = true
	require.NoError(t, s.UpsertPolicy(context.Background(), p))

	return &queueEnv{store: s, queue: NewQueue(s, sched), web: web}
}

func (e *queueEnv) seedContent(t *testing.T, status models.ContentStatus) int64 {
	t.Helper()
	ctx := context.Background()

	src := models.NewSource()
	src.Name = "wire"
	src.FeedURL = "https://example.com/feed-" + t.Name()
	srcID, err := e.store.InsertSource(ctx, src)
	require.NoError(t, err)

	item := models.NewContentItem()
	item.SourceID = srcID
	item.ExternalURL = sql.NullString{String: "https://example.com/" + t.Name(), Valid: true}
	item.Title = "breaking headline"
	item.Body = "body"
	id, err := e.store.InsertContentItem(ctx, item)
	require.NoError(t, err)

	require.NoError(t, e.store.UpdateContentStatus(ctx, id, status, time.Now().UTC()))
	return id
}

func (e *queueEnv) seedItem(t *testing.T, contentID int64) int64 {
	t.Helper()
	id, err := e.store.InsertEmergencyItem(context.Background(), models.NewEmergencyQueueItem(contentID, 8))
	require.NoError(t, err)
	return id
}

func TestPublishRunsImmediately(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentReadyToPublish)
	itemID := e.seedItem(t, contentID)

	stats, err := e.queue.Publish(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	require.Len(t, e.web.Requests(), 1)

	queueItem, err := e.store.GetEmergencyItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyPublished, queueItem.Status)

	content, err := e.store.GetContentItem(ctx, contentID)
	require.NoError(t, err)
	assert.Equal(t, models.ContentPublished, content.Status)

	// The run left an emergency job behind in a terminal state.
	job, err := e.store.GetJob(ctx, 1)
	require.NoError(t, err)
	assert.True(t, job.IsEmergency)
	assert.Equal(t, models.JobSucceeded, job.Status)
}

func TestPublishPromotesExistingJob(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentReadyToPublish)
	itemID := e.seedItem(t, contentID)

	jobID, err := e.store.InsertJob(ctx, models.NewPublishJob(contentID, 1, time.Now().UTC().Add(time.Hour)))
	require.NoError(t, err)

	stats, err := e.queue.Publish(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)

	job, err := e.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, job.IsEmergency, "the scheduled job was promoted, not duplicated")
	assert.Equal(t, models.JobSucceeded, job.Status)
}

func TestPublishOnlyFromPending(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentReadyToPublish)
	itemID := e.seedItem(t, contentID)

	_, err := e.queue.Publish(ctx, itemID)
	require.NoError(t, err)

	_, err = e.queue.Publish(ctx, itemID)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestPublishRefusesRejectedContent(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentRejected)
	itemID := e.seedItem(t, contentID)

	_, err := e.queue.Publish(ctx, itemID)
	require.Error(t, err)
	assert.Empty(t, e.web.Requests())

	// The transaction rolled back; the item is still pending.
	queueItem, err := e.store.GetEmergencyItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyPending, queueItem.Status)
}

func TestCancelWithdrawsEmergencyJob(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentReadyToPublish)
	itemID := e.seedItem(t, contentID)

	job := models.NewPublishJob(contentID, 1, time.Now().UTC())
	job.IsEmergency = true
	jobID, err := e.store.InsertJob(ctx, job)
	require.NoError(t, err)

	require.NoError(t, e.queue.Cancel(ctx, itemID))

	queueItem, err := e.store.GetEmergencyItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, models.EmergencyCancelled, queueItem.Status)

	got, err := e.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, got.Status)

	require.ErrorIs(t, e.queue.Cancel(ctx, itemID), ErrNotPending)
}

func TestCancelSparesRegularJob(t *testing.T) {
	e := newQueueEnv(t)
	ctx := context.Background()

	contentID := e.seedContent(t, models.ContentReadyToPublish)
	itemID := e.seedItem(t, contentID)

	jobID, err := e.store.InsertJob(ctx, models.NewPublishJob(contentID, 1, time.Now().UTC().Add(time.Hour)))
	require.NoError(t, err)

	require.NoError(t, e.queue.Cancel(ctx, itemID))

	got, err := e.store.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status, "a regularly scheduled job survives the escalation cancel")
}
