package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsdesk/pressroom/internal/models"
)

func insertTestJob(t *testing.T, s *Store, contentID int64, versionNo int, scheduledAt time.Time) int64 {
	t.Helper()
	job := models.NewPublishJob(contentID, versionNo, scheduledAt)
	id, err := s.InsertJob(context.Background(), job)
	require.NoError(t, err)
	return id
}

func TestClaimJobIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/claim")
	now := time.Now().UTC()

	jobID := insertTestJob(t, s, contentID, 1, now)

	claimed, err := s.ClaimJob(ctx, jobID, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = s.ClaimJob(ctx, jobID, now)
	require.NoError(t, err)
	assert.False(t, claimed, "a running job cannot be claimed again")
}

func TestActiveJobUniquePerContentVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/unique")
	now := time.Now().UTC()

	insertTestJob(t, s, contentID, 1, now)

	_, err := s.InsertJob(ctx, models.NewPublishJob(contentID, 1, now))
	require.Error(t, err, "second active job for the same content version is rejected")

	// A different version may have its own active job.
	_, err = s.InsertJob(ctx, models.NewPublishJob(contentID, 2, now))
	require.NoError(t, err)
}

func TestListDueJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	now := time.Now().UTC()

	dueID := insertTestJob(t, s, insertTestContent(t, s, srcID, "https://example.com/due"), 1, now.Add(-time.Minute))
	insertTestJob(t, s, insertTestContent(t, s, srcID, "https://example.com/future"), 1, now.Add(time.Hour))

	// Emergency jobs ignore their scheduled time.
	emergencyContent := insertTestContent(t, s, srcID, "https://example.com/emergency")
	emergencyJob := models.NewPublishJob(emergencyContent, 1, now.Add(time.Hour))
	emergencyJob.IsEmergency = true
	emergencyID, err := s.InsertJob(ctx, emergencyJob)
	require.NoError(t, err)

	// A due job waiting out a retry delay is not listed.
	retryContent := insertTestContent(t, s, srcID, "https://example.com/retry")
	retryID := insertTestJob(t, s, retryContent, 1, now.Add(-time.Minute))
	claimed, err := s.ClaimJob(ctx, retryID, now)
	require.NoError(t, err)
	require.True(t, claimed)
	requeued, err := s.RequeueJob(ctx, retryID, 1, now.Add(time.Hour), "boom", now)
	require.NoError(t, err)
	require.True(t, requeued)

	jobs, err := s.ListDueJobs(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, emergencyID, jobs[0].ID, "emergency jobs come first")
	assert.Equal(t, dueID, jobs[1].ID)
}

func TestFinishGuardsAgainstCancellation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/cancelrace")
	now := time.Now().UTC()

	jobID := insertTestJob(t, s, contentID, 1, now)
	claimed, err := s.ClaimJob(ctx, jobID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	// Cancellation lands while the job is in flight.
	cancelled, err := s.CancelJob(ctx, jobID, now)
	require.NoError(t, err)
	require.True(t, cancelled)

	ok, err := s.MarkJobSucceeded(ctx, jobID, now)
	require.NoError(t, err)
	assert.False(t, ok, "finalize must not overwrite the cancellation")

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status)
}

func TestRequeuePreservesAttemptBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/requeue")
	now := time.Now().UTC()
	retryAt := now.Add(10 * time.Minute)

	jobID := insertTestJob(t, s, contentID, 1, now)
	claimed, err := s.ClaimJob(ctx, jobID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err := s.RequeueJob(ctx, jobID, 1, retryAt, "channel timeout", now)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, 1, job.AttemptCount)
	require.True(t, job.NextRetryAt.Valid)
	assert.True(t, job.NextRetryAt.Time.Equal(retryAt))
	require.True(t, job.LastError.Valid)
	assert.Equal(t, "channel timeout", job.LastError.String)
}

func TestReleaseJobKeepsAttemptCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/release")
	now := time.Now().UTC()

	jobID := insertTestJob(t, s, contentID, 1, now)
	claimed, err := s.ClaimJob(ctx, jobID, now)
	require.NoError(t, err)
	require.True(t, claimed)

	ok, err := s.ReleaseJob(ctx, jobID, now)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Zero(t, job.AttemptCount)
}

func TestPromoteJobToEmergency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	contentID := insertTestContent(t, s, srcID, "https://example.com/promote")
	now := time.Now().UTC()

	jobID := insertTestJob(t, s, contentID, 1, now.Add(time.Hour))
	require.NoError(t, s.PromoteJobToEmergency(ctx, jobID, now))

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, job.IsEmergency)
	assert.False(t, job.NextRetryAt.Valid)
}

func TestListJobsCursorPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	base := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		contentID := insertTestContent(t, s, srcID, fmt.Sprintf("https://example.com/page-%d", i))
		job := models.NewPublishJob(contentID, 1, base)
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		job.UpdatedAt = job.CreatedAt
		id, err := s.InsertJob(ctx, job)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	page1, err := s.ListJobs(ctx, JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, ids[0], page1[0].ID)
	assert.Equal(t, ids[1], page1[1].ID)

	last := page1[len(page1)-1]
	cursorAt := last.CreatedAt
	cursorID := last.ID
	page2, err := s.ListJobs(ctx, JobFilter{
		Limit:           10,
		CursorCreatedAt: &cursorAt,
		CursorID:        &cursorID,
	})
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, ids[2], page2[0].ID)
	assert.Equal(t, ids[4], page2[2].ID)
}

func TestListJobsStatusFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srcID := insertTestSource(t, s)
	now := time.Now().UTC()

	pendingID := insertTestJob(t, s, insertTestContent(t, s, srcID, "https://example.com/f1"), 1, now)
	failedContent := insertTestContent(t, s, srcID, "https://example.com/f2")
	failedID := insertTestJob(t, s, failedContent, 1, now)

	claimed, err := s.ClaimJob(ctx, failedID, now)
	require.NoError(t, err)
	require.True(t, claimed)
	ok, err := s.MarkJobFailed(ctx, failedID, "gone", now)
	require.NoError(t, err)
	require.True(t, ok)

	status := models.JobPending
	jobs, err := s.ListJobs(ctx, JobFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, pendingID, jobs[0].ID)
}
