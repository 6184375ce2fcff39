package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// InsertJob inserts a new publish job and returns its id. The partial unique
// index rejects a second active job for the same (content item, version).
func (q *queries) InsertJob(ctx context.Context, job *models.PublishJob) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO publish_jobs (content_item_id, version_no, scheduled_at, status,
			attempt_count, max_attempts, is_emergency, target_platforms, silence_push,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ContentItemID, job.VersionNo, job.ScheduledAt.UTC(), job.Status,
		job.AttemptCount, job.MaxAttempts, job.IsEmergency, job.TargetPlatforms,
		job.SilencePush, job.CreatedAt.UTC(), job.UpdatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert publish job: %w", err)
	}
	return res.LastInsertId()
}

// GetJob fetches a publish job by id.
func (q *queries) GetJob(ctx context.Context, id int64) (*models.PublishJob, error) {
	var job models.PublishJob
	err := sqlx.GetContext(ctx, q.ext, &job, `SELECT * FROM publish_jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("publish job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch publish job %d: %w", id, err)
	}
	return &job, nil
}

// GetActiveJob returns the pending/running job for (content item, version),
// or ErrNotFound.
func (q *queries) GetActiveJob(ctx context.Context, contentItemID int64, versionNo int) (*models.PublishJob, error) {
	var job models.PublishJob
	err := sqlx.GetContext(ctx, q.ext, &job, `
		SELECT * FROM publish_jobs
		WHERE content_item_id = ? AND version_no = ? AND status IN (?, ?)`,
		contentItemID, versionNo, models.JobPending, models.JobRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch active job for content item %d v%d: %w", contentItemID, versionNo, err)
	}
	return &job, nil
}

// ListDueJobs returns pending jobs whose scheduled time has passed (or that
// are emergency) and whose retry delay, if any, has elapsed. Emergency jobs
// first, then oldest schedule.
func (q *queries) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.PublishJob, error) {
	var jobs []models.PublishJob
	err := sqlx.SelectContext(ctx, q.ext, &jobs, `
		SELECT * FROM publish_jobs
		WHERE status = ?
		  AND (is_emergency = 1 OR scheduled_at <= ?)
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY is_emergency DESC, scheduled_at ASC, id ASC
		LIMIT ?`,
		models.JobPending, now.UTC(), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob atomically moves a job from pending to running. Returns false when
// another scheduler invocation got there first.
func (q *queries) ClaimJob(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobRunning, now.UTC(), id, models.JobPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected claiming job %d: %w", id, err)
	}
	return affected == 1, nil
}

// MarkJobSucceeded finalizes a running job. The status guard keeps a
// cancellation that landed mid-flight from being overwritten.
func (q *queries) MarkJobSucceeded(ctx context.Context, id int64, now time.Time) (bool, error) {
	return q.finishJob(ctx, id, models.JobSucceeded, sql.NullString{}, now)
}

// MarkJobFailed finalizes a running job as permanently failed.
func (q *queries) MarkJobFailed(ctx context.Context, id int64, lastError string, now time.Time) (bool, error) {
	return q.finishJob(ctx, id, models.JobFailed, sql.NullString{String: lastError, Valid: true}, now)
}

func (q *queries) finishJob(ctx context.Context, id int64, status models.JobStatus, lastError sql.NullString, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs SET status = ?, last_error = COALESCE(?, last_error), updated_at = ?
		WHERE id = ? AND status = ?`,
		status, lastError, now.UTC(), id, models.JobRunning)
	if err != nil {
		return false, fmt.Errorf("failed to finish job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected finishing job %d: %w", id, err)
	}
	return affected == 1, nil
}

// RequeueJob returns a running job to pending after channel failures,
// recording the attempt and the computed retry time.
func (q *queries) RequeueJob(ctx context.Context, id int64, attemptCount int, nextRetryAt time.Time, lastError string, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs
		SET status = ?, attempt_count = ?, last_attempt_at = ?, next_retry_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobPending, attemptCount, now.UTC(), nextRetryAt.UTC(), lastError, now.UTC(),
		id, models.JobRunning)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected requeueing job %d: %w", id, err)
	}
	return affected == 1, nil
}

// ReleaseJob returns a running job to pending without consuming an attempt.
// Used when every remaining channel was deferred by policy.
func (q *queries) ReleaseJob(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs SET status = ?, last_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.JobPending, now.UTC(), now.UTC(), id, models.JobRunning)
	if err != nil {
		return false, fmt.Errorf("failed to release job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected releasing job %d: %w", id, err)
	}
	return affected == 1, nil
}

// CancelJob cancels a pending or running job. In-flight channel results are
// still logged but the job stays cancelled.
func (q *queries) CancelJob(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		models.JobCancelled, now.UTC(), id, models.JobPending, models.JobRunning)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected cancelling job %d: %w", id, err)
	}
	return affected > 0, nil
}

// PromoteJobToEmergency flags an existing active job for bypass scheduling.
func (q *queries) PromoteJobToEmergency(ctx context.Context, id int64, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE publish_jobs
		SET is_emergency = 1, scheduled_at = ?, next_retry_at = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		now.UTC(), now.UTC(), id, models.JobPending, models.JobRunning)
	if err != nil {
		return fmt.Errorf("failed to promote job %d to emergency: %w", id, err)
	}
	return nil
}

// JobFilter narrows admin job listings.
type JobFilter struct {
	Status *models.JobStatus
	From   *time.Time
	To     *time.Time

	// Cursor pagination (created_at, id of the last seen row)
	CursorCreatedAt *time.Time
	CursorID        *int64

	Limit int
}

// ListJobs returns jobs matching the filter in stable (created_at, id) order.
func (q *queries) ListJobs(ctx context.Context, f JobFilter) ([]models.PublishJob, error) {
	builder := sq.Select("*").From("publish_jobs").OrderBy("created_at ASC", "id ASC")

	if f.Status != nil {
		builder = builder.Where(sq.Eq{"status": *f.Status})
	}
	if f.From != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": f.From.UTC()})
	}
	if f.To != nil {
		builder = builder.Where(sq.Lt{"created_at": f.To.UTC()})
	}
	if f.CursorCreatedAt != nil && f.CursorID != nil {
		builder = builder.Where(sq.Or{
			sq.Gt{"created_at": f.CursorCreatedAt.UTC()},
			sq.And{sq.Eq{"created_at": f.CursorCreatedAt.UTC()}, sq.Gt{"id": *f.CursorID}},
		})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build job query: %w", err)
	}

	var jobs []models.PublishJob
	if err := sqlx.SelectContext(ctx, q.ext, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}
