package models

import (
	"database/sql"
	"time"
)

// JobStatus is the lifecycle state of a publish job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// PublishJob is one unit of scheduling work for one content item at one
// version. Created by the lifecycle manager, mutated only by the scheduler,
// terminal once succeeded/failed/cancelled.
type PublishJob struct {
	ID              int64          `db:"id"`
	ContentItemID   int64          `db:"content_item_id"`
	VersionNo       int            `db:"version_no"`
	ScheduledAt     time.Time      `db:"scheduled_at"`
	Status          JobStatus      `db:"status"`
	AttemptCount    int            `db:"attempt_count"`
	MaxAttempts     int            `db:"max_attempts"`
	LastAttemptAt   sql.NullTime   `db:"last_attempt_at"`
	NextRetryAt     sql.NullTime   `db:"next_retry_at"`
	LastError       sql.NullString `db:"last_error"`
	IsEmergency     bool           `db:"is_emergency"`
	TargetPlatforms StringList     `db:"target_platforms"`
	SilencePush     bool           `db:"silence_push"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// NewPublishJob creates a new PublishJob with default values
func NewPublishJob(contentItemID int64, versionNo int, scheduledAt time.Time) *PublishJob {
	now := time.Now().UTC()
	return &PublishJob{
		ContentItemID:   contentItemID,
		VersionNo:       versionNo,
		ScheduledAt:     scheduledAt.UTC(),
		Status:          JobPending,
		MaxAttempts:     5,
		TargetPlatforms: StringList{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Terminal reports whether the job can no longer change state.
func (j *PublishJob) Terminal() bool {
	switch j.Status {
	case JobSucceeded, JobFailed, JobCancelled:
		return true
	}
	return false
}
