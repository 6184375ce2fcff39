package models

import (
	"database/sql"
	"time"
)

// LogStatus is the outcome recorded for one channel attempt.
type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogFailed  LogStatus = "failed"
	LogSkipped LogStatus = "skipped"
)

// ChannelPublishLog is the idempotency ledger: append-only rows, at most one
// success per (content item, channel, version), enforced by a partial unique
// index and consulted before every attempt.
type ChannelPublishLog struct {
	ID             int64          `db:"id"`
	ContentItemID  int64          `db:"content_item_id"`
	Channel        string         `db:"channel"`
	VersionNo      int            `db:"version_no"`
	Status         LogStatus      `db:"status"`
	ErrorKind      sql.NullString `db:"error_kind"`
	ExternalPostID sql.NullString `db:"external_post_id"`
	Error          sql.NullString `db:"error"`
	CreatedAt      time.Time      `db:"created_at"`
}
