package models

import (
	"database/sql"
	"time"
)

// RevisionAction tags what editorial action produced a revision snapshot.
type RevisionAction string

const (
	RevisionDraftSaved RevisionAction = "draft_saved"
	RevisionApproved   RevisionAction = "approved"
	RevisionRejected   RevisionAction = "rejected"
	RevisionScheduled  RevisionAction = "scheduled"
	RevisionCorrected  RevisionAction = "corrected"
	RevisionRetracted  RevisionAction = "retracted"
)

// ContentRevision is an immutable snapshot of a content item's draft and
// status at a point in time. Never mutated or deleted.
type ContentRevision struct {
	ID            int64          `db:"id"`
	ContentItemID int64          `db:"content_item_id"`
	VersionNo     int            `db:"version_no"`
	ActionType    RevisionAction `db:"action_type"`
	Title         string         `db:"title"`
	Body          string         `db:"body"`
	Summary       string         `db:"summary"`
	Status        ContentStatus  `db:"status"`
	Note          sql.NullString `db:"note"`
	CreatedAt     time.Time      `db:"created_at"`
}
