package models

import (
	"database/sql"
	"time"
)

// ContentStatus is the lifecycle state of a content item.
type ContentStatus string

const (
	ContentNew             ContentStatus = "new"
	ContentPendingApproval ContentStatus = "pending_approval"
	ContentBlocked         ContentStatus = "blocked"
	ContentScheduled       ContentStatus = "scheduled"
	ContentAutoReady       ContentStatus = "auto_ready"
	ContentReadyToPublish  ContentStatus = "ready_to_publish"
	ContentPublished       ContentStatus = "published"
	ContentArchived        ContentStatus = "archived"
	ContentRetracted       ContentStatus = "retracted"
	ContentRejected        ContentStatus = "rejected"
	ContentDuplicate       ContentStatus = "duplicate"
)

// DecisionType classifies the rule-engine outcome for a content item.
type DecisionType string

const (
	DecisionAutoPublish     DecisionType = "auto_publish"
	DecisionRequireApproval DecisionType = "require_approval"
	DecisionBlock           DecisionType = "block"
	DecisionSchedule        DecisionType = "schedule"
)

// ContentItem represents a row in the 'content_items' table
type ContentItem struct {
	ID                 int64          `db:"id"`
	SourceID           int64          `db:"source_id"`
	ExternalURL        sql.NullString `db:"external_url"`
	Title              string         `db:"title"`
	Body               string         `db:"body"`
	Summary            string         `db:"summary"`
	Status             ContentStatus  `db:"status"`
	DecisionType       sql.NullString `db:"decision_type"`
	DecidedByRuleID    sql.NullInt64  `db:"decided_by_rule_id"`
	DecisionReason     sql.NullString `db:"decision_reason"`
	DecidedAt          sql.NullTime   `db:"decided_at"`
	ScheduledAt        sql.NullTime   `db:"scheduled_at"`
	TrustLevelSnapshot int            `db:"trust_level_snapshot"`
	CurrentVersionNo   int            `db:"current_version_no"`
	IsBreaking         bool           `db:"is_breaking"`
	BreakingPriority   sql.NullInt64  `db:"breaking_priority"`
	BreakingNote       sql.NullString `db:"breaking_note"`
	BreakingAt         sql.NullTime   `db:"breaking_at"`
	IsRetracted        bool           `db:"is_retracted"`
	RetractReason      sql.NullString `db:"retract_reason"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// NewContentItem creates a new ContentItem with default values
func NewContentItem() *ContentItem {
	now := time.Now().UTC()
	return &ContentItem{
		Status:           ContentNew,
		CurrentVersionNo: 1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Decided reports whether a rule evaluation has been applied to this item.
func (c *ContentItem) Decided() bool {
	return c.DecisionType.Valid
}

// PrePublish reports whether the item is in a state from which editorial
// rejection is still possible.
func (c *ContentItem) PrePublish() bool {
	switch c.Status {
	case ContentNew, ContentPendingApproval, ContentBlocked, ContentScheduled,
		ContentAutoReady, ContentReadyToPublish:
		return true
	}
	return false
}
