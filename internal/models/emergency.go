package models

import (
	"database/sql"
	"time"
)

// EmergencyStatus is the lifecycle state of an emergency queue item.
type EmergencyStatus string

const (
	EmergencyPending    EmergencyStatus = "pending"
	EmergencyPublishing EmergencyStatus = "publishing"
	EmergencyPublished  EmergencyStatus = "published"
	EmergencyCancelled  EmergencyStatus = "cancelled"
)

// EmergencyQueueItem is a priority escalation record for breaking content.
// Consumed by the scheduler with bypass semantics; terminal on published or
// cancelled.
type EmergencyQueueItem struct {
	ID               int64           `db:"id"`
	ContentItemID    int64           `db:"content_item_id"`
	Priority         int             `db:"priority"`
	Status           EmergencyStatus `db:"status"`
	MatchedKeywords  StringList      `db:"matched_keywords"`
	DetectionReason  sql.NullString  `db:"detection_reason"`
	TargetPlatforms  StringList      `db:"target_platforms"`
	OverrideSchedule bool            `db:"override_schedule"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// NewEmergencyQueueItem creates an item with default values
func NewEmergencyQueueItem(contentItemID int64, priority int) *EmergencyQueueItem {
	now := time.Now().UTC()
	return &EmergencyQueueItem{
		ContentItemID:    contentItemID,
		Priority:         priority,
		Status:           EmergencyPending,
		MatchedKeywords:  StringList{},
		TargetPlatforms:  StringList{},
		OverrideSchedule: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
