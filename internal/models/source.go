package models

import (
	"database/sql"
	"time"
)

// DefaultBehavior controls what happens to content from a source when no rule matches.
type DefaultBehavior string

const (
	BehaviorAuto      DefaultBehavior = "auto"      // content becomes auto-ready
	BehaviorEditorial DefaultBehavior = "editorial" // content requires approval
)

// Source represents a row in the 'sources' table
type Source struct {
	ID              int64           `db:"id"`
	Name            string          `db:"name"`
	FeedURL         string          `db:"feed_url"`
	GroupID         sql.NullInt64   `db:"group_id"`
	TrustLevel      int             `db:"trust_level"`
	DefaultBehavior DefaultBehavior `db:"default_behavior"`
	Status          string          `db:"status"`
	FailuresCount   int             `db:"failures_count"`
	LastError       sql.NullString  `db:"last_error"`
	LastRetrievedAt sql.NullTime    `db:"last_retrieved_at"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// NewSource creates a new Source with default values
func NewSource() *Source {
	now := time.Now().UTC()
	return &Source{
		TrustLevel:      50,
		DefaultBehavior: BehaviorEditorial,
		Status:          "active",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
