package models

import (
	"database/sql"
	"time"
)

// Rule represents a row in the 'rules' table.
// Rules are created and edited by editors; the engine never mutates them.
type Rule struct {
	ID                   int64         `db:"id"`
	Name                 string        `db:"name"`
	Priority             int           `db:"priority"`
	IsEnabled            bool          `db:"is_enabled"`
	DecisionType         DecisionType  `db:"decision_type"`
	MinTrustLevel        sql.NullInt64 `db:"min_trust_level"`
	KeywordsInclude      StringList    `db:"keywords_include"`
	KeywordsExclude      StringList    `db:"keywords_exclude"`
	SourceIDs            Int64List     `db:"source_ids"`
	GroupIDs             Int64List     `db:"group_ids"`
	ScheduleDelayMinutes sql.NullInt64 `db:"schedule_delay_minutes"`
	CreatedAt            time.Time     `db:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at"`
}

// NewRule creates a new Rule with default values
func NewRule() *Rule {
	now := time.Now().UTC()
	return &Rule{
		IsEnabled:       true,
		KeywordsInclude: StringList{},
		KeywordsExclude: StringList{},
		SourceIDs:       Int64List{},
		GroupIDs:        Int64List{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
