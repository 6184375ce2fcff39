package models

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// TimeWindow is a local-time-of-day range ("HH:mm" strings). A window whose
// start is later than its end wraps past midnight.
type TimeWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// WindowList is a []TimeWindow stored as a JSON array column.
type WindowList []TimeWindow

// Scan implements sql.Scanner.
func (l *WindowList) Scan(src any) error {
	return scanJSON(src, l)
}

// Value implements driver.Valuer.
func (l WindowList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return valueJSON(l)
}

// PublishingPolicy is the per-platform admission configuration, one row per
// platform. Mutated by admins, read by the scheduler on every gate check.
type PublishingPolicy struct {
	ID                   int64          `db:"id"`
	Platform             string         `db:"platform"`
	IsEnabled            bool           `db:"is_enabled"`
	DailyLimit           int            `db:"daily_limit"` // 0 means unlimited
	MinIntervalMinutes   int            `db:"min_interval_minutes"`
	AllowedWindows       WindowList     `db:"allowed_windows"` // empty means always allowed
	NightStart           sql.NullString `db:"night_start"`
	NightEnd             sql.NullString `db:"night_end"`
	NightSilencePush     bool           `db:"night_silence_push"`
	NightQueueForMorning bool           `db:"night_queue_for_morning"`
	EmergencyOverride    bool           `db:"emergency_override"`
	Timezone             string         `db:"timezone"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

// NewPublishingPolicy creates a policy with default values
func NewPublishingPolicy(platform string) *PublishingPolicy {
	return &PublishingPolicy{
		Platform:       platform,
		IsEnabled:      true,
		AllowedWindows: WindowList{},
		Timezone:       "UTC",
		UpdatedAt:      time.Now().UTC(),
	}
}

// Location resolves the policy's timezone string, falling back to UTC.
func (p *PublishingPolicy) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseClock parses an "HH:mm" local-time-of-day string into minutes after
// midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h*60 + m, nil
}
