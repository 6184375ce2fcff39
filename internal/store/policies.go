package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// UpsertPolicy inserts or replaces the policy row for a platform.
func (q *queries) UpsertPolicy(ctx context.Context, p *models.PublishingPolicy) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO publishing_policies (platform, is_enabled, daily_limit, min_interval_minutes,
			allowed_windows, night_start, night_end, night_silence_push, night_queue_for_morning,
			emergency_override, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			daily_limit = excluded.daily_limit,
			min_interval_minutes = excluded.min_interval_minutes,
			allowed_windows = excluded.allowed_windows,
			night_start = excluded.night_start,
			night_end = excluded.night_end,
			night_silence_push = excluded.night_silence_push,
			night_queue_for_morning = excluded.night_queue_for_morning,
			emergency_override = excluded.emergency_override,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		p.Platform, p.IsEnabled, p.DailyLimit, p.MinIntervalMinutes,
		p.AllowedWindows, p.NightStart, p.NightEnd, p.NightSilencePush,
		p.NightQueueForMorning, p.EmergencyOverride, p.Timezone, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert policy for platform %s: %w", p.Platform, err)
	}
	return nil
}

// GetPolicy fetches the policy for a platform.
func (q *queries) GetPolicy(ctx context.Context, platform string) (*models.PublishingPolicy, error) {
	var p models.PublishingPolicy
	err := sqlx.GetContext(ctx, q.ext, &p, `SELECT * FROM publishing_policies WHERE platform = ?`, platform)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("policy for platform %s: %w", platform, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policy for platform %s: %w", platform, err)
	}
	return &p, nil
}

// ListPolicies returns all platform policies.
func (q *queries) ListPolicies(ctx context.Context) ([]models.PublishingPolicy, error) {
	var policies []models.PublishingPolicy
	err := sqlx.SelectContext(ctx, q.ext, &policies, `
		SELECT * FROM publishing_policies ORDER BY platform ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// ListEnabledPlatforms returns the platforms with an enabled policy, the
// default target set for jobs without an explicit one.
func (q *queries) ListEnabledPlatforms(ctx context.Context) ([]string, error) {
	var platforms []string
	err := sqlx.SelectContext(ctx, q.ext, &platforms, `
		SELECT platform FROM publishing_policies WHERE is_enabled = 1 ORDER BY platform ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled platforms: %w", err)
	}
	return platforms, nil
}
