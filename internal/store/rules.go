package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// InsertRule inserts a new rule and returns its id.
func (q *queries) InsertRule(ctx context.Context, rule *models.Rule) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO rules (name, priority, is_enabled, decision_type, min_trust_level,
			keywords_include, keywords_exclude, source_ids, group_ids, schedule_delay_minutes,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.Name, rule.Priority, rule.IsEnabled, rule.DecisionType, rule.MinTrustLevel,
		rule.KeywordsInclude, rule.KeywordsExclude, rule.SourceIDs, rule.GroupIDs,
		rule.ScheduleDelayMinutes, rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert rule: %w", err)
	}
	return res.LastInsertId()
}

// UpdateRule rewrites an editable rule row.
func (q *queries) UpdateRule(ctx context.Context, rule *models.Rule) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE rules
		SET name = ?, priority = ?, is_enabled = ?, decision_type = ?, min_trust_level = ?,
			keywords_include = ?, keywords_exclude = ?, source_ids = ?, group_ids = ?,
			schedule_delay_minutes = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, rule.Priority, rule.IsEnabled, rule.DecisionType, rule.MinTrustLevel,
		rule.KeywordsInclude, rule.KeywordsExclude, rule.SourceIDs, rule.GroupIDs,
		rule.ScheduleDelayMinutes, rule.UpdatedAt.UTC(), rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule %d: %w", rule.ID, err)
	}
	return nil
}

// GetRule fetches a rule by id.
func (q *queries) GetRule(ctx context.Context, id int64) (*models.Rule, error) {
	var rule models.Rule
	err := sqlx.GetContext(ctx, q.ext, &rule, `SELECT * FROM rules WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule %d: %w", id, err)
	}
	return &rule, nil
}

// ListRules returns all rules, highest priority first.
func (q *queries) ListRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	err := sqlx.SelectContext(ctx, q.ext, &rules, `
		SELECT * FROM rules ORDER BY priority DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// ListEnabledRules returns a consistent snapshot of enabled rules for one
// evaluation pass.
func (q *queries) ListEnabledRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	err := sqlx.SelectContext(ctx, q.ext, &rules, `
		SELECT * FROM rules WHERE is_enabled = 1
		ORDER BY priority DESC, created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}
	return rules, nil
}
