package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// InsertContentItem inserts a new content item and returns its id.
// A duplicate external URL returns ErrDuplicateContent.
func (q *queries) InsertContentItem(ctx context.Context, item *models.ContentItem) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO content_items (source_id, external_url, title, body, summary, status,
			trust_level_snapshot, current_version_no, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_url) DO NOTHING`,
		item.SourceID, item.ExternalURL, item.Title, item.Body, item.Summary, item.Status,
		item.TrustLevelSnapshot, item.CurrentVersionNo, item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert content item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return 0, ErrDuplicateContent
	}
	return res.LastInsertId()
}

// ErrDuplicateContent is returned when an intake item collides with an
// already ingested external URL.
var ErrDuplicateContent = errors.New("duplicate content")

// GetContentItem fetches a content item by id.
func (q *queries) GetContentItem(ctx context.Context, id int64) (*models.ContentItem, error) {
	var item models.ContentItem
	err := sqlx.GetContext(ctx, q.ext, &item, `SELECT * FROM content_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content item %d: %w", id, err)
	}
	return &item, nil
}

// UpdateContentDecision writes the rule-engine decision fields and the
// resulting status.
func (q *queries) UpdateContentDecision(ctx context.Context, item *models.ContentItem, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items
		SET status = ?, decision_type = ?, decided_by_rule_id = ?, decision_reason = ?,
			decided_at = ?, scheduled_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Status, item.DecisionType, item.DecidedByRuleID, item.DecisionReason,
		item.DecidedAt, item.ScheduledAt, now.UTC(), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update decision for content item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateContentDraft writes an edited draft plus the resulting status and
// version number.
func (q *queries) UpdateContentDraft(ctx context.Context, item *models.ContentItem, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items
		SET title = ?, body = ?, summary = ?, status = ?, current_version_no = ?, updated_at = ?
		WHERE id = ?`,
		item.Title, item.Body, item.Summary, item.Status, item.CurrentVersionNo, now.UTC(), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update draft for content item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateContentStatus sets only the lifecycle status.
func (q *queries) UpdateContentStatus(ctx context.Context, id int64, status models.ContentStatus, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items SET status = ?, updated_at = ? WHERE id = ?`,
		status, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update status for content item %d: %w", id, err)
	}
	return nil
}

// MarkContentPublished promotes the item to published unless it was retracted
// in the meantime.
func (q *queries) MarkContentPublished(ctx context.Context, id int64, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items SET status = ?, updated_at = ?
		WHERE id = ? AND is_retracted = 0 AND status NOT IN (?, ?)`,
		models.ContentPublished, now.UTC(), id, models.ContentRetracted, models.ContentArchived)
	if err != nil {
		return fmt.Errorf("failed to mark content item %d published: %w", id, err)
	}
	return nil
}

// UpdateContentBreaking writes the breaking-news flags.
func (q *queries) UpdateContentBreaking(ctx context.Context, item *models.ContentItem, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items
		SET is_breaking = ?, breaking_priority = ?, breaking_note = ?, breaking_at = ?, updated_at = ?
		WHERE id = ?`,
		item.IsBreaking, item.BreakingPriority, item.BreakingNote, item.BreakingAt, now.UTC(), item.ID)
	if err != nil {
		return fmt.Errorf("failed to update breaking flags for content item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateContentRetracted marks a published item as retracted.
func (q *queries) UpdateContentRetracted(ctx context.Context, id int64, reason string, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE content_items
		SET status = ?, is_retracted = 1, retract_reason = ?, updated_at = ?
		WHERE id = ?`,
		models.ContentRetracted, reason, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to retract content item %d: %w", id, err)
	}
	return nil
}

// ContentFilter narrows bulk content selections (decision recompute).
type ContentFilter struct {
	SourceID *int64
	Status   *models.ContentStatus
	From     *time.Time
	To       *time.Time
	Limit    int
}

// ListContentItems returns items matching the filter, oldest first.
func (q *queries) ListContentItems(ctx context.Context, f ContentFilter) ([]models.ContentItem, error) {
	builder := sq.Select("*").From("content_items").OrderBy("created_at ASC", "id ASC")

	if f.SourceID != nil {
		builder = builder.Where(sq.Eq{"source_id": *f.SourceID})
	}
	if f.Status != nil {
		builder = builder.Where(sq.Eq{"status": *f.Status})
	}
	if f.From != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": f.From.UTC()})
	}
	if f.To != nil {
		builder = builder.Where(sq.Lt{"created_at": f.To.UTC()})
	}
	if f.Limit > 0 {
		builder = builder.Limit(uint64(f.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build content query: %w", err)
	}

	var items []models.ContentItem
	if err := sqlx.SelectContext(ctx, q.ext, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list content items: %w", err)
	}
	return items, nil
}
