package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// InsertEmergencyItem appends a priority escalation record.
func (q *queries) InsertEmergencyItem(ctx context.Context, item *models.EmergencyQueueItem) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO emergency_queue_items (content_item_id, priority, status, matched_keywords,
			detection_reason, target_platforms, override_schedule, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ContentItemID, item.Priority, item.Status, item.MatchedKeywords,
		item.DetectionReason, item.TargetPlatforms, item.OverrideSchedule,
		item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert emergency item: %w", err)
	}
	return res.LastInsertId()
}

// GetEmergencyItem fetches an emergency queue item by id.
func (q *queries) GetEmergencyItem(ctx context.Context, id int64) (*models.EmergencyQueueItem, error) {
	var item models.EmergencyQueueItem
	err := sqlx.GetContext(ctx, q.ext, &item, `SELECT * FROM emergency_queue_items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("emergency item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emergency item %d: %w", id, err)
	}
	return &item, nil
}

// ListEmergencyItems returns items, optionally filtered by status, highest
// priority first.
func (q *queries) ListEmergencyItems(ctx context.Context, status *models.EmergencyStatus) ([]models.EmergencyQueueItem, error) {
	var items []models.EmergencyQueueItem
	var err error
	if status != nil {
		err = sqlx.SelectContext(ctx, q.ext, &items, `
			SELECT * FROM emergency_queue_items WHERE status = ?
			ORDER BY priority DESC, created_at ASC`, *status)
	} else {
		err = sqlx.SelectContext(ctx, q.ext, &items, `
			SELECT * FROM emergency_queue_items
			ORDER BY priority DESC, created_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency items: %w", err)
	}
	return items, nil
}

// TransitionEmergencyItem moves an item between states, guarded by the
// expected current state. Returns false when the item was not in that state.
func (q *queries) TransitionEmergencyItem(ctx context.Context, id int64, from, to models.EmergencyStatus, now time.Time) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE emergency_queue_items SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, now.UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition emergency item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for emergency item %d: %w", id, err)
	}
	return affected == 1, nil
}

// FinalizeEmergencyItems marks all pending/publishing items for a content
// item as published once its job succeeds.
func (q *queries) FinalizeEmergencyItems(ctx context.Context, contentItemID int64, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE emergency_queue_items SET status = ?, updated_at = ?
		WHERE content_item_id = ? AND status IN (?, ?)`,
		models.EmergencyPublished, now.UTC(), contentItemID,
		models.EmergencyPending, models.EmergencyPublishing)
	if err != nil {
		return fmt.Errorf("failed to finalize emergency items for content item %d: %w", contentItemID, err)
	}
	return nil
}
