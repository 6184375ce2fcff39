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

// InsertSource inserts a new source and returns its id.
func (q *queries) InsertSource(ctx context.Context, src *models.Source) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO sources (name, feed_url, group_id, trust_level, default_behavior, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, src.FeedURL, src.GroupID, src.TrustLevel, src.DefaultBehavior,
		src.Status, src.CreatedAt.UTC(), src.UpdatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert source: %w", err)
	}
	return res.LastInsertId()
}

// UpsertSource inserts a source or updates the existing row matching its feed
// URL. Used by the seed importer so re-importing is safe.
func (q *queries) UpsertSource(ctx context.Context, src *models.Source) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO sources (name, feed_url, group_id, trust_level, default_behavior, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_url) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			trust_level = excluded.trust_level,
			default_behavior = excluded.default_behavior,
			updated_at = excluded.updated_at`,
		src.Name, src.FeedURL, src.GroupID, src.TrustLevel, src.DefaultBehavior,
		src.Status, src.CreatedAt.UTC(), src.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}
	return nil
}

// GetSource fetches a source by id.
func (q *queries) GetSource(ctx context.Context, id int64) (*models.Source, error) {
	var src models.Source
	err := sqlx.GetContext(ctx, q.ext, &src, `SELECT * FROM sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source %d: %w", id, err)
	}
	return &src, nil
}

// ListActiveSources returns sources eligible for intake, least recently
// retrieved first.
func (q *queries) ListActiveSources(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	err := sqlx.SelectContext(ctx, q.ext, &sources, `
		SELECT * FROM sources WHERE status = 'active'
		ORDER BY last_retrieved_at ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceFetchResult records the outcome of a feed fetch.
func (q *queries) UpdateSourceFetchResult(ctx context.Context, src *models.Source, now time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE sources
		SET status = ?, failures_count = ?, last_error = ?, last_retrieved_at = ?, updated_at = ?
		WHERE id = ?`,
		src.Status, src.FailuresCount, src.LastError, now.UTC(), now.UTC(), src.ID)
	if err != nil {
		return fmt.Errorf("failed to update source %d: %w", src.ID, err)
	}
	return nil
}
