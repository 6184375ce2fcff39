package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"newsdesk/pressroom/internal/models"
)

// InsertRevision appends an immutable revision snapshot.
func (q *queries) InsertRevision(ctx context.Context, rev *models.ContentRevision) (int64, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO content_revisions (content_item_id, version_no, action_type, title, body, summary, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rev.ContentItemID, rev.VersionNo, rev.ActionType, rev.Title, rev.Body,
		rev.Summary, rev.Status, rev.Note, rev.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert revision: %w", err)
	}
	return res.LastInsertId()
}

// ListRevisions returns all revisions for a content item, newest first.
func (q *queries) ListRevisions(ctx context.Context, contentItemID int64) ([]models.ContentRevision, error) {
	var revs []models.ContentRevision
	err := sqlx.SelectContext(ctx, q.ext, &revs, `
		SELECT * FROM content_revisions WHERE content_item_id = ?
		ORDER BY created_at DESC, id DESC`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions for content item %d: %w", contentItemID, err)
	}
	return revs, nil
}

// LatestRevisionByAction returns the most recent revision of the given action
// type, or ErrNotFound.
func (q *queries) LatestRevisionByAction(ctx context.Context, contentItemID int64, action models.RevisionAction) (*models.ContentRevision, error) {
	var rev models.ContentRevision
	err := sqlx.GetContext(ctx, q.ext, &rev, `
		SELECT * FROM content_revisions WHERE content_item_id = ? AND action_type = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, contentItemID, action)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest %s revision for content item %d: %w", action, contentItemID, err)
	}
	return &rev, nil
}
