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

// InsertLog appends a ledger row. Inserting a second success for the same
// (content item, channel, version) violates the partial unique index; callers
// treat that as "already published" rather than an error.
func (q *queries) InsertLog(ctx context.Context, entry *models.ChannelPublishLog) error {
	query := `
		INSERT INTO channel_publish_logs (content_item_id, channel, version_no, status,
			error_kind, external_post_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if entry.Status == models.LogSuccess {
		// Racing success writers collapse into a single row.
		query += ` ON CONFLICT DO NOTHING`
	}
	_, err := q.ext.ExecContext(ctx, query,
		entry.ContentItemID, entry.Channel, entry.VersionNo, entry.Status,
		entry.ErrorKind, entry.ExternalPostID, entry.Error, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert channel log: %w", err)
	}
	return nil
}

// SuccessChannels returns the set of channels that already have a success row
// for (content item, version).
func (q *queries) SuccessChannels(ctx context.Context, contentItemID int64, versionNo int) (map[string]bool, error) {
	var channels []string
	err := sqlx.SelectContext(ctx, q.ext, &channels, `
		SELECT channel FROM channel_publish_logs
		WHERE content_item_id = ? AND version_no = ? AND status = ?`,
		contentItemID, versionNo, models.LogSuccess)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch success channels for content item %d v%d: %w", contentItemID, versionNo, err)
	}
	set := make(map[string]bool, len(channels))
	for _, c := range channels {
		set[c] = true
	}
	return set, nil
}

// LastLogForChannel returns the most recent ledger row for one channel of
// (content item, version), or ErrNotFound.
func (q *queries) LastLogForChannel(ctx context.Context, contentItemID int64, versionNo int, channel string) (*models.ChannelPublishLog, error) {
	var entry models.ChannelPublishLog
	err := sqlx.GetContext(ctx, q.ext, &entry, `
		SELECT * FROM channel_publish_logs
		WHERE content_item_id = ? AND version_no = ? AND channel = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		contentItemID, versionNo, channel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last log for content item %d v%d channel %s: %w", contentItemID, versionNo, channel, err)
	}
	return &entry, nil
}

// ListLogsForContent returns the full ledger for a content item, newest first.
func (q *queries) ListLogsForContent(ctx context.Context, contentItemID int64) ([]models.ChannelPublishLog, error) {
	var entries []models.ChannelPublishLog
	err := sqlx.SelectContext(ctx, q.ext, &entries, `
		SELECT * FROM channel_publish_logs WHERE content_item_id = ?
		ORDER BY created_at DESC, id DESC`, contentItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs for content item %d: %w", contentItemID, err)
	}
	return entries, nil
}

// CountSuccessSince counts success rows for a channel at or after the given
// time. The daily-limit counter is always derived from the ledger so it
// survives restarts.
func (q *queries) CountSuccessSince(ctx context.Context, channel string, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count, `
		SELECT COUNT(*) FROM channel_publish_logs
		WHERE channel = ? AND status = ? AND created_at >= ?`,
		channel, models.LogSuccess, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count successes for channel %s: %w", channel, err)
	}
	return count, nil
}

// LastSuccessAt returns the time of the latest success row for a channel, or
// nil when the channel has never published.
func (q *queries) LastSuccessAt(ctx context.Context, channel string) (*time.Time, error) {
	var last time.Time
	err := sqlx.GetContext(ctx, q.ext, &last, `
		SELECT created_at FROM channel_publish_logs
		WHERE channel = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`, channel, models.LogSuccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch last success for channel %s: %w", channel, err)
	}
	t := last.UTC()
	return &t, nil
}
