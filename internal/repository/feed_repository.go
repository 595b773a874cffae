package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/snowflake"
)

const feedColumns = `id, url, type, title, site_url, description, icon_url, icon_cache_ref, etag, last_modified,
	refresh_interval_minutes, last_fetched_at, next_fetch_at, error_count, last_error, last_error_at,
	paused_at, deleted_at, created_at, updated_at`

type FeedRepository interface {
	Create(ctx context.Context, feed model.Feed) (model.Feed, error)
	GetByID(ctx context.Context, id int64) (model.Feed, error)
	FindByURL(ctx context.Context, url string) (*model.Feed, error)
	List(ctx context.Context) ([]model.Feed, error)
	ListDue(ctx context.Context, now time.Time) ([]model.Feed, error)
	Update(ctx context.Context, feed model.Feed) (model.Feed, error)
	UpdateMetadata(ctx context.Context, id int64, title string, siteURL, description, iconURL *string) error
	UpdateIconCacheRef(ctx context.Context, id int64, ref *string) error
	UpdateType(ctx context.Context, id int64, feedType model.FeedType) error
	UpdateConditionalHeaders(ctx context.Context, id int64, etag, lastModified *string) error
	MarkRefreshSuccess(ctx context.Context, id int64, fetchedAt, nextFetchAt time.Time) error
	MarkRefreshFailure(ctx context.Context, id int64, message string, failedAt, nextFetchAt time.Time) error
	SetPaused(ctx context.Context, id int64, pausedAt *time.Time) error
	SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error
	Restore(ctx context.Context, id int64) error
}

type feedRepository struct {
	db dbtx
}

func NewFeedRepository(db dbtx) FeedRepository {
	return &feedRepository{db: db}
}

func (r *feedRepository) Create(ctx context.Context, feed model.Feed) (model.Feed, error) {
	feed.ID = snowflake.NextID()
	now := time.Now().UTC()
	if feed.Type == "" {
		feed.Type = model.TypeRSS
	}
	if feed.RefreshIntervalMinutes <= 0 {
		feed.RefreshIntervalMinutes = 60
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO feeds (id, url, type, title, site_url, description, icon_url, icon_cache_ref, etag, last_modified,
		   refresh_interval_minutes, last_fetched_at, next_fetch_at, error_count, last_error, last_error_at,
		   paused_at, deleted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID,
		feed.URL,
		string(feed.Type),
		feed.Title,
		nullableString(feed.SiteURL),
		nullableString(feed.Description),
		nullableString(feed.IconURL),
		nullableString(feed.IconCacheRef),
		nullableString(feed.ETag),
		nullableString(feed.LastModified),
		feed.RefreshIntervalMinutes,
		nullableTime(feed.LastFetchedAt),
		nullableTime(feed.NextFetchAt),
		feed.ErrorCount,
		nullableString(feed.LastError),
		nullableTime(feed.LastErrorAt),
		nullableTime(feed.PausedAt),
		nullableTime(feed.DeletedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return model.Feed{}, fmt.Errorf("create feed: %w", err)
	}
	feed.CreatedAt = now
	feed.UpdatedAt = now
	return feed, nil
}

func (r *feedRepository) GetByID(ctx context.Context, id int64) (model.Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE id = ? AND deleted_at IS NULL`, id)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Feed{}, feederr.Newf(feederr.KindNotFound, "feed %d not found", id)
		}
		return model.Feed{}, fmt.Errorf("get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) FindByURL(ctx context.Context, url string) (*model.Feed, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE url = ? AND deleted_at IS NULL`, url)
	feed, err := scanFeed(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find feed: %w", err)
	}
	return &feed, nil
}

func (r *feedRepository) List(ctx context.Context) ([]model.Feed, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+feedColumns+` FROM feeds WHERE deleted_at IS NULL ORDER BY title`)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

// ListDue returns feeds eligible for a scheduled refresh: not paused, not
// deleted, and due (or never fetched).
func (r *feedRepository) ListDue(ctx context.Context, now time.Time) ([]model.Feed, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+feedColumns+` FROM feeds
		 WHERE paused_at IS NULL AND deleted_at IS NULL
		   AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
		 ORDER BY next_fetch_at`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("list due feeds: %w", err)
	}
	defer rows.Close()
	return collectFeeds(rows)
}

func (r *feedRepository) Update(ctx context.Context, feed model.Feed) (model.Feed, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET url = ?, type = ?, title = ?, site_url = ?, description = ?, icon_url = ?,
		   refresh_interval_minutes = ?, updated_at = ? WHERE id = ?`,
		feed.URL,
		string(feed.Type),
		feed.Title,
		nullableString(feed.SiteURL),
		nullableString(feed.Description),
		nullableString(feed.IconURL),
		feed.RefreshIntervalMinutes,
		formatTime(now),
		feed.ID,
	)
	if err != nil {
		return model.Feed{}, fmt.Errorf("update feed: %w", err)
	}
	feed.UpdatedAt = now
	return feed, nil
}

func (r *feedRepository) UpdateMetadata(ctx context.Context, id int64, title string, siteURL, description, iconURL *string) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET title = ?,
		   site_url = COALESCE(?, site_url),
		   description = COALESCE(?, description),
		   icon_url = COALESCE(?, icon_url),
		   updated_at = ?
		 WHERE id = ?`,
		title,
		nullableString(siteURL),
		nullableString(description),
		nullableString(iconURL),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) UpdateIconCacheRef(ctx context.Context, id int64, ref *string) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET icon_cache_ref = ?, updated_at = ? WHERE id = ?`,
		nullableString(ref),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) UpdateType(ctx context.Context, id int64, feedType model.FeedType) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET type = ?, updated_at = ? WHERE id = ?`,
		string(feedType),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) UpdateConditionalHeaders(ctx context.Context, id int64, etag, lastModified *string) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET etag = ?, last_modified = ?, updated_at = ? WHERE id = ?`,
		nullableString(etag),
		nullableString(lastModified),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) MarkRefreshSuccess(ctx context.Context, id int64, fetchedAt, nextFetchAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET error_count = 0, last_error = NULL, last_error_at = NULL,
		   last_fetched_at = ?, next_fetch_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(fetchedAt),
		formatTime(nextFetchAt),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) MarkRefreshFailure(ctx context.Context, id int64, message string, failedAt, nextFetchAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET error_count = error_count + 1, last_error = ?, last_error_at = ?,
		   next_fetch_at = ?, updated_at = ? WHERE id = ?`,
		message,
		formatTime(failedAt),
		formatTime(nextFetchAt),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) SetPaused(ctx context.Context, id int64, pausedAt *time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET paused_at = ?, updated_at = ? WHERE id = ?`,
		nullableTime(pausedAt),
		formatTime(time.Now()),
		id,
	)
	return err
}

func (r *feedRepository) SoftDelete(ctx context.Context, id int64, deletedAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET deleted_at = ?, updated_at = ? WHERE id = ?`,
		formatTime(deletedAt),
		formatTime(time.Now()),
		id,
	)
	return err
}

// Restore clears the soft-delete marker. The icon cache ref is cleared
// too: the URL may point somewhere else by now, so a stale cached icon
// must not be reused.
func (r *feedRepository) Restore(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE feeds SET deleted_at = NULL, icon_cache_ref = NULL, next_fetch_at = NULL, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()),
		id,
	)
	return err
}

func collectFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feeds: %w", err)
	}
	return feeds, nil
}

func scanFeed(scanner interface {
	Scan(dest ...interface{}) error
}) (model.Feed, error) {
	var feed model.Feed
	var feedType string
	var siteURL, description, iconURL, iconCacheRef, etag, lastModified, lastError sql.NullString
	var lastFetchedAt, nextFetchAt, lastErrorAt, pausedAt, deletedAt sql.NullString
	var createdAt, updatedAt string
	if err := scanner.Scan(
		&feed.ID,
		&feed.URL,
		&feedType,
		&feed.Title,
		&siteURL,
		&description,
		&iconURL,
		&iconCacheRef,
		&etag,
		&lastModified,
		&feed.RefreshIntervalMinutes,
		&lastFetchedAt,
		&nextFetchAt,
		&feed.ErrorCount,
		&lastError,
		&lastErrorAt,
		&pausedAt,
		&deletedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Feed{}, err
	}
	feed.Type = model.FeedType(feedType)
	if siteURL.Valid {
		feed.SiteURL = &siteURL.String
	}
	if description.Valid {
		feed.Description = &description.String
	}
	if iconURL.Valid {
		feed.IconURL = &iconURL.String
	}
	if iconCacheRef.Valid {
		feed.IconCacheRef = &iconCacheRef.String
	}
	if etag.Valid {
		feed.ETag = &etag.String
	}
	if lastModified.Valid {
		feed.LastModified = &lastModified.String
	}
	if lastError.Valid {
		feed.LastError = &lastError.String
	}
	if lastFetchedAt.Valid {
		feed.LastFetchedAt = parseTimePtr(lastFetchedAt.String)
	}
	if nextFetchAt.Valid {
		feed.NextFetchAt = parseTimePtr(nextFetchAt.String)
	}
	if lastErrorAt.Valid {
		feed.LastErrorAt = parseTimePtr(lastErrorAt.String)
	}
	if pausedAt.Valid {
		feed.PausedAt = parseTimePtr(pausedAt.String)
	}
	if deletedAt.Valid {
		feed.DeletedAt = parseTimePtr(deletedAt.String)
	}
	var err error
	feed.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Feed{}, fmt.Errorf("parse feed created_at: %w", err)
	}
	feed.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Feed{}, fmt.Errorf("parse feed updated_at: %w", err)
	}
	return feed, nil
}
