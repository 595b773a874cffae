package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estuary/internal/db"
	"estuary/internal/model"
	"estuary/internal/snowflake"
)

// NewTestDB opens a fresh in-memory sqlite database with the full schema
// applied. The database is closed when the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = conn.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return conn
}

// SeedFeed inserts a feed row and returns its id.
func SeedFeed(t *testing.T, conn *sql.DB, feed model.Feed) int64 {
	t.Helper()
	if feed.ID == 0 {
		feed.ID = snowflake.NextID()
	}
	if feed.Type == "" {
		feed.Type = model.TypeRSS
	}
	if feed.RefreshIntervalMinutes == 0 {
		feed.RefreshIntervalMinutes = 60
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := conn.ExecContext(
		context.Background(),
		`INSERT INTO feeds (id, url, type, title, refresh_interval_minutes, error_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.ID, feed.URL, string(feed.Type), feed.Title, feed.RefreshIntervalMinutes, feed.ErrorCount, now, now,
	)
	require.NoError(t, err)
	return feed.ID
}

// SeedArticle inserts an article row and returns its id.
func SeedArticle(t *testing.T, conn *sql.DB, article model.Article) int64 {
	t.Helper()
	if article.ID == 0 {
		article.ID = snowflake.NextID()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := conn.ExecContext(
		context.Background(),
		`INSERT INTO articles (id, feed_id, guid, title, url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.FeedID, article.GUID, article.Title, article.URL, now, now,
	)
	require.NoError(t, err)
	return article.ID
}
