package db

import (
	"database/sql"
	"fmt"
)

// Base schema - uses Snowflake IDs (no AUTOINCREMENT)
const baseSchema = `
CREATE TABLE IF NOT EXISTS feeds (
  id INTEGER PRIMARY KEY,
  url TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL DEFAULT 'rss',
  title TEXT NOT NULL,
  site_url TEXT,
  description TEXT,
  icon_url TEXT,
  icon_cache_ref TEXT,
  etag TEXT,
  last_modified TEXT,
  refresh_interval_minutes INTEGER NOT NULL DEFAULT 60,
  last_fetched_at TEXT,
  next_fetch_at TEXT,
  error_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  last_error_at TEXT,
  paused_at TEXT,
  deleted_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feeds_next_fetch_at ON feeds(next_fetch_at);

CREATE TABLE IF NOT EXISTS articles (
  id INTEGER PRIMARY KEY,
  feed_id INTEGER NOT NULL,
  guid TEXT NOT NULL,
  title TEXT NOT NULL,
  url TEXT,
  author TEXT,
  summary TEXT,
  content TEXT,
  enclosure_url TEXT,
  enclosure_type TEXT,
  thumbnail_url TEXT,
  published_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  FOREIGN KEY (feed_id) REFERENCES feeds(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_feed_guid ON articles(feed_id, guid);
CREATE INDEX IF NOT EXISTS idx_articles_feed_id ON articles(feed_id);

CREATE TABLE IF NOT EXISTS assets (
  owner_id INTEGER PRIMARY KEY,
  file_ref TEXT NOT NULL,
  mime_type TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
`

func Migrate(db *sql.DB) error {
	if _, err := db.Exec(baseSchema); err != nil {
		return fmt.Errorf("migrate base schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func runMigrations(db *sql.DB) error {
	// Migration 1: Add published_at index for article listing
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at)`); err != nil {
		return fmt.Errorf("create idx_articles_published_at: %w", err)
	}

	// Migration 2: Add etag/last_modified columns for conditional GET
	// (older databases predate them)
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('feeds') WHERE name = 'etag'
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check etag column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE feeds ADD COLUMN etag TEXT`); err != nil {
			return fmt.Errorf("add etag column: %w", err)
		}
		if _, err := db.Exec(`ALTER TABLE feeds ADD COLUMN last_modified TEXT`); err != nil {
			return fmt.Errorf("add last_modified column: %w", err)
		}
	}

	// Migration 3: Partial index for the scheduler's due-feed scan
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_feeds_due ON feeds(next_fetch_at) WHERE paused_at IS NULL AND deleted_at IS NULL`); err != nil {
		return fmt.Errorf("create idx_feeds_due: %w", err)
	}

	// Migration 4: Cached readability extraction per article
	err = db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('articles') WHERE name = 'readable_content'
	`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check readable_content column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE articles ADD COLUMN readable_content TEXT`); err != nil {
			return fmt.Errorf("add readable_content column: %w", err)
		}
	}

	return nil
}
