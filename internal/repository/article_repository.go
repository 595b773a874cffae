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

const articleColumns = `id, feed_id, guid, title, url, author, summary, content, enclosure_url, enclosure_type,
	thumbnail_url, readable_content, published_at, created_at, updated_at`

type ArticleRepository interface {
	GetByID(ctx context.Context, id int64) (model.Article, error)
	ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error)
	// InsertIgnore inserts an article unless (feed_id, guid) already
	// exists. Returns the stored article and whether a row was inserted;
	// a duplicate is a no-op, never an error.
	InsertIgnore(ctx context.Context, article model.Article) (model.Article, bool, error)
	// InsertBatch inserts articles within a single transaction with
	// insert-or-ignore semantics. Returns the inserted articles.
	InsertBatch(ctx context.Context, articles []model.Article) ([]model.Article, error)
	UpdateReadableContent(ctx context.Context, id int64, content string) error
	CountByFeed(ctx context.Context, feedID int64) (int, error)
	DeleteByFeed(ctx context.Context, feedID int64) (int64, error)
}

type articleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) ArticleRepository {
	return &articleRepository{db: db}
}

func (r *articleRepository) GetByID(ctx context.Context, id int64) (model.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	article, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Article{}, feederr.Newf(feederr.KindNotFound, "article %d not found", id)
		}
		return model.Article{}, fmt.Errorf("get article: %w", err)
	}
	return article, nil
}

func (r *articleRepository) UpdateReadableContent(ctx context.Context, id int64, content string) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE articles SET readable_content = ?, updated_at = ? WHERE id = ?`,
		content,
		formatTime(time.Now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update readable content: %w", err)
	}
	return nil
}

func (r *articleRepository) ListByFeed(ctx context.Context, feedID int64, limit int) ([]model.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE feed_id = ? ORDER BY published_at DESC, id DESC`
	args := []interface{}{feedID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

func (r *articleRepository) InsertIgnore(ctx context.Context, article model.Article) (model.Article, bool, error) {
	inserted, err := insertIgnore(ctx, r.db, &article)
	if err != nil {
		return model.Article{}, false, err
	}
	return article, inserted, nil
}

func (r *articleRepository) InsertBatch(ctx context.Context, articles []model.Article) ([]model.Article, error) {
	if len(articles) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted []model.Article
	for i := range articles {
		ok, err := insertIgnore(ctx, tx, &articles[i])
		if err != nil {
			return nil, err
		}
		if ok {
			inserted = append(inserted, articles[i])
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert batch: %w", err)
	}
	return inserted, nil
}

func insertIgnore(ctx context.Context, db dbtx, article *model.Article) (bool, error) {
	article.ID = snowflake.NextID()
	now := time.Now().UTC()
	result, err := db.ExecContext(
		ctx,
		`INSERT INTO articles (id, feed_id, guid, title, url, author, summary, content, enclosure_url, enclosure_type,
		   thumbnail_url, published_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(feed_id, guid) DO NOTHING`,
		article.ID,
		article.FeedID,
		article.GUID,
		article.Title,
		nullableString(article.URL),
		nullableString(article.Author),
		nullableString(article.Summary),
		nullableString(article.Content),
		nullableString(article.EnclosureURL),
		nullableString(article.EnclosureType),
		nullableString(article.ThumbnailURL),
		nullableTime(article.PublishedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	article.CreatedAt = now
	article.UpdatedAt = now
	return true, nil
}

func (r *articleRepository) CountByFeed(ctx context.Context, feedID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE feed_id = ?`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

func (r *articleRepository) DeleteByFeed(ctx context.Context, feedID int64) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM articles WHERE feed_id = ?`, feedID)
	if err != nil {
		return 0, fmt.Errorf("delete articles: %w", err)
	}
	return result.RowsAffected()
}

func scanArticle(scanner interface {
	Scan(dest ...interface{}) error
}) (model.Article, error) {
	var article model.Article
	var url, author, summary, content, enclosureURL, enclosureType, thumbnailURL, readableContent, publishedAt sql.NullString
	var createdAt, updatedAt string
	if err := scanner.Scan(
		&article.ID,
		&article.FeedID,
		&article.GUID,
		&article.Title,
		&url,
		&author,
		&summary,
		&content,
		&enclosureURL,
		&enclosureType,
		&thumbnailURL,
		&readableContent,
		&publishedAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Article{}, err
	}
	if url.Valid {
		article.URL = &url.String
	}
	if author.Valid {
		article.Author = &author.String
	}
	if summary.Valid {
		article.Summary = &summary.String
	}
	if content.Valid {
		article.Content = &content.String
	}
	if enclosureURL.Valid {
		article.EnclosureURL = &enclosureURL.String
	}
	if enclosureType.Valid {
		article.EnclosureType = &enclosureType.String
	}
	if thumbnailURL.Valid {
		article.ThumbnailURL = &thumbnailURL.String
	}
	if readableContent.Valid {
		article.ReadableContent = &readableContent.String
	}
	if publishedAt.Valid {
		article.PublishedAt = parseTimePtr(publishedAt.String)
	}
	var err error
	article.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Article{}, fmt.Errorf("parse article created_at: %w", err)
	}
	article.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Article{}, fmt.Errorf("parse article updated_at: %w", err)
	}
	return article, nil
}
