// Package refresh drives the per-feed fetch/normalize/persist cycle and
// the feed lifecycle operations around it.
package refresh

import (
	"context"
	"fmt"
	"time"

	"estuary/internal/assets"
	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/parser"
	"estuary/internal/repository"
)

// Result is the structured outcome of one refresh. Refresh never returns
// an error: failures are classified, persisted on the feed and reported
// here.
type Result struct {
	Success     bool         `json:"success"`
	NewArticles int          `json:"newArticles"`
	NextFetchAt time.Time    `json:"nextFetchAt"`
	ErrorKind   feederr.Kind `json:"errorKind,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Engine refreshes one feed per call. Feeds are independent: a failure
// on one never touches another feed's row or schedule.
type Engine struct {
	feeds    repository.FeedRepository
	articles repository.ArticleRepository
	parser   *parser.Parser
	cache    *assets.Cache
	thumbs   *assets.ThumbnailQueue
	now      func() time.Time
}

func NewEngine(feeds repository.FeedRepository, articles repository.ArticleRepository, p *parser.Parser, cache *assets.Cache, thumbs *assets.ThumbnailQueue) *Engine {
	return &Engine{
		feeds:    feeds,
		articles: articles,
		parser:   p,
		cache:    cache,
		thumbs:   thumbs,
		now:      time.Now,
	}
}

// Refresh runs one fetch cycle for the feed.
func (e *Engine) Refresh(ctx context.Context, feed model.Feed) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = e.fail(ctx, feed, feederr.Newf(feederr.KindUnknown, "refresh panic: %v", r))
		}
	}()

	opts := parser.Options{
		SkipIconFetch: feed.IconURL != nil && *feed.IconURL != "" && !parser.IsFallbackIcon(*feed.IconURL),
	}
	if feed.ETag != nil {
		opts.ETag = *feed.ETag
	}
	if feed.LastModified != nil {
		opts.LastModified = *feed.LastModified
	}

	parsed, err := e.parser.Parse(ctx, feed.URL, opts)
	if err != nil {
		return e.fail(ctx, feed, err)
	}

	if parsed.NotModified {
		return e.succeed(ctx, feed, 0)
	}

	// The type placeholder resolves once content is available.
	if feed.Type == model.TypeRSS {
		if detected := parser.DetectType(feed.URL, parsed); detected != feed.Type {
			if err := e.feeds.UpdateType(ctx, feed.ID, detected); err != nil {
				return e.fail(ctx, feed, err)
			}
			feed.Type = detected
		}
	}

	articles := make([]model.Article, 0, len(parsed.Articles))
	for _, raw := range parsed.Articles {
		article := parser.Normalize(raw, feed.Type)
		article.FeedID = feed.ID
		if article.GUID == "" {
			continue
		}
		articles = append(articles, article)
	}

	inserted, err := e.articles.InsertBatch(ctx, articles)
	if err != nil {
		return e.fail(ctx, feed, err)
	}

	e.enqueueThumbnails(inserted)
	e.updateMetadata(ctx, feed, parsed)
	e.updateConditionalHeaders(ctx, feed, parsed)
	e.cacheIcon(ctx, feed, parsed)

	return e.succeed(ctx, feed, len(inserted))
}

func (e *Engine) enqueueThumbnails(inserted []model.Article) {
	if e.thumbs == nil {
		return
	}
	var jobs []assets.Job
	for _, article := range inserted {
		if article.ThumbnailURL == nil || *article.ThumbnailURL == "" {
			continue
		}
		jobs = append(jobs, assets.Job{OwnerID: article.ID, SourceURL: *article.ThumbnailURL})
	}
	e.thumbs.EnqueueBatch(jobs)
}

// updateMetadata overwrites stored fields only when they still look like
// unresolved placeholders; user edits and previously resolved values are
// kept. Failures are logged, never fatal: metadata is cosmetic next to
// the article ingest.
func (e *Engine) updateMetadata(ctx context.Context, feed model.Feed, parsed *parser.Result) {
	title := feed.Title
	if titleIsPlaceholder(feed) && parsed.Title != "" {
		title = parsed.Title
	}

	var siteURL, description, iconURL *string
	if isEmpty(feed.SiteURL) && parsed.SiteURL != "" {
		siteURL = &parsed.SiteURL
	}
	if isEmpty(feed.Description) && parsed.Description != "" {
		description = &parsed.Description
	}
	if shouldAdoptIcon(feed.IconURL, parsed.IconURL) {
		iconURL = &parsed.IconURL
	}

	if title == feed.Title && siteURL == nil && description == nil && iconURL == nil {
		return
	}
	if err := e.feeds.UpdateMetadata(ctx, feed.ID, title, siteURL, description, iconURL); err != nil {
		logger.Warn("feed metadata update failed",
			"module", "refresh", "action", "update_metadata", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "error", err)
	}
}

func (e *Engine) updateConditionalHeaders(ctx context.Context, feed model.Feed, parsed *parser.Result) {
	etag := stringValue(feed.ETag)
	lastModified := stringValue(feed.LastModified)
	if parsed.ETag == etag && parsed.LastModified == lastModified {
		return
	}
	if err := e.feeds.UpdateConditionalHeaders(ctx, feed.ID, nonEmpty(parsed.ETag), nonEmpty(parsed.LastModified)); err != nil {
		logger.Warn("conditional header update failed",
			"module", "refresh", "action", "update_headers", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "error", err)
	}
}

// cacheIcon populates the icon asset once. Forced re-downloads go
// through the lifecycle service, not the refresh path.
func (e *Engine) cacheIcon(ctx context.Context, feed model.Feed, parsed *parser.Result) {
	if e.cache == nil || feed.IconCacheRef != nil {
		return
	}
	iconURL := parsed.IconURL
	if iconURL == "" && feed.IconURL != nil {
		iconURL = *feed.IconURL
	}
	if iconURL == "" {
		return
	}

	asset, err := e.cache.CacheAsset(ctx, feed.ID, iconURL)
	if err != nil {
		logger.Debug("icon caching failed",
			"module", "refresh", "action", "cache_icon", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "url", iconURL, "error", err)
		return
	}
	if err := e.feeds.UpdateIconCacheRef(ctx, feed.ID, &asset.FileRef); err != nil {
		logger.Warn("icon cache ref update failed",
			"module", "refresh", "action", "cache_icon", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "error", err)
	}
}

func (e *Engine) succeed(ctx context.Context, feed model.Feed, newArticles int) Result {
	now := e.now().UTC()
	next := now.Add(time.Duration(feed.RefreshIntervalMinutes) * time.Minute)
	if err := e.feeds.MarkRefreshSuccess(ctx, feed.ID, now, next); err != nil {
		logger.Error("refresh success persist failed",
			"module", "refresh", "action", "mark_success", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "error", err)
	}
	logger.Info("feed refreshed",
		"module", "refresh", "action", "refresh", "resource", "feed", "result", "ok",
		"feed_id", feed.ID, "new_articles", newArticles)
	return Result{Success: true, NewArticles: newArticles, NextFetchAt: next}
}

// fail classifies the error, records it on the feed and backs the next
// fetch off to twice the interval. The stored interval itself is never
// touched, so backoff does not compound across consecutive failures.
func (e *Engine) fail(ctx context.Context, feed model.Feed, cause error) Result {
	kind := feederr.KindOf(cause)
	message := fmt.Sprintf("%s: %v", kind, cause)
	now := e.now().UTC()
	next := now.Add(2 * time.Duration(feed.RefreshIntervalMinutes) * time.Minute)

	if err := e.feeds.MarkRefreshFailure(ctx, feed.ID, message, now, next); err != nil {
		logger.Error("refresh failure persist failed",
			"module", "refresh", "action", "mark_failure", "resource", "feed", "result", "failed",
			"feed_id", feed.ID, "error", err)
	}
	logger.Warn("feed refresh failed",
		"module", "refresh", "action", "refresh", "resource", "feed", "result", "failed",
		"feed_id", feed.ID, "kind", string(kind), "error", cause)
	return Result{Success: false, NextFetchAt: next, ErrorKind: kind, Message: message}
}

func titleIsPlaceholder(feed model.Feed) bool {
	return feed.Title == "" || feed.Title == feed.URL
}

func isEmpty(s *string) bool {
	return s == nil || *s == ""
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// shouldAdoptIcon upgrades a missing or fallback icon to a real one, but
// never replaces a real icon with a fallback.
func shouldAdoptIcon(stored *string, found string) bool {
	if found == "" {
		return false
	}
	if stored == nil || *stored == "" {
		return true
	}
	return parser.IsFallbackIcon(*stored) && !parser.IsFallbackIcon(found)
}
