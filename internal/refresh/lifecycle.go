package refresh

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"estuary/internal/assets"
	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/repository"
)

const backfillConcurrency = 4

// Lifecycle owns the pause/resume/delete/restore transitions and the
// icon maintenance operations around the asset cache.
type Lifecycle struct {
	feeds repository.FeedRepository
	cache *assets.Cache
}

func NewLifecycle(feeds repository.FeedRepository, cache *assets.Cache) *Lifecycle {
	return &Lifecycle{feeds: feeds, cache: cache}
}

// Pause stops scheduling the feed. Articles stay readable.
func (l *Lifecycle) Pause(ctx context.Context, id int64) error {
	if _, err := l.feeds.GetByID(ctx, id); err != nil {
		return err
	}
	now := time.Now().UTC()
	return l.feeds.SetPaused(ctx, id, &now)
}

// Resume puts the feed back on the schedule.
func (l *Lifecycle) Resume(ctx context.Context, id int64) error {
	if _, err := l.feeds.GetByID(ctx, id); err != nil {
		return err
	}
	return l.feeds.SetPaused(ctx, id, nil)
}

// SoftDelete hides the feed and purges its cached icon. Article rows are
// kept so a restore brings history back intact.
func (l *Lifecycle) SoftDelete(ctx context.Context, id int64) error {
	if _, err := l.feeds.GetByID(ctx, id); err != nil {
		return err
	}
	if err := l.cache.ClearAsset(ctx, id); err != nil {
		logger.Warn("icon purge on delete failed",
			"module", "refresh", "action", "delete", "resource", "feed", "result", "failed",
			"feed_id", id, "error", err)
	}
	if err := l.feeds.UpdateIconCacheRef(ctx, id, nil); err != nil {
		return err
	}
	return l.feeds.SoftDelete(ctx, id, time.Now().UTC())
}

// Restore undeletes the feed. Any leftover cached icon is cleared so the
// next refresh fetches a fresh one; next_fetch_at resets to due-now.
func (l *Lifecycle) Restore(ctx context.Context, id int64) error {
	if err := l.cache.ClearAsset(ctx, id); err != nil {
		return err
	}
	return l.feeds.Restore(ctx, id)
}

// RefreshIcon forcibly re-downloads the feed's icon under a fresh file
// ref, replacing whatever is cached.
func (l *Lifecycle) RefreshIcon(ctx context.Context, id int64) (*model.CachedAsset, error) {
	feed, err := l.feeds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if feed.IconURL == nil || *feed.IconURL == "" {
		return nil, feederr.New(feederr.KindNotFound, "feed has no icon URL")
	}

	asset, err := l.cache.ForceRefetch(ctx, id, *feed.IconURL)
	if err != nil {
		return nil, err
	}
	if err := l.feeds.UpdateIconCacheRef(ctx, id, &asset.FileRef); err != nil {
		return nil, err
	}
	return asset, nil
}

// BackfillIcons caches icons for feeds that have an icon URL but no
// cached asset yet. Per-feed failures are logged and skipped.
func (l *Lifecycle) BackfillIcons(ctx context.Context) (int, error) {
	feeds, err := l.feeds.List(ctx)
	if err != nil {
		return 0, err
	}

	var done int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)
	results := make(chan int64, len(feeds))
	for _, feed := range feeds {
		if feed.IconCacheRef != nil || feed.IconURL == nil || *feed.IconURL == "" || !feed.Active() {
			continue
		}
		g.Go(func() error {
			asset, err := l.cache.CacheAsset(gctx, feed.ID, *feed.IconURL)
			if err != nil {
				logger.Debug("icon backfill failed",
					"module", "refresh", "action", "backfill", "resource", "feed", "result", "failed",
					"feed_id", feed.ID, "error", err)
				return nil
			}
			if err := l.feeds.UpdateIconCacheRef(gctx, feed.ID, &asset.FileRef); err != nil {
				return nil
			}
			results <- feed.ID
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	for range results {
		done++
	}
	return int(done), nil
}
