package refresh

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/parser"
	"estuary/internal/repository"
)

// SettingDefaultInterval is the settings key for the default refresh
// interval in minutes.
const SettingDefaultInterval = "default_refresh_interval_minutes"

// ErrDuplicateFeed is returned when the URL is already subscribed.
var ErrDuplicateFeed = errors.New("feed already subscribed")

// Subscriptions creates feeds and runs their initial refresh.
type Subscriptions struct {
	feeds           repository.FeedRepository
	settings        repository.SettingsRepository
	engine          *Engine
	fallbackMinutes int
}

// NewSubscriptions builds the subscription service. fallbackMinutes is
// used when neither the caller nor the settings store provides a
// refresh interval.
func NewSubscriptions(feeds repository.FeedRepository, settings repository.SettingsRepository, engine *Engine, fallbackMinutes int) *Subscriptions {
	if fallbackMinutes <= 0 {
		fallbackMinutes = 60
	}
	return &Subscriptions{feeds: feeds, settings: settings, engine: engine, fallbackMinutes: fallbackMinutes}
}

// Subscribe registers a feed URL and refreshes it once so the caller
// gets resolved metadata and the first batch of articles immediately.
// The refresh outcome is reported but never blocks the subscription: a
// dead feed is still created and retried on schedule.
func (s *Subscriptions) Subscribe(ctx context.Context, rawURL, title string, intervalMinutes int) (model.Feed, Result, error) {
	rawURL = strings.TrimSpace(rawURL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return model.Feed{}, Result{}, feederr.New(feederr.KindValidation, "invalid feed URL: "+rawURL)
	}

	existing, err := s.feeds.FindByURL(ctx, rawURL)
	if err != nil {
		return model.Feed{}, Result{}, err
	}
	if existing != nil {
		return model.Feed{}, Result{}, ErrDuplicateFeed
	}

	if intervalMinutes <= 0 {
		intervalMinutes = s.defaultInterval(ctx)
	}
	if title == "" {
		title = rawURL
	}

	feed, err := s.feeds.Create(ctx, model.Feed{
		URL:                    rawURL,
		Type:                   parser.DetectType(rawURL, nil),
		Title:                  title,
		RefreshIntervalMinutes: intervalMinutes,
	})
	if err != nil {
		return model.Feed{}, Result{}, err
	}

	result := s.engine.Refresh(ctx, feed)
	refreshed, err := s.feeds.GetByID(ctx, feed.ID)
	if err != nil {
		return feed, result, nil
	}
	return refreshed, result, nil
}

func (s *Subscriptions) defaultInterval(ctx context.Context) int {
	setting, err := s.settings.Get(ctx, SettingDefaultInterval)
	if err != nil || setting == nil {
		return s.fallbackMinutes
	}
	minutes, err := strconv.Atoi(setting.Value)
	if err != nil || minutes <= 0 {
		return s.fallbackMinutes
	}
	return minutes
}
