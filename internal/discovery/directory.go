package discovery

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"estuary/internal/activity"
	"estuary/internal/logger"
	"estuary/internal/model"
)

// searchFeedDirectory queries the Feedly cloud search API for RSS/Atom
// feeds matching a keyword.
func (e *Engine) searchFeedDirectory(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	searchURL := "https://cloud.feedly.com/v3/search/feeds?count=" + strconv.Itoa(limit) +
		"&query=" + url.QueryEscape(term)
	_, body, err := e.get(ctx, searchURL, searchTimeout)
	if err != nil {
		logger.Debug("feed directory search failed",
			"module", "discovery", "action", "search", "resource", "directory", "result", "failed",
			"term", term, "error", err)
		return nil
	}

	var candidates []model.DiscoveredCandidate
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		feedURL := strings.TrimPrefix(item.Get("feedId").String(), "feed/")
		if feedURL == "" {
			return true
		}
		icon := item.Get("iconUrl").String()
		if icon == "" {
			icon = item.Get("visualUrl").String()
		}
		title := item.Get("title").String()

		cand := model.DiscoveredCandidate{
			Type:       model.TypeRSS,
			FeedURL:    feedURL,
			SiteURL:    item.Get("website").String(),
			IconURL:    icon,
			Title:      title,
			Confidence: confSearch,
			Method:     model.MethodDirectory,
		}
		if looksLikePodcast(title, feedURL) {
			cand.Type = model.TypePodcast
		}
		// Feedly reports the last update; use it so the merge step can
		// skip a redundant activity probe.
		if ms := item.Get("lastUpdated").Int(); ms > 0 {
			last := time.UnixMilli(ms).UTC()
			active := time.Since(last) <= activity.StaleThreshold
			cand.IsActive = &active
			cand.LastPostDate = &last
		}
		candidates = append(candidates, cand)
		return len(candidates) < limit
	})
	return candidates
}

// searchPodcastDirectory queries the iTunes podcast directory.
func (e *Engine) searchPodcastDirectory(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	searchURL := "https://itunes.apple.com/search?media=podcast&limit=" + strconv.Itoa(limit) +
		"&term=" + url.QueryEscape(term)
	_, body, err := e.get(ctx, searchURL, searchTimeout)
	if err != nil {
		logger.Debug("podcast directory search failed",
			"module", "discovery", "action", "search", "resource", "podcast_directory", "result", "failed",
			"term", term, "error", err)
		return nil
	}

	var candidates []model.DiscoveredCandidate
	gjson.GetBytes(body, "results").ForEach(func(_, item gjson.Result) bool {
		feedURL := item.Get("feedUrl").String()
		if feedURL == "" {
			return true
		}
		candidates = append(candidates, model.DiscoveredCandidate{
			Type:       model.TypePodcast,
			FeedURL:    feedURL,
			SiteURL:    item.Get("collectionViewUrl").String(),
			IconURL:    item.Get("artworkUrl600").String(),
			Title:      item.Get("collectionName").String(),
			Confidence: confSearch,
			Method:     model.MethodPodcastIndex,
		})
		return len(candidates) < limit
	})
	return candidates
}
