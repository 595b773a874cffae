package activity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/tidwall/gjson"

	"estuary/internal/config"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/network"
)

const (
	// StaleThreshold is how old the most recent post may be before a
	// source counts as inactive.
	StaleThreshold = 90 * 24 * time.Hour

	probeTimeout = 10 * time.Second
)

// Result is the outcome of an activity probe.
type Result struct {
	IsActive     bool
	LastPostDate *time.Time
}

// Checker probes a candidate feed, channel or subreddit for recent posts.
// Every probe fails open: a network, parse or rate-limit error yields
// IsActive = true, because a failed health check must never hide an
// otherwise valid source from discovery.
type Checker struct {
	clients *network.ClientFactory
	now     func() time.Time
}

func NewChecker(clients *network.ClientFactory) *Checker {
	return &Checker{clients: clients, now: time.Now}
}

// Check fetches the single most recent post for the given identifier and
// compares its timestamp against the staleness threshold. The identifier
// is a feed URL for rss/podcast, a channel id for youtube, and a
// subreddit name for reddit.
func (c *Checker) Check(ctx context.Context, identifier string, kind model.FeedType) Result {
	var last *time.Time
	var err error

	switch kind {
	case model.TypeReddit:
		last, err = c.latestRedditPost(ctx, identifier)
	case model.TypeYouTube:
		last, err = c.latestFeedItem(ctx, "https://www.youtube.com/feeds/videos.xml?channel_id="+identifier)
	default:
		last, err = c.latestFeedItem(ctx, identifier)
	}
	if err != nil {
		logger.Debug("activity probe failed, failing open",
			"module", "activity", "action", "probe", "resource", string(kind), "result", "failed",
			"identifier", identifier, "error", err)
		return Result{IsActive: true}
	}
	if last == nil {
		// Source exists but has no dated posts. Treat as active rather
		// than guessing.
		return Result{IsActive: true}
	}

	return Result{
		IsActive:     c.now().Sub(*last) <= StaleThreshold,
		LastPostDate: last,
	}
}

func (c *Checker) latestFeedItem(ctx context.Context, feedURL string) (*time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := c.clients.NewHTTPClient(probeTimeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	var latest *time.Time
	for _, item := range parsed.Items {
		ts := item.PublishedParsed
		if ts == nil {
			ts = item.UpdatedParsed
		}
		if ts == nil {
			continue
		}
		if latest == nil || ts.After(*latest) {
			latest = ts
		}
	}
	return latest, nil
}

func (c *Checker) latestRedditPost(ctx context.Context, subreddit string) (*time.Time, error) {
	probeURL := "https://www.reddit.com/r/" + subreddit + "/new.json?limit=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := c.clients.NewHTTPClient(probeTimeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	created := gjson.GetBytes(body, "data.children.0.data.created_utc")
	if !created.Exists() {
		return nil, nil
	}
	ts := time.Unix(int64(created.Float()), 0).UTC()
	return &ts, nil
}
