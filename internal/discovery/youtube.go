package discovery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"estuary/internal/config"
	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
)

var (
	youtubeChannelIDPattern = regexp.MustCompile(`"channelId":"(UC[A-Za-z0-9_-]{22})"`)
	// channelRenderer blocks on the search results page carry both the
	// id and the display title.
	youtubeChannelRendererPattern = regexp.MustCompile(`"channelRenderer":\{"channelId":"(UC[A-Za-z0-9_-]{22})","title":\{"simpleText":"((?:[^"\\]|\\.)*)"`)
)

func youtubeFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + channelID
}

func youtubeChannelURL(channelID string) string {
	return "https://www.youtube.com/channel/" + channelID
}

// discoverYouTubeURL resolves any youtube.com URL (channel page, handle,
// legacy /user path, feed URL) to the channel's videos feed.
func (e *Engine) discoverYouTubeURL(ctx context.Context, pageURL *url.URL) ([]model.DiscoveredCandidate, error) {
	channelID, title := e.resolveChannelID(ctx, pageURL)
	if channelID == "" {
		return nil, feederr.New(feederr.KindNotFound, "no resolvable channel id in "+pageURL.String())
	}

	cand := model.DiscoveredCandidate{
		Type:       model.TypeYouTube,
		FeedURL:    youtubeFeedURL(channelID),
		SiteURL:    youtubeChannelURL(channelID),
		Title:      title,
		Confidence: confDirect,
		Method:     model.MethodYouTube,
	}
	result := e.checker.Check(ctx, channelID, model.TypeYouTube)
	cand.IsActive = &result.IsActive
	cand.LastPostDate = result.LastPostDate
	return []model.DiscoveredCandidate{cand}, nil
}

func (e *Engine) resolveChannelID(ctx context.Context, pageURL *url.URL) (channelID, title string) {
	if id := pageURL.Query().Get("channel_id"); strings.HasPrefix(id, "UC") {
		return id, ""
	}
	segments := strings.Split(strings.Trim(pageURL.Path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "channel" && strings.HasPrefix(segments[1], "UC") {
		return segments[1], ""
	}

	// Handles (/@name), /user/ and /c/ paths only resolve by scraping
	// the channel page.
	return e.scrapeChannelPage(ctx, pageURL.String())
}

func (e *Engine) scrapeChannelPage(ctx context.Context, pageURL string) (channelID, title string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", ""
	}
	req.Header.Set("User-Agent", config.BrowserUserAgent)

	resp, err := e.clients.NewHTTPClient(fetchTimeout).Do(req)
	if err != nil {
		logger.Debug("channel page scrape failed",
			"module", "discovery", "action", "scrape", "resource", "youtube", "result", "failed",
			"url", pageURL, "error", err)
		return "", ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", ""
	}

	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if idx := strings.Index(href, "/channel/"); idx >= 0 {
			channelID = strings.Trim(href[idx+len("/channel/"):], "/")
		}
	}
	if channelID == "" {
		html, _ := doc.Html()
		if m := youtubeChannelIDPattern.FindStringSubmatch(html); m != nil {
			channelID = m[1]
		}
	}
	title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	return channelID, title
}

// searchYouTubeChannels finds channels for a keyword. With an API key it
// uses the Data API; without one it scrapes the results page.
func (e *Engine) searchYouTubeChannels(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	if e.youtubeAPIKey != "" {
		return e.searchChannelsAPI(ctx, term, limit)
	}
	return e.searchChannelsScrape(ctx, term, limit)
}

func (e *Engine) searchChannelsAPI(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	apiURL := "https://www.googleapis.com/youtube/v3/search?part=snippet&type=channel" +
		"&maxResults=" + strconv.Itoa(limit) +
		"&q=" + url.QueryEscape(term) +
		"&key=" + e.youtubeAPIKey
	_, body, err := e.get(ctx, apiURL, searchTimeout)
	if err != nil {
		logger.Debug("youtube channel search failed",
			"module", "discovery", "action", "search", "resource", "youtube", "result", "failed",
			"term", term, "error", err)
		return nil
	}

	var candidates []model.DiscoveredCandidate
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		channelID := item.Get("snippet.channelId").String()
		if channelID == "" {
			channelID = item.Get("id.channelId").String()
		}
		if channelID == "" {
			return true
		}
		cand := model.DiscoveredCandidate{
			Type:       model.TypeYouTube,
			FeedURL:    youtubeFeedURL(channelID),
			SiteURL:    youtubeChannelURL(channelID),
			IconURL:    item.Get("snippet.thumbnails.high.url").String(),
			Title:      item.Get("snippet.title").String(),
			Confidence: confSearch,
			Method:     model.MethodYouTube,
		}
		e.annotateChannel(ctx, &cand, channelID)
		candidates = append(candidates, cand)
		return len(candidates) < limit
	})
	return candidates
}

func (e *Engine) searchChannelsScrape(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	// sp=EgIQAg restricts results to channels.
	searchURL := "https://www.youtube.com/results?sp=EgIQAg%253D%253D&search_query=" + url.QueryEscape(term)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", config.BrowserUserAgent)

	resp, err := e.clients.NewHTTPClient(searchTimeout).Do(req)
	if err != nil {
		logger.Debug("youtube results scrape failed",
			"module", "discovery", "action", "search", "resource", "youtube", "result", "failed",
			"term", term, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil
	}
	html, _ := doc.Html()

	seen := make(map[string]bool)
	var candidates []model.DiscoveredCandidate
	for _, m := range youtubeChannelRendererPattern.FindAllStringSubmatch(html, -1) {
		channelID, title := m[1], m[2]
		if seen[channelID] {
			continue
		}
		seen[channelID] = true
		cand := model.DiscoveredCandidate{
			Type:       model.TypeYouTube,
			FeedURL:    youtubeFeedURL(channelID),
			SiteURL:    youtubeChannelURL(channelID),
			Title:      strings.ReplaceAll(title, `\"`, `"`),
			Confidence: confSearch,
			Method:     model.MethodYouTube,
		}
		e.annotateChannel(ctx, &cand, channelID)
		candidates = append(candidates, cand)
		if len(candidates) >= limit {
			break
		}
	}
	return candidates
}

// annotateChannel probes the channel's videos feed by id. The merge-phase
// annotate step only knows feed URLs, and the checker needs the bare
// channel id for youtube, so search candidates are annotated here.
func (e *Engine) annotateChannel(ctx context.Context, cand *model.DiscoveredCandidate, channelID string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result := e.checker.Check(ctx, channelID, model.TypeYouTube)
	cand.IsActive = &result.IsActive
	cand.LastPostDate = result.LastPostDate
}
