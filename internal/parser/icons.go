package parser

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"estuary/internal/config"
	"estuary/internal/logger"
)

const iconLookupTimeout = 10 * time.Second

var avatarJSONPattern = regexp.MustCompile(`"avatar"\s*:\s*\{\s*"thumbnails"\s*:\s*\[\s*\{\s*"url"\s*:\s*"([^"]+)"`)

// youtubeChannelAvatar resolves a channel avatar with a fallback chain:
// Data API (when a key is configured), then channel page scrape, then a
// generic favicon. Every step degrades to the next on failure.
func (p *Parser) youtubeChannelAvatar(ctx context.Context, channelID string) string {
	if channelID == "" {
		return ""
	}

	if p.youtubeAPIKey != "" {
		if icon := p.youtubeAvatarFromAPI(ctx, channelID); icon != "" {
			return icon
		}
	}
	if icon := p.youtubeAvatarFromPage(ctx, channelID); icon != "" {
		return icon
	}
	return FallbackFaviconURL("https://www.youtube.com")
}

func (p *Parser) youtubeAvatarFromAPI(ctx context.Context, channelID string) string {
	apiURL := fmt.Sprintf(
		"https://www.googleapis.com/youtube/v3/channels?part=snippet&id=%s&key=%s",
		url.QueryEscape(channelID), url.QueryEscape(p.youtubeAPIKey),
	)
	body, err := p.get(ctx, apiURL, config.UserAgent)
	if err != nil {
		logger.Debug("youtube avatar api lookup failed",
			"module", "parser", "action", "fetch", "resource", "icon", "result", "failed",
			"channel_id", channelID, "error", err)
		return ""
	}
	for _, key := range []string{"high", "medium", "default"} {
		if icon := gjson.GetBytes(body, "items.0.snippet.thumbnails."+key+".url"); icon.Exists() {
			return icon.String()
		}
	}
	return ""
}

func (p *Parser) youtubeAvatarFromPage(ctx context.Context, channelID string) string {
	body, err := p.get(ctx, "https://www.youtube.com/channel/"+url.PathEscape(channelID), config.BrowserUserAgent)
	if err != nil {
		logger.Debug("youtube avatar scrape failed",
			"module", "parser", "action", "fetch", "resource", "icon", "result", "failed",
			"channel_id", channelID, "error", err)
		return ""
	}

	if doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(string(body))); docErr == nil {
		if icon, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && icon != "" {
			return icon
		}
		if icon, ok := doc.Find(`link[rel="image_src"]`).Attr("href"); ok && icon != "" {
			return icon
		}
	}
	if match := avatarJSONPattern.FindSubmatch(body); match != nil {
		return string(match[1])
	}
	return ""
}

// redditCommunityIcon reads the subreddit's public metadata endpoint.
func (p *Parser) redditCommunityIcon(ctx context.Context, subreddit string) string {
	if subreddit == "" {
		return ""
	}
	body, err := p.get(ctx, "https://www.reddit.com/r/"+url.PathEscape(subreddit)+"/about.json", config.UserAgent)
	if err != nil {
		logger.Debug("reddit community icon lookup failed",
			"module", "parser", "action", "fetch", "resource", "icon", "result", "failed",
			"subreddit", subreddit, "error", err)
		return ""
	}

	icon := gjson.GetBytes(body, "data.community_icon").String()
	if icon == "" {
		icon = gjson.GetBytes(body, "data.icon_img").String()
	}
	// Reddit escapes ampersands in these fields.
	return html.UnescapeString(icon)
}

func (p *Parser) get(ctx context.Context, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.clients.NewHTTPClient(iconLookupTimeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FallbackFaviconURL builds a generic favicon-service URL for a site.
// No network call happens here; the URL is fetched lazily by the asset
// cache.
func FallbackFaviconURL(siteURL string) string {
	parsed, err := url.Parse(siteURL)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s&sz=128", url.QueryEscape(parsed.Hostname()))
}

// IsFallbackIcon reports whether iconURL points at the generic
// favicon service rather than a platform-resolved image.
func IsFallbackIcon(iconURL string) bool {
	return strings.Contains(iconURL, "google.com/s2/favicons")
}

func channelIDFromFeedURL(feedURL string) string {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("channel_id")
}

func subredditFromFeedURL(feedURL string) string {
	parsed, err := url.Parse(feedURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "r" {
		return segments[1]
	}
	return ""
}
