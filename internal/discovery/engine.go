// Package discovery resolves feed candidates from a URL or a keyword.
// Every outbound probe is best-effort: a failing branch contributes
// nothing instead of aborting the call, so callers always receive a
// ranked (possibly empty) candidate list.
package discovery

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"estuary/internal/activity"
	"estuary/internal/config"
	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
	"estuary/internal/network"
	"estuary/internal/platform"
	"estuary/internal/suggest"
)

const (
	fetchTimeout  = 15 * time.Second
	probeTimeout  = 5 * time.Second
	searchTimeout = 10 * time.Second

	// maxFetchBytes caps page and search-response bodies.
	maxFetchBytes = 10 << 20

	// DefaultLimit caps keyword search results when the caller does not
	// pass a limit.
	DefaultLimit = 20

	confDirect    = 1.0
	confLinkTag   = 0.95
	confSearch    = 0.9
	confWellKnown = 0.8
)

// wellKnownPaths are probed in order with HEAD requests when a page
// advertises no feed. First hit wins.
var wellKnownPaths = []string{
	"/feed",
	"/rss",
	"/feed.xml",
	"/rss.xml",
	"/atom.xml",
	"/index.xml",
	"/feeds/posts/default",
	"/?feed=rss2",
}

var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
	"application/feed+json",
	"application/xml",
	"text/xml",
}

// Engine discovers feed candidates. The suggestion provider is optional;
// when nil the AI branch contributes zero candidates.
type Engine struct {
	clients       *network.ClientFactory
	checker       *activity.Checker
	provider      suggest.Provider
	youtubeAPIKey string
}

func NewEngine(clients *network.ClientFactory, checker *activity.Checker, provider suggest.Provider, youtubeAPIKey string) *Engine {
	return &Engine{
		clients:       clients,
		checker:       checker,
		provider:      provider,
		youtubeAPIKey: youtubeAPIKey,
	}
}

// DiscoverFromURL resolves a single URL into feed candidates, sorted by
// confidence descending.
func (e *Engine) DiscoverFromURL(ctx context.Context, rawURL string) ([]model.DiscoveredCandidate, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, feederr.New(feederr.KindValidation, "invalid URL: "+rawURL)
	}

	switch platform.Classify(rawURL) {
	case platform.YouTube:
		return e.discoverYouTubeURL(ctx, parsed)
	case platform.Reddit:
		return e.discoverRedditURL(ctx, parsed)
	}

	candidates := e.discoverGenericURL(ctx, parsed)
	e.annotate(ctx, candidates)
	sortByConfidence(candidates)
	return candidates, nil
}

func (e *Engine) discoverGenericURL(ctx context.Context, pageURL *url.URL) []model.DiscoveredCandidate {
	contentType, body, err := e.get(ctx, pageURL.String(), fetchTimeout)
	if err != nil {
		logger.Debug("page fetch failed, falling back to well-known paths",
			"module", "discovery", "action", "fetch", "resource", "page", "result", "failed",
			"url", pageURL.String(), "error", err)
		return e.probeWellKnownPaths(ctx, pageURL)
	}

	if isFeedContentType(contentType) || looksLikeFeedDocument(body) {
		return []model.DiscoveredCandidate{directMatch(pageURL.String(), body)}
	}

	candidates := e.candidatesFromLinkTags(pageURL, body)
	if len(candidates) > 0 {
		return candidates
	}
	return e.probeWellKnownPaths(ctx, pageURL)
}

// directMatch builds the confidence-1.0 candidate for a URL that served
// a feed document directly.
func directMatch(feedURL string, body []byte) model.DiscoveredCandidate {
	cand := model.DiscoveredCandidate{
		Type:       model.TypeRSS,
		FeedURL:    feedURL,
		Confidence: confDirect,
		Method:     model.MethodDirect,
	}
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil || parsed == nil {
		return cand
	}
	cand.Title = parsed.Title
	cand.SiteURL = parsed.Link
	if parsed.Image != nil {
		cand.IconURL = parsed.Image.URL
	}
	if parsed.ITunesExt != nil || looksLikePodcast(parsed.Title, feedURL) {
		cand.Type = model.TypePodcast
	}
	return cand
}

func (e *Engine) candidatesFromLinkTags(pageURL *url.URL, body []byte) []model.DiscoveredCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())

	var candidates []model.DiscoveredCandidate
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, sel *goquery.Selection) {
		linkType, _ := sel.Attr("type")
		if !isFeedContentType(linkType) {
			return
		}
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		feedURL := resolveRef(pageURL, href)
		if feedURL == "" {
			return
		}

		title := strings.TrimSpace(sel.AttrOr("title", ""))
		if title == "" {
			title = pageTitle
		}

		cand := model.DiscoveredCandidate{
			Type:       model.TypeRSS,
			FeedURL:    feedURL,
			SiteURL:    pageURL.Scheme + "://" + pageURL.Host,
			Title:      title,
			Confidence: confLinkTag,
			Method:     model.MethodLinkTag,
		}
		if looksLikePodcast(title, feedURL) {
			cand.Type = model.TypePodcast
		}
		candidates = append(candidates, cand)
	})
	return candidates
}

func (e *Engine) probeWellKnownPaths(ctx context.Context, pageURL *url.URL) []model.DiscoveredCandidate {
	base := pageURL.Scheme + "://" + pageURL.Host
	client := e.clients.NewHTTPClient(probeTimeout)

	for _, path := range wellKnownPaths {
		probeURL := base + path
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", config.UserAgent)

		resp, err := client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			continue
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" && !isFeedContentType(ct) {
			continue
		}
		return []model.DiscoveredCandidate{{
			Type:       model.TypeRSS,
			FeedURL:    probeURL,
			SiteURL:    base,
			Confidence: confWellKnown,
			Method:     model.MethodWellKnown,
		}}
	}
	return nil
}

// annotate runs the activity checker over rss/podcast candidates that a
// platform branch has not already annotated.
func (e *Engine) annotate(ctx context.Context, candidates []model.DiscoveredCandidate) {
	for i := range candidates {
		if candidates[i].IsActive != nil {
			continue
		}
		result := e.checker.Check(ctx, candidates[i].FeedURL, candidates[i].Type)
		candidates[i].IsActive = &result.IsActive
		candidates[i].LastPostDate = result.LastPostDate
	}
}

func (e *Engine) get(ctx context.Context, rawURL string, timeout time.Duration) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := e.clients.NewHTTPClient(timeout).Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, feederr.Newf(feederr.KindHTTPStatus, "unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", nil, err
	}
	return resp.Header.Get("Content-Type"), body, nil
}

func isFeedContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, feedType := range feedContentTypes {
		if ct == feedType {
			return true
		}
	}
	return false
}

func looksLikeFeedDocument(body []byte) bool {
	head := strings.TrimSpace(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<rss") || strings.Contains(head, "<feed")
}

func looksLikePodcast(title, feedURL string) bool {
	return strings.Contains(strings.ToLower(title), "podcast") ||
		strings.Contains(strings.ToLower(feedURL), "podcast")
}

func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func sortByConfidence(candidates []model.DiscoveredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
}
