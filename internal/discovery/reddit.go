package discovery

import (
	"context"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"estuary/internal/feederr"
	"estuary/internal/logger"
	"estuary/internal/model"
)

func subredditFeedURL(name string) string {
	return "https://www.reddit.com/r/" + name + "/.rss"
}

func subredditURL(name string) string {
	return "https://www.reddit.com/r/" + name
}

// discoverRedditURL resolves a reddit.com URL to the subreddit's feed.
func (e *Engine) discoverRedditURL(ctx context.Context, pageURL *url.URL) ([]model.DiscoveredCandidate, error) {
	name := subredditFromPath(pageURL.Path)
	if name == "" {
		return nil, feederr.New(feederr.KindNotFound, "no subreddit in "+pageURL.String())
	}

	cand := model.DiscoveredCandidate{
		Type:       model.TypeReddit,
		FeedURL:    subredditFeedURL(name),
		SiteURL:    subredditURL(name),
		Title:      "r/" + name,
		IconURL:    e.subredditIcon(ctx, name),
		Confidence: confDirect,
		Method:     model.MethodReddit,
	}
	result := e.checker.Check(ctx, name, model.TypeReddit)
	cand.IsActive = &result.IsActive
	cand.LastPostDate = result.LastPostDate
	return []model.DiscoveredCandidate{cand}, nil
}

func subredditFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) >= 2 && segments[0] == "r" && segments[1] != "" {
		return segments[1]
	}
	return ""
}

func (e *Engine) subredditIcon(ctx context.Context, name string) string {
	_, body, err := e.get(ctx, "https://www.reddit.com/r/"+name+"/about.json", probeTimeout)
	if err != nil {
		return ""
	}
	icon := gjson.GetBytes(body, "data.community_icon").String()
	if icon == "" {
		icon = gjson.GetBytes(body, "data.icon_img").String()
	}
	return html.UnescapeString(icon)
}

// searchSubreddits finds subreddits matching a keyword via the public
// search endpoint.
func (e *Engine) searchSubreddits(ctx context.Context, term string, limit int) []model.DiscoveredCandidate {
	searchURL := "https://www.reddit.com/subreddits/search.json?limit=" + strconv.Itoa(limit) +
		"&q=" + url.QueryEscape(term)
	_, body, err := e.get(ctx, searchURL, searchTimeout)
	if err != nil {
		logger.Debug("subreddit search failed",
			"module", "discovery", "action", "search", "resource", "reddit", "result", "failed",
			"term", term, "error", err)
		return nil
	}

	var candidates []model.DiscoveredCandidate
	gjson.GetBytes(body, "data.children").ForEach(func(_, child gjson.Result) bool {
		data := child.Get("data")
		name := data.Get("display_name").String()
		if name == "" {
			return true
		}
		icon := data.Get("community_icon").String()
		if icon == "" {
			icon = data.Get("icon_img").String()
		}

		cand := model.DiscoveredCandidate{
			Type:       model.TypeReddit,
			FeedURL:    subredditFeedURL(name),
			SiteURL:    subredditURL(name),
			Title:      "r/" + name,
			IconURL:    html.UnescapeString(icon),
			Confidence: confSearch,
			Method:     model.MethodReddit,
		}
		e.annotateSubreddit(ctx, &cand, name)
		candidates = append(candidates, cand)
		return len(candidates) < limit
	})
	return candidates
}

func (e *Engine) annotateSubreddit(ctx context.Context, cand *model.DiscoveredCandidate, name string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	result := e.checker.Check(ctx, name, model.TypeReddit)
	cand.IsActive = &result.IsActive
	cand.LastPostDate = result.LastPostDate
}
