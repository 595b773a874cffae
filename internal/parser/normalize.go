package parser

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"estuary/internal/model"
)

const summaryMaxLen = 300

var (
	stripPolicy = bluemonday.StrictPolicy()

	youtubeVideoIDPattern = regexp.MustCompile(`(?:yt:video:|v=|youtu\.be/|/embed/|/shorts/|/v/)([A-Za-z0-9_-]{11})`)

	// Reddit preview hosts that serve resizable variants.
	redditPreviewHosts = map[string]bool{
		"preview.redd.it":          true,
		"external-preview.redd.it": true,
	}
)

// Normalize converts a raw feed entry into the canonical article schema,
// applying per-platform transforms. HTML entities in the title are
// decoded on every branch.
func Normalize(raw RawArticle, feedType model.FeedType) model.Article {
	article := model.Article{
		GUID:        raw.GUID,
		Title:       html.UnescapeString(raw.Title),
		PublishedAt: raw.Published,
	}
	if article.GUID == "" {
		article.GUID = raw.Link
	}
	if raw.Link != "" {
		link := raw.Link
		article.URL = &link
	}
	if raw.Author != "" {
		author := raw.Author
		article.Author = &author
	}
	if len(raw.Enclosures) > 0 {
		enc := raw.Enclosures[0]
		article.EnclosureURL = &enc.URL
		if enc.Type != "" {
			article.EnclosureType = &enc.Type
		}
	}
	if thumb := firstNonEmpty(raw.Thumbnail, raw.Image); thumb != "" {
		article.ThumbnailURL = &thumb
	}

	content := firstNonEmpty(raw.Content, raw.Summary)

	switch feedType {
	case model.TypeYouTube:
		normalizeYouTube(&article, raw, content)
	case model.TypeReddit:
		normalizeReddit(&article, raw, content)
	default:
		if content != "" {
			article.Content = &content
		}
		setSummary(&article, content)
	}

	return article
}

// normalizeYouTube extracts the 11-character video id from the guid or
// link and synthesizes the canonical watch URL and thumbnail when the
// entry lacks them.
func normalizeYouTube(article *model.Article, raw RawArticle, content string) {
	videoID := youtubeVideoID(raw.GUID)
	if videoID == "" {
		videoID = youtubeVideoID(raw.Link)
	}
	if videoID != "" {
		if article.URL == nil {
			watchURL := "https://www.youtube.com/watch?v=" + videoID
			article.URL = &watchURL
		}
		if article.ThumbnailURL == nil {
			thumb := "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
			article.ThumbnailURL = &thumb
		}
	}
	if content != "" {
		article.Content = &content
	}
	setSummary(article, content)
}

func youtubeVideoID(s string) string {
	if match := youtubeVideoIDPattern.FindStringSubmatch(s); match != nil {
		return match[1]
	}
	return ""
}

// normalizeReddit strips the RSS-injected footer table before computing
// the summary, prefixes bare usernames with u/, and falls back to the
// first usable content image when the entry carries no thumbnail.
func normalizeReddit(article *model.Article, raw RawArticle, content string) {
	cleaned := stripRedditFooter(content)
	if cleaned != "" {
		article.Content = &cleaned
	}
	setSummary(article, cleaned)

	if raw.Author != "" {
		author := raw.Author
		author = strings.TrimPrefix(author, "/")
		if !strings.HasPrefix(author, "u/") {
			author = "u/" + author
		}
		article.Author = &author
	}

	if article.ThumbnailURL == nil {
		if img := firstContentImage(cleaned); img != "" {
			img = upgradePreviewImage(img)
			article.ThumbnailURL = &img
		}
	}
}

// stripRedditFooter removes the "submitted by ... [link] [comments]"
// table Reddit appends to every RSS entry.
func stripRedditFooter(content string) string {
	if content == "" || !strings.Contains(content, "<table") {
		return content
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		if strings.Contains(strings.ToLower(sel.Text()), "submitted by") {
			sel.Remove()
		}
	})
	rendered, err := doc.Find("body").Html()
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// firstContentImage scans content for the first image that is not an
// icon, avatar or logo by filename heuristic.
func firstContentImage(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			return true
		}
		if isDecorationImage(src) {
			return true
		}
		found = html.UnescapeString(src)
		return false
	})
	return found
}

func isDecorationImage(src string) bool {
	name := strings.ToLower(path.Base(src))
	for _, marker := range []string{"icon", "avatar", "logo", "emoji", "award", "badge"} {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// upgradePreviewImage rewrites known Reddit preview hosts to a larger,
// web-optimized variant.
func upgradePreviewImage(src string) string {
	parsed, err := url.Parse(src)
	if err != nil || !redditPreviewHosts[parsed.Hostname()] {
		return src
	}
	query := parsed.Query()
	query.Set("width", "640")
	query.Set("format", "pjpg")
	query.Set("auto", "webp")
	parsed.RawQuery = query.Encode()
	return parsed.String()
}

func setSummary(article *model.Article, content string) {
	if summary := summarize(content); summary != "" {
		article.Summary = &summary
	}
}

// summarize strips markup, decodes entities and truncates at a fixed
// character budget without splitting mid-word.
func summarize(content string) string {
	if content == "" {
		return ""
	}
	text := stripPolicy.Sanitize(content)
	text = html.UnescapeString(text)
	text = strings.Join(strings.Fields(text), " ")
	return truncateAtWord(text, summaryMaxLen)
}

func truncateAtWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
