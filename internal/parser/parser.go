package parser

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"estuary/internal/config"
	"estuary/internal/feederr"
	"estuary/internal/network"
	"estuary/internal/platform"
)

const fetchTimeout = 20 * time.Second

// Parser fetches and parses feed documents into metadata plus raw
// entries, with per-platform icon resolution.
type Parser struct {
	clients       *network.ClientFactory
	youtubeAPIKey string
}

func New(clients *network.ClientFactory, youtubeAPIKey string) *Parser {
	return &Parser{clients: clients, youtubeAPIKey: youtubeAPIKey}
}

// Parse fetches the document at feedURL with a bounded timeout and
// parses it as RSS/Atom. A non-2xx response is a fetch failure; a
// malformed document, or one with no feed-level metadata at
// end-of-stream, is a parse failure.
func (p *Parser) Parse(ctx context.Context, feedURL string, opts Options) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, feederr.Wrap(feederr.KindValidation, "build feed request", err)
	}
	req.Header.Set("User-Agent", config.UserAgent)
	if opts.ETag != "" {
		req.Header.Set("If-None-Match", opts.ETag)
	}
	if opts.LastModified != "" {
		req.Header.Set("If-Modified-Since", opts.LastModified)
	}

	resp, err := p.clients.NewHTTPClient(fetchTimeout).Do(req)
	if err != nil {
		kind := feederr.KindOf(err)
		if kind == feederr.KindUnknown {
			kind = feederr.KindNetwork
		}
		return nil, feederr.Wrap(kind, "fetch feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &Result{NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, feederr.Newf(feederr.KindHTTPStatus, "fetch feed: unexpected status %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, feederr.Wrap(feederr.KindParse, "parse feed", err)
	}

	result := &Result{
		Title:        strings.TrimSpace(parsed.Title),
		Description:  strings.TrimSpace(parsed.Description),
		SiteURL:      strings.TrimSpace(parsed.Link),
		ETag:         strings.TrimSpace(resp.Header.Get("ETag")),
		LastModified: strings.TrimSpace(resp.Header.Get("Last-Modified")),
	}
	if result.Title == "" && result.SiteURL == "" && result.Description == "" && len(parsed.Items) == 0 {
		return nil, feederr.New(feederr.KindParse, "parse feed: no feed metadata")
	}

	for _, item := range parsed.Items {
		raw := itemToRaw(item)
		if hasAudioEnclosure(raw) {
			result.IsPodcast = true
		}
		result.Articles = append(result.Articles, raw)
	}
	if parsed.ITunesExt != nil {
		result.IsPodcast = true
	}

	result.IconURL = p.resolveIcon(ctx, feedURL, parsed, opts)

	return result, nil
}

func itemToRaw(item *gofeed.Item) RawArticle {
	raw := RawArticle{
		GUID:    strings.TrimSpace(item.GUID),
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: item.Description,
		Content: item.Content,
	}
	if raw.GUID == "" {
		raw.GUID = raw.Link
	}
	if item.Author != nil {
		raw.Author = strings.TrimSpace(item.Author.Name)
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		raw.Author = strings.TrimSpace(item.Authors[0].Name)
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		raw.Published = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		raw.Published = &t
	}
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		raw.Enclosures = append(raw.Enclosures, Enclosure{URL: enc.URL, Type: enc.Type, Length: enc.Length})
	}
	if item.Image != nil {
		raw.Image = strings.TrimSpace(item.Image.URL)
	}
	raw.Thumbnail = mediaThumbnail(item)
	return raw
}

// mediaThumbnail pulls a thumbnail from the media RSS or iTunes
// extensions, which is where YouTube and most podcast hosts put it.
func mediaThumbnail(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		if group, ok := media["group"]; ok && len(group) > 0 {
			if thumbs, ok := group[0].Children["thumbnail"]; ok && len(thumbs) > 0 {
				if url := thumbs[0].Attrs["url"]; url != "" {
					return url
				}
			}
		}
		if thumbs, ok := media["thumbnail"]; ok && len(thumbs) > 0 {
			if url := thumbs[0].Attrs["url"]; url != "" {
				return url
			}
		}
	}
	if item.ITunesExt != nil && item.ITunesExt.Image != "" {
		return item.ITunesExt.Image
	}
	return ""
}

func hasAudioEnclosure(raw RawArticle) bool {
	for _, enc := range raw.Enclosures {
		if strings.HasPrefix(enc.Type, "audio/") {
			return true
		}
	}
	return false
}

// resolveIcon prefers explicit feed metadata, then platform-specific
// lookups, then a generic favicon service URL.
func (p *Parser) resolveIcon(ctx context.Context, feedURL string, parsed *gofeed.Feed, opts Options) string {
	if parsed.Image != nil && strings.TrimSpace(parsed.Image.URL) != "" {
		return strings.TrimSpace(parsed.Image.URL)
	}
	if parsed.ITunesExt != nil && parsed.ITunesExt.Image != "" {
		return parsed.ITunesExt.Image
	}
	if opts.SkipIconFetch {
		return ""
	}

	switch platform.Classify(feedURL) {
	case platform.YouTube:
		if icon := p.youtubeChannelAvatar(ctx, channelIDFromFeedURL(feedURL)); icon != "" {
			return icon
		}
	case platform.Reddit:
		if icon := p.redditCommunityIcon(ctx, subredditFromFeedURL(feedURL)); icon != "" {
			return icon
		}
	}

	site := parsed.Link
	if site == "" {
		site = feedURL
	}
	return FallbackFaviconURL(site)
}
