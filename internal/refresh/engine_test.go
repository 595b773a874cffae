package refresh_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/network"
	"estuary/internal/parser"
	"estuary/internal/refresh"
	"estuary/internal/repository"
	"estuary/internal/repository/testutil"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func feedBody(items ...string) string {
	return `<?xml version="1.0"?><rss version="2.0"><channel><title>Upstream Title</title><link>https://example.com</link><description>Upstream description</description>` +
		strings.Join(items, "") + `</channel></rss>`
}

func item(guid string) string {
	return fmt.Sprintf(`<item><title>Post %s</title><link>https://example.com/%s</link><guid>%s</guid></item>`, guid, guid, guid)
}

type harness struct {
	conn     *sql.DB
	feeds    repository.FeedRepository
	articles repository.ArticleRepository
	engine   *refresh.Engine
}

func newHarness(t *testing.T, handler func(req *http.Request) (*http.Response, error)) *harness {
	t.Helper()
	conn := testutil.NewTestDB(t)
	feeds := repository.NewFeedRepository(conn)
	articles := repository.NewArticleRepository(conn)
	clients := network.NewClientFactoryForTest(&http.Client{Transport: roundTripperFunc(handler)})
	engine := refresh.NewEngine(feeds, articles, parser.New(clients, ""), nil, nil)
	return &harness{conn: conn, feeds: feeds, articles: articles, engine: engine}
}

func okResponse(req *http.Request, body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

func (h *harness) seedAndLoad(t *testing.T, feed model.Feed) model.Feed {
	t.Helper()
	id := testutil.SeedFeed(t, h.conn, feed)
	loaded, err := h.feeds.GetByID(context.Background(), id)
	require.NoError(t, err)
	return loaded
}

func TestRefresh_InsertsArticlesAndSchedulesNext(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"), item("b"))), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "My Feed", RefreshIntervalMinutes: 60})

	before := time.Now().UTC()
	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)
	require.Equal(t, 2, result.NewArticles)
	require.False(t, result.NextFetchAt.Before(before.Add(59*time.Minute)))

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.ErrorCount)
	require.NotNil(t, updated.LastFetchedAt)
	require.NotNil(t, updated.NextFetchAt)

	count, err := h.articles.CountByFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRefresh_SecondRunWithSameContentIsIdempotent(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"), item("b"))), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "My Feed"})

	first := h.engine.Refresh(context.Background(), feed)
	require.Equal(t, 2, first.NewArticles)

	second := h.engine.Refresh(context.Background(), feed)
	require.True(t, second.Success)
	require.Equal(t, 0, second.NewArticles)

	count, err := h.articles.CountByFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestRefresh_FailureBacksOffWithoutCompounding(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://down.example.com/feed", Title: "Down", RefreshIntervalMinutes: 30})

	before := time.Now().UTC()
	result := h.engine.Refresh(context.Background(), feed)
	require.False(t, result.Success)
	require.Equal(t, feederr.KindNetwork, result.ErrorKind)
	require.False(t, result.NextFetchAt.Before(before.Add(59*time.Minute)))

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 1, updated.ErrorCount)
	require.NotNil(t, updated.LastError)
	require.Contains(t, *updated.LastError, "network")
	// The stored interval is untouched; only next_fetch_at doubles.
	require.Equal(t, 30, updated.RefreshIntervalMinutes)

	again := h.engine.Refresh(context.Background(), updated)
	require.False(t, again.Success)
	reloaded, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.ErrorCount)
	require.Equal(t, 30, reloaded.RefreshIntervalMinutes)
}

func TestRefresh_SuccessResetsErrorState(t *testing.T) {
	failing := true
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		if failing {
			return okResponse(req, "not xml at all"), nil
		}
		return okResponse(req, feedBody(item("a"))), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "Flaky"})

	result := h.engine.Refresh(context.Background(), feed)
	require.False(t, result.Success)
	require.Equal(t, feederr.KindParse, result.ErrorKind)

	failing = false
	result = h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.ErrorCount)
	require.Nil(t, updated.LastError)
}

func TestRefresh_HTTPStatusClassified(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusGone,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "Gone"})

	result := h.engine.Refresh(context.Background(), feed)
	require.False(t, result.Success)
	require.Equal(t, feederr.KindHTTPStatus, result.ErrorKind)
	require.Contains(t, result.Message, "410")
}

func TestRefresh_NotModifiedCountsAsSuccess(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, `"v1"`, req.Header.Get("If-None-Match"))
		return &http.Response{
			StatusCode: http.StatusNotModified,
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "Cached"})
	etag := `"v1"`
	require.NoError(t, h.feeds.UpdateConditionalHeaders(context.Background(), feed.ID, &etag, nil))
	feed, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)

	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)
	require.Equal(t, 0, result.NewArticles)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.ErrorCount)
	require.NotNil(t, updated.LastFetchedAt)
}

func TestRefresh_ResolvesTypePlaceholder(t *testing.T) {
	youtubeFeed := `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015"><title>Channel</title><entry><id>yt:video:dQw4w9WgXcQ</id><title>Video</title></entry></feed>`
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, youtubeFeed), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://www.youtube.com/feeds/videos.xml?channel_id=UCx", Title: "Channel", Type: model.TypeRSS})

	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, model.TypeYouTube, updated.Type)

	// YouTube normalization ran: the article got a synthesized watch URL.
	articles, err := h.articles.ListByFeed(context.Background(), feed.ID, 10)
	require.NoError(t, err)
	require.Len(t, articles, 1)
	require.NotNil(t, articles[0].URL)
	require.Contains(t, *articles[0].URL, "watch?v=dQw4w9WgXcQ")
}

func TestRefresh_PlaceholderMetadataOverwritten(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"))), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "https://example.com/feed"})

	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, "Upstream Title", updated.Title)
	require.NotNil(t, updated.SiteURL)
	require.Equal(t, "https://example.com", *updated.SiteURL)
}

func TestRefresh_UserTitleKept(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"))), nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "My Custom Name"})

	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.Equal(t, "My Custom Name", updated.Title)
}

func TestRefresh_StoresConditionalHeaders(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		resp := okResponse(req, feedBody(item("a")))
		resp.Header.Set("ETag", `"v2"`)
		resp.Header.Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		return resp, nil
	})
	feed := h.seedAndLoad(t, model.Feed{URL: "https://example.com/feed", Title: "Feed"})

	result := h.engine.Refresh(context.Background(), feed)
	require.True(t, result.Success)

	updated, err := h.feeds.GetByID(context.Background(), feed.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.ETag)
	require.Equal(t, `"v2"`, *updated.ETag)
	require.NotNil(t, updated.LastModified)
}
