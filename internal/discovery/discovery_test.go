package discovery_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"estuary/internal/activity"
	"estuary/internal/discovery"
	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/network"
	"estuary/internal/suggest"
	"estuary/internal/suggest/mock"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func textResponse(req *http.Request, status int, contentType, body string) *http.Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
		Request:    req,
	}
}

func recentRSS(title string) string {
	pub := time.Now().UTC().Add(-24 * time.Hour).Format(time.RFC1123Z)
	return fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>%s</title><link>https://example.com</link><description>d</description><item><title>post</title><link>https://example.com/p</link><guid>g1</guid><pubDate>%s</pubDate></item></channel></rss>`, title, pub)
}

func newEngine(handler func(req *http.Request) (*http.Response, error), provider suggest.Provider) *discovery.Engine {
	clients := network.NewClientFactoryForTest(&http.Client{Transport: roundTripperFunc(handler)})
	return discovery.NewEngine(clients, activity.NewChecker(clients), provider, "")
}

func TestDiscoverFromURL_InvalidURL(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	}, nil)

	_, err := engine.DiscoverFromURL(context.Background(), "not a url")
	require.Error(t, err)
	require.Equal(t, feederr.KindValidation, feederr.KindOf(err))
}

func TestDiscoverFromURL_DirectFeedResponse(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("Direct Feed")), nil
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://example.com/feed.xml")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, 1.0, candidates[0].Confidence)
	require.Equal(t, model.MethodDirect, candidates[0].Method)
	require.Equal(t, "Direct Feed", candidates[0].Title)
	require.NotNil(t, candidates[0].IsActive)
	require.True(t, *candidates[0].IsActive)
}

func TestDiscoverFromURL_LinkTags(t *testing.T) {
	page := `<html><head>
<title>Example Blog</title>
<link rel="alternate" type="application/rss+xml" title="Posts" href="/feed.xml">
<link rel="alternate" type="application/rss+xml" title="Example Podcast" href="/podcast.xml">
<link rel="alternate" type="text/html" href="/other">
</head><body></body></html>`

	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/":
			return textResponse(req, http.StatusOK, "text/html", page), nil
		default:
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("x")), nil
		}
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, "https://example.com/feed.xml", candidates[0].FeedURL)
	require.Equal(t, model.TypeRSS, candidates[0].Type)
	require.Equal(t, 0.95, candidates[0].Confidence)
	require.Equal(t, model.TypePodcast, candidates[1].Type)
}

func TestDiscoverFromURL_WellKnownPathProbe(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.Method == http.MethodHead && req.URL.Path == "/feed.xml":
			return textResponse(req, http.StatusOK, "application/rss+xml", ""), nil
		case req.Method == http.MethodHead:
			return textResponse(req, http.StatusNotFound, "", ""), nil
		case req.URL.Path == "/feed.xml":
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("x")), nil
		default:
			return textResponse(req, http.StatusOK, "text/html", "<html><head></head></html>"), nil
		}
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://example.com/about")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "https://example.com/feed.xml", candidates[0].FeedURL)
	require.Equal(t, 0.8, candidates[0].Confidence)
	require.Equal(t, model.MethodWellKnown, candidates[0].Method)
}

func TestDiscoverFromURL_AllProbesFailReturnsEmpty(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://unreachable.example.com")
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestDiscoverFromURL_FailedActivityProbeFailsOpen(t *testing.T) {
	page := `<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head></html>`
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/feed.xml" {
			return nil, errors.New("probe timeout")
		}
		return textResponse(req, http.StatusOK, "text/html", page), nil
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.NotNil(t, candidates[0].IsActive)
	require.True(t, *candidates[0].IsActive)
}

func TestDiscoverFromURL_RedditURL(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/about.json"):
			return textResponse(req, http.StatusOK, "application/json",
				`{"data":{"community_icon":"https://styles.redditmedia.com/icon.png?width=256&amp;s=abc"}}`), nil
		case strings.HasSuffix(req.URL.Path, "/new.json"):
			created := float64(time.Now().Add(-2 * time.Hour).Unix())
			return textResponse(req, http.StatusOK, "application/json",
				fmt.Sprintf(`{"data":{"children":[{"data":{"created_utc":%f}}]}}`, created)), nil
		default:
			return textResponse(req, http.StatusNotFound, "", ""), nil
		}
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://www.reddit.com/r/golang/top")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, model.TypeReddit, candidates[0].Type)
	require.Equal(t, "https://www.reddit.com/r/golang/.rss", candidates[0].FeedURL)
	require.Equal(t, "r/golang", candidates[0].Title)
	require.Contains(t, candidates[0].IconURL, "width=256&s=abc")
	require.True(t, *candidates[0].IsActive)
}

func TestDiscoverFromURL_YouTubeChannelPath(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if strings.Contains(req.URL.Path, "videos.xml") || req.URL.Query().Get("channel_id") != "" {
			return textResponse(req, http.StatusOK, "application/xml", recentRSS("Channel")), nil
		}
		return textResponse(req, http.StatusNotFound, "", ""), nil
	}, nil)

	candidates, err := engine.DiscoverFromURL(context.Background(), "https://www.youtube.com/channel/UCabcdefghijklmnopqrstuv")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, model.TypeYouTube, candidates[0].Type)
	require.Equal(t, "https://www.youtube.com/feeds/videos.xml?channel_id=UCabcdefghijklmnopqrstuv", candidates[0].FeedURL)
	require.Equal(t, model.MethodYouTube, candidates[0].Method)
}

func TestDiscoverByKeyword_ValidatesInput(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("unexpected")
	}, nil)

	_, err := engine.DiscoverByKeyword(context.Background(), "  ", 10, "")
	require.Equal(t, feederr.KindValidation, feederr.KindOf(err))

	_, err = engine.DiscoverByKeyword(context.Background(), "golang", 10, "magazine")
	require.Equal(t, feederr.KindValidation, feederr.KindOf(err))
}

func TestDiscoverByKeyword_BranchFailuresDegrade(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "cloud.feedly.com" {
			return textResponse(req, http.StatusOK, "application/json",
				`{"results":[{"feedId":"feed/https://blog.example.com/rss","title":"Example Blog","website":"https://blog.example.com","iconUrl":"https://blog.example.com/icon.png"}]}`), nil
		}
		return nil, errors.New("connection refused")
	}, nil)

	candidates, err := engine.DiscoverByKeyword(context.Background(), "golang", 10, "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "https://blog.example.com/rss", candidates[0].FeedURL)
	require.Equal(t, model.MethodDirectory, candidates[0].Method)
	// Activity probe failed, so the candidate fails open.
	require.True(t, *candidates[0].IsActive)
}

func TestDiscoverByKeyword_DropsStaleAndDedupes(t *testing.T) {
	staleMs := time.Now().Add(-120 * 24 * time.Hour).UnixMilli()
	freshMs := time.Now().Add(-24 * time.Hour).UnixMilli()
	feedlyBody := fmt.Sprintf(`{"results":[
{"feedId":"feed/https://stale.example.com/rss","title":"Stale","lastUpdated":%d},
{"feedId":"feed/https://fresh.example.com/rss","title":"Fresh","lastUpdated":%d},
{"feedId":"feed/https://fresh.example.com/rss","title":"Fresh Again","lastUpdated":%d}
]}`, staleMs, freshMs, freshMs)

	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "cloud.feedly.com" {
			return textResponse(req, http.StatusOK, "application/json", feedlyBody), nil
		}
		return nil, errors.New("connection refused")
	}, nil)

	candidates, err := engine.DiscoverByKeyword(context.Background(), "golang", 10, model.TypeRSS)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "Fresh", candidates[0].Title)
}

func TestDiscoverByKeyword_StaleChannelDropped(t *testing.T) {
	const (
		staleID = "UCstalechannel0000000000"
		freshID = "UCfreshchannel0000000000"
	)
	resultsPage := `<html><body>` +
		`"channelRenderer":{"channelId":"` + staleID + `","title":{"simpleText":"Stale Channel"}}` +
		`"channelRenderer":{"channelId":"` + freshID + `","title":{"simpleText":"Fresh Channel"}}` +
		`</body></html>`
	stalePub := time.Now().UTC().Add(-365 * 24 * time.Hour).Format(time.RFC1123Z)
	staleRSS := fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>Stale Channel</title><link>https://example.com</link><description>d</description><item><title>old</title><guid>g1</guid><pubDate>%s</pubDate></item></channel></rss>`, stalePub)

	var probedIDs []string
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Path == "/results":
			return textResponse(req, http.StatusOK, "text/html", resultsPage), nil
		case req.URL.Path == "/feeds/videos.xml":
			id := req.URL.Query().Get("channel_id")
			probedIDs = append(probedIDs, id)
			if id == freshID {
				return textResponse(req, http.StatusOK, "application/xml", recentRSS("Fresh Channel")), nil
			}
			if id == staleID {
				return textResponse(req, http.StatusOK, "application/xml", staleRSS), nil
			}
			return textResponse(req, http.StatusNotFound, "", ""), nil
		default:
			return textResponse(req, http.StatusNotFound, "", ""), nil
		}
	}, nil)

	candidates, err := engine.DiscoverByKeyword(context.Background(), "golang", 10, model.TypeYouTube)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "Fresh Channel", candidates[0].Title)
	require.NotNil(t, candidates[0].IsActive)
	require.True(t, *candidates[0].IsActive)
	require.NotNil(t, candidates[0].LastPostDate)

	// Probes carry the bare channel id, never a feed URL.
	require.ElementsMatch(t, []string{staleID, freshID}, probedIDs)
}

func TestDiscoverByKeyword_OrdersMergedCandidatesByConfidence(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	provider.EXPECT().Suggest(gomock.Any(), "golang", gomock.Any()).Return([]suggest.Suggestion{
		{Title: "Probed", URL: "https://probe.example.com/"},
		{Title: "Direct", URL: "https://direct.example.com/feed.xml"},
		{Title: "Tagged", URL: "https://linktag.example.com/"},
	}, nil)

	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Host == "cloud.feedly.com":
			return textResponse(req, http.StatusOK, "application/json",
				`{"results":[{"feedId":"feed/https://blog.example.com/rss","title":"Blog"}]}`), nil
		case req.URL.Host == "blog.example.com":
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("Blog")), nil
		case req.URL.Host == "direct.example.com":
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("Direct")), nil
		case req.URL.Host == "linktag.example.com" && req.URL.Path == "/":
			return textResponse(req, http.StatusOK, "text/html",
				`<html><head><link rel="alternate" type="application/rss+xml" href="/feed.xml"></head></html>`), nil
		case req.URL.Host == "linktag.example.com":
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("Tagged")), nil
		case req.URL.Host == "probe.example.com" && req.Method == http.MethodHead && req.URL.Path == "/feed":
			return textResponse(req, http.StatusOK, "application/rss+xml", ""), nil
		case req.URL.Host == "probe.example.com" && req.Method == http.MethodHead:
			return textResponse(req, http.StatusNotFound, "", ""), nil
		case req.URL.Host == "probe.example.com" && req.URL.Path == "/feed":
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("Probed")), nil
		case req.URL.Host == "probe.example.com":
			return textResponse(req, http.StatusOK, "text/html", "<html><head></head><body></body></html>"), nil
		default:
			return nil, errors.New("connection refused")
		}
	}, provider)

	candidates, err := engine.DiscoverByKeyword(context.Background(), "golang", 10, "")
	require.NoError(t, err)
	require.Len(t, candidates, 4)

	confidences := make([]float64, len(candidates))
	for i, c := range candidates {
		confidences[i] = c.Confidence
	}
	require.Equal(t, []float64{1.0, 0.95, 0.9, 0.8}, confidences)
	require.Equal(t, "https://direct.example.com/feed.xml", candidates[0].FeedURL)
	require.Equal(t, "https://linktag.example.com/feed.xml", candidates[1].FeedURL)
	require.Equal(t, "https://blog.example.com/rss", candidates[2].FeedURL)
	require.Equal(t, "https://probe.example.com/feed", candidates[3].FeedURL)
}

type endlessBody struct{}

func (endlessBody) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = ' '
	}
	return len(p), nil
}

func (endlessBody) Close() error { return nil }

func TestDiscoverFromURL_PageReadBounded(t *testing.T) {
	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodGet && req.URL.Path == "/" {
			header := make(http.Header)
			header.Set("Content-Type", "text/html")
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       endlessBody{},
				Header:     header,
				Request:    req,
			}, nil
		}
		return textResponse(req, http.StatusNotFound, "", ""), nil
	}, nil)

	// A page that never stops streaming must not stall discovery.
	candidates, err := engine.DiscoverFromURL(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestDiscoverByKeyword_SuggestionsResolvedThroughDiscovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	provider := mock.NewMockProvider(ctrl)
	provider.EXPECT().Suggest(gomock.Any(), "space news", gomock.Any()).Return([]suggest.Suggestion{
		{Title: "Orbital Report", URL: "https://orbital.example.com/feed.xml"},
		{Title: "Dead Link", URL: "https://gone.example.com/feed.xml"},
	}, nil)

	engine := newEngine(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host == "orbital.example.com" {
			return textResponse(req, http.StatusOK, "application/rss+xml", recentRSS("")), nil
		}
		return nil, errors.New("connection refused")
	}, provider)

	candidates, err := engine.DiscoverByKeyword(context.Background(), "space news", 10, "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, model.MethodSuggestion, candidates[0].Method)
	// Discovered title was empty, so the suggestion's title is used.
	require.Equal(t, "Orbital Report", candidates[0].Title)
	require.Equal(t, "https://orbital.example.com/feed.xml", candidates[0].FeedURL)
}
