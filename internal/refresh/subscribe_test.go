package refresh_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"estuary/internal/feederr"
	"estuary/internal/model"
	"estuary/internal/refresh"
	"estuary/internal/repository"
)

func newSubscriptions(t *testing.T, h *harness) *refresh.Subscriptions {
	t.Helper()
	settings := repository.NewSettingsRepository(h.conn)
	return refresh.NewSubscriptions(h.feeds, settings, h.engine, 60)
}

func TestSubscribe_CreatesAndRefreshes(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"), item("b"))), nil
	})
	subs := newSubscriptions(t, h)

	feed, result, err := subs.Subscribe(context.Background(), "https://example.com/feed", "", 0)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.NewArticles)
	// Placeholder title resolved from the feed document.
	require.Equal(t, "Upstream Title", feed.Title)
	require.Equal(t, 60, feed.RefreshIntervalMinutes)
}

func TestSubscribe_DuplicateURL(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"))), nil
	})
	subs := newSubscriptions(t, h)

	_, _, err := subs.Subscribe(context.Background(), "https://example.com/feed", "", 0)
	require.NoError(t, err)

	_, _, err = subs.Subscribe(context.Background(), "https://example.com/feed", "", 0)
	require.ErrorIs(t, err, refresh.ErrDuplicateFeed)
}

func TestSubscribe_InvalidURL(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})
	subs := newSubscriptions(t, h)

	_, _, err := subs.Subscribe(context.Background(), "not-a-url", "", 0)
	require.Equal(t, feederr.KindValidation, feederr.KindOf(err))
}

func TestSubscribe_DeadFeedStillCreated(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, "<html>not a feed</html>"), nil
	})
	subs := newSubscriptions(t, h)

	feed, result, err := subs.Subscribe(context.Background(), "https://dead.example.com/feed", "Dead Feed", 0)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, feederr.KindParse, result.ErrorKind)
	require.Equal(t, 1, feed.ErrorCount)
	require.Equal(t, "Dead Feed", feed.Title)
}

func TestSubscribe_SettingsDefaultInterval(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"))), nil
	})
	settings := repository.NewSettingsRepository(h.conn)
	require.NoError(t, settings.Set(context.Background(), refresh.SettingDefaultInterval, "30"))
	subs := refresh.NewSubscriptions(h.feeds, settings, h.engine, 60)

	feed, _, err := subs.Subscribe(context.Background(), "https://example.com/feed", "", 0)
	require.NoError(t, err)
	require.Equal(t, 30, feed.RefreshIntervalMinutes)
}

func TestSubscribe_TypeDetectedFromURL(t *testing.T) {
	h := newHarness(t, func(req *http.Request) (*http.Response, error) {
		return okResponse(req, feedBody(item("a"))), nil
	})
	subs := newSubscriptions(t, h)

	feed, _, err := subs.Subscribe(context.Background(), "https://www.reddit.com/r/golang/.rss", "", 0)
	require.NoError(t, err)
	require.Equal(t, model.TypeReddit, feed.Type)
}
