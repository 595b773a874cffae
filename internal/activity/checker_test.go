package activity_test

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

	"estuary/internal/activity"
	"estuary/internal/model"
	"estuary/internal/network"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func feedWithPubDate(t time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>Probe Feed</title>
<link>https://example.com</link>
<description>Desc</description>
<item>
  <title>Latest</title>
  <link>https://example.com/latest</link>
  <pubDate>%s</pubDate>
</item>
</channel>
</rss>`, t.Format(time.RFC1123Z))
}

func clientReturning(body string, status int) *network.ClientFactory {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
				Request:    req,
			}, nil
		}),
	}
	return network.NewClientFactoryForTest(client)
}

func TestCheck_RecentPostIsActive(t *testing.T) {
	checker := activity.NewChecker(clientReturning(feedWithPubDate(time.Now().Add(-24*time.Hour)), http.StatusOK))

	result := checker.Check(context.Background(), "https://example.com/feed", model.TypeRSS)
	require.True(t, result.IsActive)
	require.NotNil(t, result.LastPostDate)
}

func TestCheck_StalePostIsInactive(t *testing.T) {
	checker := activity.NewChecker(clientReturning(feedWithPubDate(time.Now().Add(-120*24*time.Hour)), http.StatusOK))

	result := checker.Check(context.Background(), "https://example.com/feed", model.TypeRSS)
	require.False(t, result.IsActive)
	require.NotNil(t, result.LastPostDate)
}

func TestCheck_ProbeErrorFailsOpen(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		}),
	}
	checker := activity.NewChecker(network.NewClientFactoryForTest(client))

	result := checker.Check(context.Background(), "https://example.com/feed", model.TypeRSS)
	require.True(t, result.IsActive)
	require.Nil(t, result.LastPostDate)
}

func TestCheck_HTTPErrorFailsOpen(t *testing.T) {
	checker := activity.NewChecker(clientReturning("rate limited", http.StatusTooManyRequests))

	result := checker.Check(context.Background(), "golang", model.TypeReddit)
	require.True(t, result.IsActive)
}

func TestCheck_RedditRecentPost(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour).Unix()
	body := fmt.Sprintf(`{"data":{"children":[{"data":{"created_utc":%d}}]}}`, created)
	checker := activity.NewChecker(clientReturning(body, http.StatusOK))

	result := checker.Check(context.Background(), "golang", model.TypeReddit)
	require.True(t, result.IsActive)
	require.NotNil(t, result.LastPostDate)
	require.WithinDuration(t, time.Unix(created, 0), *result.LastPostDate, time.Second)
}

func TestCheck_UndatedItemsFailOpen(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>T</title><description>D</description><item><title>No date</title></item></channel></rss>`
	checker := activity.NewChecker(clientReturning(body, http.StatusOK))

	result := checker.Check(context.Background(), "https://example.com/feed", model.TypeRSS)
	require.True(t, result.IsActive)
	require.Nil(t, result.LastPostDate)
}
