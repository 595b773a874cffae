package platform_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"estuary/internal/platform"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want platform.Platform
	}{
		{"https://www.youtube.com/@somecreator", platform.YouTube},
		{"https://youtube.com/channel/UC1234", platform.YouTube},
		{"https://m.youtube.com/watch?v=abc", platform.YouTube},
		{"https://youtu.be/dQw4w9WgXcQ", platform.YouTube},
		{"https://music.youtube.com/channel/UC1234", platform.YouTube},
		{"https://www.reddit.com/r/golang", platform.Reddit},
		{"https://old.reddit.com/r/golang", platform.Reddit},
		{"https://redd.it/abc123", platform.Reddit},
		{"https://example.com/feed", platform.Generic},
		{"https://notyoutube.com/channel", platform.Generic},
		{"https://myreddit.community", platform.Generic},
		{"not a url at all", platform.Generic},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, platform.Classify(tt.url), "url %q", tt.url)
	}
}
