package parser

import (
	"estuary/internal/model"
	"estuary/internal/platform"
)

// DetectType resolves a feed's type. Hostname heuristics win over the
// podcast signal, so a YouTube feed that happens to carry enclosures
// still classifies as youtube; anything unresolved defaults to rss.
func DetectType(feedURL string, result *Result) model.FeedType {
	switch platform.Classify(feedURL) {
	case platform.YouTube:
		return model.TypeYouTube
	case platform.Reddit:
		return model.TypeReddit
	}
	if result != nil && result.IsPodcast {
		return model.TypePodcast
	}
	return model.TypeRSS
}
