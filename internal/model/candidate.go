package model

import "time"

// Discovery methods, recorded on candidates for debugging and ranking.
const (
	MethodDirect       = "direct"
	MethodLinkTag      = "link_tag"
	MethodWellKnown    = "well_known"
	MethodYouTube      = "youtube"
	MethodReddit       = "reddit"
	MethodDirectory    = "directory"
	MethodPodcastIndex = "podcast_directory"
	MethodSuggestion   = "ai_suggestion"
)

// DiscoveredCandidate is an ephemeral discovery result. IsActive is nil
// until the activity checker has annotated the candidate.
type DiscoveredCandidate struct {
	Type         FeedType   `json:"type"`
	FeedURL      string     `json:"feedUrl"`
	SiteURL      string     `json:"siteUrl,omitempty"`
	IconURL      string     `json:"iconUrl,omitempty"`
	Title        string     `json:"title,omitempty"`
	Confidence   float64    `json:"confidence"`
	Method       string     `json:"method"`
	IsActive     *bool      `json:"isActive,omitempty"`
	LastPostDate *time.Time `json:"lastPostDate,omitempty"`
}
