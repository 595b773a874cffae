package model

import "time"

// FeedType is the platform a subscription belongs to.
type FeedType string

const (
	TypeRSS     FeedType = "rss"
	TypeYouTube FeedType = "youtube"
	TypeReddit  FeedType = "reddit"
	TypePodcast FeedType = "podcast"
)

// ValidFeedType reports whether t is one of the known feed types.
func ValidFeedType(t FeedType) bool {
	switch t {
	case TypeRSS, TypeYouTube, TypeReddit, TypePodcast:
		return true
	}
	return false
}

// Feed is a persisted subscription. URL is unique. A feed is actively
// refreshed while PausedAt and DeletedAt are both nil.
type Feed struct {
	ID                     int64
	URL                    string
	Type                   FeedType
	Title                  string
	SiteURL                *string
	Description            *string
	IconURL                *string
	IconCacheRef           *string
	ETag                   *string
	LastModified           *string
	RefreshIntervalMinutes int
	LastFetchedAt          *time.Time
	NextFetchAt            *time.Time
	ErrorCount             int
	LastError              *string
	LastErrorAt            *time.Time
	PausedAt               *time.Time
	DeletedAt              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Active reports whether the feed participates in scheduled refreshes.
func (f Feed) Active() bool {
	return f.PausedAt == nil && f.DeletedAt == nil
}
