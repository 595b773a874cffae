package model

import "time"

// Article is the canonical normalized article. (FeedID, GUID) is unique;
// re-ingesting an already-seen guid is a no-op.
type Article struct {
	ID            int64
	FeedID        int64
	GUID          string
	Title         string
	URL           *string
	Author        *string
	Summary       *string
	Content       *string
	EnclosureURL  *string
	EnclosureType *string
	ThumbnailURL  *string
	// ReadableContent caches the on-demand readability extraction.
	ReadableContent *string
	PublishedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
