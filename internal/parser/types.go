package parser

import "time"

// Enclosure is a media attachment on a raw feed entry.
type Enclosure struct {
	URL    string
	Type   string
	Length string
}

// RawArticle is a parsed feed entry before normalization. Ephemeral.
type RawArticle struct {
	GUID       string
	Title      string
	Link       string
	Author     string
	Summary    string
	Content    string
	Published  *time.Time
	Enclosures []Enclosure
	Image      string
	Thumbnail  string
}

// Result is the outcome of parsing one feed document.
type Result struct {
	Title       string
	Description string
	SiteURL     string
	IconURL     string
	Articles    []RawArticle
	IsPodcast   bool

	// Conditional GET plumbing.
	NotModified  bool
	ETag         string
	LastModified string
}

// Options controls a single Parse call.
type Options struct {
	// SkipIconFetch skips platform icon lookups when a valid icon is
	// already cached, for speed. Feed-level images are still used.
	SkipIconFetch bool
	ETag          string
	LastModified  string
}
