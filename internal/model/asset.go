package model

import "time"

// CachedAsset is a locally persisted icon or thumbnail binary, addressed
// by the id of the entity that owns it.
type CachedAsset struct {
	OwnerID   int64
	FileRef   string
	MimeType  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
