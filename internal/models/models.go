package models

import "time"

// StorageVariant tags which storage backend owns a video's bytes.
type StorageVariant string

const (
	StorageLocal  StorageVariant = "local"
	StorageRemote StorageVariant = "remote"
)

// ThumbnailKind declares what the placeholder in a thumbnail pattern stands for.
type ThumbnailKind string

const (
	// ThumbnailKindNone marks a record without previews.
	ThumbnailKindNone ThumbnailKind = ""
	// ThumbnailKindIndex patterns take a 1-based frame index.
	ThumbnailKindIndex ThumbnailKind = "index"
	// ThumbnailKindSeconds patterns take elapsed whole seconds.
	ThumbnailKindSeconds ThumbnailKind = "seconds"
)

// SourceLocation references the stored master video.
type SourceLocation struct {
	Backend     StorageVariant `json:"backend"`
	Key         string         `json:"key"`
	URL         string         `json:"url"`
	Version     int64          `json:"version,omitempty"`
	Size        int64          `json:"size"`
	ContentType string         `json:"contentType"`
}

// FormatInfo is the container information reported by the media inspector.
type FormatInfo struct {
	Name     string `json:"formatName,omitempty"`
	LongName string `json:"formatLongName,omitempty"`
	BitRate  int64  `json:"bitRate,omitempty"`
}

// Video is the persisted record for one uploaded video.
type Video struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Source           SourceLocation `json:"sourceLocation"`
	Duration         float64        `json:"duration"`
	Format           FormatInfo     `json:"format"`
	ThumbnailPattern string         `json:"thumbnailPattern"`
	ThumbnailKind    ThumbnailKind  `json:"thumbnailKind"`
	ThumbnailCount   int            `json:"thumbnailCount"`
	CreatedAt        time.Time      `json:"createdAt"`
}

// HasPreviews reports whether the record carries an addressable thumbnail set.
func (v Video) HasPreviews() bool {
	return v.ThumbnailPattern != "" && v.ThumbnailCount > 0
}
