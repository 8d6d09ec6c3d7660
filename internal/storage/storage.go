package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/scrubline/backend/internal/media"
	"github.com/scrubline/backend/internal/models"
)

var (
	// ErrNotFound indicates the requested key holds no object.
	ErrNotFound = errors.New("stored object not found")
	// ErrStorageFailure wraps write, upload and delete errors.
	ErrStorageFailure = errors.New("storage failure")
)

// Object describes a stored blob.
type Object struct {
	Key         string
	Size        int64
	ContentType string
}

// Backend persists source videos and preview frames and exposes them at URLs.
type Backend interface {
	Variant() models.StorageVariant
	// Store writes r under key and returns its delivery URL.
	Store(ctx context.Context, key string, r io.Reader) (string, error)
	// Delete removes key, or every object below it when key is a prefix.
	Delete(ctx context.Context, key string) error
	ResolveURL(key string) string
	Stat(ctx context.Context, key string) (Object, error)
	// OpenRange returns a reader over length bytes starting at offset.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
}

// SourceKey is where the master video of videoID lives.
func SourceKey(videoID, ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("videos", videoID, "source"+ext)
}

// ThumbnailPrefix is the key prefix holding every rendered frame of videoID.
func ThumbnailPrefix(videoID string) string {
	return path.Join("thumbnails", videoID)
}

// ThumbnailKey is the key of the 1-based frame index of videoID.
func ThumbnailKey(videoID string, index int) string {
	return path.Join(ThumbnailPrefix(videoID), media.ThumbnailName(index))
}

func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(path.Clean("/"+strings.TrimSpace(key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("%w: empty key", ErrStorageFailure)
	}
	return key, nil
}
