package repositories

import (
	"context"
	"errors"

	"github.com/scrubline/backend/internal/models"
)

var (
	// ErrNotFound indicates no video exists with the requested id.
	ErrNotFound = errors.New("video not found")
	// ErrConflict indicates a video with the same id was already recorded.
	ErrConflict = errors.New("video already exists")
)

// VideoRepository exposes data access for uploaded videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	Get(ctx context.Context, id string) (models.Video, error)
	// List returns every video, newest first.
	List(ctx context.Context) ([]models.Video, error)
	// UpdateThumbnails sets the preview fields of an existing record.
	UpdateThumbnails(ctx context.Context, id, pattern string, kind models.ThumbnailKind, count int) error
	Delete(ctx context.Context, id string) error
}

// videoColumns is shared by every dialect so rows scan in one order.
const videoColumns = `id, title, storage_backend, source_key, source_url, source_version, source_size,
        content_type, duration, format_name, format_long_name, bit_rate,
        thumbnail_pattern, thumbnail_kind, thumbnail_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (models.Video, error) {
	var (
		v       models.Video
		backend string
		kind    string
	)
	err := row.Scan(
		&v.ID, &v.Title, &backend, &v.Source.Key, &v.Source.URL, &v.Source.Version, &v.Source.Size,
		&v.Source.ContentType, &v.Duration, &v.Format.Name, &v.Format.LongName, &v.Format.BitRate,
		&v.ThumbnailPattern, &kind, &v.ThumbnailCount, &v.CreatedAt,
	)
	if err != nil {
		return models.Video{}, err
	}
	v.Source.Backend = models.StorageVariant(backend)
	v.ThumbnailKind = models.ThumbnailKind(kind)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func videoArgs(v models.Video) []any {
	return []any{
		v.ID, v.Title, string(v.Source.Backend), v.Source.Key, v.Source.URL, v.Source.Version, v.Source.Size,
		v.Source.ContentType, v.Duration, v.Format.Name, v.Format.LongName, v.Format.BitRate,
		v.ThumbnailPattern, string(v.ThumbnailKind), v.ThumbnailCount, v.CreatedAt.UTC(),
	}
}
