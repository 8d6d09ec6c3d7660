package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/scrubline/backend/internal/models"
)

func newTestVideo(createdAt time.Time) models.Video {
	id := uuid.NewString()
	return models.Video{
		ID:    id,
		Title: "clip.mp4",
		Source: models.SourceLocation{
			Backend:     models.StorageLocal,
			Key:         "videos/" + id + "/source.mp4",
			URL:         "/videos/stream/" + id,
			Version:     createdAt.Unix(),
			Size:        1024,
			ContentType: "video/mp4",
		},
		Duration:  10.4,
		Format:    models.FormatInfo{Name: "mov,mp4,m4a,3gp,3g2,mj2", LongName: "QuickTime / MOV", BitRate: 1200000},
		CreatedAt: createdAt.UTC().Truncate(time.Millisecond),
	}
}

// runVideoRepositoryContract exercises behaviour every VideoRepository must share.
func runVideoRepositoryContract(t *testing.T, repo VideoRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	older := newTestVideo(base)
	newer := newTestVideo(base.Add(5 * time.Minute))

	for _, v := range []models.Video{older, newer} {
		if err := repo.Create(ctx, v); err != nil {
			t.Fatalf("create video %s: %v", v.ID, err)
		}
	}

	if err := repo.Create(ctx, older); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict creating duplicate id, got %v", err)
	}

	fetched, err := repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("get video: %v", err)
	}
	if fetched.Title != older.Title || fetched.Source != older.Source || fetched.Duration != older.Duration || fetched.Format != older.Format {
		t.Fatalf("unexpected video fetched: %+v", fetched)
	}
	if !fetched.CreatedAt.Equal(older.CreatedAt) {
		t.Fatalf("createdAt changed: %v != %v", fetched.CreatedAt, older.CreatedAt)
	}
	if fetched.ThumbnailPattern != "" || fetched.ThumbnailCount != 0 || fetched.ThumbnailKind != models.ThumbnailKindNone {
		t.Fatalf("new records should carry no previews: %+v", fetched)
	}

	if _, err := repo.Get(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	pattern := "/thumbnails/" + older.ID + "/thumb-%d.jpg"
	if err := repo.UpdateThumbnails(ctx, older.ID, pattern, models.ThumbnailKindIndex, 10); err != nil {
		t.Fatalf("update thumbnails: %v", err)
	}
	fetched, err = repo.Get(ctx, older.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if fetched.ThumbnailPattern != pattern || fetched.ThumbnailKind != models.ThumbnailKindIndex || fetched.ThumbnailCount != 10 {
		t.Fatalf("thumbnail fields not persisted: %+v", fetched)
	}
	if err := repo.UpdateThumbnails(ctx, uuid.NewString(), pattern, models.ThumbnailKindIndex, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating unknown id, got %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list videos: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}

	if err := repo.Delete(ctx, older.ID); err != nil {
		t.Fatalf("delete video: %v", err)
	}
	if err := repo.Delete(ctx, older.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if _, err := repo.Get(ctx, older.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
