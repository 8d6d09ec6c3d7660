package client

import (
	"errors"
	"testing"

	"github.com/scrubline/backend/internal/models"
)

func previewVideo(id string) models.Video {
	return models.Video{
		ID:               id,
		Duration:         10,
		ThumbnailPattern: "/thumbnails/" + id + "/thumb-%d.jpg",
		ThumbnailKind:    models.ThumbnailKindIndex,
		ThumbnailCount:   10,
	}
}

func TestSessionUploadSelectsNewVideo(t *testing.T) {
	s := NewSession()
	s.SetVideos([]models.Video{previewVideo("old")})

	if err := s.BeginUpload(); err != nil {
		t.Fatalf("BeginUpload() error = %v", err)
	}
	if s.Phase() != PhaseUploading {
		t.Fatalf("expected uploading got %s", s.Phase())
	}
	if err := s.BeginUpload(); !errors.Is(err, ErrUploadInProgress) {
		t.Fatalf("expected ErrUploadInProgress got %v", err)
	}

	s.FinishUpload(previewVideo("new"), nil)
	if s.Phase() != PhaseSelected {
		t.Fatalf("expected selected got %s", s.Phase())
	}
	if v, ok := s.Selected(); !ok || v.ID != "new" {
		t.Fatalf("unexpected selection %+v", v)
	}
	if videos := s.Videos(); len(videos) != 2 || videos[0].ID != "new" {
		t.Fatalf("new video should lead the library, got %+v", videos)
	}
}

func TestSessionFailedUploadRestoresState(t *testing.T) {
	s := NewSession()
	_ = s.BeginUpload()
	s.FinishUpload(models.Video{}, errors.New("Processing failed"))
	if s.Phase() != PhaseIdle {
		t.Fatalf("expected idle got %s", s.Phase())
	}

	s.Select(previewVideo("a"))
	_ = s.BeginUpload()
	s.FinishUpload(models.Video{}, errors.New("boom"))
	if s.Phase() != PhaseSelected {
		t.Fatalf("expected selected got %s", s.Phase())
	}
}

func TestSessionRemovedDeselects(t *testing.T) {
	s := NewSession()
	s.SetVideos([]models.Video{previewVideo("a"), previewVideo("b")})
	s.Select(previewVideo("a"))

	s.Removed("b")
	if s.Phase() != PhaseSelected {
		t.Fatal("removing another video keeps the selection")
	}
	s.Removed("a")
	if s.Phase() != PhaseIdle {
		t.Fatalf("expected idle got %s", s.Phase())
	}
	if _, ok := s.Selected(); ok {
		t.Fatal("selection should be cleared")
	}
	if len(s.Videos()) != 0 {
		t.Fatalf("library should be empty, got %+v", s.Videos())
	}
}

func TestSessionHover(t *testing.T) {
	s := NewSession()
	if _, ok := s.Hover(10, 100); ok {
		t.Fatal("hover without a selection should report nothing")
	}

	s.Select(previewVideo("a"))
	frame, ok := s.Hover(55, 100)
	if !ok || !frame.Available {
		t.Fatalf("expected a frame got %+v", frame)
	}
	if frame.Index != 6 || frame.ThumbnailURL != "/thumbnails/a/thumb-6.jpg" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestPoster(t *testing.T) {
	frame := Poster(previewVideo("a"))
	if frame.ThumbnailURL != "/thumbnails/a/thumb-6.jpg" {
		t.Fatalf("unexpected poster %q", frame.ThumbnailURL)
	}
	if Poster(models.Video{ID: "x", Duration: 3}).Available {
		t.Fatal("video without previews has no poster")
	}
}
