package client

import (
	"errors"
	"sync"

	"github.com/scrubline/backend/internal/models"
	"github.com/scrubline/backend/internal/preview"
)

// Phase is the player state shown to the user.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseUploading Phase = "uploading"
	PhaseSelected  Phase = "selected"
)

// ErrUploadInProgress is returned when a second upload starts before the
// first one settles.
var ErrUploadInProgress = errors.New("client: upload already in progress")

// Session holds the library, the selected video and the upload flag for one
// viewer. Transitions only happen through its methods.
type Session struct {
	mu       sync.RWMutex
	phase    Phase
	previous Phase
	videos   []models.Video
	selected models.Video
}

// NewSession returns an idle session with an empty library.
func NewSession() *Session {
	return &Session{phase: PhaseIdle}
}

// Phase returns the current state.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Videos returns a copy of the library.
func (s *Session) Videos() []models.Video {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Video(nil), s.videos...)
}

// SetVideos replaces the library. A selected video that vanished from the
// server is deselected.
func (s *Session) SetVideos(videos []models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append([]models.Video(nil), videos...)
	if s.selected.ID != "" && !containsVideo(s.videos, s.selected.ID) {
		s.deselectLocked()
	}
}

// Selected returns the selected video, if any.
func (s *Session) Selected() (models.Video, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected.ID != ""
}

// BeginUpload moves the session to uploading.
func (s *Session) BeginUpload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		return ErrUploadInProgress
	}
	s.previous = s.phase
	s.phase = PhaseUploading
	return nil
}

// FinishUpload settles an upload. On success the new video joins the front of
// the library and becomes selected; on failure the prior state is restored.
func (s *Session) FinishUpload(video models.Video, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUploading {
		return
	}
	if err != nil {
		s.phase = s.previous
		return
	}
	if !containsVideo(s.videos, video.ID) {
		s.videos = append([]models.Video{video}, s.videos...)
	}
	s.selected = video
	s.phase = PhaseSelected
}

// Select makes video the active one. During an upload the choice is held
// and takes effect if the upload fails.
func (s *Session) Select(video models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseUploading {
		s.previous = PhaseSelected
		s.selected = video
		return
	}
	s.selected = video
	s.phase = PhaseSelected
}

// Removed drops a deleted video from the library and deselects it if needed.
func (s *Session) Removed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.videos[:0]
	for _, v := range s.videos {
		if v.ID != id {
			kept = append(kept, v)
		}
	}
	s.videos = kept
	if s.selected.ID == id {
		s.deselectLocked()
	}
}

// Hover resolves the preview frame under the pointer for the selected video.
func (s *Session) Hover(pointerX, timelineWidth float64) (preview.HoverFrame, bool) {
	video, ok := s.Selected()
	if !ok {
		return preview.HoverFrame{}, false
	}
	return preview.ResolveForVideo(pointerX, timelineWidth, video), true
}

// Poster returns the frame shown on a library card: the middle of the video.
func Poster(video models.Video) preview.HoverFrame {
	return preview.ResolveForVideo(1, 2, video)
}

func (s *Session) deselectLocked() {
	s.selected = models.Video{}
	switch s.phase {
	case PhaseSelected:
		s.phase = PhaseIdle
	case PhaseUploading:
		s.previous = PhaseIdle
	}
}

func containsVideo(videos []models.Video, id string) bool {
	for _, v := range videos {
		if v.ID == id {
			return true
		}
	}
	return false
}
