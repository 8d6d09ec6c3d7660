package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/scrubline/backend/internal/ingest"
	"github.com/scrubline/backend/internal/logging"
	"github.com/scrubline/backend/internal/repositories"
)

const (
	uploadField = "video"
	titleField  = "title"
	// multipartMemory is how much of a multipart body is held in memory before
	// net/http spills it to disk.
	multipartMemory = 32 << 20

	// UploadIDHeader carries an optional client-chosen UUID under which the
	// ingestion can be polled while the upload is still running.
	UploadIDHeader = "X-Upload-ID"

	msgNoVideoFile = "No video file provided"
)

var errUploadMissing = errors.New("no video file provided")

// VideoHandler provides endpoints for uploading, listing, streaming and
// deleting videos.
type VideoHandler struct {
	Videos         VideoStore
	Ingestor       VideoIngestor
	Statuses       IngestionStatuses
	Streamer       VideoStreamer
	MaxUploadBytes int64
}

// Upload handles POST /videos/upload.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Ingestor == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "Video ingestion unavailable")
		return
	}

	if h.MaxUploadBytes > 0 {
		if r.ContentLength > h.MaxUploadBytes {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "Video file too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "Video file too large")
			return
		}
		logging.FromContext(ctx).Debug("parse upload", "error", errors.Join(errUploadMissing, err))
		respondError(ctx, w, http.StatusBadRequest, msgNoVideoFile)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logging.FromContext(ctx).Warn("remove multipart temp files", "error", err)
		}
	}()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		logging.FromContext(ctx).Debug("read upload", "error", errors.Join(errUploadMissing, err))
		respondError(ctx, w, http.StatusBadRequest, msgNoVideoFile)
		return
	}
	defer file.Close()

	video, err := h.Ingestor.Ingest(ctx, ingest.Upload{
		ID:          r.Header.Get(UploadIDHeader),
		Filename:    header.Filename,
		Title:       strings.TrimSpace(r.FormValue(titleField)),
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	switch {
	case errors.Is(err, ingest.ErrInvalidUploadID):
		respondError(ctx, w, http.StatusBadRequest, "Upload ID must be a UUID")
		return
	case errors.Is(err, ingest.ErrUploadInFlight):
		respondError(ctx, w, http.StatusConflict, "Upload already in progress")
		return
	case err != nil:
		respondError(ctx, w, http.StatusInternalServerError, "Processing failed: "+err.Error())
		return
	}

	respondJSON(ctx, w, http.StatusOK, video)
}

// List handles GET /videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videos, err := h.Videos.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list videos", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to fetch videos")
		return
	}
	respondJSON(ctx, w, http.StatusOK, videos)
}

// Get handles GET /videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	video, err := h.Videos.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, video)
}

// Delete handles DELETE /videos/{id}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Ingestor == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "Video ingestion unavailable")
		return
	}
	video, err := h.Videos.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}

	if err := h.Ingestor.Remove(ctx, video); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "Video not found")
			return
		}
		logging.FromContext(ctx).Error("delete video", "video_id", video.ID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "Failed to delete video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, messageResponse{Message: "Video deleted successfully"})
}

// Stream handles GET /videos/stream/{id}.
func (h VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	video, err := h.Videos.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	h.Streamer.ServeVideo(w, r, video.Source.Key, video.Source.ContentType)
}

// Ingestion handles GET /ingestion/{id}.
func (h VideoHandler) Ingestion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Statuses == nil {
		respondError(ctx, w, http.StatusNotFound, "Ingestion not found")
		return
	}
	status, ok := h.Statuses.Get(r.PathValue("id"))
	if !ok {
		respondError(ctx, w, http.StatusNotFound, "Ingestion not found")
		return
	}
	respondJSON(ctx, w, http.StatusOK, status)
}

func (h VideoHandler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "Video not found")
		return
	}
	logging.FromContext(ctx).Error("fetch video", "video_id", r.PathValue("id"), "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "Failed to fetch video")
}
