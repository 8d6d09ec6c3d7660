package handlers

import (
	"context"
	"net/http"

	"github.com/scrubline/backend/internal/ingest"
	"github.com/scrubline/backend/internal/models"
)

// VideoStore captures the read side of video persistence.
type VideoStore interface {
	Get(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context) ([]models.Video, error)
}

// VideoIngestor runs uploads through the pipeline and releases removed videos.
type VideoIngestor interface {
	Ingest(ctx context.Context, upload ingest.Upload) (models.Video, error)
	Remove(ctx context.Context, video models.Video) error
}

// IngestionStatuses reports progress of recent ingestion runs.
type IngestionStatuses interface {
	Get(uploadID string) (ingest.Status, bool)
}

// VideoStreamer writes a stored video honouring Range requests.
type VideoStreamer interface {
	ServeVideo(w http.ResponseWriter, r *http.Request, key, contentType string)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
