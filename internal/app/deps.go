package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/scrubline/backend/internal/config"
	"github.com/scrubline/backend/internal/db"
	"github.com/scrubline/backend/internal/handlers"
	"github.com/scrubline/backend/internal/ingest"
	"github.com/scrubline/backend/internal/media"
	"github.com/scrubline/backend/internal/middleware"
	"github.com/scrubline/backend/internal/repositories"
	"github.com/scrubline/backend/internal/storage"
	"github.com/scrubline/backend/internal/streaming"
)

// rateLimitTTL is how long an idle client's limiter is remembered.
const rateLimitTTL = 10 * time.Minute

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The returned cleanup drains the thumbnail pool and closes the
// database; call it after the HTTP server has stopped.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	videos, health, closeRepo, err := openVideoRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	backend, thumbnailDir, err := openStorage(ctx, cfg)
	if err != nil {
		closeRepo()
		return handlers.Dependencies{}, nil, err
	}

	spoolDir := filepath.Join(cfg.DataDir, "spool")
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		closeRepo()
		return handlers.Dependencies{}, nil, fmt.Errorf("create spool dir: %w", err)
	}

	inspector := media.NewInspector(cfg.FFprobePath, cfg.ProbeTimeout)
	generator := media.NewGenerator(cfg.FFmpegPath, cfg.Thumbnails.Width, cfg.Thumbnails.Quality)
	pool := ingest.NewThumbnailPool(generator, ingest.PoolConfig{
		QueueSize: cfg.Thumbnails.Queue,
		Workers:   cfg.Thumbnails.Workers,
	}, logger)
	tracker := ingest.NewTracker(cfg.Ingest.StatusTTL)

	orchestrator := ingest.NewOrchestrator(backend, inspector, pool, videos, tracker, ingest.Options{
		PublicBaseURL:     cfg.PublicBaseURL,
		TransformBaseURL:  cfg.ObjectStore.TransformBaseURL,
		ThumbnailWidth:    cfg.Thumbnails.Width,
		UploadParallelism: cfg.Ingest.UploadParallelism,
		SpoolDir:          spoolDir,
	}, logger)

	deps := handlers.Dependencies{
		Videos:           videos,
		Ingestor:         orchestrator,
		Statuses:         tracker,
		Streamer:         streaming.NewServer(backend),
		UploadLimiter:    middleware.NewIPRateLimiter(cfg.UploadLimit.Requests, cfg.UploadLimit.Window, cfg.UploadLimit.Burst, rateLimitTTL),
		UploadRetryAfter: cfg.UploadLimit.Window,
		MaxUploadBytes:   cfg.MaxUploadBytes,
		ThumbnailDir:     thumbnailDir,
		HealthChecks:     map[string]handlers.HealthChecker{"database": health},
	}

	cleanup := func(ctx context.Context) error {
		err := pool.Shutdown(ctx)
		closeRepo()
		return err
	}
	return deps, cleanup, nil
}

// openVideoRepository picks SQLite for sqlite:// URLs and Postgres otherwise.
func openVideoRepository(ctx context.Context, databaseURL string) (repositories.VideoRepository, handlers.HealthChecker, func(), error) {
	if strings.HasPrefix(databaseURL, repositories.SQLitePrefix) {
		repo, err := repositories.OpenSQLite(ctx, databaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		return repo, repo, func() { _ = repo.Close() }, nil
	}

	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	return repositories.NewPostgresVideoRepository(pool), pool, pool.Close, nil
}

// openStorage returns the configured backend and, for local storage, the
// directory served at /thumbnails/.
func openStorage(ctx context.Context, cfg config.Config) (storage.Backend, string, error) {
	switch cfg.StorageBackend {
	case config.BackendLocal:
		local, err := storage.NewLocal(cfg.DataDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, "", err
		}
		return local, local.ThumbnailDir(), nil
	case config.BackendRemote:
		remote, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, "", err
		}
		return remote, "", nil
	default:
		return nil, "", errors.New("unknown storage backend " + cfg.StorageBackend)
	}
}
