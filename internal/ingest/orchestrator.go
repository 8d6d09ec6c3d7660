// Package ingest runs uploaded videos through inspection, storage, preview
// rendering and persistence, undoing partial work when a run cannot finish.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/scrubline/backend/internal/logging"
	"github.com/scrubline/backend/internal/media"
	"github.com/scrubline/backend/internal/metrics"
	"github.com/scrubline/backend/internal/models"
	"github.com/scrubline/backend/internal/preview"
	"github.com/scrubline/backend/internal/storage"
)

// Stage names a step of an ingestion run.
type Stage string

const (
	StageReceived    Stage = "received"
	StageInspected   Stage = "inspected"
	StageStored      Stage = "stored"
	StageThumbnailed Stage = "thumbnailed"
	StagePersisted   Stage = "persisted"
)

// StageError reports the stage a run was moving into when it failed.
type StageError struct {
	Stage   Stage
	VideoID string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s: %s: %v", e.VideoID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ErrInvalidUploadID is returned when a caller-chosen upload id is not a UUID.
var ErrInvalidUploadID = errors.New("upload id must be a UUID")

// Upload is one incoming video.
type Upload struct {
	// ID is an optional caller-chosen UUID the run's progress is tracked
	// under, so it can be polled before Ingest returns. It defaults to the
	// video id.
	ID          string
	Filename    string
	Title       string
	ContentType string
	Body        io.Reader
}

// Inspector extracts metadata from a file on local disk.
type Inspector interface {
	Inspect(ctx context.Context, path string) (media.Probe, error)
}

// Records is the part of the video repository ingestion writes to.
type Records interface {
	Create(ctx context.Context, video models.Video) error
	UpdateThumbnails(ctx context.Context, id, pattern string, kind models.ThumbnailKind, count int) error
	Delete(ctx context.Context, id string) error
}

// objectKeyer is implemented by backends that namespace keys, giving the id
// the CDN knows an asset by.
type objectKeyer interface {
	ObjectKey(key string) string
}

// Options tunes an Orchestrator.
type Options struct {
	// PublicBaseURL prefixes local thumbnail URLs.
	PublicBaseURL string
	// TransformBaseURL is the delivery root rendering remote frames.
	TransformBaseURL string
	ThumbnailWidth   int
	// UploadParallelism bounds concurrent thumbnail uploads to the backend.
	UploadParallelism int
	// SpoolDir holds uploads and rendered frames while a run is in flight.
	SpoolDir string
	// CompensationTimeout bounds the cleanup after a fatal failure.
	CompensationTimeout time.Duration
}

// Orchestrator owns the lifecycle of an ingestion run.
type Orchestrator struct {
	backend   storage.Backend
	inspector Inspector
	renderer  Renderer
	records   Records
	tracker   *Tracker
	opts      Options
	logger    *slog.Logger

	NowFunc func() time.Time
	NewID   func() string
}

// NewOrchestrator wires an Orchestrator. tracker may be nil.
func NewOrchestrator(backend storage.Backend, inspector Inspector, renderer Renderer, records Records, tracker *Tracker, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.UploadParallelism <= 0 {
		opts.UploadParallelism = 8
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = 30 * time.Second
	}
	if opts.SpoolDir == "" {
		opts.SpoolDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		backend:   backend,
		inspector: inspector,
		renderer:  renderer,
		records:   records,
		tracker:   tracker,
		opts:      opts,
		logger:    logger,
		NowFunc:   time.Now,
		NewID:     uuid.NewString,
	}
}

// Tracker exposes the progress tracker, which may be nil.
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// run carries the state of one ingestion.
type run struct {
	uploadID    string
	video       models.Video
	spoolDir    string
	spoolPath   string
	sourceKey   string
	stored      bool
	recorded    bool
	thumbnailed bool
}

// Ingest takes an upload through every stage. A thumbnail failure degrades the
// run to a record without previews; cancellation after storage, or a failed
// record write, removes everything the run created.
func (o *Orchestrator) Ingest(ctx context.Context, up Upload) (models.Video, error) {
	if o.backend == nil || o.inspector == nil || o.records == nil {
		return models.Video{}, errors.New("ingest: orchestrator missing dependencies")
	}
	if up.Body == nil {
		return models.Video{}, errors.New("ingest: upload has no body")
	}

	id := o.NewID()
	uploadID := id
	if up.ID != "" {
		if err := uuid.Validate(up.ID); err != nil {
			return models.Video{}, fmt.Errorf("%w: %q", ErrInvalidUploadID, up.ID)
		}
		uploadID = up.ID
	}
	if err := o.tracker.Begin(uploadID, id); err != nil {
		return models.Video{}, err
	}

	ctx = logging.WithVideoID(o.withLogger(ctx), id)
	ctx, span := logging.StartSpan(ctx, "ingest")
	logger := logging.FromContext(ctx).With("upload_id", uploadID)

	r := &run{uploadID: uploadID, video: models.Video{ID: id, CreatedAt: o.NowFunc().UTC()}}

	video, err := o.ingest(ctx, r, up)
	if err != nil {
		var stageErr *StageError
		stage := StageReceived
		if errors.As(err, &stageErr) {
			stage = stageErr.Stage
		}
		metrics.IngestFailuresTotal.WithLabelValues(string(stage)).Inc()
		o.tracker.Fail(r.uploadID, stage, err)
		o.compensate(ctx, r)
		logger.Error("ingestion failed", "stage", stage, "error", err)
	}
	o.cleanupSpool(logger, r)
	span.EndWithError(err)
	return video, err
}

func (o *Orchestrator) ingest(ctx context.Context, r *run, up Upload) (models.Video, error) {
	id := r.video.ID

	if err := o.stage(ctx, r, StageReceived, func(ctx context.Context) error {
		return o.spool(ctx, r, up)
	}); err != nil {
		return models.Video{}, &StageError{Stage: StageReceived, VideoID: id, Err: err}
	}

	var probe media.Probe
	if err := o.stage(ctx, r, StageInspected, func(ctx context.Context) error {
		var err error
		probe, err = o.inspector.Inspect(ctx, r.spoolPath)
		return err
	}); err != nil {
		return models.Video{}, &StageError{Stage: StageInspected, VideoID: id, Err: err}
	}

	r.video.Title = titleFor(up)
	r.video.Duration = probe.Duration
	r.video.Format = probe.Format
	r.video.Source.ContentType = contentTypeFor(probe, up)

	if err := o.stage(ctx, r, StageStored, func(ctx context.Context) error {
		return o.store(ctx, r)
	}); err != nil {
		return models.Video{}, &StageError{Stage: StageStored, VideoID: id, Err: err}
	}

	var (
		pattern  preview.Pattern
		count    int
		degraded error
	)
	err := o.stage(ctx, r, StageThumbnailed, func(ctx context.Context) error {
		var err error
		pattern, count, err = o.thumbnails(ctx, r)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Video{}, &StageError{Stage: StageThumbnailed, VideoID: id, Err: err}
		}
		logging.FromContext(ctx).Warn("thumbnail generation failed, keeping video without previews", "error", err)
		metrics.IngestFailuresTotal.WithLabelValues(string(StageThumbnailed)).Inc()
		o.dropThumbnails(ctx, r)
		pattern, count, degraded = preview.Pattern{}, 0, err
	}

	if err := o.stage(ctx, r, StagePersisted, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return o.records.UpdateThumbnails(ctx, id, pattern.Template, pattern.Kind, count)
	}); err != nil {
		return models.Video{}, &StageError{Stage: StagePersisted, VideoID: id, Err: err}
	}

	r.video.ThumbnailPattern = pattern.Template
	r.video.ThumbnailKind = pattern.Kind
	r.video.ThumbnailCount = count

	o.tracker.Complete(r.uploadID, degraded != nil, degraded)
	metrics.IngestCompletedTotal.WithLabelValues(fmt.Sprintf("%t", r.video.HasPreviews())).Inc()
	logging.FromContext(ctx).Info("ingestion completed",
		"duration", r.video.Duration,
		"thumbnail_count", count,
		"degraded", degraded != nil,
	)
	return r.video, nil
}

// stage runs fn inside a span and records its latency.
func (o *Orchestrator) stage(ctx context.Context, r *run, stage Stage, fn func(context.Context) error) error {
	o.tracker.Advance(r.uploadID, stage)
	ctx, span := logging.StartSpan(ctx, "ingest."+string(stage))
	err := fn(ctx)
	metrics.IngestStageDuration.WithLabelValues(string(stage)).Observe(span.Elapsed().Seconds())
	span.EndWithError(err)
	return err
}

func (o *Orchestrator) spool(ctx context.Context, r *run, up Upload) error {
	dir, err := os.MkdirTemp(o.opts.SpoolDir, "ingest-"+r.video.ID+"-")
	if err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	r.spoolDir = dir

	ext := strings.ToLower(filepath.Ext(up.Filename))
	r.spoolPath = filepath.Join(dir, "source"+ext)
	f, err := os.Create(r.spoolPath)
	if err != nil {
		return fmt.Errorf("create spool file: %w", err)
	}
	n, copyErr := io.Copy(f, contextReader{ctx: ctx, r: up.Body})
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("receive upload: %w", copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close spool file: %w", closeErr)
	}
	if n == 0 {
		return fmt.Errorf("%w: empty upload", media.ErrUnreadableMedia)
	}
	r.video.Source.Size = n
	return nil
}

func (o *Orchestrator) store(ctx context.Context, r *run) error {
	r.sourceKey = storage.SourceKey(r.video.ID, filepath.Ext(r.spoolPath))

	f, err := os.Open(r.spoolPath)
	if err != nil {
		return fmt.Errorf("open spool file: %w", err)
	}
	defer f.Close()

	url, err := o.backend.Store(ctx, r.sourceKey, f)
	if err != nil {
		return err
	}
	r.stored = true

	r.video.Source.Backend = o.backend.Variant()
	r.video.Source.Key = r.sourceKey
	r.video.Source.URL = url
	r.video.Source.Version = r.video.CreatedAt.Unix()

	if err := o.records.Create(ctx, r.video); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	r.recorded = true
	return nil
}

// thumbnails renders and stores frames for the local variant, or computes the
// frames the CDN will render on demand for the remote one.
func (o *Orchestrator) thumbnails(ctx context.Context, r *run) (preview.Pattern, int, error) {
	expected := media.ThumbnailCount(r.video.Duration)
	if expected == 0 {
		return preview.Pattern{}, 0, nil
	}

	variant := o.backend.Variant()
	loc := preview.Location{
		VideoID:          r.video.ID,
		BaseURL:          o.opts.PublicBaseURL,
		Version:          r.video.Source.Version,
		TransformBaseURL: o.opts.TransformBaseURL,
		Width:            o.opts.ThumbnailWidth,
	}

	if variant == models.StorageRemote {
		assetKey := r.sourceKey
		if k, ok := o.backend.(objectKeyer); ok {
			assetKey = k.ObjectKey(r.sourceKey)
		}
		loc.AssetID = strings.TrimSuffix(assetKey, path.Ext(assetKey))
		p, err := preview.Build(variant, loc, expected)
		return p, expected, err
	}

	if o.renderer == nil {
		return preview.Pattern{}, 0, fmt.Errorf("%w: no thumbnail renderer configured", media.ErrTranscodeFailed)
	}

	framesDir := filepath.Join(r.spoolDir, "frames")
	rendered, err := o.renderer.Generate(ctx, r.spoolPath, framesDir, media.Options{Interval: time.Second, MaxFrames: expected})
	if err != nil {
		return preview.Pattern{}, 0, err
	}
	count := min(rendered, expected)
	if count == 0 {
		return preview.Pattern{}, 0, fmt.Errorf("%w: no frames rendered", media.ErrTranscodeFailed)
	}

	r.thumbnailed = true
	if err := o.uploadFrames(ctx, r.video.ID, framesDir, count); err != nil {
		return preview.Pattern{}, 0, err
	}

	p, err := preview.Build(variant, loc, count)
	return p, count, err
}

func (o *Orchestrator) uploadFrames(ctx context.Context, videoID, dir string, count int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.UploadParallelism)

	for i := 1; i <= count; i++ {
		g.Go(func() error {
			f, err := os.Open(filepath.Join(dir, media.ThumbnailName(i)))
			if err != nil {
				return fmt.Errorf("open frame %d: %w", i, err)
			}
			defer f.Close()
			if _, err := o.backend.Store(gctx, storage.ThumbnailKey(videoID, i), f); err != nil {
				return fmt.Errorf("store frame %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) dropThumbnails(ctx context.Context, r *run) {
	if !r.thumbnailed {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CompensationTimeout)
	defer cancel()
	if err := o.backend.Delete(cctx, storage.ThumbnailPrefix(r.video.ID)); err != nil {
		logging.FromContext(ctx).Error("remove partial thumbnails", "error", err)
	}
	r.thumbnailed = false
}

// compensate undoes whatever a failed run created. It runs detached from the
// caller's context so an aborted request still cleans up.
func (o *Orchestrator) compensate(ctx context.Context, r *run) {
	if !r.stored && !r.recorded && !r.thumbnailed {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CompensationTimeout)
	defer cancel()
	logger := logging.FromContext(ctx)

	if r.recorded {
		if err := o.records.Delete(cctx, r.video.ID); err != nil {
			logger.Error("compensate: delete record", "error", err)
		}
	}
	if r.thumbnailed {
		if err := o.backend.Delete(cctx, storage.ThumbnailPrefix(r.video.ID)); err != nil {
			logger.Error("compensate: delete thumbnails", "error", err)
		}
	}
	if r.stored {
		if err := o.backend.Delete(cctx, r.sourceKey); err != nil {
			logger.Error("compensate: delete source", "key", r.sourceKey, "error", err)
		}
	}
	logger.Info("compensation finished", "stored", r.stored, "recorded", r.recorded)
}

func (o *Orchestrator) cleanupSpool(logger *slog.Logger, r *run) {
	if r.spoolDir == "" {
		return
	}
	if err := os.RemoveAll(r.spoolDir); err != nil {
		logger.Warn("remove spool dir", "dir", r.spoolDir, "error", err)
	}
}

// Remove deletes the source asset, the derived frames and the record. Assets
// go first so a failed delete leaves a record to retry with.
func (o *Orchestrator) Remove(ctx context.Context, video models.Video) error {
	ctx = logging.WithVideoID(o.withLogger(ctx), video.ID)
	logger := logging.FromContext(ctx)

	if video.Source.Key != "" {
		if err := o.backend.Delete(ctx, video.Source.Key); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
	}
	if err := o.backend.Delete(ctx, storage.ThumbnailPrefix(video.ID)); err != nil {
		return fmt.Errorf("delete thumbnails: %w", err)
	}
	if err := o.records.Delete(ctx, video.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	logger.Info("video removed")
	return nil
}

// withLogger falls back to the orchestrator's logger when the caller did not
// attach one.
func (o *Orchestrator) withLogger(ctx context.Context) context.Context {
	if logging.FromContext(ctx) == slog.Default() {
		return logging.WithLogger(ctx, o.logger)
	}
	return ctx
}

func titleFor(up Upload) string {
	if t := strings.TrimSpace(up.Title); t != "" {
		return t
	}
	if name := filepath.Base(strings.TrimSpace(up.Filename)); name != "" && name != "." && name != "/" {
		return name
	}
	return "Untitled"
}

func contentTypeFor(probe media.Probe, up Upload) string {
	if probe.ContentType != "" {
		return probe.ContentType
	}
	if strings.HasPrefix(up.ContentType, "video/") {
		return up.ContentType
	}
	return "application/octet-stream"
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
