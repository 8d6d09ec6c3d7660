package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/scrubline/backend/internal/media"
	"github.com/scrubline/backend/internal/metrics"
)

// Renderer writes preview frames for a source video into outputDir.
type Renderer interface {
	Generate(ctx context.Context, source, outputDir string, opts media.Options) (int, error)
}

// PoolConfig controls the concurrency characteristics of the thumbnail pool.
type PoolConfig struct {
	QueueSize int
	Workers   int
}

// ErrPoolClosed is returned for work submitted after Shutdown.
var ErrPoolClosed = errors.New("thumbnail pool closed")

// ThumbnailPool bounds how many ffmpeg processes run at once. It satisfies
// Renderer, so callers block on a queued render exactly as they would on a
// direct one.
type ThumbnailPool struct {
	renderer Renderer
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan renderJob
	wg     sync.WaitGroup
	once   sync.Once
}

type renderJob struct {
	ctx       context.Context
	source    string
	outputDir string
	opts      media.Options
	done      chan renderResult
}

type renderResult struct {
	frames int
	err    error
}

// NewThumbnailPool starts cfg.Workers goroutines rendering with renderer.
func NewThumbnailPool(renderer Renderer, cfg PoolConfig, logger *slog.Logger) *ThumbnailPool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &ThumbnailPool{
		renderer: renderer,
		logger:   logger,
		jobs:     make(chan renderJob, cfg.QueueSize),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

// Generate queues a render and waits for a worker to finish it.
func (p *ThumbnailPool) Generate(ctx context.Context, source, outputDir string, opts media.Options) (int, error) {
	job := renderJob{
		ctx:       ctx,
		source:    source,
		outputDir: outputDir,
		opts:      opts,
		done:      make(chan renderResult, 1),
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return 0, ErrPoolClosed
	}
	select {
	case <-ctx.Done():
		p.mu.RUnlock()
		return 0, ctx.Err()
	case p.jobs <- job:
		metrics.ThumbnailQueueDepth.Inc()
	}
	p.mu.RUnlock()

	select {
	case <-ctx.Done():
		// the worker sees the same context and abandons the render
		return 0, ctx.Err()
	case res := <-job.done:
		return res.frames, res.err
	}
}

// Shutdown stops accepting work and waits for queued renders to drain.
func (p *ThumbnailPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *ThumbnailPool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		metrics.ThumbnailQueueDepth.Dec()
		job.done <- p.handleJob(job)
	}
}

func (p *ThumbnailPool) handleJob(job renderJob) renderResult {
	if err := job.ctx.Err(); err != nil {
		return renderResult{err: err}
	}
	if p.renderer == nil {
		p.logger.Error("thumbnail pool missing renderer")
		return renderResult{err: errors.New("thumbnail pool: renderer not configured")}
	}

	frames, err := p.renderer.Generate(job.ctx, job.source, job.outputDir, job.opts)
	if err != nil {
		return renderResult{frames: frames, err: err}
	}
	metrics.ThumbnailsGenerated.Add(float64(frames))
	return renderResult{frames: frames}
}
