package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ThumbnailExt is the extension of every rendered preview frame.
const ThumbnailExt = "jpg"

// ThumbnailName returns the file name of the 1-based preview frame index.
func ThumbnailName(index int) string {
	return fmt.Sprintf("thumb-%d.%s", index, ThumbnailExt)
}

// Options tunes one Generate call.
type Options struct {
	// Interval between frames; whole seconds, default one second.
	Interval time.Duration
	// MaxFrames caps the output; zero means no cap.
	MaxFrames int
}

// Generator renders scrub-preview frames using the ffmpeg CLI tool.
type Generator struct {
	Binary  string
	Run     CommandRunner
	Width   int
	Quality int
}

// NewGenerator constructs a Generator that shells out to ffmpeg.
func NewGenerator(binary string, width, quality int) *Generator {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if width <= 0 {
		width = 300
	}
	if quality < 2 || quality > 31 {
		quality = 10
	}
	return &Generator{
		Binary:  binary,
		Run:     defaultCommandRunner,
		Width:   width,
		Quality: quality,
	}
}

// Generate writes thumb-1.jpg, thumb-2.jpg, ... into outputDir, frame i showing
// elapsed time (i-1)*Interval. It returns the number of contiguous frames on disk.
// Partial output is left in place for the caller to remove.
func (g *Generator) Generate(ctx context.Context, source, outputDir string, opts Options) (int, error) {
	if g == nil {
		return 0, fmt.Errorf("%w: generator not configured", ErrTranscodeFailed)
	}
	if g.Run == nil {
		g.Run = defaultCommandRunner
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = time.Second
	}
	if interval%time.Second != 0 {
		return 0, fmt.Errorf("%w: interval %v is not a whole number of seconds", ErrTranscodeFailed, interval)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create output dir: %v", ErrTranscodeFailed, err)
	}

	filter := fmt.Sprintf("fps=1/%d,scale=%d:-2", int(interval/time.Second), g.Width)
	args := []string{
		"-nostdin",
		"-v", "error",
		"-y",
		"-i", source,
		"-vf", filter,
		"-q:v", strconv.Itoa(g.Quality),
		"-start_number", "1",
	}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args, filepath.Join(outputDir, "thumb-%d."+ThumbnailExt))

	if _, err := g.Run(ctx, g.Binary, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("%w: %w", ErrTranscodeFailed, ctxErr)
		}
		return 0, fmt.Errorf("%w: ffmpeg: %v", ErrTranscodeFailed, err)
	}

	count, err := CountFrames(outputDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	if opts.MaxFrames > 0 && count > opts.MaxFrames {
		count = opts.MaxFrames
	}
	return count, nil
}

// CountFrames returns N where thumb-1..thumb-N all exist in dir.
func CountFrames(dir string) (int, error) {
	n := 0
	for {
		_, err := os.Stat(filepath.Join(dir, ThumbnailName(n+1)))
		if errors.Is(err, os.ErrNotExist) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("stat frame %d: %w", n+1, err)
		}
		n++
	}
}
