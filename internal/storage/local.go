package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/scrubline/backend/internal/models"
)

// Local implements Backend on the server's filesystem. Objects are plain files
// below root; thumbnails are served by a static file handler mounted at baseURL.
type Local struct {
	root    string
	baseURL string
}

// NewLocal prepares root and returns a filesystem backend. baseURL prefixes the
// URLs handed to clients and may be empty for same-origin paths.
func NewLocal(root, baseURL string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local storage: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("local storage: resolve root: %w", err)
	}
	for _, dir := range []string{"videos", "thumbnails"} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, fmt.Errorf("local storage: create %s: %w", dir, err)
		}
	}
	return &Local{root: abs, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Variant implements Backend.
func (l *Local) Variant() models.StorageVariant { return models.StorageLocal }

// Root returns the directory holding every stored object.
func (l *Local) Root() string { return l.root }

// ThumbnailDir is the directory served at /thumbnails/.
func (l *Local) ThumbnailDir() string { return filepath.Join(l.root, "thumbnails") }

// Store writes r to a temporary file and renames it into place so readers never
// observe a partially written object.
func (l *Local) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: create dir for %s: %v", ErrStorageFailure, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp for %s: %v", ErrStorageFailure, key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write %s: %v", ErrStorageFailure, key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close %s: %v", ErrStorageFailure, key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("%w: rename %s: %v", ErrStorageFailure, key, err)
	}

	return l.ResolveURL(key), nil
}

// Delete removes a file or a whole directory. Missing keys are not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(l.path(key)); err != nil {
		return fmt.Errorf("%w: delete %s: %v", ErrStorageFailure, key, err)
	}
	l.pruneEmptyParents(key)
	return nil
}

// ResolveURL implements Backend. Source videos resolve to the range streaming
// endpoint; everything else to its static path.
func (l *Local) ResolveURL(key string) string {
	key = strings.TrimLeft(key, "/")
	if rest, ok := strings.CutPrefix(key, "videos/"); ok {
		if id, _, found := strings.Cut(rest, "/"); found {
			return l.baseURL + "/videos/stream/" + id
		}
	}
	return l.baseURL + "/" + key
}

// Stat implements Backend.
func (l *Local) Stat(_ context.Context, key string) (Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return Object{}, err
	}
	info, err := os.Stat(l.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Object{}, ErrNotFound
	}
	if err != nil {
		return Object{}, fmt.Errorf("%w: stat %s: %v", ErrStorageFailure, key, err)
	}
	if info.IsDir() {
		return Object{}, ErrNotFound
	}
	return Object{Key: key, Size: info.Size(), ContentType: contentTypeFor(key)}, nil
}

// OpenRange implements Backend with a section reader over the open file, so the
// span is read lazily as the response is written.
func (l *Local) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(l.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageFailure, key, err)
	}
	return sectionReadCloser{SectionReader: io.NewSectionReader(f, offset, length), f: f}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// pruneEmptyParents drops directories left empty by a delete, stopping at the
// top-level videos/ and thumbnails/ directories.
func (l *Local) pruneEmptyParents(key string) {
	for dir := path.Dir(key); strings.Contains(dir, "/"); dir = path.Dir(dir) {
		if err := os.Remove(l.path(dir)); err != nil {
			return
		}
	}
}

type sectionReadCloser struct {
	*io.SectionReader
	f *os.File
}

func (s sectionReadCloser) Close() error { return s.f.Close() }

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func contentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".mp4", ".m4v", ".mov":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var _ Backend = (*Local)(nil)
