package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/scrubline/backend/internal/media"
	"github.com/scrubline/backend/internal/models"
	"github.com/scrubline/backend/internal/repositories"
	"github.com/scrubline/backend/internal/storage"
)

type memBackend struct {
	variant models.StorageVariant

	mu        sync.Mutex
	objects   map[string][]byte
	failStore func(key string) error
	deletes   []string
}

func newMemBackend(variant models.StorageVariant) *memBackend {
	return &memBackend{variant: variant, objects: make(map[string][]byte)}
}

func (m *memBackend) Variant() models.StorageVariant { return m.variant }

func (m *memBackend) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.failStore != nil {
		if err := m.failStore(key); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return m.ResolveURL(key), nil
}

func (m *memBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	for k := range m.objects {
		if k == key || strings.HasPrefix(k, key+"/") {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memBackend) ResolveURL(key string) string { return "mem://" + key }

func (m *memBackend) Stat(_ context.Context, key string) (storage.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.Object{}, storage.ErrNotFound
	}
	return storage.Object{Key: key, Size: int64(len(data)), ContentType: "video/mp4"}, nil
}

func (m *memBackend) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data[offset : offset+length])), nil
}

func (m *memBackend) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// remoteBackend namespaces keys the way the S3 backend does.
type remoteBackend struct {
	*memBackend
	prefix string
}

func (r remoteBackend) ObjectKey(key string) string { return r.prefix + "/" + key }

type fakeInspector struct {
	probe media.Probe
	err   error
}

func (f fakeInspector) Inspect(_ context.Context, path string) (media.Probe, error) {
	if _, err := os.Stat(path); err != nil {
		return media.Probe{}, fmt.Errorf("%w: %v", media.ErrUnreadableMedia, err)
	}
	if f.err != nil {
		return media.Probe{}, f.err
	}
	return f.probe, nil
}

// blockingInspector parks Inspect until release is closed.
type blockingInspector struct {
	probe   media.Probe
	entered chan struct{}
	release chan struct{}
}

func newBlockingInspector(probe media.Probe) *blockingInspector {
	return &blockingInspector{probe: probe, entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingInspector) Inspect(ctx context.Context, _ string) (media.Probe, error) {
	close(b.entered)
	select {
	case <-b.release:
		return b.probe, nil
	case <-ctx.Done():
		return media.Probe{}, ctx.Err()
	}
}

type fakeRenderer struct {
	frames int
	err    error
	hook   func()

	mu    sync.Mutex
	calls []media.Options
}

func (f *fakeRenderer) Generate(ctx context.Context, _ string, outputDir string, opts media.Options) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	if f.hook != nil {
		f.hook()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if f.err != nil {
		return 0, f.err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return 0, err
	}
	n := f.frames
	if opts.MaxFrames > 0 && n > opts.MaxFrames {
		n = opts.MaxFrames
	}
	for i := 1; i <= n; i++ {
		if err := os.WriteFile(filepath.Join(outputDir, media.ThumbnailName(i)), []byte("jpeg"), 0o644); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type memRecords struct {
	mu        sync.Mutex
	videos    map[string]models.Video
	updateErr error
	createErr error
}

func newMemRecords() *memRecords {
	return &memRecords{videos: make(map[string]models.Video)}
}

func (m *memRecords) Create(_ context.Context, v models.Video) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[v.ID]; ok {
		return repositories.ErrConflict
	}
	m.videos[v.ID] = v
	return nil
}

func (m *memRecords) UpdateThumbnails(_ context.Context, id, pattern string, kind models.ThumbnailKind, count int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	v.ThumbnailPattern, v.ThumbnailKind, v.ThumbnailCount = pattern, kind, count
	m.videos[id] = v
	return nil
}

func (m *memRecords) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

func (m *memRecords) get(id string) (models.Video, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	return v, ok
}

func (m *memRecords) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}
