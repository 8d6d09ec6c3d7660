package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/scrubline/backend/internal/logging"
	"github.com/scrubline/backend/internal/metrics"
	"github.com/scrubline/backend/internal/storage"
)

// ErrRangeUnsatisfiable indicates a range starting at or past the end of the content.
var ErrRangeUnsatisfiable = errors.New("range not satisfiable")

// Source is the read side of a storage backend.
type Source interface {
	Stat(ctx context.Context, key string) (storage.Object, error)
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
}

// Span is an inclusive byte interval of a resource.
type Span struct {
	Start int64
	End   int64
}

// Length is the number of bytes in the span.
func (s Span) Length() int64 { return s.End - s.Start + 1 }

// ParseRange interprets a single-range "bytes=" header against a resource of
// size total. ok is false when the header should be ignored and the full
// content served: absent, malformed, or multi-range. A well-formed range that
// starts beyond the last byte yields ErrRangeUnsatisfiable.
func ParseRange(header string, total int64) (span Span, ok bool, err error) {
	header = strings.TrimSpace(header)
	rangeSet, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(rangeSet, ",") {
		return Span{}, false, nil
	}
	startRaw, endRaw, found := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !found {
		return Span{}, false, nil
	}
	startRaw, endRaw = strings.TrimSpace(startRaw), strings.TrimSpace(endRaw)

	if startRaw == "" {
		// suffix range: last N bytes
		n, perr := strconv.ParseInt(endRaw, 10, 64)
		if perr != nil || n < 0 {
			return Span{}, false, nil
		}
		if n == 0 || total == 0 {
			return Span{}, true, ErrRangeUnsatisfiable
		}
		if n > total {
			n = total
		}
		return Span{Start: total - n, End: total - 1}, true, nil
	}

	start, perr := strconv.ParseInt(startRaw, 10, 64)
	if perr != nil || start < 0 {
		return Span{}, false, nil
	}
	end := total - 1
	if endRaw != "" {
		e, perr := strconv.ParseInt(endRaw, 10, 64)
		if perr != nil || e < start {
			return Span{}, false, nil
		}
		if e < end {
			end = e
		}
	}
	if start > total-1 {
		return Span{}, true, ErrRangeUnsatisfiable
	}
	return Span{Start: start, End: end}, true, nil
}

// Server serves stored videos with byte-range support.
type Server struct {
	Source     Source
	BufferSize int
}

// NewServer returns a Server reading from src.
func NewServer(src Source) *Server {
	return &Server{Source: src, BufferSize: 256 * 1024}
}

// ServeVideo writes the object at key, honouring a Range header. Bodies are
// copied from a lazily read span, so concurrent seeks never load whole files.
func (s *Server) ServeVideo(w http.ResponseWriter, r *http.Request, key, contentType string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	obj, err := s.Source.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "Video file not found")
			return
		}
		logger.Error("stat video source", "key", key, "error", err)
		s.fail(w, http.StatusInternalServerError, "Error streaming video")
		return
	}
	if contentType == "" {
		contentType = obj.ContentType
	}

	header := w.Header()
	header.Set("Accept-Ranges", "bytes")
	header.Set("Content-Type", contentType)

	span := Span{Start: 0, End: obj.Size - 1}
	status := http.StatusOK
	if raw := r.Header.Get("Range"); raw != "" {
		parsed, ok, perr := ParseRange(raw, obj.Size)
		if errors.Is(perr, ErrRangeUnsatisfiable) {
			header.Set("Content-Range", fmt.Sprintf("bytes */%d", obj.Size))
			header.Del("Content-Type")
			metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusRequestedRangeNotSatisfiable)).Inc()
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if ok {
			span = parsed
			status = http.StatusPartialContent
			header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", span.Start, span.End, obj.Size))
		}
	}

	length := span.Length()
	if obj.Size == 0 {
		length = 0
	}
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	if r.Method == http.MethodHead || length == 0 {
		w.WriteHeader(status)
		return
	}

	body, err := s.Source.OpenRange(ctx, key, span.Start, length)
	if err != nil {
		header.Del("Content-Range")
		header.Del("Content-Length")
		if errors.Is(err, storage.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "Video file not found")
			return
		}
		logger.Error("open video range", "key", key, "start", span.Start, "length", length, "error", err)
		s.fail(w, http.StatusInternalServerError, "Error streaming video")
		return
	}
	defer body.Close()

	w.WriteHeader(status)

	bufSize := s.BufferSize
	if bufSize <= 0 {
		bufSize = 32 * 1024
	}
	n, err := io.CopyBuffer(w, io.LimitReader(body, length), make([]byte, bufSize))
	metrics.StreamBytesTotal.Add(float64(n))
	if err != nil && ctx.Err() == nil {
		logger.Warn("stream interrupted", "key", key, "written", n, "expected", length, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	metrics.StreamRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	http.Error(w, msg, status)
}
