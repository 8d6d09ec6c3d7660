package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithVideoIDTagsLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, slog.LevelInfo))
	ctx = WithVideoID(ctx, "vid-1")

	if got := VideoIDFromContext(ctx); got != "vid-1" {
		t.Fatalf("unexpected video id %q", got)
	}
	FromContext(ctx).Info("stored")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["video_id"] != "vid-1" {
		t.Fatalf("expected video_id attribute, got %v", entry)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestSpanNesting(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, slog.LevelInfo))

	ctx, parent := StartSpan(ctx, "ingest")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)

	childCtx, child := StartSpan(ctx, "inspect")
	if TraceIDFromContext(childCtx) != traceID {
		t.Fatal("child span should share the trace id")
	}
	if SpanIDFromContext(childCtx) == parentID {
		t.Fatal("child span needs its own id")
	}

	child.EndWithError(errors.New("ffprobe exited 1"))
	parent.End()

	out := buf.String()
	if !strings.Contains(out, `"parent_span_id":"`+parentID+`"`) {
		t.Fatalf("child entry should reference its parent: %s", out)
	}
	if !strings.Contains(out, "span failed") || !strings.Contains(out, "span completed") {
		t.Fatalf("expected both span outcomes: %s", out)
	}
}

func TestNilSpanIsNoop(t *testing.T) {
	var s *Span
	s.End()
	s.EndWithError(errors.New("x"))
	if s.Elapsed() != 0 {
		t.Fatal("nil span has no duration")
	}
}
