package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", RunID(ctx))
	assert.Equal(t, "", Node(ctx))
	_, ok := ItemIndex(ctx)
	assert.False(t, ok)

	ctx = WithRunID(ctx, "run-123")
	ctx = WithNode(ctx, "Assert")
	ctx = WithItemIndex(ctx, 0)

	assert.Equal(t, "run-123", RunID(ctx))
	assert.Equal(t, "Assert", Node(ctx))
	idx, ok := ItemIndex(ctx)
	assert.True(t, ok)
	assert.Equal(t, 0, idx)
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithItemIndex(WithIDs(context.Background(), "run-abc", "Assert"), 4)

	enriched := LogWith(ctx, logger)
	enriched.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "run_id=run-abc")
	assert.Contains(t, output, "node=Assert")
	assert.Contains(t, output, "item_index=4")
	assert.Contains(t, output, "test message")
}

func TestLogWithEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogWith(context.Background(), logger).Info("no context")

	output := buf.String()
	assert.NotContains(t, output, "run_id")
	assert.NotContains(t, output, "node")
	assert.NotContains(t, output, "item_index")
	assert.Contains(t, output, "no context")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	ctx := WithItemIndex(WithIDs(context.Background(), "run-auto", "Docs"), 2)
	logger.InfoContext(ctx, "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"run_id":"run-auto"`)
	assert.Contains(t, output, `"node":"Docs"`)
	assert.Contains(t, output, `"item_index":2`)
}

func TestCorrelationHandlerPartialContext(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(WithRunID(context.Background(), "run-only"), "partial")

	output := buf.String()
	assert.Contains(t, output, `"run_id":"run-only"`)
	assert.NotContains(t, output, `"node"`)
	assert.NotContains(t, output, "item_index")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := NewCorrelationHandler(inner)
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "runner")}))

	logger.InfoContext(WithRunID(context.Background(), "run-attr"), "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"run_id":"run-attr"`)
	assert.Contains(t, output, `"component":"runner"`)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.InfoContext(context.Background(), "dropped")
	logger.WarnContext(WithNode(context.Background(), "Assert"), "kept")

	output := buf.String()
	assert.NotContains(t, output, "dropped")
	assert.Contains(t, output, `"msg":"kept"`)
	assert.Contains(t, output, `"node":"Assert"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestLogWithCorrelationHandlerNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "text")

	ctx := WithIDs(context.Background(), "run-1", "Assert")
	LogWith(ctx, logger).InfoContext(ctx, "once")

	assert.Equal(t, 1, strings.Count(buf.String(), "run_id=run-1"))
}
