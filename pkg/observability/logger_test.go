package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/modshim/pkg/observability"
)

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := observability.NewTracingHandler(inner, observability.Config{
		ServiceName:    "test-svc",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Mode:           observability.ModeCLI,
	})
	logger := slog.New(handler)

	// Create a span context with known trace and span IDs.
	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "test message")

	var record map[string]any

	err = json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "1.0.0", record["version"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "cli", record["mode"])
}

func TestTracingHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := observability.NewTracingHandler(inner, observability.Config{ServiceName: "modshim", Mode: observability.ModeMCP})
	logger := slog.New(handler)

	logger.InfoContext(context.Background(), "no span")

	var record map[string]any

	err := json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.NotContains(t, record, "trace_id")
	assert.NotContains(t, record, "version")

	// Service and mode should still be present.
	assert.Equal(t, "modshim", record["service"])
	assert.Equal(t, "mcp", record["mode"])
}

func TestTracingHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := observability.NewTracingHandler(inner, observability.DefaultConfig())
	logger := slog.New(handler)

	grouped := logger.WithGroup("load")
	grouped.InfoContext(context.Background(), "module analyzed", slog.String("url", "file:///app/main.js"))

	var record map[string]any

	err := json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	// Service attrs should be at top level.
	assert.Equal(t, "modshim", record["service"])

	// Grouped attrs should be nested.
	group, ok := record["load"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "file:///app/main.js", group["url"])
}

func TestTracingHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	handler := observability.NewTracingHandler(inner, observability.DefaultConfig())
	logger := slog.New(handler)

	withAttrs := logger.With(slog.String("op", "graph"))
	withAttrs.InfoContext(context.Background(), "started")

	var record map[string]any

	err := json.Unmarshal(buf.Bytes(), &record)
	require.NoError(t, err)

	assert.Equal(t, "graph", record["op"])
	assert.Equal(t, "modshim", record["service"])
}

func TestNewLogger_Formats(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Mode = observability.ModeWatch

	var text bytes.Buffer

	observability.NewLogger(&text, cfg).Info("reloaded", "url", "file:///a.js")
	assert.Contains(t, text.String(), "mode=watch")
	assert.Contains(t, text.String(), "url=file:///a.js")

	cfg.LogJSON = true
	cfg.LogLevel = slog.LevelWarn

	var js bytes.Buffer

	logger := observability.NewLogger(&js, cfg)
	logger.Info("dropped")
	assert.Zero(t, js.Len())

	logger.Warn("kept")

	var record map[string]any

	require.NoError(t, json.Unmarshal(js.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "watch", record["mode"])
}
