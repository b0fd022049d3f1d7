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

	"github.com/Sumatoshi-tech/crashdice/internal/observability"
)

func TestContextHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewContextHandler(inner, "test-svc", "run-1", observability.ModeRun))

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

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "run-1", record["run_id"])
	assert.Equal(t, "run", record["mode"])
}

func TestContextHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewContextHandler(inner, "crashdice", "", observability.ModeReport))

	logger.Info("plain")

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.NotContains(t, record, "trace_id")
	assert.NotContains(t, record, "run_id")
	assert.Equal(t, "report", record["mode"])
}

func TestContextHandler_GroupKeepsServiceAtTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, nil)
	logger := slog.New(observability.NewContextHandler(inner, "crashdice", "", observability.ModeRun))

	logger.WithGroup("crash").With("id", 3).Info("grouped")

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "crashdice", record["service"])
	assert.Equal(t, map[string]any{"id": float64(3)}, record["crash"])
}

func TestLevelFromVerbosity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, observability.LevelFromVerbosity(true, slog.LevelWarn))
	assert.Equal(t, slog.LevelWarn, observability.LevelFromVerbosity(false, slog.LevelWarn))
}
