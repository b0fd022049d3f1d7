package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ContextHandler is an [slog.Handler] that stamps every record with the
// service, mode and run id, plus the trace and span ids of the span carried
// by the context. The identity attributes are bound before any group so they
// stay at the top level.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps inner. An empty runID is omitted.
func NewContextHandler(inner slog.Handler, service, runID string, mode AppMode) ContextHandler {
	identity := []slog.Attr{
		slog.String("service", service),
		slog.String("mode", string(mode)),
	}

	if runID != "" {
		identity = append(identity, slog.String("run_id", runID))
	}

	return ContextHandler{Handler: inner.WithAttrs(identity)}
}

// Handle implements [slog.Handler].
func (h ContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return h.Handler.Handle(ctx, record)
}

// WithAttrs implements [slog.Handler].
func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

// WithGroup implements [slog.Handler].
func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// LevelFromVerbosity maps the -v flag onto a slog level.
func LevelFromVerbosity(verbose bool, fallback slog.Level) slog.Level {
	if verbose {
		return slog.LevelDebug
	}

	return fallback
}
