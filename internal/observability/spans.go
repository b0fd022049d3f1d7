package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Span names emitted once per sanitizer execution. A deep walk runs the target
// twice per ancestor, so these are only exported with [Config.TraceVerbose].
const (
	SpanExtract = "crashdice.extract"
	SpanCrashes = "crashdice.reproduce"
)

func isExecutionSpan(name string) bool {
	return name == SpanExtract || name == SpanCrashes
}

// QuietTracerProvider wraps base so that execution spans become non-recording
// children of the current span. Per-crash and batch spans are kept.
func QuietTracerProvider(base trace.TracerProvider) trace.TracerProvider {
	return quietProvider{base: base}
}

type quietProvider struct {
	embedded.TracerProvider

	base trace.TracerProvider
}

func (p quietProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return quietTracer{base: p.base.Tracer(name, opts...)}
}

type quietTracer struct {
	embedded.Tracer

	base trace.Tracer
}

func (t quietTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if isExecutionSpan(name) {
		return nooptrace.Tracer{}.Start(ctx, name, opts...)
	}

	return t.base.Start(ctx, name, opts...)
}
