// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the crashdice CLI.
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeRun is the batch localization mode.
	ModeRun AppMode = "run"
	// ModeReport covers the read-only report commands (show, render, top, validate).
	ModeReport AppMode = "report"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "crashdice"

	// defaultShutdownTimeout bounds the final flush of pending telemetry.
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// RunID tags every log record of one batch run. Empty omits the attribute.
	RunID string

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are additional gRPC metadata headers for the OTLP exporter.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0).
	// Zero samples everything.
	SampleRatio float64

	// Prometheus attaches a Prometheus reader to the meter provider and
	// exposes it as [Providers.MetricsHandler].
	Prometheus bool

	// TraceVerbose keeps the per-extraction spans. When false only the
	// per-crash and batch spans are exported.
	TraceVerbose bool

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// LogOutput receives log records. Nil means stderr.
	LogOutput io.Writer

	// ShutdownTimeout bounds the flush in [Providers.Shutdown].
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeRun,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
