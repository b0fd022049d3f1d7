package localize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/crashdice/internal/observability"
	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

// SpanBatch is the span covering a whole crash directory.
const SpanBatch = "crashdice.batch"

// Outcome is the final state of one crash file.
type Outcome string

// Crash file outcomes.
const (
	OutcomeReported Outcome = "reported"
	OutcomeFiltered Outcome = "filtered"
	OutcomeFailed   Outcome = "failed"
)

// Sink receives finished reports.
type Sink interface {
	Write(ctx context.Context, r *dice.Report) error
}

// Filterer moves non-reproducing crashes out of the way.
type Filterer interface {
	Filter(path string) (string, error)
}

// BatchConfig holds the collaborators of a [Batch].
type BatchConfig struct {
	Engine *Engine
	Sink   Sink
	// Filter is optional; without it non-reproducing crashes stay in place.
	Filter Filterer
	DDNum  int

	Metrics *observability.LocalizeMetrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Batch processes every crash file of a directory in name order.
type Batch struct {
	cfg    BatchConfig
	tracer trace.Tracer
	logger *slog.Logger
}

// FileResult is the outcome of one crash file.
type FileResult struct {
	Path    string
	Outcome Outcome
	Err     error
}

// Summary aggregates a batch run.
type Summary struct {
	Processed int
	Reported  int
	Filtered  int
	Failed    int
	Shrink    dice.Stats
	Results   []FileResult
}

// NewBatch creates a batch runner.
func NewBatch(cfg BatchConfig) *Batch {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("crashdice")
	}

	return &Batch{cfg: cfg, tracer: tracer, logger: logger}
}

// ListCrashes returns the crash files of dir sorted by name. Entries without
// an "id:" field, such as AFL's README.txt, are skipped.
func ListCrashes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list crashes: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), "id:") {
			continue
		}

		files = append(files, filepath.Join(dir, entry.Name()))
	}

	slices.Sort(files)

	return files, nil
}

// Run processes crashDir. Per-file errors are logged and counted, never
// returned. Cancellation is checked between files.
func (b *Batch) Run(ctx context.Context, crashDir string) (Summary, error) {
	ctx, span := b.tracer.Start(ctx, SpanBatch, trace.WithAttributes(
		attribute.String("crash.dir", crashDir),
		attribute.Int("dd.num", b.cfg.DDNum),
	))
	defer span.End()

	files, err := ListCrashes(crashDir)
	if err != nil {
		return Summary{}, err
	}

	b.logger.InfoContext(ctx, "processing crashes", "dir", crashDir, "files", len(files), "dd_num", b.cfg.DDNum)

	var (
		summary Summary
		reports []*dice.Report
	)

	for i, file := range files {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			summary.Shrink = dice.Summarize(reports)

			return summary, ctxErr
		}

		b.logger.InfoContext(ctx, "processing crash file", "n", i+1, "of", len(files), "file", filepath.Base(file))

		report, result := b.processFile(ctx, file)

		summary.add(result)

		if report != nil {
			reports = append(reports, report)
		}
	}

	summary.Shrink = dice.Summarize(reports)

	span.SetAttributes(
		attribute.Int("crashes.reported", summary.Reported),
		attribute.Int("crashes.filtered", summary.Filtered),
		attribute.Int("crashes.failed", summary.Failed),
	)

	return summary, nil
}

func (b *Batch) processFile(ctx context.Context, file string) (*dice.Report, FileResult) {
	done := b.cfg.Metrics.TrackCrash(ctx)
	defer done()

	start := time.Now()
	name := filepath.Base(file)

	report, err := b.cfg.Engine.Localize(ctx, file, b.cfg.DDNum)
	if err == nil {
		err = b.cfg.Sink.Write(ctx, report)
	}

	result := FileResult{Path: file, Outcome: OutcomeReported, Err: err}

	switch {
	case errors.Is(err, ErrNotACrash):
		result.Outcome = OutcomeFiltered
		report = nil

		b.filter(ctx, file)
	case err != nil:
		result.Outcome = OutcomeFailed
		report = nil

		b.logger.ErrorContext(ctx, "crash file failed", "file", name, "error", err)
	default:
		b.logger.InfoContext(ctx, "wrote report", "file", name,
			"slice", report.SliceLineCount, "dice", report.DiceLineCount)
	}

	b.cfg.Metrics.RecordCrash(ctx, string(result.Outcome), time.Since(start))

	return report, result
}

func (b *Batch) filter(ctx context.Context, file string) {
	name := filepath.Base(file)

	if b.cfg.Filter == nil {
		b.logger.WarnContext(ctx, "crash does not reproduce", "file", name)

		return
	}

	dst, err := b.cfg.Filter.Filter(file)
	if err != nil {
		b.logger.ErrorContext(ctx, "filter crash", "file", name, "error", err)

		return
	}

	b.logger.WarnContext(ctx, "crash does not reproduce, filtered", "file", name, "to", dst)
}

func (s *Summary) add(r FileResult) {
	s.Processed++

	switch r.Outcome {
	case OutcomeReported:
		s.Reported++
	case OutcomeFiltered:
		s.Filtered++
	case OutcomeFailed:
		s.Failed++
	}

	s.Results = append(s.Results, r)
}
