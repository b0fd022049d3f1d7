// Package localize computes delta reports: the coverage a crash exercises that
// its non-crashing ancestors do not.
package localize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/crashdice/internal/ancestry"
	"github.com/Sumatoshi-tech/crashdice/internal/extractor"
	"github.com/Sumatoshi-tech/crashdice/internal/observability"
	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

// ErrNotACrash is returned for a nominal crash that does not reproduce.
var ErrNotACrash = errors.New("input does not crash the target")

// Extraction roles used in logs and metrics.
const (
	RoleCrash    = "crash"
	RoleAncestor = "ancestor"
)

// DefaultMaxDepth bounds the parent lookups of one crash file.
const DefaultMaxDepth = 256

// SpanLocalize is the span covering one crash file.
const SpanLocalize = "crashdice.localize"

// Modes of a delta computation.
const (
	ModeSingle = "single"
	ModeDeep   = "deep"
)

// EngineConfig holds the collaborators of an [Engine].
type EngineConfig struct {
	Extractor extractor.Extractor
	FuzzRoot  string
	MaxDepth  int

	Metrics *observability.LocalizeMetrics
	Tracer  trace.Tracer
	Logger  *slog.Logger
}

// Engine produces delta reports for single crash files.
type Engine struct {
	extractor extractor.Extractor
	resolver  *ancestry.Resolver
	gate      *ancestry.Gate
	maxDepth  int
	metrics   *observability.LocalizeMetrics
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("crashdice")
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	return &Engine{
		extractor: cfg.Extractor,
		resolver:  ancestry.NewResolver(cfg.FuzzRoot, logger),
		gate:      ancestry.NewGate(cfg.Extractor),
		maxDepth:  maxDepth,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		logger:    logger,
	}
}

// Localize dispatches on ddNum: 1 diffs against the parent only, larger
// values walk that many ancestors.
func (e *Engine) Localize(ctx context.Context, crash string, ddNum int) (*dice.Report, error) {
	if ddNum <= 1 {
		return e.Single(ctx, crash)
	}

	return e.Deep(ctx, crash, ddNum)
}

// Single diffs the crash coverage against its closest valid ancestor. The
// slice of the report is the ancestor's coverage.
func (e *Engine) Single(ctx context.Context, crash string) (report *dice.Report, err error) {
	ctx, span := e.startFile(ctx, crash, ModeSingle)
	defer func() { endSpan(span, err) }()

	fc := e.newFileContext(crash)

	err = e.reproduce(ctx, fc)
	if err != nil {
		return nil, err
	}

	fc.enter(StateParentLookup)

	parent, err := e.nextAncestor(ctx, fc)
	if err != nil {
		return nil, e.fail(fc, err)
	}

	fc.enter(StateCoverageExtract)

	parentCov, err := e.extract(ctx, parent, RoleAncestor)
	if err != nil {
		return nil, e.fail(fc, err)
	}

	fc.crashCov, err = e.extract(ctx, crash, RoleCrash)
	if err != nil {
		return nil, e.fail(fc, err)
	}

	fc.ancestors = 1

	fc.enter(StateDiff)

	ranked := dice.Singles(fc.crashCov.Difference(parentCov))

	return e.finish(ctx, fc, dice.NewReport(crash, parent, ranked, parentCov.Len())), nil
}

// Deep diffs the crash coverage against up to n ancestors and ranks every
// location by the number of diffs it appeared in. The walk ends early when
// the lineage runs out or an ancestor cannot be extracted. An exhausted climb
// fails the file only when no ancestor was diffed.
func (e *Engine) Deep(ctx context.Context, crash string, n int) (report *dice.Report, err error) {
	ctx, span := e.startFile(ctx, crash, ModeDeep)
	defer func() { endSpan(span, err) }()

	fc := e.newFileContext(crash)

	err = e.reproduce(ctx, fc)
	if err != nil {
		return nil, err
	}

	fc.enter(StateCoverageExtract)

	fc.crashCov, err = e.extract(ctx, crash, RoleCrash)
	if err != nil {
		return nil, e.fail(fc, err)
	}

	for fc.ancestors < n {
		fc.enter(StateParentLookup)

		ancestor, lookupErr := e.nextAncestor(ctx, fc)
		if lookupErr != nil {
			if !endsWalk(lookupErr, fc.ancestors) {
				return nil, e.fail(fc, lookupErr)
			}

			e.logger.InfoContext(ctx, "no further ancestors",
				"crash", filepath.Base(crash), "diffed", fc.ancestors, "reason", lookupErr)

			break
		}

		fc.enter(StateCoverageExtract)

		ancestorCov, extractErr := e.extract(ctx, ancestor, RoleAncestor)
		if extractErr != nil {
			if !errors.Is(extractErr, extractor.ErrExtractionFailure) {
				return nil, e.fail(fc, extractErr)
			}

			e.logger.WarnContext(ctx, "ancestor extraction failed, stopping walk",
				"crash", filepath.Base(crash), "ancestor", filepath.Base(ancestor), "error", extractErr)

			break
		}

		fc.enter(StateDiff)
		fc.counter.AddSet(fc.crashCov.Difference(ancestorCov))
		fc.ancestors++

		e.logger.DebugContext(ctx, "diffed ancestor",
			"crash", filepath.Base(crash), "ancestor", filepath.Base(ancestor), "n", fc.ancestors, "of", n)
	}

	if fc.ancestors == 0 {
		e.logger.WarnContext(ctx, "no ancestor diffed", "crash", filepath.Base(crash))
	}

	return e.finish(ctx, fc, dice.NewReport(crash, "", fc.counter.Ranked(), fc.crashCov.Len())), nil
}

func (e *Engine) startFile(ctx context.Context, crash, mode string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, SpanLocalize, trace.WithAttributes(
		attribute.String("crash.name", filepath.Base(crash)),
		attribute.String("mode", mode),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (e *Engine) newFileContext(crash string) *fileContext {
	return &fileContext{
		crash:   crash,
		state:   StateInit,
		lineage: ancestry.NewLineage(e.resolver, e.gate, crash, e.maxDepth),
		counter: dice.NewCounter(),
	}
}

func (e *Engine) reproduce(ctx context.Context, fc *fileContext) error {
	crashed, err := e.extractor.Crashes(ctx, fc.crash)
	if err != nil {
		return e.fail(fc, err)
	}

	if !crashed {
		fc.enter(StateFiltered)

		return fmt.Errorf("%w: %s", ErrNotACrash, filepath.Base(fc.crash))
	}

	return nil
}

// nextAncestor climbs the lineage and reports the candidates the gate
// turned down on the way.
func (e *Engine) nextAncestor(ctx context.Context, fc *fileContext) (string, error) {
	seen := len(fc.lineage.Rejected())

	fc.enter(StateParentValidate)

	ancestor, err := fc.lineage.Next(ctx)

	for _, rej := range fc.lineage.Rejected()[seen:] {
		e.metrics.RecordRejection(ctx, string(rej.Reason))
		e.logger.DebugContext(ctx, "ancestor rejected",
			"crash", filepath.Base(fc.crash), "candidate", filepath.Base(rej.Path), "reason", rej.Reason)
	}

	return ancestor, err
}

func (e *Engine) extract(ctx context.Context, input, role string) (coverage.Set, error) {
	start := time.Now()

	set, err := e.extractor.Extract(ctx, input)

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusError
	}

	e.metrics.RecordExtraction(ctx, role, status, time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("extract %s coverage: %w", role, err)
	}

	return set, nil
}

func (e *Engine) finish(ctx context.Context, fc *fileContext, report *dice.Report) *dice.Report {
	fc.enter(StateReport)

	e.metrics.RecordReport(ctx, fc.ancestors, report.DiceLineCount, report.ShrinkPercent)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int("ancestors", fc.ancestors),
		attribute.Int("slice.lines", report.SliceLineCount),
		attribute.Int("dice.lines", report.DiceLineCount),
	)

	fc.enter(StateDone)

	return report
}

func (e *Engine) fail(fc *fileContext, err error) error {
	return fmt.Errorf("%s: %w", fc.state, err)
}

// endsWalk reports whether a lookup error after diffed ancestors means the
// lineage has no further usable ancestor.
func endsWalk(err error, diffed int) bool {
	if errors.Is(err, ancestry.ErrAncestryExhausted) {
		return diffed > 0
	}

	return errors.Is(err, ancestry.ErrNotFound) || errors.Is(err, ancestry.ErrNoSession)
}
