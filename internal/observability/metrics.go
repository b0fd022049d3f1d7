package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCrashesTotal       = "crashdice.crashes.total"
	metricCrashDuration      = "crashdice.crash.duration.seconds"
	metricCrashesInflight    = "crashdice.crashes.inflight"
	metricExtractionsTotal   = "crashdice.extractions.total"
	metricExtractionDuration = "crashdice.extraction.duration.seconds"
	metricAncestryRejections = "crashdice.ancestry.rejections.total"
	metricAncestryDepth      = "crashdice.ancestry.depth"
	metricDiceLines          = "crashdice.dice.lines"
	metricShrinkPercent      = "crashdice.dice.shrink.percent"
	metricCacheHits          = "crashdice.cache.hits.total"
	metricCacheMisses        = "crashdice.cache.misses.total"

	attrOutcome = "outcome"
	attrRole    = "role"
	attrStatus  = "status"
	attrReason  = "reason"
	attrCache   = "cache"

	// StatusOK and StatusError label extraction results.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 10ms to 600s: a single sanitizer run is
// usually sub-second, a deep walk over many ancestors can take minutes.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600}

// sizeBucketBoundaries covers dice sizes and ancestry depths.
var sizeBucketBoundaries = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

// shrinkBucketBoundaries splits the [0, 100] shrink range.
var shrinkBucketBoundaries = []float64{10, 25, 50, 75, 90, 95, 99, 100}

// LocalizeMetrics holds the OTel instruments of the localization batch.
type LocalizeMetrics struct {
	crashesTotal       metric.Int64Counter
	crashDuration      metric.Float64Histogram
	crashesInflight    metric.Int64UpDownCounter
	extractionsTotal   metric.Int64Counter
	extractionDuration metric.Float64Histogram
	rejectionsTotal    metric.Int64Counter
	ancestryDepth      metric.Int64Histogram
	diceLines          metric.Int64Histogram
	shrinkPercent      metric.Float64Histogram
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
}

// NewLocalizeMetrics creates localization metric instruments from the given meter.
func NewLocalizeMetrics(mt metric.Meter) (*LocalizeMetrics, error) {
	var (
		lm   LocalizeMetrics
		errs []error
		err  error
	)

	check := func(name string) {
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s: %w", name, err))
		}
	}

	lm.crashesTotal, err = mt.Int64Counter(metricCrashesTotal,
		metric.WithDescription("Crash files processed by outcome"), metric.WithUnit("{crash}"))
	check(metricCrashesTotal)

	lm.crashDuration, err = mt.Float64Histogram(metricCrashDuration,
		metric.WithDescription("Per-crash processing duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...))
	check(metricCrashDuration)

	lm.crashesInflight, err = mt.Int64UpDownCounter(metricCrashesInflight,
		metric.WithDescription("Crash files currently being processed"), metric.WithUnit("{crash}"))
	check(metricCrashesInflight)

	lm.extractionsTotal, err = mt.Int64Counter(metricExtractionsTotal,
		metric.WithDescription("Coverage extractions by role and status"), metric.WithUnit("{extraction}"))
	check(metricExtractionsTotal)

	lm.extractionDuration, err = mt.Float64Histogram(metricExtractionDuration,
		metric.WithDescription("Coverage extraction duration in seconds"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...))
	check(metricExtractionDuration)

	lm.rejectionsTotal, err = mt.Int64Counter(metricAncestryRejections,
		metric.WithDescription("Ancestor candidates rejected by reason"), metric.WithUnit("{candidate}"))
	check(metricAncestryRejections)

	lm.ancestryDepth, err = mt.Int64Histogram(metricAncestryDepth,
		metric.WithDescription("Ancestors diffed per crash"), metric.WithUnit("{ancestor}"),
		metric.WithExplicitBucketBoundaries(sizeBucketBoundaries...))
	check(metricAncestryDepth)

	lm.diceLines, err = mt.Int64Histogram(metricDiceLines,
		metric.WithDescription("Suspect locations per report"), metric.WithUnit("{line}"),
		metric.WithExplicitBucketBoundaries(sizeBucketBoundaries...))
	check(metricDiceLines)

	lm.shrinkPercent, err = mt.Float64Histogram(metricShrinkPercent,
		metric.WithDescription("Shrink ratio of the dice against the slice"), metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(shrinkBucketBoundaries...))
	check(metricShrinkPercent)

	lm.cacheHits, err = mt.Int64Counter(metricCacheHits,
		metric.WithDescription("Executions answered from the coverage cache"), metric.WithUnit("{lookup}"))
	check(metricCacheHits)

	lm.cacheMisses, err = mt.Int64Counter(metricCacheMisses,
		metric.WithDescription("Executions the coverage cache could not answer"), metric.WithUnit("{lookup}"))
	check(metricCacheMisses)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &lm, nil
}

// RecordCrash records one finished crash file with its outcome.
// Safe to call on a nil receiver (no-op).
func (lm *LocalizeMetrics) RecordCrash(ctx context.Context, outcome string, duration time.Duration) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrOutcome, outcome))

	lm.crashesTotal.Add(ctx, 1, attrs)
	lm.crashDuration.Record(ctx, duration.Seconds(), attrs)
}

// TrackCrash increments the in-flight counter and returns a function to decrement it.
// Safe to call on a nil receiver.
func (lm *LocalizeMetrics) TrackCrash(ctx context.Context) func() {
	if lm == nil {
		return func() {}
	}

	lm.crashesInflight.Add(ctx, 1)

	return func() {
		lm.crashesInflight.Add(ctx, -1)
	}
}

// RecordExtraction records one coverage extraction of a crash or queue input.
// Safe to call on a nil receiver (no-op).
func (lm *LocalizeMetrics) RecordExtraction(ctx context.Context, role, status string, duration time.Duration) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrRole, role),
		attribute.String(attrStatus, status),
	)

	lm.extractionsTotal.Add(ctx, 1, attrs)
	lm.extractionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrRole, role)))
}

// RecordRejection records an ancestor candidate refused by the validation gate.
// Safe to call on a nil receiver (no-op).
func (lm *LocalizeMetrics) RecordRejection(ctx context.Context, reason string) {
	if lm == nil {
		return
	}

	lm.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordReport records the size figures of a written report. A nil shrink
// (empty slice) is not observed.
// Safe to call on a nil receiver (no-op).
func (lm *LocalizeMetrics) RecordReport(ctx context.Context, ancestors, diceLines int, shrink *float64) {
	if lm == nil {
		return
	}

	lm.ancestryDepth.Record(ctx, int64(ancestors))
	lm.diceLines.Record(ctx, int64(diceLines))

	if shrink != nil {
		lm.shrinkPercent.Record(ctx, *shrink)
	}
}

// RecordCache adds the final hit and miss counts of one cache, labelled by
// name ("coverage" or "verdict").
// Safe to call on a nil receiver (no-op).
func (lm *LocalizeMetrics) RecordCache(ctx context.Context, name string, hits, misses int64) {
	if lm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrCache, name))

	lm.cacheHits.Add(ctx, hits, attrs)
	lm.cacheMisses.Add(ctx, misses, attrs)
}
