// Package report persists delta reports and renders them for humans.
package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
	"github.com/Sumatoshi-tech/crashdice/pkg/persist"
)

// Sink receives finished reports.
type Sink interface {
	Write(ctx context.Context, r *dice.Report) error
	Close() error
}

// MultiSink writes every report to all of its sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink fans out to sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	ms := &MultiSink{}

	for _, s := range sinks {
		if s != nil {
			ms.sinks = append(ms.sinks, s)
		}
	}

	return ms
}

// Write implements [Sink]. Every sink is attempted; failures are joined.
func (m *MultiSink) Write(ctx context.Context, r *dice.Report) error {
	var errs []error

	for _, s := range m.sinks {
		errs = append(errs, s.Write(ctx, r))
	}

	return errors.Join(errs...)
}

// Close implements [Sink].
func (m *MultiSink) Close() error {
	var errs []error

	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}

	return errors.Join(errs...)
}

// FileSink writes one file per crash into a directory, named after the
// crashing input.
type FileSink struct {
	dir   string
	codec persist.Codec
}

// NewFileSink creates a sink writing format ("json" or "yaml") into dir.
func NewFileSink(dir, format string) (*FileSink, error) {
	codec, err := persist.CodecFor(format)
	if err != nil {
		return nil, err
	}

	return &FileSink{dir: dir, codec: codec}, nil
}

// Path returns the file a report for crash is written to.
func (f *FileSink) Path(crash string) string {
	return filepath.Join(f.dir, filepath.Base(crash)+f.codec.Extension())
}

// Write implements [Sink].
func (f *FileSink) Write(_ context.Context, r *dice.Report) error {
	err := persist.WriteFile(f.Path(r.CrashingInput), f.codec, r)
	if err != nil {
		return fmt.Errorf("write report of %s: %w", filepath.Base(r.CrashingInput), err)
	}

	return nil
}

// Close implements [Sink].
func (f *FileSink) Close() error {
	return nil
}
