// Package extractor runs a sanitizer-instrumented target on one input and
// turns the sancov artifacts it leaves behind into a [coverage.Set].
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
)

// Placeholder is replaced with the input path in the coverage command.
const Placeholder = "AFL_FILE"

// Sanitizer runtimes whose options variable carries the coverage settings.
const (
	SanitizerASan  = "asan"
	SanitizerUBSan = "ubsan"
)

var (
	// ErrExtractionFailure is returned when no coverage could be obtained.
	ErrExtractionFailure = errors.New("coverage extraction failed")
	// ErrMissingPlaceholder is returned for a coverage command without AFL_FILE.
	ErrMissingPlaceholder = errors.New("coverage command must contain " + Placeholder)
	// ErrMissingTool is returned when a required program cannot be executed.
	ErrMissingTool = errors.New("required tool not found")
)

// Extractor is the coverage collaborator of the localization engine.
type Extractor interface {
	// Extract executes the target on input and returns the covered locations.
	Extract(ctx context.Context, input string) (coverage.Set, error)
	// Crashes executes the target on input without coverage and reports
	// whether it terminated by a signal.
	Crashes(ctx context.Context, input string) (bool, error)
}

// Stasher keeps copies of raw coverage artifacts.
type Stasher interface {
	Put(path string) (string, error)
}

// Options configures a [SancovExtractor].
type Options struct {
	// Command is the shell command line of the target with the input
	// replaced by [Placeholder].
	Command string
	// BinPath is the instrumented binary passed to sancov and llvm-symbolizer.
	BinPath string

	Sancov     string
	PySancov   string
	Symbolizer string
	Shell      string

	// Sanitizer selects ASAN_OPTIONS or UBSAN_OPTIONS.
	Sanitizer string
	// SancovBug works around runtimes that ignore coverage_dir: artifacts are
	// collected from the current directory instead.
	SancovBug bool

	// WorkDir creates a fresh directory for one extraction. Nil uses the
	// system temporary directory.
	WorkDir func() (string, error)
	// Stash receives raw artifacts before they are removed. Optional.
	Stash Stasher
	// Output receives the target's stdout and stderr. Nil discards them.
	Output io.Writer

	Logger *slog.Logger
	Tracer trace.Tracer
}

// Validate checks the command template and that every tool can be executed.
func (o Options) Validate() error {
	if !strings.Contains(o.Command, Placeholder) {
		return ErrMissingPlaceholder
	}

	if o.BinPath == "" {
		return fmt.Errorf("%w: instrumented binary path is empty", ErrMissingTool)
	}

	for _, tool := range []string{o.BinPath, o.Sancov, o.PySancov, o.Symbolizer, o.Shell} {
		_, err := exec.LookPath(tool)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrMissingTool, tool, err)
		}
	}

	return nil
}

// SancovExtractor implements [Extractor] on top of the sanitizer coverage
// runtime, sancov, pysancov and llvm-symbolizer.
type SancovExtractor struct {
	opts     Options
	sancovRe *regexp.Regexp
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewSancovExtractor creates an extractor. Tools are not looked up here; call
// [Options.Validate] first for a startup check.
func NewSancovExtractor(opts Options) (*SancovExtractor, error) {
	if !strings.Contains(opts.Command, Placeholder) {
		return nil, ErrMissingPlaceholder
	}

	if opts.Shell == "" {
		opts.Shell = "bash"
	}

	if opts.WorkDir == nil {
		opts.WorkDir = func() (string, error) {
			return os.MkdirTemp("", "crashdice-cov-*")
		}
	}

	if opts.Output == nil {
		opts.Output = io.Discard
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer("crashdice")
	}

	binName := filepath.Base(opts.BinPath)

	return &SancovExtractor{
		opts:     opts,
		sancovRe: regexp.MustCompile(`^` + regexp.QuoteMeta(binName) + `\.\d+\.sancov$`),
		logger:   logger,
		tracer:   tracer,
	}, nil
}

// commandFor substitutes input into the coverage command.
func (e *SancovExtractor) commandFor(input string) string {
	return strings.ReplaceAll(e.opts.Command, Placeholder, shellQuote(input))
}

// safeShellRe matches paths that need no quoting. AFL names stay inside it.
var safeShellRe = regexp.MustCompile(`^[\w@%+=:,./-]+$`)

func shellQuote(s string) string {
	if safeShellRe.MatchString(s) {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
