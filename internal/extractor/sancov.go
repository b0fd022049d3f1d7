package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/crashdice/internal/observability"
	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
)

// Artifact suffixes written by the sanitizer coverage runtime.
const (
	sancovSuffix = ".sancov"
	rawSuffix    = ".sancov.raw"
	mapSuffix    = ".sancov.map"
)

// Crashes implements [Extractor]. The target runs with the caller's
// environment and no coverage collection.
func (e *SancovExtractor) Crashes(ctx context.Context, input string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, observability.SpanCrashes,
		trace.WithAttributes(attribute.String("input.name", filepath.Base(input))))
	defer span.End()

	cmd := e.shellCommand(ctx, input)

	crashed, err := crashVerdict(cmd.Run())
	if err == nil {
		// A cancelled run is killed by signal and must not read as a crash.
		err = ctx.Err()
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return false, fmt.Errorf("run target on %s: %w", filepath.Base(input), err)
	}

	span.SetAttributes(attribute.Bool("crashed", crashed))

	return crashed, nil
}

// Extract implements [Extractor].
func (e *SancovExtractor) Extract(ctx context.Context, input string) (coverage.Set, error) {
	name := filepath.Base(input)

	ctx, span := e.tracer.Start(ctx, observability.SpanExtract,
		trace.WithAttributes(attribute.String("input.name", name)))
	defer span.End()

	set, err := e.extract(ctx, input, name)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetAttributes(attribute.Int("coverage.lines", set.Len()))

	return set, nil
}

func (e *SancovExtractor) extract(ctx context.Context, input, name string) (coverage.Set, error) {
	dir, err := e.opts.WorkDir()
	if err != nil {
		return nil, err
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			e.logger.Warn("remove extraction dir", "dir", dir, "error", removeErr)
		}
	}()

	cmd := e.shellCommand(ctx, input)
	cmd.Env = sanitizerEnv(os.Environ(), e.opts.Sanitizer, e.opts.SancovBug, name, dir)

	// The verdict does not matter here: crashing inputs are expected to crash.
	_, runErr := crashVerdict(cmd.Run())
	if runErr != nil {
		return nil, fmt.Errorf("%w: run target on %s: %w", ErrExtractionFailure, name, runErr)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if e.opts.SancovBug {
		collectErr := collectStray(dir)
		if collectErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, collectErr)
		}
	}

	unpackErr := e.unpackRaw(ctx, dir)
	if unpackErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionFailure, unpackErr)
	}

	sancovFile, err := e.renameArtifact(dir, name)
	if err != nil {
		return nil, err
	}

	e.stash(sancovFile)

	set, err := e.symbolize(ctx, sancovFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtractionFailure, name, err)
	}

	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: %s: no covered lines", ErrExtractionFailure, name)
	}

	e.logger.DebugContext(ctx, "extracted coverage", "input", name, "lines", set.Len())

	return set, nil
}

func (e *SancovExtractor) shellCommand(ctx context.Context, input string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.opts.Shell, "-c", e.commandFor(input))
	cmd.Stdout = e.opts.Output
	cmd.Stderr = e.opts.Output

	return cmd
}

// collectStray moves artifacts left in the current directory into dir.
func collectStray(dir string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("locate stray artifacts: %w", err)
	}

	entries, err := os.ReadDir(cwd)
	if err != nil {
		return fmt.Errorf("locate stray artifacts: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isArtifact(entry.Name()) {
			continue
		}

		renameErr := os.Rename(filepath.Join(cwd, entry.Name()), filepath.Join(dir, entry.Name()))
		if renameErr != nil {
			return fmt.Errorf("collect %s: %w", entry.Name(), renameErr)
		}
	}

	return nil
}

func isArtifact(name string) bool {
	return strings.HasSuffix(name, sancovSuffix) ||
		strings.HasSuffix(name, rawSuffix) ||
		strings.HasSuffix(name, mapSuffix)
}

// unpackRaw converts the .sancov.raw/.sancov.map pairs written in direct
// mode into regular .sancov files, then drops the raw pair.
func (e *SancovExtractor) unpackRaw(ctx context.Context, dir string) error {
	raws, err := filepath.Glob(filepath.Join(dir, "*"+rawSuffix))
	if err != nil {
		return fmt.Errorf("glob raw artifacts: %w", err)
	}

	for _, raw := range raws {
		cmd := exec.CommandContext(ctx, e.opts.PySancov, "rawunpack", filepath.Base(raw))
		cmd.Dir = dir
		cmd.Stdout = e.opts.Output
		cmd.Stderr = e.opts.Output

		runErr := cmd.Run()
		if runErr != nil {
			return fmt.Errorf("rawunpack %s: %w", filepath.Base(raw), runErr)
		}

		mapFile := strings.TrimSuffix(raw, rawSuffix) + mapSuffix

		for _, path := range []string{raw, mapFile} {
			e.stash(path)

			removeErr := os.Remove(path)
			if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", filepath.Base(path), removeErr)
			}
		}
	}

	return nil
}

// renameArtifact finds the <bin>.<pid>.sancov file of the run and renames it
// after the input.
func (e *SancovExtractor) renameArtifact(dir, name string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrExtractionFailure, dir, err)
	}

	for _, entry := range entries {
		if !e.sancovRe.MatchString(entry.Name()) {
			continue
		}

		if entry.IsDir() {
			return "", fmt.Errorf("%w: %s is a directory", ErrExtractionFailure, entry.Name())
		}

		dst := filepath.Join(dir, name+sancovSuffix)

		renameErr := os.Rename(filepath.Join(dir, entry.Name()), dst)
		if renameErr != nil {
			return "", fmt.Errorf("%w: rename %s: %w", ErrExtractionFailure, entry.Name(), renameErr)
		}

		return dst, nil
	}

	return "", fmt.Errorf("%w: no sancov artifact for %s", ErrExtractionFailure, name)
}

func (e *SancovExtractor) stash(path string) {
	if e.opts.Stash == nil {
		return
	}

	_, err := e.opts.Stash.Put(path)
	if err != nil {
		e.logger.Warn("stash artifact", "path", path, "error", err)
	}
}

// symbolize runs "sancov -obj BIN -print FILE | llvm-symbolizer -obj BIN".
func (e *SancovExtractor) symbolize(ctx context.Context, sancovFile string) (coverage.Set, error) {
	var addrs bytes.Buffer

	printCmd := exec.CommandContext(ctx, e.opts.Sancov, "-obj", e.opts.BinPath, "-print", sancovFile)
	printCmd.Stdout = &addrs

	printErr := printCmd.Run()
	if printErr != nil {
		return nil, fmt.Errorf("sancov -print: %w", printErr)
	}

	var symbols bytes.Buffer

	symCmd := exec.CommandContext(ctx, e.opts.Symbolizer, "-obj", e.opts.BinPath)
	symCmd.Stdin = &addrs
	symCmd.Stdout = &symbols

	symErr := symCmd.Run()
	if symErr != nil {
		return nil, fmt.Errorf("llvm-symbolizer: %w", symErr)
	}

	return coverage.ParseSymbolized(&symbols)
}
