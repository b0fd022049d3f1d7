package ancestry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/crashdice/pkg/corpus"
)

// ErrRejected marks a candidate ancestor that failed validation.
var ErrRejected = errors.New("ancestor rejected")

// Reason explains why a candidate was rejected.
type Reason string

// Rejection reasons.
const (
	ReasonCrashName Reason = "crash-name"
	ReasonIdentical Reason = "identical"
	ReasonCrashes   Reason = "crashes"
)

// RejectedError carries the candidate and the reason. It matches ErrRejected.
type RejectedError struct {
	Path   string
	Reason Reason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrRejected, e.Reason, filepath.Base(e.Path))
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// CrashChecker runs the target on an input and reports whether it crashed.
type CrashChecker interface {
	Crashes(ctx context.Context, input string) (bool, error)
}

// Gate decides whether a candidate may serve as an ancestor of a crash.
type Gate struct {
	checker CrashChecker
}

// NewGate creates a gate backed by checker.
func NewGate(checker CrashChecker) *Gate {
	return &Gate{checker: checker}
}

// Validate returns nil for a usable candidate and a [*RejectedError] for an
// unusable one. Other errors come from reading files or running the target.
func (g *Gate) Validate(ctx context.Context, crash, candidate string) error {
	if corpus.IsCrashName(filepath.Base(candidate)) {
		return &RejectedError{Path: candidate, Reason: ReasonCrashName}
	}

	same, err := sameContent(crash, candidate)
	if err != nil {
		return err
	}

	if same {
		return &RejectedError{Path: candidate, Reason: ReasonIdentical}
	}

	crashes, err := g.checker.Crashes(ctx, candidate)
	if err != nil {
		return fmt.Errorf("check %s: %w", filepath.Base(candidate), err)
	}

	if crashes {
		return &RejectedError{Path: candidate, Reason: ReasonCrashes}
	}

	return nil
}

func sameContent(a, b string) (bool, error) {
	infoA, err := os.Stat(a)
	if err != nil {
		return false, fmt.Errorf("compare inputs: %w", err)
	}

	infoB, err := os.Stat(b)
	if err != nil {
		return false, fmt.Errorf("compare inputs: %w", err)
	}

	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	dataA, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("compare inputs: %w", err)
	}

	dataB, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("compare inputs: %w", err)
	}

	return bytes.Equal(dataA, dataB), nil
}
