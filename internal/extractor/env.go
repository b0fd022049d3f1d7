package extractor

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"

	"github.com/Sumatoshi-tech/crashdice/pkg/corpus"
)

// signalExitBase is the shell's exit status offset for signal deaths.
const signalExitBase = 128

// sanitizerEnv returns the process environment with the sanitizer options
// variable replaced by the coverage settings for one run.
func sanitizerEnv(base []string, sanitizer string, sancovBug bool, input, dir string) []string {
	key := "UBSAN_OPTIONS"
	if strings.EqualFold(sanitizer, SanitizerASan) {
		key = "ASAN_OPTIONS"
	}

	opts := []string{"coverage=1"}

	if corpus.IsCrashName(input) {
		opts = append(opts, "coverage_direct=1")
	}

	if !sancovBug {
		opts = append(opts, "coverage_dir="+dir)
	}

	env := make([]string, 0, len(base)+1)

	for _, kv := range base {
		if !strings.HasPrefix(kv, key+"=") {
			env = append(env, kv)
		}
	}

	return append(env, key+"="+strings.Join(opts, ":"))
}

// crashVerdict classifies the result of cmd.Run. A nil error is a clean exit.
// An exit status above 128 or a death by signal is a crash. Errors other than
// a non-zero exit are returned.
func crashVerdict(runErr error) (bool, error) {
	if runErr == nil {
		return false, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return false, runErr
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return true, nil
	}

	return exitErr.ExitCode() > signalExitBase, nil
}
