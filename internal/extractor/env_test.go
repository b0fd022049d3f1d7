package extractor

import (
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizerEnv_QueueInput(t *testing.T) {
	t.Parallel()

	env := sanitizerEnv([]string{"PATH=/bin", "UBSAN_OPTIONS=halt_on_error=1"}, SanitizerUBSan, false,
		"id:000001,src:000000", "/tmp/w")

	assert.Equal(t, []string{"PATH=/bin", "UBSAN_OPTIONS=coverage=1:coverage_dir=/tmp/w"}, env)
}

func TestSanitizerEnv_CrashInputUsesDirectMode(t *testing.T) {
	t.Parallel()

	env := sanitizerEnv(nil, SanitizerASan, false, "s1:id:000000,sig:11,src:000001", "/tmp/w")

	assert.Equal(t, []string{"ASAN_OPTIONS=coverage=1:coverage_direct=1:coverage_dir=/tmp/w"}, env)
}

func TestSanitizerEnv_SancovBugOmitsDir(t *testing.T) {
	t.Parallel()

	env := sanitizerEnv(nil, "ASAN", true, "id:000001,src:000000", "/tmp/w")

	assert.Equal(t, []string{"ASAN_OPTIONS=coverage=1"}, env)
}

func TestCrashVerdict(t *testing.T) {
	t.Parallel()

	crashed, err := crashVerdict(nil)
	require.NoError(t, err)
	assert.False(t, crashed)

	crashed, err = crashVerdict(exec.Command("sh", "-c", "exit 1").Run())
	require.NoError(t, err)
	assert.False(t, crashed)

	crashed, err = crashVerdict(exec.Command("sh", "-c", "exit 134").Run())
	require.NoError(t, err)
	assert.True(t, crashed)

	crashed, err = crashVerdict(exec.Command("sh", "-c", "kill -SEGV $$").Run())
	require.NoError(t, err)
	assert.True(t, crashed)

	boom := errors.New("boom")

	_, err = crashVerdict(boom)
	require.ErrorIs(t, err, boom)
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/q/id:000001,src:000000,op:havoc", shellQuote("/q/id:000001,src:000000,op:havoc"))
	assert.Equal(t, `'/q/it'\''s here'`, shellQuote("/q/it's here"))
}
