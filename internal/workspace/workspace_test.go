package workspace_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/internal/workspace"
)

func TestNewLayout(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout("/fuzz")

	assert.Equal(t, "/fuzz/sancov", l.Root)
	assert.Equal(t, "/fuzz/sancov/delta-diff", l.DeltaDiff)
	assert.Equal(t, "/fuzz/sancov/delta-diff/.raw", l.Raw)
	assert.Equal(t, "/fuzz/sancov/delta-diff/.filter", l.FilterDir)
	assert.Equal(t, "/fuzz/sancov/crashdice.log", l.LogFile)
	assert.Equal(t, "/fuzz/sancov/crashdice-status.yaml", l.StatusPath())
}

func TestPrepare_CreatesDirectories(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())

	require.False(t, l.Exists())
	require.NoError(t, l.Prepare(false))
	assert.True(t, l.Exists())

	for _, dir := range []string{l.Root, l.DeltaDiff, l.Raw, l.FilterDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestPrepare_RefusesExisting(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())
	require.NoError(t, l.Prepare(false))
	require.NoError(t, l.WriteStatus(&workspace.Status{PID: 4242, StartedAt: time.Unix(0, 0).UTC()}))

	err := l.Prepare(false)

	require.ErrorIs(t, err, workspace.ErrWorkspaceExists)
	assert.Contains(t, err.Error(), "pid 4242")
}

func TestPrepare_OverwriteClearsPreviousRun(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())
	require.NoError(t, l.Prepare(false))

	stale := filepath.Join(l.DeltaDiff, "id:000000,sig:11,src:000000.json")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0o600))

	require.NoError(t, l.Prepare(true))

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	assert.True(t, l.Exists())
}

func TestStatus_RoundTrip(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())
	require.NoError(t, l.Prepare(false))

	st := &workspace.Status{
		PID:       1,
		Version:   "v0.1.0",
		Command:   []string{"crashdice", "run", "-d", "/fuzz"},
		FuzzDir:   "/fuzz",
		CrashDir:  "/fuzz/s1/crashes",
		DDNum:     2,
		RunID:     "run-1",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	require.NoError(t, l.WriteStatus(st))

	got, err := l.ReadStatus()
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestOpenLog_Appends(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())
	require.NoError(t, l.Prepare(false))

	for _, line := range []string{"first\n", "second\n"} {
		f, err := l.OpenLog()
		require.NoError(t, err)

		_, err = f.WriteString(line)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}

	data, err := os.ReadFile(l.LogFile)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestTempDir_UniqueUnderDeltaDiff(t *testing.T) {
	t.Parallel()

	l := workspace.NewLayout(t.TempDir())
	require.NoError(t, l.Prepare(false))

	a, err := l.TempDir()
	require.NoError(t, err)

	b, err := l.TempDir()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, l.DeltaDiff, filepath.Dir(a))
	assert.True(t, strings.HasPrefix(filepath.Base(a), "cov-"))
}

func TestFilter_MovesCrash(t *testing.T) {
	t.Parallel()

	fuzz := t.TempDir()
	l := workspace.NewLayout(fuzz)
	require.NoError(t, l.Prepare(false))

	crashDir := filepath.Join(fuzz, "s1", "crashes")
	require.NoError(t, os.MkdirAll(crashDir, 0o755))

	crash := filepath.Join(crashDir, "s1:id:000003,sig:06,src:000001")
	require.NoError(t, os.WriteFile(crash, []byte("boom"), 0o600))

	moved, err := l.Filter(crash)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(l.FilterDir, "s1:id:000003,sig:06,src:000001"), moved)

	_, statErr := os.Stat(crash)
	assert.True(t, os.IsNotExist(statErr))

	data, err := os.ReadFile(moved)
	require.NoError(t, err)
	assert.Equal(t, "boom", string(data))
}

func TestStash_PutRestore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "target.1234.sancov.raw")
	payload := bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 4096)

	require.NoError(t, os.WriteFile(src, payload, 0o600))

	stashDir := filepath.Join(dir, "stash")
	require.NoError(t, os.Mkdir(stashDir, 0o755))

	stashed, err := workspace.NewStash(stashDir, 0, nil).Put(src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(stashDir, "target.1234.sancov.raw.lz4"), stashed)

	info, err := os.Stat(stashed)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(len(payload)))

	var restored bytes.Buffer

	require.NoError(t, workspace.Restore(stashed, &restored))
	assert.Equal(t, payload, restored.Bytes())
}

func TestStash_SkipsOversized(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "big.sancov")
	require.NoError(t, os.WriteFile(src, make([]byte, 2048), 0o600))

	stashed, err := workspace.NewStash(dir, 1024, nil).Put(src)
	require.NoError(t, err)
	assert.Empty(t, stashed)

	_, statErr := os.Stat(src + workspace.StashExtension)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStash_NilIsNoop(t *testing.T) {
	t.Parallel()

	var s *workspace.Stash

	stashed, err := s.Put("/does/not/matter")
	require.NoError(t, err)
	assert.Empty(t, stashed)
}
