package ancestry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/internal/ancestry"
)

type fakeChecker struct {
	crashing map[string]bool
	err      error
}

func (f fakeChecker) Crashes(_ context.Context, input string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}

	return f.crashing[filepath.Base(input)], nil
}

func put(t *testing.T, dir, name, content string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// corpus lays out a two-session sync directory:
//
//	s1/queue: 0 (seed) <- 1 <- 2, and 3 synced from s2's entry 5
//	s2/queue: 5 (seed)
//	s1/crashes: crash from entry 2
type fixture struct {
	root  string
	queue string
	crash string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	root := t.TempDir()
	queue := filepath.Join(root, "s1", "queue")

	put(t, queue, "id:000000,orig:seed", "seed")
	put(t, queue, "id:000001,src:000000,op:havoc", "gen1")
	put(t, queue, "id:000002,src:000001,op:flip1", "gen2")
	put(t, queue, "id:000003,sync:s2,src:000005", "synced")
	put(t, filepath.Join(root, "s2", "queue"), "id:000005,orig:other", "other")

	crash := put(t, filepath.Join(root, "s1", "crashes"), "s1:id:000000,sig:11,src:000002", "boom")

	return fixture{root: root, queue: queue, crash: crash}
}

func TestResolver_CrashParentInSessionQueue(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	r := ancestry.NewResolver(fx.root, nil)

	parent, err := r.Parent(fx.crash)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.queue, "id:000002,src:000001,op:flip1"), parent)
}

func TestResolver_CrashWithoutSession(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	crash := put(t, filepath.Join(fx.root, "s1", "crashes"), "id:000001,sig:11,src:000000", "x")

	_, err := ancestry.NewResolver(fx.root, nil).Parent(crash)
	require.ErrorIs(t, err, ancestry.ErrNoSession)
}

func TestResolver_QueueParentInOwnDir(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	parent, err := ancestry.NewResolver(fx.root, nil).Parent(filepath.Join(fx.queue, "id:000001,src:000000,op:havoc"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.queue, "id:000000,orig:seed"), parent)
}

func TestResolver_SyncedParent(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	parent, err := ancestry.NewResolver(fx.root, nil).Parent(filepath.Join(fx.queue, "id:000003,sync:s2,src:000005"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.root, "s2", "queue", "id:000005,orig:other"), parent)
}

func TestResolver_NotFound(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	r := ancestry.NewResolver(fx.root, nil)

	orphan := put(t, fx.queue, "id:000009,src:000042", "orphan")

	_, err := r.Parent(orphan)
	require.ErrorIs(t, err, ancestry.ErrNotFound)

	_, err = r.Parent(filepath.Join(fx.queue, "id:000000,orig:seed"))
	require.ErrorIs(t, err, ancestry.ErrNotFound, "seeds carry no lineage")

	missing := put(t, filepath.Join(fx.root, "s9", "crashes"), "s9:id:000000,sig:06,src:000000", "x")

	_, err = r.Parent(missing)
	require.ErrorIs(t, err, ancestry.ErrNotFound, "session queue does not exist")
}

func TestResolver_AmbiguousTakesFirst(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	put(t, fx.queue, "id:000002,src:000000,op:arith8", "dup")

	parent, err := ancestry.NewResolver(fx.root, nil).Parent(fx.crash)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fx.queue, "id:000002,src:000000,op:arith8"), parent)
}

func TestGate_Validate(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	gate := ancestry.NewGate(fakeChecker{crashing: map[string]bool{"id:000001,src:000000,op:havoc": true}})
	ctx := context.Background()

	require.NoError(t, gate.Validate(ctx, fx.crash, filepath.Join(fx.queue, "id:000002,src:000001,op:flip1")))

	tests := []struct {
		name      string
		candidate string
		reason    ancestry.Reason
	}{
		{"crash name", put(t, fx.queue, "s1:id:000004,sig:06,src:000000", "other"), ancestry.ReasonCrashName},
		{"identical", put(t, fx.queue, "id:000007,src:000002", "boom"), ancestry.ReasonIdentical},
		{"crashes", filepath.Join(fx.queue, "id:000001,src:000000,op:havoc"), ancestry.ReasonCrashes},
	}

	for _, tt := range tests {
		err := gate.Validate(ctx, fx.crash, tt.candidate)
		require.ErrorIs(t, err, ancestry.ErrRejected, tt.name)

		var rejected *ancestry.RejectedError
		require.ErrorAs(t, err, &rejected, tt.name)
		assert.Equal(t, tt.reason, rejected.Reason, tt.name)
		assert.Equal(t, tt.candidate, rejected.Path, tt.name)
	}
}

func TestGate_CheckerError(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	boom := errors.New("exec failed")
	gate := ancestry.NewGate(fakeChecker{err: boom})

	err := gate.Validate(context.Background(), fx.crash, filepath.Join(fx.queue, "id:000002,src:000001,op:flip1"))
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ancestry.ErrRejected)
}

func TestLineage_ClimbsToSeed(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	lineage := ancestry.NewLineage(ancestry.NewResolver(fx.root, nil), ancestry.NewGate(fakeChecker{}), fx.crash, 16)
	ctx := context.Background()

	var got []string

	for {
		parent, err := lineage.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, ancestry.ErrNotFound)

			break
		}

		got = append(got, filepath.Base(parent))
	}

	assert.Equal(t, []string{
		"id:000002,src:000001,op:flip1",
		"id:000001,src:000000,op:havoc",
		"id:000000,orig:seed",
	}, got)
	assert.Equal(t, 3, lineage.Depth())
	assert.Empty(t, lineage.Rejected())
}

func TestLineage_SkipsRejected(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	checker := fakeChecker{crashing: map[string]bool{"id:000002,src:000001,op:flip1": true}}
	lineage := ancestry.NewLineage(ancestry.NewResolver(fx.root, nil), ancestry.NewGate(checker), fx.crash, 16)

	parent, err := lineage.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "id:000001,src:000000,op:havoc", filepath.Base(parent))

	require.Len(t, lineage.Rejected(), 1)
	assert.Equal(t, ancestry.ReasonCrashes, lineage.Rejected()[0].Reason)
}

func TestLineage_DepthBound(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	lineage := ancestry.NewLineage(ancestry.NewResolver(fx.root, nil), ancestry.NewGate(fakeChecker{}), fx.crash, 1)
	ctx := context.Background()

	_, err := lineage.Next(ctx)
	require.NoError(t, err)

	_, err = lineage.Next(ctx)
	require.ErrorIs(t, err, ancestry.ErrAncestryExhausted)
}

func TestLineage_SelfReferentialChain(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	queue := filepath.Join(root, "s1", "queue")
	put(t, queue, "id:000001,src:000001", "loop")
	crash := put(t, filepath.Join(root, "s1", "crashes"), "s1:id:000000,sig:11,src:000001", "boom")

	lineage := ancestry.NewLineage(ancestry.NewResolver(root, nil), ancestry.NewGate(fakeChecker{}), crash, 256)
	ctx := context.Background()

	parent, err := lineage.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id:000001,src:000001", filepath.Base(parent))

	_, err = lineage.Next(ctx)
	require.ErrorIs(t, err, ancestry.ErrAncestryExhausted)
}

func TestLineage_Canceled(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	lineage := ancestry.NewLineage(ancestry.NewResolver(fx.root, nil), ancestry.NewGate(fakeChecker{}), fx.crash, 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := lineage.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
