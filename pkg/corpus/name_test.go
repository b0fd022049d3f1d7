package corpus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/pkg/corpus"
)

func TestParse_Crash(t *testing.T) {
	t.Parallel()

	name, err := corpus.Parse("sess1:id:000002,sig:11,sync:peer,src:000001")
	require.NoError(t, err)

	assert.Equal(t, corpus.KindCrash, name.Kind)
	assert.Equal(t, "sess1", name.Session)
	assert.Equal(t, "peer", name.Sync)
	assert.Equal(t, 2, name.ID)
	assert.Equal(t, 11, name.Signal)
	assert.Equal(t, 1, name.Source)
	assert.True(t, name.HasSource())
}

func TestParse_CrashWithoutSession(t *testing.T) {
	t.Parallel()

	name, err := corpus.Parse("id:000001,sig:11,src:000000")
	require.NoError(t, err)

	assert.Equal(t, corpus.KindCrash, name.Kind)
	assert.Empty(t, name.Session)
	assert.Equal(t, 0, name.Source)
	assert.True(t, name.HasSource())
}

func TestParse_HardenedCrash(t *testing.T) {
	t.Parallel()

	name, err := corpus.Parse("HARDEN:0001,fuzzer01:id:000007,sig:06,src:000003,op:havoc,rep:4")
	require.NoError(t, err)

	assert.Equal(t, corpus.KindCrash, name.Kind)
	assert.Equal(t, "HARDEN:", name.Tag)
	assert.Equal(t, "fuzzer01", name.Session)
	assert.Equal(t, 7, name.ID)
	assert.Equal(t, 3, name.Source)
}

func TestParse_Queue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		basename string
		sync     string
		id       int
		source   int
	}{
		{"plain", "id:000005,src:000002,op:flip1,pos:0", "", 5, 2},
		{"synced", "id:000012,sync:fuzzer02,src:000040", "fuzzer02", 12, 40},
		{"dashed sync", "id:000001,sync:slave-1,src:000000", "slave-1", 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			name, err := corpus.Parse(tt.basename)
			require.NoError(t, err)

			assert.Equal(t, corpus.KindQueue, name.Kind)
			assert.Equal(t, tt.sync, name.Sync)
			assert.Equal(t, tt.id, name.ID)
			assert.Equal(t, tt.source, name.Source)
			assert.True(t, name.HasSource())
		})
	}
}

func TestParse_NoLineage(t *testing.T) {
	t.Parallel()

	name, err := corpus.Parse("id:000000,orig:seed.txt")
	require.NoError(t, err)

	assert.Equal(t, corpus.KindQueue, name.Kind)
	assert.Equal(t, 0, name.ID)
	assert.False(t, name.HasSource())
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	for _, basename := range []string{"", "README.txt", "crash-1234", ".state"} {
		_, err := corpus.Parse(basename)
		require.ErrorIs(t, err, corpus.ErrMalformedName, basename)
	}
}

func TestIsCrashName(t *testing.T) {
	t.Parallel()

	assert.True(t, corpus.IsCrashName("id:000000,sig:11,src:000000,op:havoc"))
	assert.True(t, corpus.IsCrashName("ASAN:1,s1:id:000000,sig:06,src:000004"))
	assert.False(t, corpus.IsCrashName("id:000000,src:000000"))
	assert.False(t, corpus.IsCrashName("id:000000,orig:a"))
}

func TestID(t *testing.T) {
	t.Parallel()

	id, ok := corpus.ID("id:000042,src:000001,op:havoc")
	require.True(t, ok)
	assert.Equal(t, 42, id)

	_, ok = corpus.ID("README.txt")
	assert.False(t, ok)

	_, ok = corpus.ID("s1:id:000042,sig:11,src:000001")
	assert.False(t, ok, "only the leading id of a queue entry counts")
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "crash", corpus.KindCrash.String())
	assert.Equal(t, "queue", corpus.KindQueue.String())
}
