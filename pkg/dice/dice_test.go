package dice_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

var (
	locA = coverage.Location{File: "a.c", Function: "fa", Line: 1, Column: 1}
	locB = coverage.Location{File: "b.c", Function: "fb", Line: 2, Column: 1}
	locC = coverage.Location{File: "c.c", Function: "fc", Line: 3, Column: 1}
)

func TestCounter_Ranked(t *testing.T) {
	t.Parallel()

	c := dice.NewCounter()
	c.AddSet(coverage.NewSet(locA, locB))
	c.AddSet(coverage.NewSet(locB, locC))

	ranked := c.Ranked()

	require.Equal(t, []dice.Entry{
		{Location: locB, Count: 2},
		{Location: locA, Count: 1},
		{Location: locC, Count: 1},
	}, ranked)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 2, c.Count(locB))
}

func TestCounter_RankedEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, dice.NewCounter().Ranked())
}

func TestCounter_TieBreakIsDeterministic(t *testing.T) {
	t.Parallel()

	c := dice.NewCounter()
	c.Add(locC)
	c.Add(locA)
	c.Add(locB)

	for range 10 {
		ranked := c.Ranked()
		require.Len(t, ranked, 3)
		assert.Equal(t, locA, ranked[0].Location)
		assert.Equal(t, locB, ranked[1].Location)
		assert.Equal(t, locC, ranked[2].Location)
	}
}

func TestSingles(t *testing.T) {
	t.Parallel()

	entries := dice.Singles(coverage.NewSet(locC, locA))

	assert.Equal(t, []dice.Entry{{Location: locA, Count: 1}, {Location: locC, Count: 1}}, entries)
}

func TestShrink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		slice, dice int
		want        float64
	}{
		{"half", 10, 5, 50},
		{"all kept", 4, 4, 0},
		{"nothing kept", 8, 0, 100},
		{"dice larger than baseline", 2, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := dice.Shrink(tt.slice, tt.dice)
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-9)
		})
	}
}

func TestShrink_UndefinedForEmptySlice(t *testing.T) {
	t.Parallel()

	assert.Nil(t, dice.Shrink(0, 0))
}

func TestNewReport_JSON(t *testing.T) {
	t.Parallel()

	ranked := []dice.Entry{{Location: locB, Count: 2}, {Location: locA, Count: 1}}
	r := dice.NewReport("/fuzz/s1/crashes/id:000000,sig:11,src:000001", "", ranked, 4)

	assert.Equal(t, "id:000000,sig:11,src:000001", r.CrashingInput)
	assert.Empty(t, r.ParentInput)
	assert.Equal(t, 2, r.DiceLineCount)
	assert.Equal(t, 2, r.Suspects())
	require.True(t, r.HasShrink())
	assert.InDelta(t, 50.0, *r.ShrinkPercent, 1e-9)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.NotContains(t, decoded, "parent-input")
	assert.Equal(t, "b.c:fb:2:1", decoded["diff-node-spec"].([]any)[0].(map[string]any)["line"])
	assert.InDelta(t, 4.0, decoded["slice-linecount"], 1e-9)
}

func TestNewReport_NullShrink(t *testing.T) {
	t.Parallel()

	r := dice.NewReport("crash", "parent", nil, 0)

	raw, err := json.Marshal(r)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"shrink-percent":null`)
	assert.Contains(t, string(raw), `"parent-input":"parent"`)
	assert.Contains(t, string(raw), `"diff-node-spec":[]`)
}

func TestNewReport_RecordsNames(t *testing.T) {
	t.Parallel()

	r := dice.NewReport("/fuzz/s1/crashes/s1:id:000003,sig:06,src:000002",
		"/fuzz/s1/queue/id:000002,src:000001,op:flip1", nil, 3)

	assert.Equal(t, "s1:id:000003,sig:06,src:000002", r.CrashingInput)
	assert.Equal(t, "id:000002,src:000001,op:flip1", r.ParentInput)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	reports := []*dice.Report{
		dice.NewReport("a", "", []dice.Entry{{Location: locA, Count: 1}}, 4),
		dice.NewReport("b", "", []dice.Entry{{Location: locA, Count: 1}, {Location: locB, Count: 1}}, 4),
		dice.NewReport("c", "", nil, 0),
	}

	st := dice.Summarize(reports)

	assert.Equal(t, 3, st.Reports)
	assert.Equal(t, 2, st.Defined)
	assert.InDelta(t, 62.5, st.Mean, 1e-9)
	assert.InDelta(t, 62.5, st.Median, 1e-9)
	assert.InDelta(t, 50.0, st.Min, 1e-9)
	assert.InDelta(t, 75.0, st.Max, 1e-9)
}
