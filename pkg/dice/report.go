package dice

import (
	"path/filepath"

	"github.com/Sumatoshi-tech/crashdice/pkg/mathutil"
)

// shrinkScale converts the kept fraction into a percentage.
const shrinkScale = 100.0

// Node is one line of a report's diff-node-spec.
type Node struct {
	Line  string `json:"line" yaml:"line"`
	Count int    `json:"count" yaml:"count"`
}

// Report is the delta report written for one crashing input.
type Report struct {
	CrashingInput  string   `json:"crashing-input" yaml:"crashing-input"`
	ParentInput    string   `json:"parent-input,omitempty" yaml:"parent-input,omitempty"`
	DiffNodeSpec   []Node   `json:"diff-node-spec" yaml:"diff-node-spec"`
	SliceLineCount int      `json:"slice-linecount" yaml:"slice-linecount"`
	DiceLineCount  int      `json:"dice-linecount" yaml:"dice-linecount"`
	ShrinkPercent  *float64 `json:"shrink-percent" yaml:"shrink-percent"`
}

// NewReport builds the report of crash from ranked suspects. slice is the size
// of the baseline coverage set; parent is empty in N-ancestor mode. Inputs are
// recorded by name only.
func NewReport(crash, parent string, ranked []Entry, slice int) *Report {
	if parent != "" {
		parent = filepath.Base(parent)
	}

	nodes := make([]Node, len(ranked))

	for i, e := range ranked {
		nodes[i] = Node{Line: e.Location.String(), Count: e.Count}
	}

	return &Report{
		CrashingInput:  filepath.Base(crash),
		ParentInput:    parent,
		DiffNodeSpec:   nodes,
		SliceLineCount: slice,
		DiceLineCount:  len(ranked),
		ShrinkPercent:  Shrink(slice, len(ranked)),
	}
}

// Shrink returns 100*(1-dice/slice) clamped into [0, 100], or nil when the
// slice is empty and the ratio is undefined.
func Shrink(slice, dice int) *float64 {
	if slice <= 0 {
		return nil
	}

	v := mathutil.Clamp(shrinkScale*(1-float64(dice)/float64(slice)), 0, shrinkScale)

	return &v
}

// Suspects returns the number of diff-node-spec lines.
func (r *Report) Suspects() int {
	return len(r.DiffNodeSpec)
}

// HasShrink reports whether the shrink ratio is defined.
func (r *Report) HasShrink() bool {
	return r.ShrinkPercent != nil
}
