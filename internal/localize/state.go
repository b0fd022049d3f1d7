package localize

import (
	"github.com/Sumatoshi-tech/crashdice/internal/ancestry"
	"github.com/Sumatoshi-tech/crashdice/pkg/coverage"
	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

// State is the step a crash file has reached.
type State int

// Per-file states, in processing order. StateFiltered is terminal for
// crashes that do not reproduce.
const (
	StateInit State = iota
	StateParentLookup
	StateParentValidate
	StateCoverageExtract
	StateDiff
	StateReport
	StateDone
	StateFiltered
)

var stateNames = [...]string{
	StateInit:            "init",
	StateParentLookup:    "parent-lookup",
	StateParentValidate:  "parent-validate",
	StateCoverageExtract: "coverage-extract",
	StateDiff:            "diff",
	StateReport:          "report",
	StateDone:            "done",
	StateFiltered:        "filtered",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// fileContext is the aggregation state of one crash file.
type fileContext struct {
	crash     string
	state     State
	lineage   *ancestry.Lineage
	counter   *dice.Counter
	crashCov  coverage.Set
	ancestors int
}

func (fc *fileContext) enter(s State) {
	fc.state = s
}
