package report

import (
	"cmp"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

// notAvailable is printed for an undefined shrink ratio.
const notAvailable = "N/A"

// FormatShrink renders a shrink ratio as a percentage.
func FormatShrink(p *float64) string {
	if p == nil {
		return notAvailable
	}

	return strconv.FormatFloat(*p, 'f', 2, 64) + "%"
}

// RankAcross aggregates the suspects of many reports the way
// [Ledger.TopSuspects] does.
func RankAcross(reports []*dice.Report) []SuspectRank {
	index := make(map[string]*SuspectRank)

	for _, r := range reports {
		for _, node := range r.DiffNodeSpec {
			sr, ok := index[node.Line]
			if !ok {
				sr = &SuspectRank{Line: node.Line}
				index[node.Line] = sr
			}

			sr.Crashes++
			sr.Hits += node.Count
		}
	}

	ranks := make([]SuspectRank, 0, len(index))

	for _, sr := range index {
		ranks = append(ranks, *sr)
	}

	slices.SortFunc(ranks, func(a, b SuspectRank) int {
		if c := cmp.Compare(b.Crashes, a.Crashes); c != 0 {
			return c
		}

		if c := cmp.Compare(b.Hits, a.Hits); c != 0 {
			return c
		}

		return cmp.Compare(a.Line, b.Line)
	})

	return ranks
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	return tbl
}

// RenderTable writes a report as a summary followed by its suspect table.
// limit caps the number of rows; zero or less prints all of them.
func RenderTable(w io.Writer, r *dice.Report, limit int) error {
	_, err := fmt.Fprintf(w, "Crash:  %s\n", filepath.Base(r.CrashingInput))
	if err != nil {
		return err
	}

	if r.ParentInput != "" {
		_, err = fmt.Fprintf(w, "Parent: %s\n", filepath.Base(r.ParentInput))
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(w, "Slice:  %s lines\nDice:   %s lines\nShrink: %s\n\n",
		humanize.Comma(int64(r.SliceLineCount)), humanize.Comma(int64(r.DiceLineCount)), FormatShrink(r.ShrinkPercent))
	if err != nil {
		return err
	}

	nodes := r.DiffNodeSpec
	if limit > 0 && len(nodes) > limit {
		nodes = nodes[:limit]
	}

	tbl := newTable()
	tbl.AppendHeader(table.Row{"#", "Location", "Count"})

	for i, node := range nodes {
		tbl.AppendRow(table.Row{i + 1, node.Line, node.Count})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d of %s suspects", len(nodes), humanize.Comma(int64(len(r.DiffNodeSpec)))), ""})

	_, err = fmt.Fprintln(w, tbl.Render())

	return err
}

// RenderRanks writes a cross-crash suspect ranking.
func RenderRanks(w io.Writer, ranks []SuspectRank) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"#", "Location", "Crashes", "Hits"})

	for i, sr := range ranks {
		tbl.AppendRow(table.Row{i + 1, sr.Line, humanize.Comma(int64(sr.Crashes)), humanize.Comma(int64(sr.Hits))})
	}

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

// RenderRuns writes the run list of a ledger.
func RenderRuns(w io.Writer, runs []Run) error {
	tbl := newTable()
	tbl.AppendHeader(table.Row{"Run", "Started", "Crash dir", "dd-num", "Reports"})

	for _, run := range runs {
		tbl.AppendRow(table.Row{run.ID, humanize.Time(run.StartedAt), run.CrashDir, run.DDNum, run.Reports})
	}

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}
