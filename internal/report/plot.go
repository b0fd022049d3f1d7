package report

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/crashdice/pkg/dice"
)

const (
	plotTopSuspects = 25
	plotXAxisRotate = 30
	plotHeight      = "500px"
)

// RenderPlot writes an HTML page with the shrink ratio of every report and
// the suspects shared by most crashes.
func RenderPlot(w io.Writer, reports []*dice.Report) error {
	stats := dice.Summarize(reports)

	page := components.NewPage()
	page.PageTitle = "crashdice"
	page.AddCharts(
		shrinkChart(reports, stats),
		suspectChart(RankAcross(reports)),
	)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func newBar(title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: plotHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			AxisLabel: &opts.AxisLabel{Rotate: plotXAxisRotate, Interval: "0"},
		}),
	)

	return bar
}

func shrinkChart(reports []*dice.Report, stats dice.Stats) *charts.Bar {
	labels := make([]string, 0, len(reports))
	data := make([]opts.BarData, 0, len(reports))

	for _, r := range reports {
		labels = append(labels, filepath.Base(r.CrashingInput))

		var value any = 0
		if r.ShrinkPercent != nil {
			value = *r.ShrinkPercent
		}

		data = append(data, opts.BarData{Name: FormatShrink(r.ShrinkPercent), Value: value})
	}

	subtitle := fmt.Sprintf("%d reports, mean %.2f%%, median %.2f%%", stats.Reports, stats.Mean, stats.Median)

	bar := newBar("Shrink per crash", subtitle)
	bar.SetXAxis(labels)
	bar.AddSeries("shrink %", data)

	return bar
}

func suspectChart(ranks []SuspectRank) *charts.Bar {
	if len(ranks) > plotTopSuspects {
		ranks = ranks[:plotTopSuspects]
	}

	labels := make([]string, len(ranks))
	crashes := make([]opts.BarData, len(ranks))
	hits := make([]opts.BarData, len(ranks))

	for i, sr := range ranks {
		labels[i] = sr.Line
		crashes[i] = opts.BarData{Value: sr.Crashes}
		hits[i] = opts.BarData{Value: sr.Hits}
	}

	bar := newBar("Top suspects", "locations shared by the most crashes")
	bar.SetXAxis(labels)
	bar.AddSeries("crashes", crashes)
	bar.AddSeries("hits", hits)

	return bar
}
