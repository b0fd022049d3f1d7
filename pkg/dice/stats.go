package dice

import (
	"slices"

	"github.com/Sumatoshi-tech/crashdice/pkg/mathutil"
)

// Stats summarizes the shrink ratios of a batch of reports.
type Stats struct {
	Reports int
	Defined int
	Mean    float64
	Median  float64
	Min     float64
	Max     float64
}

// Summarize computes shrink statistics over reports. Reports without a
// defined shrink ratio are counted but do not contribute to the figures.
func Summarize(reports []*Report) Stats {
	values := make([]float64, 0, len(reports))

	for _, r := range reports {
		if r.HasShrink() {
			values = append(values, *r.ShrinkPercent)
		}
	}

	st := Stats{Reports: len(reports), Defined: len(values)}
	if len(values) == 0 {
		return st
	}

	slices.Sort(values)

	st.Min = values[0]
	st.Max = values[len(values)-1]
	st.Mean = mathutil.Mean(values)
	st.Median = mathutil.Median(values)

	return st
}
