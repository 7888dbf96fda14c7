package amrsweep

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds the post-sweep AMR figures. AMRRatio is (max-min)/mean as a fraction.
type Summary struct {
	AMR        float64 `json:"amr"`
	AMRRatio   float64 `json:"amr_ratio"`
	AngleAtMax float64 `json:"angle_at_max"`
	AngleAtMin float64 `json:"angle_at_min"`
	Mean       float64 `json:"mean"`
	Max        float64 `json:"max"`
	Min        float64 `json:"min"`
}

// Summarize computes AMR statistics over every recorded row, both legs included.
func Summarize(rows []DataRow) (Summary, error) {
	if len(rows) == 0 {
		return Summary{}, ErrEmptyTable
	}
	angles := make([]float64, len(rows))
	r := make([]float64, len(rows))
	for i, row := range rows {
		angles[i] = row.Angle
		r[i] = row.Resistance
	}

	maxIdx := floats.MaxIdx(r)
	minIdx := floats.MinIdx(r)
	mean := stat.Mean(r, nil)
	if mean == 0 {
		return Summary{}, fmt.Errorf("mean resistance is zero")
	}
	amr := r[maxIdx] - r[minIdx]

	return Summary{
		AMR:        amr,
		AMRRatio:   amr / mean,
		AngleAtMax: angles[maxIdx],
		AngleAtMin: angles[minIdx],
		Mean:       mean,
		Max:        r[maxIdx],
		Min:        r[minIdx],
	}, nil
}

// Lines renders the summary the way it is printed at the end of a run.
func (s Summary) Lines() []string {
	return []string{
		fmt.Sprintf("|AMR| = %.3e", s.AMR),
		fmt.Sprintf("AMR%% = %.3e", s.AMRRatio),
		fmt.Sprintf("angle[argmax(r)] = %v", s.AngleAtMax),
		fmt.Sprintf("angle[argmin(r)] = %v", s.AngleAtMin),
	}
}

// formatRuntime prints whole minutes and seconds, e.g. "3 min 7 sec".
func formatRuntime(d time.Duration) string {
	s := int(d.Seconds())
	return fmt.Sprintf("%d min %d sec", s/60, s%60)
}
