package windows

import "math"

// Clean drops rows with non-finite entries and their observations, keeping
// the two slices aligned. It returns the kept rows and the number dropped.
func Clean(rows [][]float64, obs []float64) ([][]float64, []float64, int) {
	n := len(rows)
	if len(obs) < n {
		n = len(obs)
	}
	outRows := make([][]float64, 0, n)
	outObs := make([]float64, 0, n)
	dropped := len(rows) - n
	for i := 0; i < n; i++ {
		if !finiteRow(rows[i]) || !finite(obs[i]) {
			dropped++
			continue
		}
		outRows = append(outRows, rows[i])
		outObs = append(outObs, obs[i])
	}
	return outRows, outObs, dropped
}

// Disagreement is the mean per-step standard deviation across experts. High
// disagreement windows are where aggregation earns its keep.
func Disagreement(rows [][]float64) float64 {
	if len(rows) == 0 {
		return 0
	}
	total := 0.0
	counted := 0
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(len(row))
		sum2 := 0.0
		for _, v := range row {
			d := v - mean
			sum2 += d * d
		}
		total += math.Sqrt(sum2 / float64(len(row)-1))
		counted++
	}
	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func finiteRow(row []float64) bool {
	if len(row) == 0 {
		return false
	}
	for _, v := range row {
		if !finite(v) {
			return false
		}
	}
	return true
}
