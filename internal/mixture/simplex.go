package mixture

import "sort"

// projectSimplex computes the Euclidean projection of v onto the probability
// simplex using the sort-and-threshold scheme. The input is not modified.
func projectSimplex(v []float64) []float64 {
	n := len(v)
	if n == 0 {
		return nil
	}
	u := make([]float64, n)
	copy(u, v)
	sort.Sort(sort.Reverse(sort.Float64Slice(u)))

	var cum float64
	rho, theta := -1, 0.0
	for i, ui := range u {
		cum += ui
		t := (cum - 1) / float64(i+1)
		if ui-t > 0 {
			rho = i
			theta = t
		}
	}
	if rho < 0 {
		// All mass below threshold; fall back to uniform.
		out := make([]float64, n)
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out
	}

	out := make([]float64, n)
	for i, vi := range v {
		if w := vi - theta; w > 0 {
			out[i] = w
		}
	}
	return out
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func uniform(k int) []float64 {
	w := make([]float64, k)
	for i := range w {
		w[i] = 1 / float64(k)
	}
	return w
}

func cloneFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
