package windows

import (
	"math"
	"testing"
)

func TestCleanDropsNonFiniteRows(t *testing.T) {
	rows := [][]float64{
		{1, 2},
		{math.NaN(), 2},
		{1, math.Inf(1)},
		{3, 4},
	}
	obs := []float64{1, 1, 1, math.NaN()}

	outRows, outObs, dropped := Clean(rows, obs)
	if len(outRows) != 1 || len(outObs) != 1 {
		t.Fatalf("expected 1 clean row, got %d", len(outRows))
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped, got %d", dropped)
	}
	if outRows[0][0] != 1 || outRows[0][1] != 2 || outObs[0] != 1 {
		t.Fatalf("wrong row kept: %v %v", outRows[0], outObs[0])
	}
}

func TestCleanMisalignedLengths(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}}
	obs := []float64{1}

	outRows, outObs, dropped := Clean(rows, obs)
	if len(outRows) != 1 || len(outObs) != 1 {
		t.Fatalf("expected truncation to shorter side, got %d rows", len(outRows))
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
}

func TestDisagreement(t *testing.T) {
	// identical experts disagree by zero
	if d := Disagreement([][]float64{{2, 2, 2}, {5, 5, 5}}); d != 0 {
		t.Fatalf("expected 0 disagreement, got %v", d)
	}
	// rows {0,2}: stddev sqrt(2) each
	d := Disagreement([][]float64{{0, 2}, {0, 2}})
	if math.Abs(d-math.Sqrt2) > 1e-12 {
		t.Fatalf("expected sqrt(2), got %v", d)
	}
	if Disagreement(nil) != 0 {
		t.Fatalf("empty window must be 0")
	}
}
