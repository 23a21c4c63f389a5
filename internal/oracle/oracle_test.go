package oracle

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"ForecastMix/internal/mixture"
)

func squareLoss() mixture.LossFunction {
	return mixture.LossFunction{Kind: mixture.LossSquare}
}

func TestBestExpertScenario(t *testing.T) {
	rows := [][]float64{{1, 3}, {1, 3}, {1, 3}}
	obs := []float64{1, 1, 1}

	res, err := Compute(context.Background(), rows, obs, squareLoss(), BestExpert)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if res.Expert != 0 {
		t.Errorf("best expert %d, want 0", res.Expert)
	}
	if res.CumulativeLoss != 0 {
		t.Errorf("best expert cumulative loss %v, want 0", res.CumulativeLoss)
	}
	if !reflect.DeepEqual(res.Weights, []float64{1, 0}) {
		t.Errorf("best expert weights %v", res.Weights)
	}
}

func TestUniformOracle(t *testing.T) {
	rows := [][]float64{{1, 3}, {2, 4}}
	obs := []float64{2, 3}

	res, err := Compute(context.Background(), rows, obs, squareLoss(), Uniform)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	for _, w := range res.Weights {
		if w != 0.5 {
			t.Errorf("uniform weights %v", res.Weights)
		}
	}
	// Uniform mean is exactly the observation both steps.
	if res.CumulativeLoss != 0 {
		t.Errorf("uniform cumulative loss %v, want 0", res.CumulativeLoss)
	}
}

func TestConvexOracleRecoversMixingWeights(t *testing.T) {
	// Observations are the fixed convex combination 0.25*e0 + 0.75*e1, so the
	// convex oracle should recover those weights with near-zero loss.
	rows := [][]float64{{1, 3}, {2, 1}, {0, 4}, {3, 2}, {1, 0}, {2, 5}}
	obs := make([]float64, len(rows))
	for i, r := range rows {
		obs[i] = 0.25*r[0] + 0.75*r[1]
	}

	res, err := Compute(context.Background(), rows, obs, squareLoss(), Convex)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(res.Weights[0]-0.25) > 1e-6 || math.Abs(res.Weights[1]-0.75) > 1e-6 {
		t.Errorf("convex weights %v, want [0.25 0.75]", res.Weights)
	}
	if res.CumulativeLoss > 1e-9 {
		t.Errorf("convex cumulative loss %v, want ~0", res.CumulativeLoss)
	}
	var sum float64
	for _, w := range res.Weights {
		if w < -1e-9 {
			t.Errorf("negative convex weight %v", w)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("convex weights sum to %v", sum)
	}
}

func TestConvexOracleClampsToSimplex(t *testing.T) {
	// The unconstrained optimum is 2*e0 - e1; on the simplex all mass should
	// end up on the better expert.
	rows := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}, {0.5, 2}}
	obs := make([]float64, len(rows))
	for i, r := range rows {
		obs[i] = 2*r[0] - r[1]
	}
	res, err := Compute(context.Background(), rows, obs, squareLoss(), Convex)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	var sum float64
	for _, w := range res.Weights {
		if w < -1e-9 {
			t.Errorf("negative convex weight in %v", res.Weights)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("convex weights sum to %v", sum)
	}
}

func TestLinearOracleExactRecovery(t *testing.T) {
	rows := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}, {0.5, 2}, {3, 0.5}}
	obs := make([]float64, len(rows))
	for i, r := range rows {
		obs[i] = 2*r[0] - r[1]
	}
	res, err := Compute(context.Background(), rows, obs, squareLoss(), Linear)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(res.Weights[0]-2) > 1e-4 || math.Abs(res.Weights[1]+1) > 1e-4 {
		t.Errorf("linear weights %v, want [2 -1]", res.Weights)
	}
	if res.CumulativeLoss > 1e-6 {
		t.Errorf("linear cumulative loss %v, want ~0", res.CumulativeLoss)
	}
}

func TestConvexOracleAbsoluteLoss(t *testing.T) {
	// Expert 0 matches the observations exactly; the LP should put all the
	// mass there and reach zero loss.
	rows := [][]float64{{1, 3}, {2, 0}, {1.5, 4}, {0.5, 1}}
	obs := []float64{1, 2, 1.5, 0.5}
	loss := mixture.LossFunction{Kind: mixture.LossAbsolute}

	res, err := Compute(context.Background(), rows, obs, loss, Convex)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if math.Abs(res.Weights[0]-1) > 1e-6 {
		t.Errorf("absolute-loss convex weights %v, want mass on expert 0", res.Weights)
	}
	if res.CumulativeLoss > 1e-9 {
		t.Errorf("absolute-loss cumulative loss %v, want 0", res.CumulativeLoss)
	}
}

func TestPinballOracleQuantile(t *testing.T) {
	// With a constant expert pair bracketing the observations, the pinball
	// LP picks the combination matching the tau-quantile tradeoff; sanity
	// check that it is feasible, on the simplex, and deterministic.
	rows := [][]float64{{0, 10}, {0, 10}, {0, 10}, {0, 10}}
	obs := []float64{2, 4, 6, 8}
	loss := mixture.LossFunction{Kind: mixture.LossPinball, Tau: 0.5}

	a, err := Compute(context.Background(), rows, obs, loss, Convex)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(context.Background(), rows, obs, loss, Convex)
	if err != nil {
		t.Fatalf("Compute again: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("pinball oracle is not deterministic: %+v vs %+v", a, b)
	}
	var sum float64
	for _, w := range a.Weights {
		if w < -1e-9 {
			t.Errorf("negative pinball weight in %v", a.Weights)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("pinball weights sum to %v", sum)
	}
}

func TestOracleIdempotent(t *testing.T) {
	rows := [][]float64{{1, 3}, {2, 1}, {0.5, 2}, {1.5, 1.5}}
	obs := []float64{1.2, 1.5, 1, 1.4}
	for _, kind := range []Kind{BestExpert, Uniform, Convex, Linear} {
		a, err := Compute(context.Background(), rows, obs, squareLoss(), kind)
		if err != nil {
			t.Fatalf("%s: Compute: %v", kind, err)
		}
		b, err := Compute(context.Background(), rows, obs, squareLoss(), kind)
		if err != nil {
			t.Fatalf("%s: Compute again: %v", kind, err)
		}
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%s: oracle not deterministic: %+v vs %+v", kind, a, b)
		}
	}
}

func TestOracleInfeasible(t *testing.T) {
	obs := []float64{1, 2}
	if _, err := Compute(context.Background(), nil, obs, squareLoss(), BestExpert); !errors.Is(err, ErrInfeasible) {
		t.Errorf("empty matrix: expected ErrInfeasible, got %v", err)
	}
	if _, err := Compute(context.Background(), [][]float64{{1}, {2}, {3}}, obs, squareLoss(), BestExpert); !errors.Is(err, ErrInfeasible) {
		t.Errorf("length mismatch: expected ErrInfeasible, got %v", err)
	}
	if _, err := Compute(context.Background(), [][]float64{{}, {}}, obs, squareLoss(), BestExpert); !errors.Is(err, ErrInfeasible) {
		t.Errorf("zero experts: expected ErrInfeasible, got %v", err)
	}
	if _, err := Compute(context.Background(), [][]float64{{1}, {2}}, obs, squareLoss(), "median"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: expected ErrUnknownKind, got %v", err)
	}
}

func TestOracleCancellation(t *testing.T) {
	rows := [][]float64{{1, 3}, {2, 1}, {0.5, 2}}
	obs := []float64{1, 2, 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Compute(ctx, rows, obs, squareLoss(), BestExpert); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
