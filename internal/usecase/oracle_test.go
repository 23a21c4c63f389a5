package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"ForecastMix/internal/domain/models"
	"ForecastMix/internal/oracle"
)

func oracleWindow() ([][]float64, []float64) {
	// Expert 0 tracks the observations, expert 1 is constant noise.
	forecasts := [][]float64{
		{1.0, 5.0},
		{2.0, 5.0},
		{3.0, 5.0},
		{4.0, 5.0},
	}
	observations := []float64{1.1, 2.0, 2.9, 4.1}
	return forecasts, observations
}

func TestOracleComputeExpert(t *testing.T) {
	uc := NewOracleUseCase(&fakeMetrics{}, time.Second)
	forecasts, obs := oracleWindow()

	res, err := uc.Compute(context.Background(), &models.OracleRequest{
		Kind:         string(oracle.BestExpert),
		Loss:         "square",
		Forecasts:    forecasts,
		Observations: obs,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if res.Expert != 0 {
		t.Fatalf("best expert = %d, want 0", res.Expert)
	}
	if res.CumulativeLoss <= 0 || res.CumulativeLoss > 0.1 {
		t.Fatalf("unexpected expert loss %f", res.CumulativeLoss)
	}
}

func TestOracleComputeBadLoss(t *testing.T) {
	uc := NewOracleUseCase(&fakeMetrics{}, time.Second)
	forecasts, obs := oracleWindow()

	_, err := uc.Compute(context.Background(), &models.OracleRequest{
		Kind:         "expert",
		Loss:         "huber",
		Forecasts:    forecasts,
		Observations: obs,
	})
	if err == nil {
		t.Fatal("expected error for unknown loss")
	}
}

func TestOracleCompareAllKinds(t *testing.T) {
	uc := NewOracleUseCase(&fakeMetrics{}, 5*time.Second)
	forecasts, obs := oracleWindow()

	cmp, err := uc.Compare(context.Background(), &models.OracleRequest{
		Loss:         "square",
		Forecasts:    forecasts,
		Observations: obs,
	})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(cmp.Errors) != 0 {
		t.Fatalf("unexpected per-kind errors: %v", cmp.Errors)
	}
	for _, k := range []string{"expert", "uniform", "convex", "linear"} {
		if cmp.Results[k] == nil {
			t.Fatalf("missing result for kind %q", k)
		}
	}

	// Richer comparators can only do better in hindsight.
	expert := cmp.Results["expert"].CumulativeLoss
	convex := cmp.Results["convex"].CumulativeLoss
	linear := cmp.Results["linear"].CumulativeLoss
	if convex > expert+1e-9 {
		t.Fatalf("convex loss %f exceeds best expert %f", convex, expert)
	}
	if linear > convex+1e-9 {
		t.Fatalf("linear loss %f exceeds convex %f", linear, convex)
	}
	for k, r := range cmp.Results {
		if math.IsNaN(r.CumulativeLoss) || math.IsInf(r.CumulativeLoss, 0) {
			t.Fatalf("kind %q produced non-finite loss", k)
		}
	}
}

func TestOracleCompareEmptyWindow(t *testing.T) {
	uc := NewOracleUseCase(&fakeMetrics{}, time.Second)
	if _, err := uc.Compare(context.Background(), &models.OracleRequest{Loss: "square"}); err == nil {
		t.Fatal("expected error for empty window")
	}
}
