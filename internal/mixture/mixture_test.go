package mixture

import (
	"errors"
	"math"
	"testing"
)

func testWindow() ([][]float64, []float64) {
	rows := [][]float64{
		{1, 3}, {2, 1}, {0.5, 2}, {1.5, 1.5}, {3, 0}, {1, 2}, {2.5, 1},
	}
	obs := []float64{1.2, 1.5, 1, 1.4, 2, 1.8, 2.2}
	return rows, obs
}

func TestUnknownModelAndLoss(t *testing.T) {
	if _, err := New(Config{Model: "boosting", Loss: LossSquare}); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}
	if _, err := New(Config{Model: ModelEWA, Loss: "huber", LearningRate: 1}); !errors.Is(err, ErrUnknownLoss) {
		t.Errorf("expected ErrUnknownLoss, got %v", err)
	}
}

func TestDimensionMismatch(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Step([]float64{1, 2}, 1); err != nil {
		t.Fatalf("first step: %v", err)
	}
	if _, err := m.Step([]float64{1, 2, 3}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	// The failed step must not have advanced the state.
	if m.Steps() != 1 {
		t.Errorf("failed step advanced the mixture: steps=%d", m.Steps())
	}
	if _, err := m.Step([]float64{2, 2}, 2); err != nil {
		t.Errorf("recovery step after mismatch: %v", err)
	}
}

func TestPinnedExpertCount(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1, Experts: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Step([]float64{1, 2}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch against pinned K, got %v", err)
	}
}

// Batch replay and manual stepping must produce identical prediction
// sequences for every model.
func TestBatchStreamingEquivalence(t *testing.T) {
	rows, obs := testWindow()
	for _, cfg := range allModels() {
		batch, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		if err := batch.Run(rows, obs); err != nil {
			t.Fatalf("%s: Run: %v", cfg.Model, err)
		}

		stream, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		for i := range rows {
			want, err := stream.Step(rows[i], obs[i])
			if err != nil {
				t.Fatalf("%s: step %d: %v", cfg.Model, i, err)
			}
			if got := batch.Predictions()[i]; got != want {
				t.Errorf("%s: step %d: batch %v != streaming %v", cfg.Model, i, got, want)
			}
		}
	}
}

// Truncating the window and replaying must reproduce the prefix exactly:
// predictions depend only on the past.
func TestCausality(t *testing.T) {
	rows, obs := testWindow()
	for _, cfg := range allModels() {
		full, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		if err := full.Run(rows, obs); err != nil {
			t.Fatalf("%s: Run: %v", cfg.Model, err)
		}

		// Replay only a prefix, with a tampered future appended afterwards.
		cut := 4
		prefix, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		if err := prefix.Run(rows[:cut], obs[:cut]); err != nil {
			t.Fatalf("%s: prefix Run: %v", cfg.Model, err)
		}
		tampered := [][]float64{{100, -100}, {-50, 50}, {0, 0}}
		if err := prefix.Run(tampered, []float64{9, -9, 0}); err != nil {
			t.Fatalf("%s: tampered Run: %v", cfg.Model, err)
		}

		fullPreds := full.Predictions()
		prefPreds := prefix.Predictions()
		for i := 0; i < cut; i++ {
			if fullPreds[i] != prefPreds[i] {
				t.Errorf("%s: prediction %d changed under a different future: %v vs %v",
					cfg.Model, i, fullPreds[i], prefPreds[i])
			}
		}
	}
}

func TestRunStrictVsLenient(t *testing.T) {
	rows := [][]float64{{1, 2}, {1, 2, 3}, {2, 2}}
	obs := []float64{1, 1, 2}

	lenient, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := lenient.Run(rows, obs); err != nil {
		t.Fatalf("lenient Run should skip the malformed row: %v", err)
	}
	if lenient.Steps() != 2 {
		t.Errorf("lenient run consumed %d steps, want 2", lenient.Steps())
	}
	if lenient.Summary().FlaggedSteps != 1 {
		t.Errorf("lenient run flagged %d steps, want 1", lenient.Summary().FlaggedSteps)
	}

	strict, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1, Strict: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := strict.Run(rows, obs); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("strict run should abort with ErrDimensionMismatch, got %v", err)
	}
	if strict.Steps() != 1 {
		t.Errorf("strict run consumed %d steps before aborting, want 1", strict.Steps())
	}
}

func TestPercentageZeroObservationFlagsStep(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossPercentage, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Step([]float64{1, 2}, 0); err != nil {
		t.Fatalf("step with zero observation: %v", err)
	}
	recs := m.Records()
	if !recs[0].Flagged {
		t.Errorf("zero-observation fallback was not flagged")
	}

	strict, err := New(Config{Model: ModelEWA, Loss: LossPercentage, LearningRate: 1, ZeroObs: ZeroObsFail})
	if err != nil {
		t.Fatalf("New strict: %v", err)
	}
	if _, err := strict.Step([]float64{1, 2}, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

// Snapshot mid-stream, restore into a fresh mixture, and continue: the tail
// predictions must match an uninterrupted run exactly.
func TestSnapshotRestoreRoundTrip(t *testing.T) {
	rows, obs := testWindow()
	configs := append(allModels(),
		Config{Model: ModelEWA, Loss: LossSquare}, // calibrated
	)
	for _, cfg := range configs {
		full, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		if err := full.Run(rows, obs); err != nil {
			t.Fatalf("%s: Run: %v", cfg.Model, err)
		}

		cut := 4
		head, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		if err := head.Run(rows[:cut], obs[:cut]); err != nil {
			t.Fatalf("%s: head Run: %v", cfg.Model, err)
		}
		snap, err := head.Snapshot()
		if err != nil {
			t.Fatalf("%s: Snapshot: %v", cfg.Model, err)
		}
		tail, err := FromSnapshot(snap)
		if err != nil {
			t.Fatalf("%s: FromSnapshot: %v", cfg.Model, err)
		}
		if tail.Steps() != cut {
			t.Fatalf("%s: restored mixture at step %d, want %d", cfg.Model, tail.Steps(), cut)
		}

		fullPreds := full.Predictions()
		for i := cut; i < len(rows); i++ {
			got, err := tail.Step(rows[i], obs[i])
			if err != nil {
				t.Fatalf("%s: resumed step %d: %v", cfg.Model, i, err)
			}
			if math.Abs(got-fullPreds[i]) > 1e-12 {
				t.Errorf("%s: resumed prediction %d: %v want %v", cfg.Model, i, got, fullPreds[i])
			}
		}
	}
}

func TestPredictDoesNotMutate(t *testing.T) {
	rows, obs := testWindow()
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.Run(rows[:3], obs[:3]); err != nil {
		t.Fatalf("Run: %v", err)
	}
	before := m.Weights()
	p1, err := m.Predict(rows[3])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	p2, _ := m.Predict(rows[3])
	if p1 != p2 {
		t.Errorf("Predict is not pure: %v vs %v", p1, p2)
	}
	after := m.Weights()
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("Predict mutated weights: %v vs %v", before, after)
		}
	}
}

func TestSummary(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Step([]float64{1, 3}, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	s := m.Summary()
	if s.Steps != 1 || s.Experts != 2 {
		t.Errorf("summary counts wrong: %+v", s)
	}
	// First prediction is the uniform mean 2, so the aggregate loss is 1.
	if s.CumulativeLoss != 1 {
		t.Errorf("cumulative loss %v, want 1", s.CumulativeLoss)
	}
	if s.AverageLoss != 1 {
		t.Errorf("average loss %v, want 1", s.AverageLoss)
	}
}

func TestNonFiniteInputsRejected(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Step([]float64{1, 3}, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	before := m.Weights()

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := m.Step([]float64{1, 3}, bad); !errors.Is(err, ErrNonFiniteValue) {
			t.Errorf("observation %v: expected ErrNonFiniteValue, got %v", bad, err)
		}
		if _, err := m.Step([]float64{bad, 3}, 1); !errors.Is(err, ErrNonFiniteValue) {
			t.Errorf("forecast %v: expected ErrNonFiniteValue, got %v", bad, err)
		}
	}

	// The failed steps must not have advanced or corrupted the state.
	if m.Steps() != 1 {
		t.Fatalf("steps advanced to %d on rejected input", m.Steps())
	}
	after := m.Weights()
	for i := range after {
		if math.IsNaN(after[i]) || after[i] != before[i] {
			t.Fatalf("weights changed on rejected input: %v vs %v", before, after)
		}
	}
	if _, err := m.Step([]float64{2, 1}, 1.5); err != nil {
		t.Fatalf("mixture unusable after rejected input: %v", err)
	}
}
