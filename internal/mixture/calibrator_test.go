package mixture

import (
	"errors"
	"math"
	"testing"
)

func TestCalibrationGridValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty grid", Config{Model: ModelEWA, Loss: LossSquare, Grid: []float64{}}},
		{"negative rate", Config{Model: ModelEWA, Loss: LossSquare, Grid: []float64{0.1, -1}}},
		{"zero rate", Config{Model: ModelRidge, Loss: LossSquare, Grid: []float64{0}}},
		{"share rate above one", Config{Model: ModelFixedShare, Loss: LossSquare, LearningRate: 1, Grid: []float64{2}}},
	}
	for _, tc := range cases {
		if _, err := New(tc.cfg); !errors.Is(err, ErrInvalidCalibrationGrid) {
			t.Errorf("%s: expected ErrInvalidCalibrationGrid, got %v", tc.name, err)
		}
	}
}

func TestCalibratorActivatesOnUnsetParameter(t *testing.T) {
	cases := []Config{
		{Model: ModelEWA, Loss: LossSquare},
		{Model: ModelOGD, Loss: LossSquare},
		{Model: ModelRidge, Loss: LossSquare},
		{Model: ModelFixedShare, Loss: LossSquare},
	}
	for _, cfg := range cases {
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New with unset hyperparameters: %v", cfg.Model, err)
		}
		if _, ok := m.strat.(*Calibrator); !ok {
			t.Errorf("%s: expected a calibrated strategy, got %T", cfg.Model, m.strat)
		}
	}
	// MLpol self-tunes and must not wrap itself in a calibrator.
	m, err := New(Config{Model: ModelMLpol, Loss: LossSquare})
	if err != nil {
		t.Fatalf("mlpol: %v", err)
	}
	if _, ok := m.strat.(*MLpol); !ok {
		t.Errorf("mlpol should not be calibrated, got %T", m.strat)
	}
}

func TestCalibratedEWAConcentratesOnPerfectExpert(t *testing.T) {
	for _, mode := range []CalibrationMode{CalibrationMeta, CalibrationSelect} {
		m, err := New(Config{Model: ModelEWA, Loss: LossSquare, CalibrationMode: mode})
		if err != nil {
			t.Fatalf("%s: New: %v", mode, err)
		}
		for i := 0; i < 60; i++ {
			if _, err := m.Step([]float64{2, 5, 0}, 2); err != nil {
				t.Fatalf("%s: step %d: %v", mode, i, err)
			}
		}
		w := m.Weights()
		if w[0] < 0.8 {
			t.Errorf("%s: calibrated weight on perfect expert only %v", mode, w[0])
		}
		var sum float64
		for _, wi := range w {
			if wi < -1e-12 {
				t.Errorf("%s: negative calibrated weight %v", mode, wi)
			}
			sum += wi
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("%s: calibrated weights sum to %v", mode, sum)
		}
	}
}

// Candidate scores at step t may only contain losses from steps before t:
// two calibrators fed the same prefix must agree on the prediction for the
// next row no matter what future each will see.
func TestCalibratorCausality(t *testing.T) {
	rows, obs := testWindow()
	cfg := Config{Model: ModelEWA, Loss: LossSquare}

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 4; i++ {
		pa, err := a.Step(rows[i], obs[i])
		if err != nil {
			t.Fatalf("a step %d: %v", i, err)
		}
		pb, err := b.Step(rows[i], obs[i])
		if err != nil {
			t.Fatalf("b step %d: %v", i, err)
		}
		if pa != pb {
			t.Fatalf("calibrated predictions diverged on identical input at step %d: %v vs %v", i, pa, pb)
		}
	}
}

func TestFixedShareCartesianGrid(t *testing.T) {
	cal, err := NewCalibrator(Config{Model: ModelFixedShare, Loss: LossSquare}, LossFunction{Kind: LossSquare})
	if err != nil {
		t.Fatalf("NewCalibrator: %v", err)
	}
	rates, _ := rateGrid(nil)
	shares, _ := shareGrid(nil)
	if want := len(rates) * len(shares); len(cal.candidates) != want {
		t.Errorf("fixed-share grid has %d candidates, want %d", len(cal.candidates), want)
	}
	for _, cand := range cal.candidates {
		if cand.LearningRate <= 0 || cand.ShareRate <= 0 || cand.ShareRate >= 1 {
			t.Errorf("candidate out of domain: %+v", cand)
		}
	}
}
