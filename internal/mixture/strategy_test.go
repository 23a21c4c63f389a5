package mixture

import (
	"math"
	"testing"
)

// allModels returns one fixed-hyperparameter config per aggregation rule.
func allModels() []Config {
	return []Config{
		{Model: ModelEWA, Loss: LossSquare, LearningRate: 1},
		{Model: ModelOGD, Loss: LossSquare, LearningRate: 0.5},
		{Model: ModelOGD, Loss: LossSquare, LearningRate: 0.5, Unconstrained: true},
		{Model: ModelRidge, Loss: LossSquare, Regularization: 1},
		{Model: ModelMLpol, Loss: LossSquare},
		{Model: ModelFixedShare, Loss: LossSquare, LearningRate: 1, ShareRate: 0.05},
	}
}

func simplexConstrained(cfg Config) bool {
	switch cfg.Model {
	case ModelEWA, ModelMLpol, ModelFixedShare:
		return true
	case ModelOGD:
		return !cfg.Unconstrained
	}
	return false
}

func TestWeightsStayOnSimplex(t *testing.T) {
	rows := [][]float64{{1, 3, 2}, {2, 1, 0}, {0, 4, 1}, {1, 1, 1}, {3, 0, 2}}
	obs := []float64{1.5, 1, 2, 1, 2.5}

	for _, cfg := range allModels() {
		if !simplexConstrained(cfg) {
			continue
		}
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		for i := range rows {
			if _, err := m.Step(rows[i], obs[i]); err != nil {
				t.Fatalf("%s: step %d: %v", cfg.Model, i, err)
			}
			w := m.Weights()
			var sum float64
			for _, wi := range w {
				if wi < -1e-12 {
					t.Errorf("%s: negative weight %v at step %d", cfg.Model, wi, i)
				}
				sum += wi
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("%s: weights sum to %v at step %d", cfg.Model, sum, i)
			}
		}
	}
}

func TestSingleExpertPassThrough(t *testing.T) {
	rows := [][]float64{{1.5}, {2.25}, {-3}, {0.5}}
	obs := []float64{1, 2, -2, 1}

	for _, cfg := range allModels() {
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		for i := range rows {
			pred, err := m.Step(rows[i], obs[i])
			if err != nil {
				t.Fatalf("%s: step %d: %v", cfg.Model, i, err)
			}
			if simplexConstrained(cfg) {
				if pred != rows[i][0] {
					t.Errorf("%s: K=1 prediction %v != forecast %v", cfg.Model, pred, rows[i][0])
				}
				if w := m.Weights(); math.Abs(w[0]-1) > 1e-12 {
					t.Errorf("%s: K=1 weight %v != 1", cfg.Model, w[0])
				}
			}
		}
	}
}

func TestIdenticalExpertsStayUniform(t *testing.T) {
	rows := [][]float64{{2, 2, 2}, {1, 1, 1}, {3, 3, 3}, {0.5, 0.5, 0.5}}
	obs := []float64{1, 2, 2.5, 1}

	for _, cfg := range allModels() {
		if !simplexConstrained(cfg) {
			continue
		}
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		for i := range rows {
			if _, err := m.Step(rows[i], obs[i]); err != nil {
				t.Fatalf("%s: step %d: %v", cfg.Model, i, err)
			}
		}
		for _, wi := range m.Weights() {
			if math.Abs(wi-1.0/3) > 1e-9 {
				t.Errorf("%s: identical experts should stay uniform, got %v", cfg.Model, m.Weights())
			}
		}
	}
}

// The concrete scenario from the design: two experts forecasting 1 and 3
// against constant observations of 1, square loss, EWA with eta=1. Expert 0
// is perfect, so its weight must strictly increase while its cumulative loss
// stays at zero and expert 1's grows by 4 per step.
func TestEWAConcentratesOnPerfectExpert(t *testing.T) {
	m, err := New(Config{Model: ModelEWA, Loss: LossSquare, LearningRate: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	prev := 0.5
	for i := 1; i <= 3; i++ {
		if _, err := m.Step([]float64{1, 3}, 1); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		w := m.Weights()
		if w[0] <= prev {
			t.Errorf("step %d: expert 0 weight %v did not increase past %v", i, w[0], prev)
		}
		prev = w[0]

		s := m.Summary()
		if s.ExpertCumLoss[0] != 0 {
			t.Errorf("step %d: perfect expert cumulative loss %v != 0", i, s.ExpertCumLoss[0])
		}
		if want := float64(4 * i); s.ExpertCumLoss[1] != want {
			t.Errorf("step %d: expert 1 cumulative loss %v != %v", i, s.ExpertCumLoss[1], want)
		}
	}
}

func TestPerfectExpertConcentration(t *testing.T) {
	for _, cfg := range []Config{
		{Model: ModelEWA, Loss: LossSquare, LearningRate: 0.5},
		{Model: ModelMLpol, Loss: LossSquare},
		{Model: ModelFixedShare, Loss: LossSquare, LearningRate: 0.5, ShareRate: 0.01},
	} {
		m, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", cfg.Model, err)
		}
		var first float64
		for i := 0; i < 50; i++ {
			if _, err := m.Step([]float64{2, 5, 0}, 2); err != nil {
				t.Fatalf("%s: step %d: %v", cfg.Model, i, err)
			}
			if i == 0 {
				first = m.Weights()[0]
			}
		}
		w := m.Weights()
		if w[0] < first {
			t.Errorf("%s: weight on perfect expert decreased: first %v final %v", cfg.Model, first, w[0])
		}
		if w[0] < 0.9 {
			t.Errorf("%s: weight on perfect expert only %v after 50 steps", cfg.Model, w[0])
		}
	}
}

// Ridge with one expert has the closed form w = sum(x*y) / (lambda + sum(x^2)).
func TestRidgeClosedFormSingleExpert(t *testing.T) {
	lambda := 2.0
	r, err := NewRidge(lambda)
	if err != nil {
		t.Fatalf("NewRidge: %v", err)
	}
	if err := r.Init(1); err != nil {
		t.Fatalf("Init: %v", err)
	}
	xs := []float64{1, 2, 3, -1}
	ys := []float64{2, 4.5, 5.5, -2.5}
	var sxy, sxx float64
	for i := range xs {
		if _, err := r.Update([]float64{xs[i]}, ys[i]); err != nil {
			t.Fatalf("Update: %v", err)
		}
		sxy += xs[i] * ys[i]
		sxx += xs[i] * xs[i]
		want := sxy / (lambda + sxx)
		if got := r.Weights()[0]; math.Abs(got-want) > 1e-9 {
			t.Errorf("step %d: ridge weight %v want %v", i, got, want)
		}
	}
}

func TestOGDUnconstrainedTracksLinearTarget(t *testing.T) {
	o, err := NewOGD(0.1, false, LossFunction{Kind: LossSquare})
	if err != nil {
		t.Fatalf("NewOGD: %v", err)
	}
	if err := o.Init(2); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// obs = 2*x0 - x1: the unconstrained iterate should drift off the simplex.
	rows := [][]float64{{1, 0}, {0, 1}, {1, 1}, {2, 1}, {1, 2}}
	for pass := 0; pass < 40; pass++ {
		for _, row := range rows {
			obs := 2*row[0] - row[1]
			if _, err := o.Update(row, obs); err != nil {
				t.Fatalf("Update: %v", err)
			}
		}
	}
	w := o.Weights()
	if w[0] < 1 || w[1] > 0 {
		t.Errorf("unconstrained OGD did not leave the simplex toward [2,-1]: %v", w)
	}
}

func TestProjectSimplex(t *testing.T) {
	cases := [][]float64{
		{0.2, 0.3, 0.5},
		{1, 0, 0},
		{-1, 2, 0.5},
		{-3, -4, -5},
		{10, 10, 10},
	}
	for _, v := range cases {
		p := projectSimplex(v)
		var sum float64
		for _, pi := range p {
			if pi < 0 {
				t.Errorf("projection of %v has negative entry: %v", v, p)
			}
			sum += pi
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("projection of %v sums to %v", v, sum)
		}
	}
	// A point already on the simplex is a fixed point.
	p := projectSimplex([]float64{0.2, 0.3, 0.5})
	for i, want := range []float64{0.2, 0.3, 0.5} {
		if math.Abs(p[i]-want) > 1e-9 {
			t.Errorf("simplex point moved: %v", p)
		}
	}
}
