package mixture

import (
	"errors"
	"math"
	"testing"
)

func TestLossEval(t *testing.T) {
	cases := []struct {
		name string
		kind LossKind
		tau  float64
		pred float64
		obs  float64
		want float64
	}{
		{"square", LossSquare, 0, 3, 1, 4},
		{"square zero", LossSquare, 0, 2, 2, 0},
		{"absolute", LossAbsolute, 0, 3, 1, 2},
		{"absolute negative diff", LossAbsolute, 0, 1, 3, 2},
		{"percentage", LossPercentage, 0, 3, 2, 0.5},
		{"pinball under", LossPinball, 0.9, 1, 3, 1.8},
		{"pinball over", LossPinball, 0.9, 3, 1, 0.2},
		{"pinball exact", LossPinball, 0.5, 2, 2, 0},
	}
	for _, tc := range cases {
		l, err := NewLossFunction(tc.kind, tc.tau, "")
		if err != nil {
			t.Fatalf("%s: NewLossFunction: %v", tc.name, err)
		}
		got, _, err := l.Eval(tc.pred, tc.obs)
		if err != nil {
			t.Fatalf("%s: Eval: %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestLossPercentageZeroObservation(t *testing.T) {
	l, err := NewLossFunction(LossPercentage, 0, ZeroObsAbsolute)
	if err != nil {
		t.Fatalf("NewLossFunction: %v", err)
	}
	got, flagged, err := l.Eval(3, 0)
	if err != nil {
		t.Fatalf("Eval with fallback: %v", err)
	}
	if !flagged {
		t.Errorf("expected fallback to be flagged")
	}
	if got != 3 {
		t.Errorf("fallback should be absolute loss, got %v", got)
	}

	strict, err := NewLossFunction(LossPercentage, 0, ZeroObsFail)
	if err != nil {
		t.Fatalf("NewLossFunction strict: %v", err)
	}
	if _, _, err := strict.Eval(3, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestLossGradient(t *testing.T) {
	sq, _ := NewLossFunction(LossSquare, 0, "")
	if g, _, _ := sq.Grad(3, 1); g != 4 {
		t.Errorf("square gradient: got %v want 4", g)
	}
	ab, _ := NewLossFunction(LossAbsolute, 0, "")
	if g, _, _ := ab.Grad(3, 1); g != 1 {
		t.Errorf("absolute gradient: got %v want 1", g)
	}
	if g, _, _ := ab.Grad(1, 3); g != -1 {
		t.Errorf("absolute gradient: got %v want -1", g)
	}
	pb, _ := NewLossFunction(LossPinball, 0.9, "")
	if g, _, _ := pb.Grad(1, 3); g != -0.9 {
		t.Errorf("pinball gradient under: got %v want -0.9", g)
	}
	if g, _, _ := pb.Grad(3, 1); math.Abs(g-0.1) > 1e-12 {
		t.Errorf("pinball gradient over: got %v want 0.1", g)
	}
}

func TestLossValidation(t *testing.T) {
	if _, err := NewLossFunction("huber", 0, ""); !errors.Is(err, ErrUnknownLoss) {
		t.Errorf("expected ErrUnknownLoss, got %v", err)
	}
	if _, err := NewLossFunction(LossPinball, 1.5, ""); !errors.Is(err, ErrInvalidHyperparameter) {
		t.Errorf("expected ErrInvalidHyperparameter for tau=1.5, got %v", err)
	}
	if _, err := NewLossFunction(LossPinball, 0, ""); !errors.Is(err, ErrInvalidHyperparameter) {
		t.Errorf("expected ErrInvalidHyperparameter for tau=0, got %v", err)
	}
}
