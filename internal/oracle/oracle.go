// Package oracle computes retrospective best-fixed-combination baselines over
// a completed (expert matrix, observation sequence) window. Everything here
// is full-hindsight and evaluation-only; nothing feeds back into the online
// loop, and no state is shared with a running mixture.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"ForecastMix/internal/mixture"
)

// Kind identifies an oracle baseline.
type Kind string

const (
	// BestExpert is the single expert with the lowest cumulative loss.
	BestExpert Kind = "expert"
	// Uniform is the fixed uniform average of all experts.
	Uniform Kind = "uniform"
	// Convex is the best fixed convex combination (simplex-constrained).
	Convex Kind = "convex"
	// Linear is the best fixed linear combination (unconstrained).
	Linear Kind = "linear"
)

// ErrInfeasible reports an oracle that cannot be computed: zero experts,
// mismatched window lengths, or a solver that failed to converge.
var ErrInfeasible = errors.New("infeasible oracle")

// ErrUnknownKind reports an unsupported oracle kind.
var ErrUnknownKind = errors.New("unknown oracle kind")

// Result is immutable once computed: the hindsight weight vector together
// with its achieved loss over the full window.
type Result struct {
	Kind           Kind      `json:"kind"`
	Weights        []float64 `json:"weights"`
	Expert         int       `json:"expert"` // -1 unless Kind is BestExpert
	CumulativeLoss float64   `json:"cumulative_loss"`
	AverageLoss    float64   `json:"average_loss"`
}

// Compute runs the requested oracle over the full window. Deterministic for
// fixed inputs; honors ctx cancellation on the long-running solvers.
func Compute(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, kind Kind) (*Result, error) {
	k, err := validateWindow(rows, obs)
	if err != nil {
		return nil, err
	}

	var w []float64
	expert := -1
	switch kind {
	case BestExpert:
		expert, err = bestExpert(ctx, rows, obs, loss, k)
		if err != nil {
			return nil, err
		}
		w = make([]float64, k)
		w[expert] = 1
	case Uniform:
		w = uniformWeights(k)
	case Convex:
		w, err = solveConvex(ctx, rows, obs, loss, k)
		if err != nil {
			return nil, err
		}
	case Linear:
		w, err = solveLinear(ctx, rows, obs, loss, k)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	cum, err := cumulativeLoss(ctx, rows, obs, loss, w)
	if err != nil {
		return nil, err
	}
	return &Result{
		Kind:           kind,
		Weights:        w,
		Expert:         expert,
		CumulativeLoss: cum,
		AverageLoss:    cum / float64(len(obs)),
	}, nil
}

func validateWindow(rows [][]float64, obs []float64) (int, error) {
	if len(rows) == 0 || len(obs) == 0 {
		return 0, fmt.Errorf("%w: empty window", ErrInfeasible)
	}
	if len(rows) != len(obs) {
		return 0, fmt.Errorf("%w: %d expert rows vs %d observations", ErrInfeasible, len(rows), len(obs))
	}
	k := len(rows[0])
	if k == 0 {
		return 0, fmt.Errorf("%w: zero experts", ErrInfeasible)
	}
	for i, r := range rows {
		if len(r) != k {
			return 0, fmt.Errorf("%w: row %d has %d experts, want %d", ErrInfeasible, i, len(r), k)
		}
	}
	return k, nil
}

func bestExpert(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, k int) (int, error) {
	cum := make([]float64, k)
	for t, row := range rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		for i, f := range row {
			li, _, err := loss.Eval(f, obs[t])
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrInfeasible, err)
			}
			cum[i] += li
		}
	}
	best := 0
	for i := 1; i < k; i++ {
		if cum[i] < cum[best] {
			best = i
		}
	}
	return best, nil
}

func cumulativeLoss(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, w []float64) (float64, error) {
	var cum float64
	for t, row := range rows {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		var pred float64
		for i, f := range row {
			pred += w[i] * f
		}
		li, _, err := loss.Eval(pred, obs[t])
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInfeasible, err)
		}
		cum += li
	}
	return cum, nil
}

func uniformWeights(k int) []float64 {
	w := make([]float64, k)
	for i := range w {
		w[i] = 1 / float64(k)
	}
	return w
}
