package mixture

import (
	"fmt"
	"math"
)

// LossKind identifies a supported loss function.
type LossKind string

const (
	LossSquare     LossKind = "square"
	LossAbsolute   LossKind = "absolute"
	LossPercentage LossKind = "percentage"
	LossPinball    LossKind = "pinball"
)

// ZeroObsPolicy controls what the percentage loss does when the observation
// is exactly zero. The default falls back to the absolute loss and flags the
// step; "fail" surfaces ErrDivisionByZero instead.
type ZeroObsPolicy string

const (
	ZeroObsAbsolute ZeroObsPolicy = "absolute"
	ZeroObsFail     ZeroObsPolicy = "fail"
)

// LossFunction is a pure (prediction, observation) -> scalar mapping with a
// matching (sub)gradient. Safe for concurrent use; it holds no state.
type LossFunction struct {
	Kind    LossKind      `json:"kind"`
	Tau     float64       `json:"tau,omitempty"`
	ZeroObs ZeroObsPolicy `json:"zero_obs,omitempty"`
}

// NewLossFunction validates the kind and its parameters.
func NewLossFunction(kind LossKind, tau float64, zeroObs ZeroObsPolicy) (LossFunction, error) {
	switch kind {
	case LossSquare, LossAbsolute, LossPercentage:
	case LossPinball:
		if tau <= 0 || tau >= 1 {
			return LossFunction{}, fmt.Errorf("%w: pinball tau %v not in (0,1)", ErrInvalidHyperparameter, tau)
		}
	default:
		return LossFunction{}, fmt.Errorf("%w: %q", ErrUnknownLoss, kind)
	}
	if zeroObs == "" {
		zeroObs = ZeroObsAbsolute
	}
	if zeroObs != ZeroObsAbsolute && zeroObs != ZeroObsFail {
		return LossFunction{}, fmt.Errorf("%w: zero_obs policy %q", ErrUnknownLoss, zeroObs)
	}
	return LossFunction{Kind: kind, Tau: tau, ZeroObs: zeroObs}, nil
}

// Eval returns the loss of pred against obs. The boolean reports that the
// percentage loss fell back to absolute loss on a zero observation.
func (l LossFunction) Eval(pred, obs float64) (float64, bool, error) {
	switch l.Kind {
	case LossSquare:
		d := pred - obs
		return d * d, false, nil
	case LossAbsolute:
		return math.Abs(pred - obs), false, nil
	case LossPercentage:
		if obs == 0 {
			if l.ZeroObs == ZeroObsFail {
				return 0, false, ErrDivisionByZero
			}
			return math.Abs(pred - obs), true, nil
		}
		return math.Abs(pred-obs) / math.Abs(obs), false, nil
	case LossPinball:
		if obs >= pred {
			return l.Tau * (obs - pred), false, nil
		}
		return (l.Tau - 1) * (obs - pred), false, nil
	}
	return 0, false, fmt.Errorf("%w: %q", ErrUnknownLoss, l.Kind)
}

// Grad returns d loss / d pred, a subgradient for the non-smooth kinds. The
// boolean mirrors the zero-observation fallback of Eval.
func (l LossFunction) Grad(pred, obs float64) (float64, bool, error) {
	switch l.Kind {
	case LossSquare:
		return 2 * (pred - obs), false, nil
	case LossAbsolute:
		return sign(pred - obs), false, nil
	case LossPercentage:
		if obs == 0 {
			if l.ZeroObs == ZeroObsFail {
				return 0, false, ErrDivisionByZero
			}
			return sign(pred - obs), true, nil
		}
		return sign(pred-obs) / math.Abs(obs), false, nil
	case LossPinball:
		if obs >= pred {
			return -l.Tau, false, nil
		}
		return 1 - l.Tau, false, nil
	}
	return 0, false, fmt.Errorf("%w: %q", ErrUnknownLoss, l.Kind)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
