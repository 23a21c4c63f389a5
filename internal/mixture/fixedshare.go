package mixture

import (
	"encoding/json"
	"fmt"
	"math"
)

// FixedShare runs a multiplicative (EWA-style) update and then redistributes
// a share alpha of the mass uniformly: w <- (1-alpha)*w + alpha/K. The
// uniform leak keeps every weight bounded away from zero, which is what makes
// tracking a best expert that switches over time possible.
type FixedShare struct {
	eta   float64
	alpha float64
	loss  LossFunction

	k int
	w []float64
}

// NewFixedShare creates a fixed-share strategy with learning rate eta > 0 and
// sharing rate alpha in (0,1).
func NewFixedShare(eta, alpha float64, loss LossFunction) (*FixedShare, error) {
	if eta <= 0 || math.IsInf(eta, 1) || math.IsNaN(eta) {
		return nil, fmt.Errorf("%w: fixed-share learning rate %v", ErrInvalidHyperparameter, eta)
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: fixed-share rate %v not in (0,1)", ErrInvalidHyperparameter, alpha)
	}
	return &FixedShare{eta: eta, alpha: alpha, loss: loss}, nil
}

func (f *FixedShare) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	f.k = k
	f.w = uniform(k)
	return nil
}

func (f *FixedShare) Predict(row []float64) float64 {
	return dot(f.w, row)
}

func (f *FixedShare) Update(row []float64, obs float64) (bool, error) {
	losses := make([]float64, f.k)
	var flagged bool
	minLoss := math.Inf(1)
	for i, fc := range row {
		li, fb, err := f.loss.Eval(fc, obs)
		if err != nil {
			return false, err
		}
		flagged = flagged || fb
		losses[i] = li
		if li < minLoss {
			minLoss = li
		}
	}

	// Multiplicative update, shifted by the step minimum so the exponents
	// stay in range, then renormalize and share.
	var sum float64
	for i := range f.w {
		f.w[i] *= math.Exp(-f.eta * (losses[i] - minLoss))
		sum += f.w[i]
	}
	for i := range f.w {
		f.w[i] = (1-f.alpha)*(f.w[i]/sum) + f.alpha/float64(f.k)
	}
	return flagged, nil
}

func (f *FixedShare) Weights() []float64 { return cloneFloats(f.w) }

type fixedShareState struct {
	Eta   float64   `json:"eta"`
	Alpha float64   `json:"alpha"`
	W     []float64 `json:"w"`
}

func (f *FixedShare) Snapshot() (json.RawMessage, error) {
	return json.Marshal(fixedShareState{Eta: f.eta, Alpha: f.alpha, W: f.w})
}

func (f *FixedShare) Restore(k int, data json.RawMessage) error {
	var s fixedShareState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore fixedshare: %w", err)
	}
	if len(s.W) != k {
		return fmt.Errorf("%w: snapshot has %d experts, want %d", ErrDimensionMismatch, len(s.W), k)
	}
	if err := f.Init(k); err != nil {
		return err
	}
	f.eta = s.Eta
	f.alpha = s.Alpha
	copy(f.w, s.W)
	return nil
}
