package mixture

import (
	"encoding/json"
	"fmt"
	"math"
)

// EWA is the exponentially weighted average forecaster: weights proportional
// to exp(-eta * cumulative loss), kept in log-space (cumulative losses
// shifted by their minimum) so long horizons never overflow.
type EWA struct {
	eta  float64
	loss LossFunction

	k   int
	cum []float64
	w   []float64
}

// NewEWA creates an EWA strategy with a fixed learning rate eta > 0.
func NewEWA(eta float64, loss LossFunction) (*EWA, error) {
	if eta <= 0 || math.IsInf(eta, 1) || math.IsNaN(eta) {
		return nil, fmt.Errorf("%w: ewa learning rate %v", ErrInvalidHyperparameter, eta)
	}
	return &EWA{eta: eta, loss: loss}, nil
}

func (e *EWA) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	e.k = k
	e.cum = make([]float64, k)
	e.w = uniform(k)
	return nil
}

func (e *EWA) Predict(row []float64) float64 {
	return dot(e.w, row)
}

func (e *EWA) Update(row []float64, obs float64) (bool, error) {
	var flagged bool
	for i, f := range row {
		li, fb, err := e.loss.Eval(f, obs)
		if err != nil {
			return false, err
		}
		flagged = flagged || fb
		e.cum[i] += li
	}
	e.recomputeWeights()
	return flagged, nil
}

func (e *EWA) recomputeWeights() {
	minCum := e.cum[0]
	for _, c := range e.cum[1:] {
		if c < minCum {
			minCum = c
		}
	}
	var sum float64
	for i, c := range e.cum {
		e.w[i] = math.Exp(-e.eta * (c - minCum))
		sum += e.w[i]
	}
	for i := range e.w {
		e.w[i] /= sum
	}
}

func (e *EWA) Weights() []float64 { return cloneFloats(e.w) }

type ewaState struct {
	Eta float64   `json:"eta"`
	Cum []float64 `json:"cum"`
}

func (e *EWA) Snapshot() (json.RawMessage, error) {
	return json.Marshal(ewaState{Eta: e.eta, Cum: e.cum})
}

func (e *EWA) Restore(k int, data json.RawMessage) error {
	var s ewaState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore ewa: %w", err)
	}
	if len(s.Cum) != k {
		return fmt.Errorf("%w: snapshot has %d experts, want %d", ErrDimensionMismatch, len(s.Cum), k)
	}
	if err := e.Init(k); err != nil {
		return err
	}
	e.eta = s.Eta
	copy(e.cum, s.Cum)
	e.recomputeWeights()
	return nil
}
