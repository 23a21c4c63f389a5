package mixture

import (
	"encoding/json"
	"fmt"
	"math"
)

// MLpol is the polynomially weighted average forecaster with per-expert
// adaptive learning rates. Each expert carries its cumulative instantaneous
// regret R_k and the sum of squared instantaneous regrets; the effective rate
// 1/(1 + sum r^2) is derived from that expert's own loss history, so no
// global learning rate exists and nothing needs calibration. Weights are
// proportional to rate_k * max(R_k, 0), renormalized to the simplex; when no
// expert has positive regret the weights stay uniform.
type MLpol struct {
	loss LossFunction

	k      int
	regret []float64
	sq     []float64
	w      []float64
}

func NewMLpol(loss LossFunction) *MLpol {
	return &MLpol{loss: loss}
}

func (m *MLpol) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	m.k = k
	m.regret = make([]float64, k)
	m.sq = make([]float64, k)
	m.w = uniform(k)
	return nil
}

func (m *MLpol) Predict(row []float64) float64 {
	return dot(m.w, row)
}

func (m *MLpol) Update(row []float64, obs float64) (bool, error) {
	pred := dot(m.w, row)
	lp, flagged, err := m.loss.Eval(pred, obs)
	if err != nil {
		return false, err
	}
	for i, f := range row {
		li, fb, err := m.loss.Eval(f, obs)
		if err != nil {
			return false, err
		}
		flagged = flagged || fb
		r := lp - li
		m.regret[i] += r
		m.sq[i] += r * r
	}
	m.recomputeWeights()
	return flagged, nil
}

func (m *MLpol) recomputeWeights() {
	var sum float64
	for i := range m.w {
		u := math.Max(m.regret[i], 0) / (1 + m.sq[i])
		m.w[i] = u
		sum += u
	}
	if sum <= 0 {
		copy(m.w, uniform(m.k))
		return
	}
	for i := range m.w {
		m.w[i] /= sum
	}
}

func (m *MLpol) Weights() []float64 { return cloneFloats(m.w) }

type mlpolState struct {
	Regret []float64 `json:"regret"`
	Sq     []float64 `json:"sq"`
}

func (m *MLpol) Snapshot() (json.RawMessage, error) {
	return json.Marshal(mlpolState{Regret: m.regret, Sq: m.sq})
}

func (m *MLpol) Restore(k int, data json.RawMessage) error {
	var s mlpolState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore mlpol: %w", err)
	}
	if len(s.Regret) != k || len(s.Sq) != k {
		return fmt.Errorf("%w: mlpol snapshot dimensions", ErrDimensionMismatch)
	}
	if err := m.Init(k); err != nil {
		return err
	}
	copy(m.regret, s.Regret)
	copy(m.sq, s.Sq)
	m.recomputeWeights()
	return nil
}
