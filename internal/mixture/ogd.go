package mixture

import (
	"encoding/json"
	"fmt"
	"math"
)

// OGD is online gradient descent on the mixture weights. The gradient with
// respect to weight i is grad(prediction, obs) * row[i]. In simplex mode the
// iterate is projected back onto the probability simplex after every step;
// unconstrained mode keeps arbitrary linear combinations. The step size
// decays as eta0 / sqrt(t).
type OGD struct {
	eta0    float64
	simplex bool
	loss    LossFunction

	k int
	t int
	w []float64
}

// NewOGD creates an OGD strategy with base step size eta0 > 0.
func NewOGD(eta0 float64, simplex bool, loss LossFunction) (*OGD, error) {
	if eta0 <= 0 || math.IsInf(eta0, 1) || math.IsNaN(eta0) {
		return nil, fmt.Errorf("%w: ogd learning rate %v", ErrInvalidHyperparameter, eta0)
	}
	return &OGD{eta0: eta0, simplex: simplex, loss: loss}, nil
}

func (o *OGD) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	o.k = k
	o.t = 0
	o.w = uniform(k)
	return nil
}

func (o *OGD) Predict(row []float64) float64 {
	return dot(o.w, row)
}

func (o *OGD) Update(row []float64, obs float64) (bool, error) {
	pred := dot(o.w, row)
	g, flagged, err := o.loss.Grad(pred, obs)
	if err != nil {
		return false, err
	}
	o.t++
	step := o.eta0 / math.Sqrt(float64(o.t))
	for i := range o.w {
		o.w[i] -= step * g * row[i]
	}
	if o.simplex {
		o.w = projectSimplex(o.w)
	}
	return flagged, nil
}

func (o *OGD) Weights() []float64 { return cloneFloats(o.w) }

type ogdState struct {
	Eta0    float64   `json:"eta0"`
	Simplex bool      `json:"simplex"`
	T       int       `json:"t"`
	W       []float64 `json:"w"`
}

func (o *OGD) Snapshot() (json.RawMessage, error) {
	return json.Marshal(ogdState{Eta0: o.eta0, Simplex: o.simplex, T: o.t, W: o.w})
}

func (o *OGD) Restore(k int, data json.RawMessage) error {
	var s ogdState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore ogd: %w", err)
	}
	if len(s.W) != k {
		return fmt.Errorf("%w: snapshot has %d experts, want %d", ErrDimensionMismatch, len(s.W), k)
	}
	if err := o.Init(k); err != nil {
		return err
	}
	o.eta0 = s.Eta0
	o.simplex = s.Simplex
	o.t = s.T
	copy(o.w, s.W)
	return nil
}
