package mixture

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Ridge recomputes the regularized least-squares weights every step from a
// running second-moment matrix of expert rows and a cross-moment vector
// against the observations. The inverse of (lambda*I + sum x x^T) is
// maintained incrementally with the Sherman-Morrison identity, so a step
// costs O(K^2) instead of a fresh O(K^3) solve. Weights are unconstrained.
type Ridge struct {
	lambda float64

	k    int
	ainv *mat.Dense
	b    *mat.VecDense
	w    []float64
}

// NewRidge creates a ridge strategy with regularization lambda > 0.
func NewRidge(lambda float64) (*Ridge, error) {
	if lambda <= 0 || math.IsInf(lambda, 1) || math.IsNaN(lambda) {
		return nil, fmt.Errorf("%w: ridge regularization %v", ErrInvalidHyperparameter, lambda)
	}
	return &Ridge{lambda: lambda}, nil
}

func (r *Ridge) Init(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: %d experts", ErrDimensionMismatch, k)
	}
	r.k = k
	r.b = mat.NewVecDense(k, nil)
	r.w = uniform(k)
	r.seedInverse()
	return nil
}

// seedInverse resets the running inverse to (lambda*I)^-1. Also the recovery
// path when a rank-1 update turns numerically degenerate.
func (r *Ridge) seedInverse() {
	r.ainv = mat.NewDense(r.k, r.k, nil)
	for i := 0; i < r.k; i++ {
		r.ainv.Set(i, i, 1/r.lambda)
	}
}

func (r *Ridge) Predict(row []float64) float64 {
	return dot(r.w, row)
}

func (r *Ridge) Update(row []float64, obs float64) (bool, error) {
	x := mat.NewVecDense(r.k, cloneFloats(row))

	ax := mat.NewVecDense(r.k, nil)
	ax.MulVec(r.ainv, x)
	denom := 1 + mat.Dot(x, ax)
	if denom <= 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		// The running inverse has drifted past usefulness; re-seed with the
		// regularizer and retry the rank-1 update once.
		r.seedInverse()
		ax.MulVec(r.ainv, x)
		denom = 1 + mat.Dot(x, ax)
	}

	// ainv -= (ax ax^T) / denom
	for i := 0; i < r.k; i++ {
		axi := ax.AtVec(i)
		for j := 0; j < r.k; j++ {
			r.ainv.Set(i, j, r.ainv.At(i, j)-axi*ax.AtVec(j)/denom)
		}
	}
	r.b.AddScaledVec(r.b, obs, x)

	wv := mat.NewVecDense(r.k, nil)
	wv.MulVec(r.ainv, r.b)
	for i := 0; i < r.k; i++ {
		r.w[i] = wv.AtVec(i)
	}
	return false, nil
}

func (r *Ridge) Weights() []float64 { return cloneFloats(r.w) }

type ridgeState struct {
	Lambda float64   `json:"lambda"`
	Ainv   []float64 `json:"ainv"` // row-major K*K
	B      []float64 `json:"b"`
	W      []float64 `json:"w"`
}

func (r *Ridge) Snapshot() (json.RawMessage, error) {
	ainv := make([]float64, 0, r.k*r.k)
	for i := 0; i < r.k; i++ {
		ainv = append(ainv, r.ainv.RawRowView(i)...)
	}
	return json.Marshal(ridgeState{
		Lambda: r.lambda,
		Ainv:   ainv,
		B:      cloneFloats(r.b.RawVector().Data),
		W:      r.w,
	})
}

func (r *Ridge) Restore(k int, data json.RawMessage) error {
	var s ridgeState
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("restore ridge: %w", err)
	}
	if len(s.W) != k || len(s.B) != k || len(s.Ainv) != k*k {
		return fmt.Errorf("%w: ridge snapshot dimensions", ErrDimensionMismatch)
	}
	if err := r.Init(k); err != nil {
		return err
	}
	r.lambda = s.Lambda
	r.ainv = mat.NewDense(k, k, cloneFloats(s.Ainv))
	r.b = mat.NewVecDense(k, cloneFloats(s.B))
	copy(r.w, s.W)
	return nil
}
