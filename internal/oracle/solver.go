package oracle

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"ForecastMix/internal/mixture"
)

// linearRidge is the conditioning term for the unconstrained least-squares
// oracle; small enough not to move a well-posed solution.
const linearRidge = 1e-8

// simplexPenalty is the weight of the soft sum-to-one row fed to NNLS; the
// result is renormalized afterwards so the constraint holds exactly.
const simplexPenalty = 1e6

// solveConvex finds the best fixed convex combination. Square loss reduces to
// a nonnegative least-squares problem (Lawson-Hanson active set, a direct
// solver); the piecewise-linear losses become linear programs solved with the
// simplex method.
func solveConvex(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, k int) ([]float64, error) {
	if loss.Kind == mixture.LossSquare {
		return convexSquare(ctx, rows, obs, k)
	}
	return convexLP(ctx, rows, obs, loss, k)
}

// solveLinear finds the best fixed linear combination with no simplex
// constraint. Square loss is (lightly regularized) least squares; the
// piecewise-linear losses split the weights into positive and negative parts
// and solve the same LP family.
func solveLinear(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, k int) ([]float64, error) {
	if loss.Kind == mixture.LossSquare {
		return leastSquares(rows, obs, k)
	}
	return linearLP(ctx, rows, obs, loss, k)
}

func convexSquare(ctx context.Context, rows [][]float64, obs []float64, k int) ([]float64, error) {
	t := len(rows)
	// Stack the expert matrix with a heavy sum-to-one penalty row.
	a := mat.NewDense(t+1, k, nil)
	y := make([]float64, t+1)
	for i, row := range rows {
		a.SetRow(i, row)
		y[i] = obs[i]
	}
	for j := 0; j < k; j++ {
		a.Set(t, j, simplexPenalty)
	}
	y[t] = simplexPenalty

	w, err := nnls(ctx, a, y)
	if err != nil {
		return nil, err
	}
	var sum float64
	for _, wi := range w {
		sum += wi
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: degenerate convex solution", ErrInfeasible)
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

func leastSquares(rows [][]float64, obs []float64, k int) ([]float64, error) {
	t := len(rows)
	a := mat.NewDense(t+k, k, nil)
	y := mat.NewDense(t+k, 1, nil)
	for i, row := range rows {
		a.SetRow(i, row)
		y.Set(i, 0, obs[i])
	}
	reg := math.Sqrt(linearRidge)
	for j := 0; j < k; j++ {
		a.Set(t+j, j, reg)
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.Dense
	if err := qr.SolveTo(&x, false, y); err != nil {
		return nil, fmt.Errorf("%w: least squares: %v", ErrInfeasible, err)
	}
	w := make([]float64, k)
	for j := 0; j < k; j++ {
		w[j] = x.At(j, 0)
	}
	return w, nil
}

// residualCosts returns the LP objective coefficients for the positive and
// negative parts of the residual prediction-observation at step t. Pinball
// charges (1-tau) on over-prediction and tau on under-prediction; percentage
// scales both sides by 1/|obs| with the absolute-loss fallback at zero.
func residualCosts(loss mixture.LossFunction, obs float64) (cPlus, cMinus float64, err error) {
	switch loss.Kind {
	case mixture.LossAbsolute:
		return 1, 1, nil
	case mixture.LossPercentage:
		if obs == 0 {
			if loss.ZeroObs == mixture.ZeroObsFail {
				return 0, 0, fmt.Errorf("%w: %v", ErrInfeasible, mixture.ErrDivisionByZero)
			}
			return 1, 1, nil
		}
		s := 1 / math.Abs(obs)
		return s, s, nil
	case mixture.LossPinball:
		return 1 - loss.Tau, loss.Tau, nil
	}
	return 0, 0, fmt.Errorf("%w: loss %q has no LP form", ErrInfeasible, loss.Kind)
}

// convexLP solves min sum_t cost(residual_t) over the simplex in LP standard
// form: variables [w, e+, e-], equality rows X w - e+ + e- = obs plus
// sum(w) = 1, all variables nonnegative.
func convexLP(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, k int) ([]float64, error) {
	t := len(rows)
	n := k + 2*t
	a := mat.NewDense(t+1, n, nil)
	b := make([]float64, t+1)
	c := make([]float64, n)

	for i, row := range rows {
		for j, f := range row {
			a.Set(i, j, f)
		}
		a.Set(i, k+i, -1)
		a.Set(i, k+t+i, 1)
		b[i] = obs[i]

		cp, cm, err := residualCosts(loss, obs[i])
		if err != nil {
			return nil, err
		}
		c[k+i] = cp
		c[k+t+i] = cm
	}
	for j := 0; j < k; j++ {
		a.Set(t, j, 1)
	}
	b[t] = 1

	x, err := runSimplex(ctx, c, a, b)
	if err != nil {
		return nil, err
	}
	return x[:k], nil
}

// linearLP drops the simplex constraint by splitting each weight into
// nonnegative parts: variables [w+, w-, e+, e-].
func linearLP(ctx context.Context, rows [][]float64, obs []float64, loss mixture.LossFunction, k int) ([]float64, error) {
	t := len(rows)
	n := 2*k + 2*t
	a := mat.NewDense(t, n, nil)
	b := make([]float64, t)
	c := make([]float64, n)

	for i, row := range rows {
		for j, f := range row {
			a.Set(i, j, f)
			a.Set(i, k+j, -f)
		}
		a.Set(i, 2*k+i, -1)
		a.Set(i, 2*k+t+i, 1)
		b[i] = obs[i]

		cp, cm, err := residualCosts(loss, obs[i])
		if err != nil {
			return nil, err
		}
		c[2*k+i] = cp
		c[2*k+t+i] = cm
	}

	x, err := runSimplex(ctx, c, a, b)
	if err != nil {
		return nil, err
	}
	w := make([]float64, k)
	for j := 0; j < k; j++ {
		w[j] = x[j] - x[k+j]
	}
	return w, nil
}

// runSimplex solves the LP on a worker goroutine so the caller's context can
// cut a long optimization short. A cancelled solve leaks no state: the result
// is simply discarded.
func runSimplex(ctx context.Context, c []float64, a mat.Matrix, b []float64) ([]float64, error) {
	type out struct {
		x   []float64
		err error
	}
	ch := make(chan out, 1)
	go func() {
		_, x, err := lp.Simplex(c, a, b, 1e-10, nil)
		ch <- out{x: x, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("%w: lp: %v", ErrInfeasible, o.err)
		}
		return o.x, nil
	}
}
