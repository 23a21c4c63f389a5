package oracle

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// nnls solves min ||A x - y||_2 subject to x >= 0 with the Lawson-Hanson
// active-set method. Each passive-set subproblem is an ordinary least-squares
// solve via QR, so the whole routine is direct, deterministic, and free of
// step-size tuning.
func nnls(ctx context.Context, a *mat.Dense, y []float64) ([]float64, error) {
	m, n := a.Dims()
	if len(y) != m {
		return nil, fmt.Errorf("%w: nnls dimensions", ErrInfeasible)
	}

	x := make([]float64, n)
	passive := make([]bool, n)
	resid := make([]float64, m)
	grad := make([]float64, n)

	const tol = 1e-12
	maxOuter := 3 * n
	if maxOuter < 30 {
		maxOuter = 30
	}

	for outer := 0; outer < maxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Gradient of 1/2||Ax-y||^2 is A^T(Ax-y); we track its negation.
		for i := 0; i < m; i++ {
			resid[i] = y[i]
			for j := 0; j < n; j++ {
				resid[i] -= a.At(i, j) * x[j]
			}
		}
		best, bestG := -1, tol
		for j := 0; j < n; j++ {
			if passive[j] {
				continue
			}
			grad[j] = 0
			for i := 0; i < m; i++ {
				grad[j] += a.At(i, j) * resid[i]
			}
			if grad[j] > bestG {
				best, bestG = j, grad[j]
			}
		}
		if best < 0 {
			return x, nil // KKT satisfied
		}
		passive[best] = true

		// Inner loop: solve on the passive set, backtrack while any passive
		// coordinate would go nonpositive.
		for {
			z, err := solvePassive(a, y, passive)
			if err != nil {
				return nil, err
			}
			feasible := true
			alpha := 1.0
			for j := 0; j < n; j++ {
				if passive[j] && z[j] <= 0 {
					feasible = false
					if step := x[j] / (x[j] - z[j]); step < alpha {
						alpha = step
					}
				}
			}
			if feasible {
				copy(x, z)
				break
			}
			for j := 0; j < n; j++ {
				if passive[j] {
					x[j] += alpha * (z[j] - x[j])
					if x[j] <= tol {
						x[j] = 0
						passive[j] = false
					}
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: nnls failed to converge", ErrInfeasible)
}

// solvePassive solves unconstrained least squares restricted to the passive
// columns, returning a full-width vector with zeros elsewhere.
func solvePassive(a *mat.Dense, y []float64, passive []bool) ([]float64, error) {
	m, n := a.Dims()
	cols := make([]int, 0, n)
	for j, p := range passive {
		if p {
			cols = append(cols, j)
		}
	}
	sub := mat.NewDense(m, len(cols), nil)
	for i := 0; i < m; i++ {
		for jj, j := range cols {
			sub.Set(i, jj, a.At(i, j))
		}
	}
	rhs := mat.NewDense(m, 1, nil)
	for i := 0; i < m; i++ {
		rhs.Set(i, 0, y[i])
	}

	var qr mat.QR
	qr.Factorize(sub)
	var sol mat.Dense
	if err := qr.SolveTo(&sol, false, rhs); err != nil {
		return nil, fmt.Errorf("%w: passive-set solve: %v", ErrInfeasible, err)
	}
	z := make([]float64, n)
	for jj, j := range cols {
		v := sol.At(jj, 0)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: passive-set solve diverged", ErrInfeasible)
		}
		z[j] = v
	}
	return z, nil
}
