// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Implements a Levenberg-Marquardt solver for nonlinear least squares with a
// finite difference Jacobian.

package ptzcam

import (
	"fmt"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ResidualFunc writes the residuals at x into dst
type ResidualFunc func(dst, x []float64) error

// LMOpt contains the options of the Levenberg-Marquardt solver
type LMOpt struct {
	MaxIter   int       // Maximum number of iterations (Jacobian evaluations)
	FTol      float64   // Convergence threshold on the relative cost reduction
	XTol      float64   // Convergence threshold on the relative step length
	GTol      float64   // Convergence threshold on the largest gradient component
	Lambda0   float64   // Initial damping factor
	LambdaMax float64   // Give up when the damping grows beyond this value
	Step      float64   // Finite difference step for the Jacobian
	Weights   []float64 // Residual weights (diagonal of W). nil means unit weights
}

// NewLMOpt creates a new LMOpt with default values
func NewLMOpt() *LMOpt {
	return &LMOpt{
		MaxIter:   200,
		FTol:      1e-12,
		XTol:      1e-10,
		GTol:      1e-12,
		Lambda0:   1e-3,
		LambdaMax: 1e16,
		Step:      1e-6,
		Weights:   nil,
	}
}

// LMSol contains the results of the Levenberg-Marquardt solver
type LMSol struct {
	X         []float64  // Last accepted parameters
	Res       []float64  // Residuals at X
	Cost0     float64    // Cost at the initial guess (1/2 r^T W r)
	Cost      float64    // Cost at X
	Iter      int        // Number of iterations
	Evals     int        // Number of residual evaluations outside the Jacobian
	Converged bool       // Whether a convergence criterion was met
	Cov       mat.Matrix // (J^T W J)^-1 at X, nil if singular
}

// SolveLM minimizes 1/2 |r(x)|^2_W starting from x0, with m residuals
//
// Returns:
//   - LMSol: last iterate, also on non-convergence
//   - error: wraps ErrOptimizationDidNotConverge when no criterion was met,
//     any other error means no iterate is available
func SolveLM(f ResidualFunc, m int, x0 []float64, opt *LMOpt) (*LMSol, error) {
	if opt == nil {
		opt = NewLMOpt()
	}
	n := len(x0)
	if n == 0 || m == 0 {
		return nil, fmt.Errorf("empty problem (%d residuals, %d parameters)", m, n)
	}
	if opt.Weights != nil && len(opt.Weights) != m {
		return nil, fmt.Errorf("invalid weight count %d, want %d", len(opt.Weights), m)
	}

	sol := &LMSol{X: slices.Clone(x0), Res: make([]float64, m)}
	if err := f(sol.Res, sol.X); err != nil {
		return nil, fmt.Errorf("residual at initial guess: %w", err)
	}
	if hasNonFinite(sol.Res) {
		return nil, fmt.Errorf("%w: non-finite residual at initial guess", ErrDegenerateGeometry)
	}
	sol.Evals++
	sol.Cost0 = wcost(sol.Res, opt.Weights)
	sol.Cost = sol.Cost0

	// The finite difference callback cannot fail, so failures become NaN
	jf := func(y, x []float64) {
		if err := f(y, x); err != nil {
			for i := range y {
				y[i] = math.NaN()
			}
		}
	}
	jset := &fd.JacobianSettings{Formula: fd.Central, Step: opt.Step}
	J := mat.NewDense(m, n, nil)

	lambda := opt.Lambda0
	xn := make([]float64, n)
	rn := make([]float64, m)
	neg := make([]float64, m)

	for it := 1; it <= opt.MaxIter && !sol.Converged; it++ {
		sol.Iter = it

		fd.Jacobian(J, jf, sol.X, jset)
		if hasNonFinite(J.RawMatrix().Data) {
			return sol, fmt.Errorf("%w: non-finite Jacobian at iteration %d", ErrOptimizationDidNotConverge, sol.Iter)
		}

		// Gradient J^T W r
		wr := slices.Clone(sol.Res)
		if opt.Weights != nil {
			floats.Mul(wr, opt.Weights)
		}
		var g mat.VecDense
		g.MulVec(J.T(), mat.NewVecDense(m, wr))
		if floats.Norm(g.RawVector().Data, math.Inf(1)) <= opt.GTol {
			PrintD(3, "\tlm: iter=%d gradient below tolerance, cost=%g\n", sol.Iter, sol.Cost)
			sol.Converged = true
			break
		}

		copy(neg, sol.Res)
		floats.Scale(-1, neg)
		rhs := mat.NewVecDense(m, neg)

		for {
			dx, _, err := SolveLS(J, rhs, opt.Weights, lambda)
			if err != nil {
				return sol, fmt.Errorf("%w: %v", ErrOptimizationDidNotConverge, err)
			}
			step := mat.Col(nil, 0, dx)
			floats.AddTo(xn, sol.X, step)
			small := floats.Norm(step, 2) <= opt.XTol*(floats.Norm(sol.X, 2)+opt.XTol)

			err = f(rn, xn)
			sol.Evals++
			if err == nil && !hasNonFinite(rn) {
				if cn := wcost(rn, opt.Weights); cn < sol.Cost {
					PrintD(3, "\tlm: iter=%d lambda=%.3g cost=%.9g -> %.9g\n", sol.Iter, lambda, sol.Cost, cn)
					if sol.Cost-cn <= opt.FTol*sol.Cost || small {
						sol.Converged = true
					}
					copy(sol.X, xn)
					copy(sol.Res, rn)
					sol.Cost = cn
					lambda = math.Max(lambda/10, 1e-15)
					break
				}
			}

			// Rejected
			if small {
				sol.Converged = true
				break
			}
			lambda *= 10
			if lambda > opt.LambdaMax {
				return sol, fmt.Errorf("%w: damping exceeded %g at iteration %d (cost %g)",
					ErrOptimizationDidNotConverge, opt.LambdaMax, sol.Iter, sol.Cost)
			}
		}
	}

	if !sol.Converged {
		return sol, fmt.Errorf("%w after %d iterations (cost %g)", ErrOptimizationDidNotConverge, opt.MaxIter, sol.Cost)
	}

	// Covariance at the solution
	fd.Jacobian(J, jf, sol.X, jset)
	if !hasNonFinite(J.RawMatrix().Data) {
		if _, cov, err := SolveLS(J, mat.NewVecDense(m, sol.Res), opt.Weights, 0); err == nil {
			sol.Cov = cov
		}
	}
	PrintD(2, "\tlm: converged iter=%d evals=%d cost %.9g -> %.9g\n", sol.Iter, sol.Evals, sol.Cost0, sol.Cost)
	return sol, nil
}

// 1/2 r^T W r
func wcost(r, w []float64) float64 {
	if w == nil {
		return floats.Dot(r, r) / 2
	}
	s := 0.0
	for i := range r {
		s += w[i] * r[i] * r[i]
	}
	return s / 2
}

func hasNonFinite(v []float64) bool {
	return slices.IndexFunc(v, func(x float64) bool { return !isFinite(x) }) >= 0
}
