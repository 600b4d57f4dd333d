// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

package ptzcam

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Solve the observation equation using damped weighted least squares
// - dx = (G^t W G + lambda diag(G^t W G))^-1 G^t W dr
// - W is diagonal and given by its entries w (nil means unit weights)
// - With lambda == 0, also return the error covariance matrix (G^t W G)^-1 as cov
func SolveLS(G mat.Matrix, dr mat.Vector, w []float64, lambda float64) (dx mat.Vector, cov mat.Matrix, err error) {

	n1, m1 := G.Dims()
	if w != nil && len(w) != n1 {
		return nil, nil, fmt.Errorf("invalid matrix size. G^T(%d x %d), W(%d x %d)", m1, n1, len(w), len(w))
	}
	l1 := dr.Len()
	if l1 != n1 {
		return nil, nil, fmt.Errorf("invalid matrix size. G(%d x %d), dr(%d x 1)", n1, m1, l1)
	}

	// W G
	var WG mat.Dense
	WG.CloneFrom(G)
	if w != nil {
		for i := 0; i < n1; i++ {
			row := WG.RawRowView(i)
			for j := range row {
				row[j] *= w[i]
			}
		}
	}

	// A (G^t W G)
	var A mat.Dense
	A.Mul(G.T(), &WG)

	// b (G^t W dr)
	var b mat.VecDense
	b.MulVec(WG.T(), dr)

	// Marquardt damping
	var Ad mat.Dense
	Ad.CloneFrom(&A)
	if lambda > 0 {
		for i := 0; i < m1; i++ {
			d := A.At(i, i)
			if d < 1e-12 {
				d = 1e-12
			}
			Ad.Set(i, i, A.At(i, i)+lambda*d)
		}
	}

	// Solve for x (x = A^-1 b)
	var x mat.VecDense
	err = x.SolveVec(&Ad, &b)
	if err != nil && !isConditionErr(err) {
		return nil, nil, err
	}
	err = nil
	dx = &x

	if lambda > 0 {
		return
	}

	// Set (G^T W G)^-1 as the covariance matrix
	var c mat.Dense
	err = c.Inverse(&A)
	if err != nil {
		return nil, nil, err
	}
	cov = &c

	return
}

// Ill-conditioning is reported by gonum but the solution is still usable
func isConditionErr(err error) bool {
	var ce mat.Condition
	return errors.As(err, &ce)
}
