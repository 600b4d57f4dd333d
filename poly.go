// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

package ptzcam

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Polynomial with coefficients in ascending order of degree
type poly []float64

func polyAdd(a, b poly) poly {
	n := max(len(a), len(b))
	r := make(poly, n)
	for i := range a {
		r[i] += a[i]
	}
	for i := range b {
		r[i] += b[i]
	}
	return r
}

func polyMul(a, b poly) poly {
	if len(a) == 0 || len(b) == 0 {
		return poly{}
	}
	r := make(poly, len(a)+len(b)-1)
	for i := range a {
		for j := range b {
			r[i+j] += a[i] * b[j]
		}
	}
	return r
}

func polyScale(a poly, s float64) poly {
	r := make(poly, len(a))
	for i := range a {
		r[i] = a[i] * s
	}
	return r
}

func polyEval(a poly, t float64) float64 {
	v := 0.0
	for i := len(a) - 1; i >= 0; i-- {
		v = v*t + a[i]
	}
	return v
}

func polyDeriv(a poly) poly {
	if len(a) < 2 {
		return poly{}
	}
	r := make(poly, len(a)-1)
	for i := 1; i < len(a); i++ {
		r[i-1] = float64(i) * a[i]
	}
	return r
}

// realRoots returns the real roots of a in ascending order.
// Roots are the eigenvalues of the companion matrix, refined by a few Newton steps.
func realRoots(a poly) []float64 {
	amax := 0.0
	for _, c := range a {
		amax = math.Max(amax, math.Abs(c))
	}
	if amax == 0 {
		return nil
	}

	// Drop zero leading coefficients
	n := len(a) - 1
	for n > 0 && a[n] == 0 {
		n--
	}
	switch n {
	case 0:
		return nil
	case 1:
		return []float64{-a[0] / a[1]}
	}

	cmp := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		cmp.Set(i, n-1, -a[i]/a[n])
		if i > 0 {
			cmp.Set(i, i-1, 1)
		}
	}
	var eig mat.Eigen
	if !eig.Factorize(cmp, mat.EigenNone) {
		return nil
	}

	da := polyDeriv(a[:n+1])
	roots := []float64{}
	for _, v := range eig.Values(nil) {
		t := real(v)
		if math.Abs(imag(v)) > ROOT_IM_TOL*(1+math.Abs(t)) {
			continue
		}
		for k := 0; k < 3; k++ {
			d := polyEval(da, t)
			if d == 0 {
				break
			}
			tn := t - polyEval(a[:n+1], t)/d
			if !isFinite(tn) {
				break
			}
			t = tn
		}
		roots = append(roots, t)
	}
	sort.Float64s(roots)
	return roots
}
