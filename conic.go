// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.15
//

// Conics on a plane and their transfer through a projective map.

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// Conic a x^2 + b xy + c y^2 + d x + e y + f = 0
type Conic struct {
	A, B, C, D, E, F float64
}

// NewCircle returns the conic of a circle
func NewCircle(center r2.Point, radius float64) Conic {
	return Conic{
		A: 1,
		C: 1,
		D: -2 * center.X,
		E: -2 * center.Y,
		F: center.X*center.X + center.Y*center.Y - radius*radius,
	}
}

func (c Conic) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g, %g, %g)", c.A, c.B, c.C, c.D, c.E, c.F)
}

// Symmetric matrix representation
//
//	[ a   b/2 d/2 ]
//	[ b/2 c   e/2 ]
//	[ d/2 e/2 f   ]
func (c Conic) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c.A, c.B / 2, c.D / 2,
		c.B / 2, c.C, c.E / 2,
		c.D / 2, c.E / 2, c.F,
	})
}

// ConicFromMatrix reads the coefficients of a 3x3 matrix.
// Off-diagonal pairs are summed back into b, d, e.
func ConicFromMatrix(M mat.Matrix) Conic {
	return Conic{
		A: M.At(0, 0),
		B: M.At(0, 1) + M.At(1, 0),
		C: M.At(1, 1),
		D: M.At(0, 2) + M.At(2, 0),
		E: M.At(1, 2) + M.At(2, 1),
		F: M.At(2, 2),
	}
}

// Algebraic value at p
func (c Conic) Eval(p r2.Point) float64 {
	return c.A*p.X*p.X + c.B*p.X*p.Y + c.C*p.Y*p.Y + c.D*p.X + c.E*p.Y + c.F
}

func (c Conic) Gradient(p r2.Point) r2.Point {
	return r2.Point{
		X: 2*c.A*p.X + c.B*p.Y + c.D,
		Y: c.B*p.X + 2*c.C*p.Y + c.E,
	}
}

// First order (Sampson) approximation of the squared distance from p to the conic
func (c Conic) SampsonDistanceSquared(p r2.Point) float64 {
	g := c.Gradient(p)
	gg := g.Dot(g)
	v := c.Eval(p)
	if gg == 0 {
		return v * v
	}
	return v * v / gg
}

// TransformConic maps a conic through the projective map H: C' = H^-T C H^-1
func TransformConic(H mat.Matrix, c Conic) (Conic, error) {
	Hinv, err := inverse3(H)
	if err != nil {
		return Conic{}, err
	}
	var tmp, Cp mat.Dense
	tmp.Mul(c.Matrix(), Hinv)
	Cp.Mul(Hinv.T(), &tmp)
	return ConicFromMatrix(&Cp), nil
}

// Inverse of a 3x3 projective map
func inverse3(H mat.Matrix) (*mat.Dense, error) {
	scale := mat.Norm(H, 2)
	if scale == 0 || !isFinite(scale) {
		return nil, fmt.Errorf("%w: zero or non-finite matrix", ErrSingularHomography)
	}
	if d := mat.Det(H); math.Abs(d) <= SING_TOL*scale*scale*scale {
		return nil, fmt.Errorf("%w: det=%g", ErrSingularHomography, d)
	}
	var inv mat.Dense
	if err := inv.Inverse(H); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingularHomography, err)
	}
	return &inv, nil
}

// DistanceSquared returns the squared geometric distance from p to the closest point of the conic.
//
// With the conic written as q^T A q + 2 g^T q + f = 0 in coordinates centred on p,
// the closest point satisfies (I + tA) q = -t g. Substituting q(t) into the conic
// gives a quartic in t whose real roots yield the candidate points.
// Falls back to the Sampson distance when the conic has no real point near p.
func (c Conic) DistanceSquared(p r2.Point) float64 {

	// Centre on p
	a, b, cc := c.A, c.B, c.C
	d := c.D + 2*c.A*p.X + c.B*p.Y
	e := c.E + c.B*p.X + 2*c.C*p.Y
	f := c.Eval(p)
	if f == 0 {
		return 0
	}

	// Degenerates to a line
	qmax := math.Max(math.Max(math.Abs(a), math.Abs(b)/2), math.Abs(cc))
	if qmax == 0 {
		return c.SampsonDistanceSquared(p)
	}

	// Unit length L balances the quadratic terms against the constant and
	// linear ones, so the quartic has coefficients of comparable size
	L := math.Max(math.Sqrt(math.Abs(f)/qmax), math.Hypot(d, e)/(2*qmax))
	a, b, cc = a*L*L, b*L*L, cc*L*L
	d, e = d*L, e*L

	// The conic is homogeneous
	s := 0.0
	for _, v := range []float64{a, b, cc, d, e, f} {
		s = math.Max(s, math.Abs(v))
	}
	a, b, cc, d, e, f = a/s, b/s, cc/s, d/s, e/s, f/s
	q := Conic{A: a, B: b, C: cc, D: d, E: e, F: f}

	gx, gy := d/2, e/2
	ux := poly{0, -gx, -cc*gx + b/2*gy}
	uy := poly{0, -gy, b/2*gx - a*gy}
	det := poly{1, a + cc, a*cc - b*b/4}

	P := polyScale(polyMul(ux, ux), a)
	P = polyAdd(P, polyScale(polyMul(ux, uy), b))
	P = polyAdd(P, polyScale(polyMul(uy, uy), cc))
	P = polyAdd(P, polyScale(polyMul(det, polyAdd(polyScale(ux, gx), polyScale(uy, gy))), 2))
	P = polyAdd(P, polyScale(polyMul(det, det), f))

	best := math.Inf(1)
	for _, t := range realRoots(P) {
		dt := polyEval(det, t)
		if math.Abs(dt) < 1e-12 {
			continue
		}
		pt := r2.Point{X: polyEval(ux, t) / dt, Y: polyEval(uy, t) / dt}
		pt = q.projectNewton(pt)
		if !q.onCurve(pt) {
			continue
		}
		if d2 := pt.Dot(pt); d2 < best {
			best = d2
		}
	}

	// Multipliers with a singular I + tA
	if d2 := q.singularDistanceSquared(); d2 < best {
		best = d2
	}
	if math.IsInf(best, 1) {
		return c.SampsonDistanceSquared(p)
	}
	return best * L * L
}

// Pull a point onto the conic along the gradient
func (c Conic) projectNewton(p r2.Point) r2.Point {
	for i := 0; i < 5; i++ {
		g := c.Gradient(p)
		gg := g.Dot(g)
		if gg == 0 {
			break
		}
		np := p.Sub(g.Mul(c.Eval(p) / gg))
		if !isFinite(np.X) || !isFinite(np.Y) {
			break
		}
		p = np
	}
	return p
}

// First order distance of p from the curve below 1e-6 (coefficients scaled to unit size)
func (c Conic) onCurve(p r2.Point) bool {
	g := c.Gradient(p)
	v := c.Eval(p)
	return v*v <= 1e-12*g.Dot(g)
}

// Closest point candidates for t = -1/l, l an eigenvalue of A, with the conic
// centred on the query point. (I + tA) q = -t g then only has solutions when g
// has no component along the eigenvector n of l; q is the particular solution
// plus s n, with s from the conic equation. This covers points on a symmetry
// axis, including the centre.
func (c Conic) singularDistanceSquared() float64 {
	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(2, []float64{c.A, c.B / 2, c.B / 2, c.C}), true) {
		return math.Inf(1)
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	ls := eig.Values(nil)
	g := r2.Point{X: c.D / 2, Y: c.E / 2}

	best := math.Inf(1)
	for k := 0; k < 2; k++ {
		lk, lj := ls[k], ls[1-k]
		if math.Abs(lk) < 1e-12 {
			continue
		}
		n := r2.Point{X: vecs.At(0, k), Y: vecs.At(1, k)}
		m := r2.Point{X: vecs.At(0, 1-k), Y: vecs.At(1, 1-k)}
		if math.Abs(g.Dot(n)) > 1e-9 {
			continue
		}
		t := -1 / lk
		var q0 r2.Point
		if dj := 1 + t*lj; math.Abs(dj) >= 1e-12 {
			q0 = m.Mul(-t * g.Dot(m) / dj)
		} else if math.Abs(g.Dot(m)) > 1e-9 {
			continue
		}
		c0 := lj*q0.Dot(q0) + 2*g.Dot(q0) + c.F
		if s2 := -c0 / lk; s2 >= 0 {
			best = math.Min(best, q0.Dot(q0)+s2)
		}
	}
	return best
}
