// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

//-------------------------------------------------------------------
// Line segments
//-------------------------------------------------------------------

// LineSegment2D is a segment between two image points
type LineSegment2D struct {
	P1 r2.Point
	P2 r2.Point
}

// LineSegment3D is a segment between two world points (on the z = 0 plane)
type LineSegment3D struct {
	P1 r3.Vector
	P2 r3.Vector
}

// Homogeneous line through the two end points, scaled so that (a, b) has unit length.
// Returns an error if the end points coincide.
func (s LineSegment2D) Line() (r3.Vector, error) {
	return lineThrough(s.P1, s.P2)
}

func lineThrough(p1, p2 r2.Point) (r3.Vector, error) {
	l := homg(p1).Cross(homg(p2))
	n := math.Hypot(l.X, l.Y)
	if n < 1e-12 {
		return r3.Vector{}, fmt.Errorf("%w: line end points coincide %v", ErrDegenerateGeometry, p1)
	}
	return l.Mul(1 / n), nil
}

// Signed distance from p to the line l (l normalized by lineThrough)
func lineDistance(l r3.Vector, p r2.Point) float64 {
	return l.X*p.X + l.Y*p.Y + l.Z
}

//-------------------------------------------------------------------
// Homogeneous coordinates
//-------------------------------------------------------------------

func homg(p r2.Point) r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: 1}
}

// Apply a 3x3 projective map to a plane point
func transformPoint(H mat.Matrix, p r2.Point) r2.Point {
	x := H.At(0, 0)*p.X + H.At(0, 1)*p.Y + H.At(0, 2)
	y := H.At(1, 0)*p.X + H.At(1, 1)*p.Y + H.At(1, 2)
	w := H.At(2, 0)*p.X + H.At(2, 1)*p.Y + H.At(2, 2)
	return r2.Point{X: x / w, Y: y / w}
}

func planePoint(v r3.Vector) r2.Point {
	return r2.Point{X: v.X, Y: v.Y}
}

func onPlane(v r3.Vector) bool {
	return math.Abs(v.Z) <= PLANE_TOL
}

//-------------------------------------------------------------------
// Normalization
//-------------------------------------------------------------------

// Similarity transform moving the centroid of pts to the origin with mean distance sqrt(2)
// (Hartley & Zisserman, Alg. 4.2)
func normalizationMat(pts []r2.Point) (*mat.Dense, error) {
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.X
		ys[i] = p.Y
	}
	cx := stat.Mean(xs, nil)
	cy := stat.Mean(ys, nil)

	dists := make([]float64, len(pts))
	for i := range pts {
		dists[i] = math.Hypot(xs[i]-cx, ys[i]-cy)
	}
	md := stat.Mean(dists, nil)
	if !(md > 0) {
		return nil, fmt.Errorf("%w: all points coincide", ErrDegenerateGeometry)
	}
	s := math.Sqrt2 / md
	return mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}), nil
}

//-------------------------------------------------------------------
// Line fitting
//-------------------------------------------------------------------

// fitLine2D fits a homogeneous line to the points by total least squares.
// The normal is the eigenvector of the scatter matrix with the smallest eigenvalue.
func fitLine2D(pts []r2.Point) (r3.Vector, error) {
	if len(pts) < 2 {
		return r3.Vector{}, fmt.Errorf("%w: %d points on line, need 2", ErrInsufficientData, len(pts))
	}
	if len(pts) == 2 {
		return lineThrough(pts[0], pts[1])
	}

	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	var sxx, sxy, syy float64
	for _, p := range pts {
		d := p.Sub(c)
		sxx += d.X * d.X
		sxy += d.X * d.Y
		syy += d.Y * d.Y
	}
	if sxx+syy < 1e-24 {
		return r3.Vector{}, fmt.Errorf("%w: line points coincide", ErrDegenerateGeometry)
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy}), true) {
		return r3.Vector{}, fmt.Errorf("line fit factorization failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues are in ascending order
	n := r2.Point{X: vecs.At(0, 0), Y: vecs.At(1, 0)}
	n = n.Normalize()
	return r3.Vector{X: n.X, Y: n.Y, Z: -n.Dot(c)}, nil
}
