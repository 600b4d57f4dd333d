// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

// Minimal rotation parameters (Rodrigues vector) and conversion to/from 3x3 matrices.

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Rotation is a 3D rotation stored as a Rodrigues vector: the unit rotation axis
// scaled by the rotation angle [rad]. The angle is kept in [0, pi].
type Rotation struct {
	Rod r3.Vector
}

func NewRotation(rx, ry, rz float64) Rotation {
	return Rotation{Rod: r3.Vector{X: rx, Y: ry, Z: rz}}
}

// Rotation angle [rad]
func (r Rotation) Angle() float64 {
	return r.Rod.Norm()
}

// Matrix returns the orthonormal rotation matrix
//   - R = I + sin(t)[k]x + (1 - cos(t))[k]x^2 with t = |rod|, k = rod/t
func (r Rotation) Matrix() *mat.Dense {
	t := r.Rod.Norm()
	R := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if t < 1e-15 {
		// First order, exact to machine precision at this angle
		R.Set(0, 1, -r.Rod.Z)
		R.Set(0, 2, r.Rod.Y)
		R.Set(1, 0, r.Rod.Z)
		R.Set(1, 2, -r.Rod.X)
		R.Set(2, 0, -r.Rod.Y)
		R.Set(2, 1, r.Rod.X)
		return R
	}
	k := r.Rod.Mul(1 / t)
	s, c := math.Sin(t), math.Cos(t)
	v := 1 - c

	R.Set(0, 0, c+k.X*k.X*v)
	R.Set(0, 1, k.X*k.Y*v-k.Z*s)
	R.Set(0, 2, k.X*k.Z*v+k.Y*s)
	R.Set(1, 0, k.Y*k.X*v+k.Z*s)
	R.Set(1, 1, c+k.Y*k.Y*v)
	R.Set(1, 2, k.Y*k.Z*v-k.X*s)
	R.Set(2, 0, k.Z*k.X*v-k.Y*s)
	R.Set(2, 1, k.Z*k.Y*v+k.X*s)
	R.Set(2, 2, c+k.Z*k.Z*v)
	return R
}

// Rotate a vector
func (r Rotation) apply(v r3.Vector) r3.Vector {
	return mulVec3(r.Matrix(), v)
}

// RotationFromMatrix converts an orthonormal matrix (det = +1) to a Rodrigues vector.
// The matrix goes through a unit quaternion, which stays accurate near 0 and pi.
func RotationFromMatrix(R mat.Matrix) (Rotation, error) {
	if r, c := R.Dims(); r != 3 || c != 3 {
		return Rotation{}, fmt.Errorf("invalid rotation matrix size (%d x %d)", r, c)
	}
	if d := mat.Det(R); math.Abs(d-1) > 1e-6 {
		return Rotation{}, fmt.Errorf("not a rotation matrix, det=%g", d)
	}

	m := func(i, j int) float64 { return R.At(i, j) }
	tr := m(0, 0) + m(1, 1) + m(2, 2)

	// Quaternion (w, x, y, z), largest component first for stability
	var w, x, y, z float64
	switch {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		w = s / 4
		x = (m(2, 1) - m(1, 2)) / s
		y = (m(0, 2) - m(2, 0)) / s
		z = (m(1, 0) - m(0, 1)) / s
	case m(0, 0) > m(1, 1) && m(0, 0) > m(2, 2):
		s := 2 * math.Sqrt(1+m(0, 0)-m(1, 1)-m(2, 2))
		w = (m(2, 1) - m(1, 2)) / s
		x = s / 4
		y = (m(0, 1) + m(1, 0)) / s
		z = (m(0, 2) + m(2, 0)) / s
	case m(1, 1) > m(2, 2):
		s := 2 * math.Sqrt(1+m(1, 1)-m(0, 0)-m(2, 2))
		w = (m(0, 2) - m(2, 0)) / s
		x = (m(0, 1) + m(1, 0)) / s
		y = s / 4
		z = (m(1, 2) + m(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+m(2, 2)-m(0, 0)-m(1, 1))
		w = (m(1, 0) - m(0, 1)) / s
		x = (m(0, 2) + m(2, 0)) / s
		y = (m(1, 2) + m(2, 1)) / s
		z = s / 4
	}
	if w < 0 {
		w, x, y, z = -w, -x, -y, -z
	}

	v := r3.Vector{X: x, Y: y, Z: z}
	sn := v.Norm()
	if sn < 1e-300 {
		return Rotation{}, nil
	}
	angle := 2 * math.Atan2(sn, w)
	return Rotation{Rod: v.Mul(angle / sn)}, nil
}

// Closest rotation matrix to M in the Frobenius norm (U V^T with det = +1)
func orthonormalize(M mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(M, mat.SVDFull) {
		return nil, fmt.Errorf("%w: SVD failed", ErrDegenerateGeometry)
	}
	var U, V mat.Dense
	svd.UTo(&U)
	svd.VTo(&V)

	var R mat.Dense
	R.Mul(&U, V.T())
	if mat.Det(&R) < 0 {
		for i := 0; i < 3; i++ {
			U.Set(i, 2, -U.At(i, 2))
		}
		R.Mul(&U, V.T())
	}
	return &R, nil
}

func mulVec3(M mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: M.At(0, 0)*v.X + M.At(0, 1)*v.Y + M.At(0, 2)*v.Z,
		Y: M.At(1, 0)*v.X + M.At(1, 1)*v.Y + M.At(1, 2)*v.Z,
		Z: M.At(2, 0)*v.X + M.At(2, 1)*v.Y + M.At(2, 2)*v.Z,
	}
}

// Transposed multiply M^T v
func mulVec3T(M mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: M.At(0, 0)*v.X + M.At(1, 0)*v.Y + M.At(2, 0)*v.Z,
		Y: M.At(0, 1)*v.X + M.At(1, 1)*v.Y + M.At(2, 1)*v.Z,
		Z: M.At(0, 2)*v.X + M.At(1, 2)*v.Y + M.At(2, 2)*v.Z,
	}
}
