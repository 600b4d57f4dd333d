// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

// Implements the linear camera initialization: homography, focal length from the
// homography and decomposition into rotation and camera center.

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// EstimateInitial computes a camera from at least 4 world plane / image point pairs
func EstimateInitial(worldPts []r3.Vector, imagePts []r2.Point, pp r2.Point) (*CameraPose, error) {
	return EstimateInitialWithLines(worldPts, imagePts, nil, nil, pp)
}

// EstimateInitialWithLines computes a camera from point pairs and line segment pairs.
// Each line contributes two incidence constraints; points plus lines must be at least 4.
func EstimateInitialWithLines(worldPts []r3.Vector, imagePts []r2.Point,
	worldLines []LineSegment3D, imageLines []LineSegment2D, pp r2.Point) (*CameraPose, error) {

	if len(worldLines) != len(imageLines) {
		return nil, fmt.Errorf("%w: %d world lines, %d image lines", ErrMismatchedInput, len(worldLines), len(imageLines))
	}
	in, err := newHomographyInput(worldPts, imagePts)
	if err != nil {
		return nil, err
	}
	for i := range worldLines {
		if !onPlane(worldLines[i].P1) || !onPlane(worldLines[i].P2) {
			return nil, fmt.Errorf("%w: world line %d is not on the z = 0 plane", ErrDegenerateGeometry, i)
		}
		if err := in.AddLine(worldLines[i], imageLines[i]); err != nil {
			return nil, fmt.Errorf("image line %d: %w", i, err)
		}
	}
	return estimateInitial(in, pp)
}

func newHomographyInput(worldPts []r3.Vector, imagePts []r2.Point) (*HomographyInput, error) {
	if len(worldPts) != len(imagePts) {
		return nil, fmt.Errorf("%w: %d world points, %d image points", ErrMismatchedInput, len(worldPts), len(imagePts))
	}
	in := &HomographyInput{
		World: make([]r2.Point, len(worldPts)),
		Image: append([]r2.Point{}, imagePts...),
	}
	for i, p := range worldPts {
		if !onPlane(p) {
			return nil, fmt.Errorf("%w: world point %d is not on the z = 0 plane (z=%g)", ErrDegenerateGeometry, i, p.Z)
		}
		in.World[i] = planePoint(p)
	}
	return in, nil
}

func estimateInitial(in *HomographyInput, pp r2.Point) (*CameraPose, error) {

	if nc := in.NumConstraints(); nc < MIN_CONSTR {
		return nil, fmt.Errorf("%w: %d point/line constraints, need %d", ErrInsufficientData, nc, MIN_CONSTR)
	}

	H, err := ComputeHomography(in)
	if err != nil {
		return nil, fmt.Errorf("homography: %w", err)
	}

	K, err := NaturalCalibration(H, pp)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	PrintD(2, "initial focal length: %.6f\n", K.Focal)

	cands, err := DecomposeHomography(H, K)
	if err != nil {
		return nil, fmt.Errorf("decomposition: %w", err)
	}
	cam, err := selectPositiveDepth(cands)
	if err != nil {
		return nil, err
	}
	cam.K = K
	PrintD(2, "initial camera: %s\n", cam)
	return cam, nil
}

// NaturalCalibration estimates the focal length from a world plane to image homography,
// assuming square pixels, zero skew and the known principal point pp.
//
// With H centred on the principal point, the first two columns h1, h2 of
// diag(1/f, 1/f, 1) H are orthogonal and of equal length. Both constraints are
// linear in w = 1/f^2 and solved in least squares.
func NaturalCalibration(H mat.Matrix, pp r2.Point) (CalibrationMatrix, error) {
	T := mat.NewDense(3, 3, []float64{
		1, 0, -pp.X,
		0, 1, -pp.Y,
		0, 0, 1,
	})
	var Hc mat.Dense
	Hc.Mul(T, H)

	h := func(i, j int) float64 { return Hc.At(i, j) }
	a1 := h(0, 0)*h(0, 1) + h(1, 0)*h(1, 1)
	b1 := h(2, 0) * h(2, 1)
	a2 := SQ(h(0, 0)) + SQ(h(1, 0)) - SQ(h(0, 1)) - SQ(h(1, 1))
	b2 := SQ(h(2, 0)) - SQ(h(2, 1))

	// Fronto-parallel views leave both constraints empty
	scale := SQ(h(0, 0)) + SQ(h(1, 0)) + SQ(h(0, 1)) + SQ(h(1, 1))
	den := a1*a1 + a2*a2
	if !(math.Sqrt(den) > CALIB_TOL*scale) {
		return CalibrationMatrix{}, fmt.Errorf("%w: homography carries no focal length information", ErrDegenerateGeometry)
	}
	w := -(a1*b1 + a2*b2) / den
	f := 1 / math.Sqrt(w)
	if !(w > 0) || !isFinite(f) {
		return CalibrationMatrix{}, fmt.Errorf("%w: no positive focal length (1/f^2=%g)", ErrDegenerateGeometry, w)
	}
	return CalibrationMatrix{Focal: f, PP: pp}, nil
}

// poseCandidate is one solution of the homography decomposition
type poseCandidate struct {
	R      *mat.Dense // Rotation matrix
	T      r3.Vector  // Translation t = -R C
	Center r3.Vector  // Camera center C = -R^T t
}

// DecomposeHomography splits K^-1 H = lambda [r1 r2 t] into the two (R, t) solutions
// that differ by the sign of lambda.
func DecomposeHomography(H mat.Matrix, K CalibrationMatrix) ([2]poseCandidate, error) {
	var cands [2]poseCandidate

	var Kinv, M mat.Dense
	if err := Kinv.Inverse(K.Matrix()); err != nil {
		return cands, fmt.Errorf("%w: calibration matrix %v", ErrDegenerateGeometry, err)
	}
	M.Mul(&Kinv, H)

	m1 := r3.Vector{X: M.At(0, 0), Y: M.At(1, 0), Z: M.At(2, 0)}
	m2 := r3.Vector{X: M.At(0, 1), Y: M.At(1, 1), Z: M.At(2, 1)}
	m3 := r3.Vector{X: M.At(0, 2), Y: M.At(1, 2), Z: M.At(2, 2)}
	n1, n2 := m1.Norm(), m2.Norm()
	if n1 == 0 || n2 == 0 {
		return cands, fmt.Errorf("%w: zero homography column", ErrDegenerateGeometry)
	}
	lambda := 2 / (n1 + n2)

	for i, s := range []float64{1, -1} {
		r1 := m1.Mul(s * lambda)
		r2 := m2.Mul(s * lambda)
		r3v := r1.Cross(r2)
		t := m3.Mul(s * lambda)

		R0 := mat.NewDense(3, 3, []float64{
			r1.X, r2.X, r3v.X,
			r1.Y, r2.Y, r3v.Y,
			r1.Z, r2.Z, r3v.Z,
		})
		R, err := orthonormalize(R0)
		if err != nil {
			return cands, err
		}
		cands[i] = poseCandidate{
			R:      R,
			T:      t,
			Center: mulVec3T(R, t).Mul(-1),
		}
		PrintD(3, "\tcandidate %d: C=(%.6f, %.6f, %.6f)\n", i, cands[i].Center.X, cands[i].Center.Y, cands[i].Center.Z)
	}
	return cands, nil
}

// selectPositiveDepth keeps the candidate whose camera center is above the plane (z > 0)
func selectPositiveDepth(cands [2]poseCandidate) (*CameraPose, error) {
	z1, z2 := cands[0].Center.Z, cands[1].Center.Z
	switch {
	case z1 <= 0 && z2 <= 0:
		PrintD(1, "Warning: two solutions are below z = 0 plane\n")
		return nil, fmt.Errorf("%w: both camera centers below the plane (z=%g, %g)", ErrAmbiguousSolution, z1, z2)
	case z1 > 0 && z2 > 0:
		PrintD(1, "Warning: two ambiguity solutions\n")
		return nil, fmt.Errorf("%w: both camera centers above the plane (z=%g, %g)", ErrAmbiguousSolution, z1, z2)
	}

	c := cands[0]
	if z2 > 0 {
		c = cands[1]
	}
	rot, err := RotationFromMatrix(c.R)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	return &CameraPose{R: rot, Center: c.Center}, nil
}
