// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Implements the plane-to-image homography from point and line correspondences.

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// lineMatch pairs a world line segment with the image line it projects to
type lineMatch struct {
	World [2]r2.Point // End points on the world plane
	Line  r3.Vector   // Homogeneous image line
	Pts   []r2.Point  // Observed image points on the line
}

// HomographyInput holds the correspondences of one homography estimation.
// World coordinates are on the z = 0 plane.
type HomographyInput struct {
	World []r2.Point // World plane points
	Image []r2.Point // Image points
	lines []lineMatch
}

// AddLine adds a world segment and its observed image segment
func (in *HomographyInput) AddLine(world LineSegment3D, image LineSegment2D) error {
	l, err := image.Line()
	if err != nil {
		return err
	}
	in.lines = append(in.lines, lineMatch{
		World: [2]r2.Point{planePoint(world.P1), planePoint(world.P2)},
		Line:  l,
		Pts:   []r2.Point{image.P1, image.P2},
	})
	return nil
}

// AddLinePoints adds a world segment and image points sampled along its projection
func (in *HomographyInput) AddLinePoints(world LineSegment3D, pts []r2.Point) error {
	l, err := fitLine2D(pts)
	if err != nil {
		return err
	}
	in.lines = append(in.lines, lineMatch{
		World: [2]r2.Point{planePoint(world.P1), planePoint(world.P2)},
		Line:  l,
		Pts:   pts,
	})
	return nil
}

// Number of point + line constraints
func (in *HomographyInput) NumConstraints() int {
	return len(in.World) + len(in.lines)
}

// ComputeHomography estimates the world plane to image homography.
// A normalized DLT gives the linear solution, which is then polished by
// minimizing the point transfer and point-on-line distances in the image.
// The result is scaled to unit Frobenius norm.
func ComputeHomography(in *HomographyInput) (*mat.Dense, error) {

	if len(in.World) != len(in.Image) {
		return nil, fmt.Errorf("%w: %d world points, %d image points", ErrMismatchedInput, len(in.World), len(in.Image))
	}
	if nc := in.NumConstraints(); nc < MIN_CONSTR {
		return nil, fmt.Errorf("%w: %d point/line constraints, need %d", ErrInsufficientData, nc, MIN_CONSTR)
	}

	// Normalization of both planes
	wpts := append([]r2.Point{}, in.World...)
	ipts := append([]r2.Point{}, in.Image...)
	for _, lm := range in.lines {
		wpts = append(wpts, lm.World[0], lm.World[1])
		ipts = append(ipts, lm.Pts...)
	}
	Tw, err := normalizationMat(wpts)
	if err != nil {
		return nil, fmt.Errorf("world plane: %w", err)
	}
	Ti, err := normalizationMat(ipts)
	if err != nil {
		return nil, fmt.Errorf("image plane: %w", err)
	}
	var TiInv mat.Dense
	if err := TiInv.Inverse(Ti); err != nil {
		return nil, fmt.Errorf("%w: image normalization %v", ErrDegenerateGeometry, err)
	}

	nin := normalizeInput(in, Tw, Ti, &TiInv)

	Hn, err := linearHomography(nin)
	if err != nil {
		return nil, err
	}
	PrintMatD(4, "linear H (normalized)", Hn)

	Hn = PolishHomography(nin, Hn)

	// H = Ti^-1 Hn Tw
	var tmp, H mat.Dense
	tmp.Mul(Hn, Tw)
	H.Mul(&TiInv, &tmp)
	H.Scale(1/mat.Norm(&H, 2), &H)

	if _, err := inverse3(&H); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateGeometry, err)
	}
	PrintMatD(4, "H", &H)
	return &H, nil
}

// Apply the normalizations. Image lines transform by Ti^-T.
func normalizeInput(in *HomographyInput, Tw, Ti, TiInv mat.Matrix) *HomographyInput {
	out := &HomographyInput{
		World: make([]r2.Point, len(in.World)),
		Image: make([]r2.Point, len(in.Image)),
		lines: make([]lineMatch, len(in.lines)),
	}
	for i := range in.World {
		out.World[i] = transformPoint(Tw, in.World[i])
		out.Image[i] = transformPoint(Ti, in.Image[i])
	}
	for i, lm := range in.lines {
		l := mulVec3T(TiInv, lm.Line)
		l = l.Mul(1 / math.Hypot(l.X, l.Y))
		pts := make([]r2.Point, len(lm.Pts))
		for j, p := range lm.Pts {
			pts[j] = transformPoint(Ti, p)
		}
		out.lines[i] = lineMatch{
			World: [2]r2.Point{transformPoint(Tw, lm.World[0]), transformPoint(Tw, lm.World[1])},
			Line:  l,
			Pts:   pts,
		}
	}
	return out
}

// Direct linear transform. Each point gives two rows, each line end point one incidence row l^T H X = 0.
func linearHomography(in *HomographyInput) (*mat.Dense, error) {
	rows := 2*len(in.World) + 2*len(in.lines)
	A := mat.NewDense(rows, 9, nil)

	r := 0
	for i := range in.World {
		X, Y := in.World[i].X, in.World[i].Y
		u, v := in.Image[i].X, in.Image[i].Y
		A.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -u * X, -u * Y, -u})
		A.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -v * X, -v * Y, -v})
		r += 2
	}
	for _, lm := range in.lines {
		l := lm.Line
		for _, P := range lm.World {
			A.SetRow(r, []float64{
				l.X * P.X, l.X * P.Y, l.X,
				l.Y * P.X, l.Y * P.Y, l.Y,
				l.Z * P.X, l.Z * P.Y, l.Z,
			})
			r++
		}
	}

	var svd mat.SVD
	if !svd.Factorize(A, mat.SVDFull) {
		return nil, fmt.Errorf("%w: SVD of the DLT system failed", ErrDegenerateGeometry)
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[7] <= RANK_TOL*sv[0] {
		return nil, fmt.Errorf("%w: DLT system rank deficient (s8/s1=%g)", ErrDegenerateGeometry, sv[7]/sv[0])
	}

	var V mat.Dense
	svd.VTo(&V)
	return mat.NewDense(3, 3, mat.Col(nil, 8, &V)), nil
}

// Residuals of a homography: point transfer errors, then line point distances
func homographyResiduals(in *HomographyInput, H mat.Matrix, dst []float64) error {
	k := 0
	for i := range in.World {
		p := transformPoint(H, in.World[i])
		dst[k] = p.X - in.Image[i].X
		dst[k+1] = p.Y - in.Image[i].Y
		k += 2
	}
	for _, lm := range in.lines {
		l, err := lineThrough(transformPoint(H, lm.World[0]), transformPoint(H, lm.World[1]))
		if err != nil {
			return err
		}
		for _, p := range lm.Pts {
			dst[k] = lineDistance(l, p)
			k++
		}
	}
	return nil
}

func numHomographyResiduals(in *HomographyInput) int {
	m := 2 * len(in.World)
	for _, lm := range in.lines {
		m += len(lm.Pts)
	}
	return m
}

// PolishHomography refines H by Levenberg-Marquardt on the residuals of homographyResiduals.
// H is returned unchanged if the refinement cannot start.
func PolishHomography(in *HomographyInput, H *mat.Dense) *mat.Dense {
	m := numHomographyResiduals(in)
	x0 := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		x0 = append(x0, H.RawRowView(i)...)
	}

	f := func(dst, x []float64) error {
		return homographyResiduals(in, mat.NewDense(3, 3, x), dst)
	}
	opt := NewLMOpt()
	opt.MaxIter = 50
	sol, err := SolveLM(f, m, x0, opt)
	if sol == nil {
		PrintD(1, "homography polish skipped: %v\n", err)
		return H
	}
	if err != nil {
		PrintD(1, "homography polish: %v\n", err)
	}
	PrintD(2, "homography polish: cost %.6g -> %.6g (%d iterations)\n", sol.Cost0, sol.Cost, sol.Iter)
	Hp := mat.NewDense(3, 3, sol.X)
	Hp.Scale(1/mat.Norm(Hp, 2), Hp)
	return Hp
}
