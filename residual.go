// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

// Residual blocks of the pose refinement. Each block evaluates one kind of
// correspondence against a candidate camera; the model concatenates them in a
// fixed order: points, lines, conics.

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ResidualBlock evaluates the residuals of one correspondence category
//   - Len: number of residuals written by Eval
//   - Eval: residuals for the projection matrix P (3x4) and its plane homography H (3x3)
type ResidualBlock interface {
	Name() string
	Len() int
	Eval(P, H mat.Matrix, dst []float64) error
}

//-------------------------------------------------------------------
// Point block
//-------------------------------------------------------------------

// PointBlock gives 2 residuals (x, y) per point pair: projection minus observation
type PointBlock struct {
	World []r3.Vector
	Image []r2.Point
}

func (b *PointBlock) Name() string { return "point" }

func (b *PointBlock) Len() int { return 2 * len(b.World) }

func (b *PointBlock) Eval(P, H mat.Matrix, dst []float64) error {
	for i, X := range b.World {
		p := project(P, X)
		dst[2*i] = p.X - b.Image[i].X
		dst[2*i+1] = p.Y - b.Image[i].Y
	}
	return nil
}

//-------------------------------------------------------------------
// Line block
//-------------------------------------------------------------------

// LineBlock gives 1 residual per image point sampled on a line: the signed
// perpendicular distance to the projected world line
type LineBlock struct {
	World []LineSegment3D
	Image [][]r2.Point
}

func (b *LineBlock) Name() string { return "line" }

func (b *LineBlock) Len() int {
	n := 0
	for _, pts := range b.Image {
		n += len(pts)
	}
	return n
}

func (b *LineBlock) Eval(P, H mat.Matrix, dst []float64) error {
	k := 0
	for i, seg := range b.World {
		l, err := lineThrough(project(P, seg.P1), project(P, seg.P2))
		if err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		for _, p := range b.Image[i] {
			dst[k] = lineDistance(l, p)
			k++
		}
	}
	return nil
}

//-------------------------------------------------------------------
// Conic block
//-------------------------------------------------------------------

// ConicBlock gives 1 residual per image point sampled on a conic:
// sqrt(d^2 + Eps) with d the distance to the projected world conic
type ConicBlock struct {
	World []Conic
	Image [][]r2.Point
	Eps   float64 // Keeps the residual differentiable at d = 0
}

func (b *ConicBlock) Name() string { return "conic" }

func (b *ConicBlock) Len() int {
	n := 0
	for _, pts := range b.Image {
		n += len(pts)
	}
	return n
}

func (b *ConicBlock) Eval(P, H mat.Matrix, dst []float64) error {
	k := 0
	for i, c := range b.World {
		ic, err := TransformConic(H, c)
		if err != nil {
			return fmt.Errorf("conic %d: %w", i, err)
		}
		for _, p := range b.Image[i] {
			dst[k] = math.Sqrt(ic.DistanceSquared(p) + b.Eps)
			k++
		}
	}
	return nil
}

//-------------------------------------------------------------------
// Residual model
//-------------------------------------------------------------------

// ResidualModel flattens its blocks into one residual vector
type ResidualModel struct {
	Blocks  []ResidualBlock
	Weights []float64 // Weight of each block
	PP      r2.Point  // Principal point, held fixed
}

// NewResidualModel builds the blocks of c in the order points, lines, conics.
// Empty categories are left out.
func NewResidualModel(c *Correspondences, opt *RefineOpt) *ResidualModel {
	m := &ResidualModel{}
	if len(c.WorldPoints) > 0 {
		m.add(&PointBlock{World: c.WorldPoints, Image: c.ImagePoints}, opt.PointWeight)
	}
	if len(c.WorldLines) > 0 {
		m.add(&LineBlock{World: c.WorldLines, Image: c.ImageLinePoints}, opt.LineWeight)
	}
	if len(c.WorldConics) > 0 {
		m.add(&ConicBlock{World: c.WorldConics, Image: c.ImageConicPoints, Eps: opt.ConicEpsilon}, opt.ConicWeight)
	}
	return m
}

func (m *ResidualModel) add(b ResidualBlock, w float64) {
	m.Blocks = append(m.Blocks, b)
	m.Weights = append(m.Weights, w)
}

// Total number of residuals
func (m *ResidualModel) Len() int {
	n := 0
	for _, b := range m.Blocks {
		n += b.Len()
	}
	return n
}

// Eval writes the residuals of the pose into dst (length Len())
func (m *ResidualModel) Eval(pose *CameraPose, dst []float64) error {
	if len(dst) != m.Len() {
		return fmt.Errorf("invalid residual buffer size %d, want %d", len(dst), m.Len())
	}
	P := pose.Matrix()
	H := planeHomography(P)
	k := 0
	for _, b := range m.Blocks {
		n := b.Len()
		if err := b.Eval(P, H, dst[k:k+n]); err != nil {
			return fmt.Errorf("%s residuals: %w", b.Name(), err)
		}
		k += n
	}
	return nil
}

// Func returns the residual function over the parameter vector [f, rx, ry, rz, cx, cy, cz]
func (m *ResidualModel) Func() ResidualFunc {
	return func(dst, x []float64) error {
		return m.Eval(PoseFromParams(x, m.PP), dst)
	}
}

// WeightVector expands the block weights to one weight per residual.
// Returns nil when all weights are 1.
func (m *ResidualModel) WeightVector() []float64 {
	unit := true
	for _, w := range m.Weights {
		unit = unit && w == 1
	}
	if unit {
		return nil
	}
	w := make([]float64, 0, m.Len())
	for i, b := range m.Blocks {
		for j := 0; j < b.Len(); j++ {
			w = append(w, m.Weights[i])
		}
	}
	return w
}

// BlockRMS returns the root mean square of each block's residuals in r, keyed by block name
func (m *ResidualModel) BlockRMS(r []float64) map[string]float64 {
	rms := make(map[string]float64, len(m.Blocks))
	k := 0
	for _, b := range m.Blocks {
		n := b.Len()
		if n > 0 {
			rms[b.Name()] = floats.Norm(r[k:k+n], 2) / math.Sqrt(float64(n))
		}
		k += n
	}
	return rms
}

// Cost 1/2 r^T W r of the pose
func (m *ResidualModel) Cost(pose *CameraPose) (float64, error) {
	r := make([]float64, m.Len())
	if err := m.Eval(pose, r); err != nil {
		return 0, err
	}
	return wcost(r, m.WeightVector()), nil
}
