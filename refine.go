// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

// Implements the nonlinear refinement of a camera pose over point, line and
// conic correspondences.

package ptzcam

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// Correspondences
//-------------------------------------------------------------------

// Correspondences between the world plane model and one image
type Correspondences struct {
	WorldPoints           []r3.Vector     // World points
	ImagePoints           []r2.Point      // Observed image points, paired with WorldPoints
	WorldLines            []LineSegment3D // World line segments
	ImageLinePoints       [][]r2.Point    // Image points sampled on each line, paired with WorldLines
	WorldConics           []Conic         // World conics
	ImageConicPoints      [][]r2.Point    // Image points sampled on each conic, paired with WorldConics
	UnassignedConicPoints []r2.Point      // Image points on some conic, not yet grouped
}

// Clone returns a deep copy
func (c *Correspondences) Clone() *Correspondences {
	return &Correspondences{
		WorldPoints:           slices.Clone(c.WorldPoints),
		ImagePoints:           slices.Clone(c.ImagePoints),
		WorldLines:            slices.Clone(c.WorldLines),
		ImageLinePoints:       cloneGroups(c.ImageLinePoints),
		WorldConics:           slices.Clone(c.WorldConics),
		ImageConicPoints:      cloneGroups(c.ImageConicPoints),
		UnassignedConicPoints: slices.Clone(c.UnassignedConicPoints),
	}
}

func cloneGroups(g [][]r2.Point) [][]r2.Point {
	if g == nil {
		return nil
	}
	out := make([][]r2.Point, len(g))
	for i := range g {
		out[i] = slices.Clone(g[i])
	}
	return out
}

// Validate checks that paired arrays have equal lengths
func (c *Correspondences) Validate() error {
	if len(c.WorldPoints) != len(c.ImagePoints) {
		return fmt.Errorf("%w: %d world points, %d image points", ErrMismatchedInput, len(c.WorldPoints), len(c.ImagePoints))
	}
	if len(c.WorldLines) != len(c.ImageLinePoints) {
		return fmt.Errorf("%w: %d world lines, %d image line point groups", ErrMismatchedInput, len(c.WorldLines), len(c.ImageLinePoints))
	}
	if c.ImageConicPoints != nil && len(c.WorldConics) != len(c.ImageConicPoints) {
		return fmt.Errorf("%w: %d world conics, %d image conic point groups", ErrMismatchedInput, len(c.WorldConics), len(c.ImageConicPoints))
	}
	if c.ImageConicPoints == nil && len(c.WorldConics) > 0 && len(c.UnassignedConicPoints) == 0 {
		return fmt.Errorf("%w: %d world conics without image points", ErrMismatchedInput, len(c.WorldConics))
	}
	return nil
}

// Number of point pairs, lines and conic points
func (c *Correspondences) String() string {
	nl, nc := 0, len(c.UnassignedConicPoints)
	for _, g := range c.ImageLinePoints {
		nl += len(g)
	}
	for _, g := range c.ImageConicPoints {
		nc += len(g)
	}
	return fmt.Sprintf("points=%d lines=%d(%d pts) conics=%d(%d pts)",
		len(c.WorldPoints), len(c.WorldLines), nl, len(c.WorldConics), nc)
}

//-------------------------------------------------------------------
// Options and solution
//-------------------------------------------------------------------

// RefineOpt contains the options of the pose refinement
type RefineOpt struct {
	LM           *LMOpt  // Levenberg-Marquardt settings
	ConicEpsilon float64 // Added to the squared conic distance before the square root
	PointWeight  float64 // Weight of the point residuals
	LineWeight   float64 // Weight of the line residuals
	ConicWeight  float64 // Weight of the conic residuals
}

// NewRefineOpt creates a new RefineOpt with default values
func NewRefineOpt() *RefineOpt {
	return &RefineOpt{
		LM:           NewLMOpt(),
		ConicEpsilon: CONIC_EPS,
		PointWeight:  1,
		LineWeight:   1,
		ConicWeight:  1,
	}
}

// RefineSol contains the results of the pose refinement
type RefineSol struct {
	Pose      *CameraPose        // Refined pose (last iterate if not converged)
	Initial   *CameraPose        // Initial pose
	Cost0     float64            // Cost at the initial pose
	Cost      float64            // Cost at the refined pose
	Iter      int                // Number of LM iterations
	Converged bool               // Whether LM converged
	NumRes    int                // Number of residuals
	RMS       map[string]float64 // RMS of each residual block (point, line, conic)
	Cov       mat.Matrix         // Parameter covariance (7 x 7), nil if not available
	Behind    int                // Number of world points and line endpoints with depth <= 0
}

//-------------------------------------------------------------------
// Refinement
//-------------------------------------------------------------------

// RefineCorrespondences adjusts focal length, rotation and camera center of init
// to minimize the residuals of c. The principal point of init is held fixed.
// Unassigned conic points are grouped by the nearest conic projected with init.
//
// On ErrOptimizationDidNotConverge the solution with the last iterate is returned
// together with the error; on any other error the solution is nil.
func RefineCorrespondences(c *Correspondences, init *CameraPose, opt *RefineOpt) (*RefineSol, error) {

	if init == nil {
		return nil, fmt.Errorf("%w: no initial pose", ErrInsufficientData)
	}
	if opt == nil {
		opt = NewRefineOpt()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.Clone()
	if len(c.UnassignedConicPoints) > 0 {
		var err error
		if c, err = assignCorrespondences(c, init); err != nil {
			return nil, fmt.Errorf("conic assignment: %w", err)
		}
	}

	model := NewResidualModel(c, opt)
	model.PP = init.K.PP
	m := model.Len()
	if m <= NPARAM {
		return nil, fmt.Errorf("%w: %d residuals for %d parameters", ErrUnderconstrainedSystem, m, NPARAM)
	}
	PrintD(2, "refine: %s, %d residuals\n", c, m)

	lmOpt := *opt.LM
	lmOpt.Weights = model.WeightVector()

	sol := &RefineSol{Initial: init, NumRes: m}
	lm, err := SolveLM(model.Func(), m, init.Params(), &lmOpt)
	if lm == nil {
		return nil, fmt.Errorf("refinement: %w", err)
	}

	sol.Pose = PoseFromParams(lm.X, model.PP)
	sol.Cost0 = lm.Cost0
	sol.Cost = lm.Cost
	sol.Iter = lm.Iter
	sol.Converged = lm.Converged
	sol.RMS = model.BlockRMS(lm.Res)
	sol.Cov = lm.Cov
	PrintD(2, "refine: cost %.6g -> %.6g, iter=%d, rms=%v\n", sol.Cost0, sol.Cost, sol.Iter, sol.RMS)
	PrintD(2, "refine: %s\n", sol.Pose)

	if err != nil {
		return sol, fmt.Errorf("refinement: %w", err)
	}
	if sol.Pose.K.Focal <= 0 {
		PrintD(1, "Warning: refined focal length is not positive (%g)\n", sol.Pose.K.Focal)
	}
	sol.Behind = pointsBehind(sol.Pose, c)
	if sol.Behind > 0 {
		PrintD(1, "Warning: %d world points behind the refined camera\n", sol.Behind)
	}
	return sol, nil
}

func pointsBehind(pose *CameraPose, c *Correspondences) int {
	n := 0
	for _, X := range c.WorldPoints {
		if pose.Depth(X) <= 0 {
			n++
		}
	}
	for _, l := range c.WorldLines {
		for _, X := range []r3.Vector{l.P1, l.P2} {
			if pose.Depth(X) <= 0 {
				n++
			}
		}
	}
	return n
}

// refinePose runs RefineCorrespondences with default options and keeps the
// last iterate on non-convergence
func refinePose(c *Correspondences, init *CameraPose) (*CameraPose, error) {
	sol, err := RefineCorrespondences(c, init, nil)
	if err != nil {
		if sol != nil && errors.Is(err, ErrOptimizationDidNotConverge) {
			return sol.Pose, err
		}
		return nil, err
	}
	return sol.Pose, nil
}

// Refine refines init with point correspondences
func Refine(worldPts []r3.Vector, imagePts []r2.Point, init *CameraPose) (*CameraPose, error) {
	return refinePose(&Correspondences{
		WorldPoints: worldPts,
		ImagePoints: imagePts,
	}, init)
}

// RefineWithLines refines init with point and line correspondences.
// imageLinePts[i] holds the image points observed on the projection of worldLines[i].
func RefineWithLines(worldPts []r3.Vector, imagePts []r2.Point,
	worldLines []LineSegment3D, imageLinePts [][]r2.Point, init *CameraPose) (*CameraPose, error) {

	return refinePose(&Correspondences{
		WorldPoints:     worldPts,
		ImagePoints:     imagePts,
		WorldLines:      worldLines,
		ImageLinePoints: imageLinePts,
	}, init)
}

// RefineWithLinesAndConics refines init with point, line and conic correspondences.
// imageConicPts[i] holds the image points observed on the projection of worldConics[i].
func RefineWithLinesAndConics(worldPts []r3.Vector, imagePts []r2.Point,
	worldLines []LineSegment3D, imageLinePts [][]r2.Point,
	worldConics []Conic, imageConicPts [][]r2.Point, init *CameraPose) (*CameraPose, error) {

	if imageConicPts == nil {
		imageConicPts = [][]r2.Point{}
	}
	return refinePose(&Correspondences{
		WorldPoints:      worldPts,
		ImagePoints:      imagePts,
		WorldLines:       worldLines,
		ImageLinePoints:  imageLinePts,
		WorldConics:      worldConics,
		ImageConicPoints: imageConicPts,
	}, init)
}

// RefineWithAutoConicAssignment refines init after assigning each unlabeled conic
// point to the nearest world conic projected with init.
func RefineWithAutoConicAssignment(worldPts []r3.Vector, imagePts []r2.Point,
	worldLines []LineSegment3D, imageLinePts [][]r2.Point,
	worldConics []Conic, conicPts []r2.Point, init *CameraPose) (*CameraPose, error) {

	if init == nil {
		return nil, fmt.Errorf("%w: no initial pose", ErrInsufficientData)
	}
	groups, err := AssignConicPoints(init, worldConics, conicPts)
	if err != nil {
		return nil, fmt.Errorf("conic assignment: %w", err)
	}
	return RefineWithLinesAndConics(worldPts, imagePts, worldLines, imageLinePts, worldConics, groups, init)
}
