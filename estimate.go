// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

// Implements the estimation pipeline of one image:
// INIT -> LINEAR_CALIBRATION -> [CONIC_ASSIGNMENT] -> NONLINEAR_REFINEMENT -> RESULT | FAILED

package ptzcam

import (
	"fmt"

	"github.com/golang/geo/r2"
)

// Stage of the estimation pipeline
type Stage int

const (
	INIT = Stage(iota)
	LINEAR_CALIBRATION
	CONIC_ASSIGNMENT
	NONLINEAR_REFINEMENT
	RESULT
	FAILED
)

func (s Stage) String() string {
	switch s {
	case INIT:
		return "INIT"
	case LINEAR_CALIBRATION:
		return "LINEAR_CALIBRATION"
	case CONIC_ASSIGNMENT:
		return "CONIC_ASSIGNMENT"
	case NONLINEAR_REFINEMENT:
		return "NONLINEAR_REFINEMENT"
	case RESULT:
		return "RESULT"
	case FAILED:
		return "FAILED"
	default:
		return "UNKNOWN!"
	}
}

// EstimateOpt contains the options of the estimation pipeline
type EstimateOpt struct {
	PrincipalPoint r2.Point    // Fixed principal point [px]
	InitialGuess   *CameraPose // Used when the linear calibration fails (nil: fail instead)
	SkipRefine     bool        // Stop after the linear calibration
	Refine         *RefineOpt  // Refinement options
}

// NewEstimateOpt creates a new EstimateOpt with default values
func NewEstimateOpt(pp r2.Point) *EstimateOpt {
	return &EstimateOpt{
		PrincipalPoint: pp,
		InitialGuess:   nil,
		SkipRefine:     false,
		Refine:         NewRefineOpt(),
	}
}

// EstimateSol contains the results of the estimation pipeline
type EstimateSol struct {
	Pose     *CameraPose // Final pose. Set on RESULT, and on FAILED after a non-converged refinement
	Initial  *CameraPose // Pose entering the refinement
	Stage    Stage       // RESULT or FAILED
	FailedAt Stage       // Stage that failed (valid when Stage == FAILED)
	Trace    []Stage     // Stages passed, in order
	InitErr  error       // Linear calibration error when the initial guess was used instead
	Refine   *RefineSol  // Refinement details
}

func (s *EstimateSol) enter(st Stage) {
	s.Stage = st
	s.Trace = append(s.Trace, st)
	PrintD(1, "--- %s ---\n", st)
}

func (s *EstimateSol) fail(err error) (*EstimateSol, error) {
	s.FailedAt = s.Stage
	s.enter(FAILED)
	PrintD(1, "failed at %s: %v\n", s.FailedAt, err)
	return s, err
}

// Estimate runs the full pipeline on the correspondences of one image.
//
// The returned solution is never nil; on failure its Stage is FAILED and the error
// wraps one of the Err* kinds. A pose is only available on success, and after a
// refinement that did not converge (ErrOptimizationDidNotConverge).
func Estimate(c *Correspondences, opt *EstimateOpt) (*EstimateSol, error) {
	if opt == nil {
		opt = NewEstimateOpt(r2.Point{})
	}
	sol := &EstimateSol{}
	sol.enter(INIT)
	if err := c.Validate(); err != nil {
		return sol.fail(err)
	}
	c = c.Clone()

	sol.enter(LINEAR_CALIBRATION)
	init, err := linearCalibration(c, opt.PrincipalPoint)
	if err != nil {
		if opt.InitialGuess == nil {
			return sol.fail(err)
		}
		PrintD(1, "linear calibration failed (%v), using the initial guess\n", err)
		sol.InitErr = err
		g := *opt.InitialGuess
		g.K.PP = opt.PrincipalPoint
		init = &g
	}
	sol.Initial = init

	if len(c.UnassignedConicPoints) > 0 {
		sol.enter(CONIC_ASSIGNMENT)
		if c, err = assignCorrespondences(c, init); err != nil {
			return sol.fail(err)
		}
	}

	if opt.SkipRefine {
		sol.Pose = init
		sol.enter(RESULT)
		return sol, nil
	}

	sol.enter(NONLINEAR_REFINEMENT)
	ropt := opt.Refine
	if ropt == nil {
		ropt = NewRefineOpt()
	}
	rs, err := RefineCorrespondences(c, init, ropt)
	sol.Refine = rs
	if err != nil {
		if rs != nil {
			sol.Pose = rs.Pose
		}
		return sol.fail(err)
	}
	sol.Pose = rs.Pose
	sol.enter(RESULT)
	return sol, nil
}

// Initial pose from the point and line correspondences.
// Lines with fewer than 2 image points only take part in the refinement.
func linearCalibration(c *Correspondences, pp r2.Point) (*CameraPose, error) {
	in, err := newHomographyInput(c.WorldPoints, c.ImagePoints)
	if err != nil {
		return nil, err
	}
	for i, seg := range c.WorldLines {
		if len(c.ImageLinePoints[i]) < 2 {
			PrintD(2, "line %d: %d image points, not used for the linear calibration\n", i, len(c.ImageLinePoints[i]))
			continue
		}
		if !onPlane(seg.P1) || !onPlane(seg.P2) {
			return nil, fmt.Errorf("%w: world line %d is not on the z = 0 plane", ErrDegenerateGeometry, i)
		}
		if err := in.AddLinePoints(seg, c.ImageLinePoints[i]); err != nil {
			return nil, fmt.Errorf("image line %d: %w", i, err)
		}
	}
	return estimateInitial(in, pp)
}
