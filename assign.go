// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.17
//

package ptzcam

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// AssignConicPoints groups unlabeled image points by the nearest world conic
// projected with pose. Ties go to the lowest conic index. Every point is
// assigned; there is no rejection threshold.
//
// Returns one group per conic, in the order of conics.
func AssignConicPoints(pose *CameraPose, conics []Conic, pts []r2.Point) ([][]r2.Point, error) {
	if len(pts) == 0 {
		return make([][]r2.Point, len(conics)), nil
	}
	if len(conics) == 0 {
		return nil, fmt.Errorf("%w: %d conic points but no world conic", ErrInsufficientData, len(pts))
	}

	// Projected once for all points
	H := pose.PlaneHomography()
	proj := make([]Conic, len(conics))
	for i, c := range conics {
		ic, err := TransformConic(H, c)
		if err != nil {
			return nil, fmt.Errorf("conic %d: %w", i, err)
		}
		proj[i] = ic
	}

	groups := make([][]r2.Point, len(conics))
	for _, p := range pts {
		best, bd := 0, math.Inf(1)
		for i, c := range proj {
			if d := c.DistanceSquared(p); d < bd {
				best, bd = i, d
			}
		}
		groups[best] = append(groups[best], p)
	}

	if DBG_ >= 2 {
		for i, g := range groups {
			PrintA("\tconic %d: %d points assigned\n", i, len(g))
		}
	}
	return groups, nil
}

// assignCorrespondences returns a copy of c with its unassigned conic points
// merged into the per-conic groups
func assignCorrespondences(c *Correspondences, pose *CameraPose) (*Correspondences, error) {
	groups, err := AssignConicPoints(pose, c.WorldConics, c.UnassignedConicPoints)
	if err != nil {
		return nil, err
	}
	out := c.Clone()
	if out.ImageConicPoints == nil {
		out.ImageConicPoints = make([][]r2.Point, len(out.WorldConics))
	}
	for i := range groups {
		out.ImageConicPoints[i] = append(out.ImageConicPoints[i], groups[i]...)
	}
	out.UnassignedConicPoints = nil
	return out, nil
}
