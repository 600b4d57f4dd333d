// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package ptzcam

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignConicPoints(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)
	conics := []Conic{NewCircle(testCircles[0], testRadius), NewCircle(testCircles[1], testRadius)}
	on0 := sampleCircle(cam, testCircles[0], testRadius, 5)
	on1 := sampleCircle(cam, testCircles[1], testRadius, 3)

	pts := append(append([]r2.Point{}, on1...), on0...)
	groups, err := AssignConicPoints(cam, conics, pts)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, on0, groups[0])
	assert.ElementsMatch(t, on1, groups[1])
}

func TestAssignConicPointsForcesFarPoints(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)
	conics := []Conic{NewCircle(testCircles[0], testRadius), NewCircle(testCircles[1], testRadius)}

	// No rejection: an outlier still goes to the nearer conic
	far := cam.Project(r2ToWorld(r2.Point{X: 4, Y: 0.5}))
	groups, err := AssignConicPoints(cam, conics, []r2.Point{far})
	require.NoError(t, err)
	assert.Empty(t, groups[0])
	assert.Equal(t, []r2.Point{far}, groups[1])
}

func TestAssignConicPointsPixelScale(t *testing.T) {
	t.Parallel()

	// Image plane = world plane with y mirrored
	pose := &CameraPose{
		K:      CalibrationMatrix{Focal: 1},
		R:      NewRotation(math.Pi, 0, 0),
		Center: r3.Vector{Z: 1},
	}
	big := NewCircle(r2.Point{X: 300, Y: 200}, 300)
	small := NewCircle(r2.Point{X: 1200, Y: 200}, 10)

	// 300 px from the big circle, 290 px from the small one
	p := r2.Point{X: 900, Y: -200}
	groups, err := AssignConicPoints(pose, []Conic{big, small}, []r2.Point{p})
	require.NoError(t, err)
	assert.Empty(t, groups[0])
	assert.Equal(t, []r2.Point{p}, groups[1])

	// 270 px from the big one
	q := r2.Point{X: 870, Y: -200}
	groups, err = AssignConicPoints(pose, []Conic{big, small}, []r2.Point{q})
	require.NoError(t, err)
	assert.Equal(t, []r2.Point{q}, groups[0])
	assert.Empty(t, groups[1])
}

func TestAssignConicPointsTies(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)
	c := NewCircle(testCircles[0], testRadius)
	pts := sampleCircle(cam, testCircles[0], testRadius, 4)

	groups, err := AssignConicPoints(cam, []Conic{c, c, c}, pts)
	require.NoError(t, err)
	assert.Len(t, groups[0], len(pts))
	assert.Empty(t, groups[1])
	assert.Empty(t, groups[2])
}

func TestAssignConicPointsErrors(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)

	groups, err := AssignConicPoints(cam, []Conic{NewCircle(r2.Point{}, 1)}, nil)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	_, err = AssignConicPoints(cam, nil, []r2.Point{{X: 1, Y: 1}})
	assert.True(t, errors.Is(err, ErrInsufficientData))

	cam.K.Focal = 0
	_, err = AssignConicPoints(cam, []Conic{NewCircle(r2.Point{}, 1)}, []r2.Point{{X: 1, Y: 1}})
	assert.True(t, errors.Is(err, ErrSingularHomography))
}

func TestAssignCorrespondencesMerges(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)
	c := syntheticCorrespondences(cam)
	extra := sampleCircle(cam, testCircles[1], testRadius, 3)
	c.UnassignedConicPoints = extra

	out, err := assignCorrespondences(c, cam)
	require.NoError(t, err)
	assert.Nil(t, out.UnassignedConicPoints)
	assert.Len(t, out.ImageConicPoints[0], 8)
	assert.Len(t, out.ImageConicPoints[1], 8+3)

	// The input is left untouched
	assert.Len(t, c.ImageConicPoints[1], 8)
	assert.Len(t, c.UnassignedConicPoints, 3)
}
