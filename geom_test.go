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
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLineThrough(t *testing.T) {
	t.Parallel()

	l, err := LineSegment2D{P1: r2.Point{X: 0, Y: 1}, P2: r2.Point{X: 2, Y: 1}}.Line()
	require.NoError(t, err)
	assert.InDelta(t, 1, math.Hypot(l.X, l.Y), 1e-15)
	assert.InDelta(t, 0, lineDistance(l, r2.Point{X: 5, Y: 1}), 1e-15)
	assert.InDelta(t, 2, math.Abs(lineDistance(l, r2.Point{X: -3, Y: 3})), 1e-15)

	// Opposite sides have opposite signs
	assert.Less(t, lineDistance(l, r2.Point{Y: 3})*lineDistance(l, r2.Point{Y: -1}), 0.0)

	_, err = lineThrough(r2.Point{X: 1, Y: 1}, r2.Point{X: 1, Y: 1})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestFitLine2D(t *testing.T) {
	t.Parallel()

	// y = 0.5 x + 2
	pts := []r2.Point{}
	for x := -3.0; x <= 3; x++ {
		pts = append(pts, r2.Point{X: x, Y: 0.5*x + 2})
	}
	l, err := fitLine2D(pts)
	require.NoError(t, err)
	for _, p := range pts {
		assert.InDelta(t, 0, lineDistance(l, p), 1e-12)
	}
	assert.InDelta(t, 1, math.Hypot(l.X, l.Y), 1e-12)

	// Two points
	l2, err := fitLine2D(pts[:2])
	require.NoError(t, err)
	assert.InDelta(t, 0, lineDistance(l2, pts[5]), 1e-12)

	_, err = fitLine2D(pts[:1])
	assert.True(t, errors.Is(err, ErrInsufficientData))
	_, err = fitLine2D([]r2.Point{{X: 1}, {X: 1}, {X: 1}})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestNormalizationMat(t *testing.T) {
	t.Parallel()

	pts := []r2.Point{{X: 100, Y: 200}, {X: 300, Y: 200}, {X: 300, Y: 400}, {X: 100, Y: 400}}
	T, err := normalizationMat(pts)
	require.NoError(t, err)

	var c r2.Point
	md := 0.0
	for _, p := range pts {
		q := transformPoint(T, p)
		c = c.Add(q)
		md += q.Norm()
	}
	assert.InDelta(t, 0, c.X, 1e-12)
	assert.InDelta(t, 0, c.Y, 1e-12)
	assert.InDelta(t, math.Sqrt2, md/4, 1e-12)

	_, err = normalizationMat([]r2.Point{{X: 1, Y: 1}, {X: 1, Y: 1}})
	assert.True(t, errors.Is(err, ErrDegenerateGeometry))
}

func TestCameraProjection(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)

	// The target projects to the principal point
	p := cam.Project(r3.Vector{X: 0.5, Y: 0.5})
	assert.InDelta(t, testPP.X, p.X, 1e-9)
	assert.InDelta(t, testPP.Y, p.Y, 1e-9)
	assert.Greater(t, cam.Depth(r3.Vector{X: 0.5, Y: 0.5}), 0.0)

	// The plane homography agrees with the full projection on z = 0
	H := cam.PlaneHomography()
	var viaH []r2.Point
	for _, X := range gridPoints(3) {
		viaH = append(viaH, transformPoint(H, planePoint(X)))
	}
	if diff := cmp.Diff(projectAll(cam, gridPoints(3)), viaH, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("plane homography mismatch (-want +got):\n%s", diff)
	}

	// Params round trip
	got := PoseFromParams(cam.Params(), cam.K.PP)
	assert.True(t, mat.EqualApprox(cam.Matrix(), got.Matrix(), 1e-12))
	assert.Len(t, cam.Params(), NPARAM)
}
