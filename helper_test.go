// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package ptzcam

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testPP = r2.Point{X: 320, Y: 240}

// Camera at center looking at target, image x along the world x axis
func lookAt(t *testing.T, f float64, center, target r3.Vector) *CameraPose {
	t.Helper()
	zc := target.Sub(center).Normalize()
	xc := zc.Cross(r3.Vector{Z: 1}).Normalize()
	yc := zc.Cross(xc)
	R := mat.NewDense(3, 3, []float64{
		xc.X, xc.Y, xc.Z,
		yc.X, yc.Y, yc.Z,
		zc.X, zc.Y, zc.Z,
	})
	rot, err := RotationFromMatrix(R)
	require.NoError(t, err)
	return &CameraPose{
		K:      CalibrationMatrix{Focal: f, PP: testPP},
		R:      rot,
		Center: center,
	}
}

// Oblique view of the unit square
func obliqueCamera(t *testing.T) *CameraPose {
	return lookAt(t, 1000, r3.Vector{X: 0.5, Y: -3, Z: 5}, r3.Vector{X: 0.5, Y: 0.5})
}

func r2ToWorld(p r2.Point) r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y}
}

func squarePoints() []r3.Vector {
	return []r3.Vector{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
}

// n x n grid on [0, 1]^2
func gridPoints(n int) []r3.Vector {
	pts := []r3.Vector{}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, r3.Vector{X: float64(i) / float64(n-1), Y: float64(j) / float64(n-1)})
		}
	}
	return pts
}

func projectAll(c *CameraPose, pts []r3.Vector) []r2.Point {
	out := make([]r2.Point, len(pts))
	for i, p := range pts {
		out[i] = c.Project(p)
	}
	return out
}

// n image points on the projection of a world segment
func sampleLine(c *CameraPose, seg LineSegment3D, n int) []r2.Point {
	out := make([]r2.Point, n)
	for i := range out {
		s := float64(i) / float64(n-1)
		out[i] = c.Project(seg.P1.Mul(1 - s).Add(seg.P2.Mul(s)))
	}
	return out
}

// n image points on the projection of a world circle
func sampleCircle(c *CameraPose, center r2.Point, radius float64, n int) []r2.Point {
	out := make([]r2.Point, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / float64(n)
		out[i] = c.Project(r3.Vector{X: center.X + radius*math.Cos(a), Y: center.Y + radius*math.Sin(a)})
	}
	return out
}

// Perturbed copy of a pose
func perturb(c *CameraPose, df float64, drot, dc r3.Vector) *CameraPose {
	return &CameraPose{
		K:      CalibrationMatrix{Focal: c.K.Focal + df, PP: c.K.PP},
		R:      Rotation{Rod: c.R.Rod.Add(drot)},
		Center: c.Center.Add(dc),
	}
}

func requirePoseNear(t *testing.T, want, got *CameraPose, tolF, tolC, tolR float64) {
	t.Helper()
	require.NotNil(t, got)
	require.InDelta(t, want.K.Focal, got.K.Focal, tolF, "focal")
	require.InDelta(t, want.Center.X, got.Center.X, tolC, "center x")
	require.InDelta(t, want.Center.Y, got.Center.Y, tolC, "center y")
	require.InDelta(t, want.Center.Z, got.Center.Z, tolC, "center z")
	require.InDelta(t, want.R.Rod.X, got.R.Rod.X, tolR, "rotation x")
	require.InDelta(t, want.R.Rod.Y, got.R.Rod.Y, tolR, "rotation y")
	require.InDelta(t, want.R.Rod.Z, got.R.Rod.Z, tolR, "rotation z")
}
