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
	"gonum.org/v1/gonum/mat"
)

func assertConicNear(t *testing.T, want, got Conic, tol float64) {
	t.Helper()
	assert.InDelta(t, want.A, got.A, tol, "a")
	assert.InDelta(t, want.B, got.B, tol, "b")
	assert.InDelta(t, want.C, got.C, tol, "c")
	assert.InDelta(t, want.D, got.D, tol, "d")
	assert.InDelta(t, want.E, got.E, tol, "e")
	assert.InDelta(t, want.F, got.F, tol, "f")
}

func TestTransformConicIdentity(t *testing.T) {
	t.Parallel()
	c := Conic{A: 2, B: 0.5, C: 1, D: -3, E: 4, F: -10}
	got, err := TransformConic(mat.NewDiagDense(3, []float64{1, 1, 1}), c)
	require.NoError(t, err)
	assertConicNear(t, c, got, 1e-12)
}

func TestTransformConicTranslation(t *testing.T) {
	t.Parallel()

	// Unit circle moved to (3, -2)
	H := mat.NewDense(3, 3, []float64{1, 0, 3, 0, 1, -2, 0, 0, 1})
	got, err := TransformConic(H, NewCircle(r2.Point{}, 1))
	require.NoError(t, err)
	assertConicNear(t, NewCircle(r2.Point{X: 3, Y: -2}, 1), got, 1e-12)
}

func TestTransformConicKeepsIncidence(t *testing.T) {
	t.Parallel()
	cam := obliqueCamera(t)
	H := cam.PlaneHomography()
	c := NewCircle(r2.Point{X: 0.5, Y: 0.5}, 0.3)

	ic, err := TransformConic(H, c)
	require.NoError(t, err)
	for _, p := range sampleCircle(cam, r2.Point{X: 0.5, Y: 0.5}, 0.3, 12) {
		assert.Less(t, ic.DistanceSquared(p), 1e-10)
	}
	assert.Greater(t, ic.DistanceSquared(cam.Project(r3.Vector{X: 0.5, Y: 0.5})), 1.0)
}

func TestTransformConicSingular(t *testing.T) {
	t.Parallel()
	H := mat.NewDense(3, 3, []float64{1, 2, 3, 2, 4, 6, 0, 0, 1})
	_, err := TransformConic(H, NewCircle(r2.Point{}, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSingularHomography))

	_, err = TransformConic(mat.NewDense(3, 3, nil), NewCircle(r2.Point{}, 1))
	assert.True(t, errors.Is(err, ErrSingularHomography))
}

func TestConicMatrixRoundTrip(t *testing.T) {
	t.Parallel()
	c := Conic{A: 1, B: -2, C: 3, D: 4, E: -5, F: 6}
	assert.Equal(t, c, ConicFromMatrix(c.Matrix()))
}

func TestConicDistance(t *testing.T) {
	t.Parallel()

	circle := NewCircle(r2.Point{}, 1)
	ellipse := Conic{A: 0.25, C: 1, F: -1}    // x^2/4 + y^2 = 1
	rotated := Conic{A: 1, B: 1, C: 1, F: -3} // ellipse with axes along the diagonals

	cases := []struct {
		name string
		c    Conic
		p    r2.Point
		want float64
	}{
		{"circle outside", circle, r2.Point{X: 2}, 1},
		{"circle inside", circle, r2.Point{X: 0.5}, 0.25},
		{"circle on curve", circle, r2.Point{X: math.Sqrt2 / 2, Y: math.Sqrt2 / 2}, 0},
		{"circle centre", circle, r2.Point{}, 1},
		{"ellipse minor axis", ellipse, r2.Point{Y: 3}, 4},
		{"ellipse major axis", ellipse, r2.Point{X: 3}, 1},
		{"ellipse centre", ellipse, r2.Point{}, 1},
		{"ellipse inside off vertex", ellipse, r2.Point{X: 0.1}, SQ(0.1-0.4/3) + 1 - SQ(0.4/3)/4},
		// Major semi-axis sqrt(6) along (1, -1)
		{"rotated ellipse", rotated, r2.Point{X: 2, Y: -2}, SQ(2*math.Sqrt2 - math.Sqrt(6))},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, tc.c.DistanceSquared(tc.p), 1e-9)
		})
	}
}

func TestConicDistanceMatchesSampsonNearCurve(t *testing.T) {
	t.Parallel()
	c := Conic{A: 0.25, C: 1, F: -1}
	p := r2.Point{X: 1, Y: math.Sqrt(0.75) + 1e-4}
	assert.InEpsilon(t, c.SampsonDistanceSquared(p), c.DistanceSquared(p), 1e-3)
}

// Ellipse with semi-axes ra, rb, the ra axis at angle th from the x axis
func ellipseConic(center r2.Point, ra, rb, th float64) Conic {
	cs, sn := math.Cos(th), math.Sin(th)
	ia, ib := 1/(ra*ra), 1/(rb*rb)
	A := cs*cs*ia + sn*sn*ib
	B := 2 * sn * cs * (ia - ib)
	C := sn*sn*ia + cs*cs*ib
	return Conic{
		A: A,
		B: B,
		C: C,
		D: -2*A*center.X - B*center.Y,
		E: -B*center.X - 2*C*center.Y,
		F: A*center.X*center.X + B*center.X*center.Y + C*center.Y*center.Y - 1,
	}
}

// Squared distance to the densely sampled ellipse
func sampleEllipse(center r2.Point, ra, rb, th float64) []r2.Point {
	const n = 100000
	cs, sn := math.Cos(th), math.Sin(th)
	out := make([]r2.Point, n)
	for i := range out {
		a := 2 * math.Pi * float64(i) / n
		u, v := ra*math.Cos(a), rb*math.Sin(a)
		out[i] = r2.Point{X: center.X + cs*u - sn*v, Y: center.Y + sn*u + cs*v}
	}
	return out
}

func sampledDistanceSquared(curve []r2.Point, p r2.Point) float64 {
	best := math.Inf(1)
	for _, q := range curve {
		d := q.Sub(p)
		best = math.Min(best, d.Dot(d))
	}
	return best
}

func TestConicDistancePixelScale(t *testing.T) {
	t.Parallel()

	circle := NewCircle(r2.Point{X: 300, Y: 200}, 300)
	assert.InDelta(t, 300, math.Sqrt(circle.DistanceSquared(r2.Point{X: 900, Y: 200})), 1e-6)
	assert.InDelta(t, 200, math.Sqrt(NewCircle(r2.Point{}, 100).DistanceSquared(r2.Point{X: 300})), 1e-6)
	assert.InDelta(t, 250, math.Sqrt(circle.DistanceSquared(r2.Point{X: 300, Y: 250})), 1e-6)

	ellipses := []struct {
		center r2.Point
		ra, rb float64
		th     float64
	}{
		{r2.Point{X: 320, Y: 240}, 50, 50, 0},
		{r2.Point{X: 320, Y: 240}, 120, 60, 0.3},
		{r2.Point{X: 900, Y: 600}, 500, 200, -1.1},
		{r2.Point{X: -200, Y: 1500}, 300, 290, 2.0},
		{r2.Point{X: 50, Y: 80}, 480, 55, 0.75},
	}
	for k, el := range ellipses {
		c := ellipseConic(el.center, el.ra, el.rb, el.th)
		curve := sampleEllipse(el.center, el.ra, el.rb, el.th)
		for _, dir := range []float64{0, 0.4, 1.3, 2.2, 3.5, 5.1} {
			// Scale 0 is the centre, 1 the curve, 3 two radii outside
			for _, scale := range []float64{0, 0.3, 0.8, 0.98, 1.05, 1.6, 3} {
				u, v := scale*el.ra*math.Cos(dir), scale*el.rb*math.Sin(dir)
				cs, sn := math.Cos(el.th), math.Sin(el.th)
				p := r2.Point{X: el.center.X + cs*u - sn*v, Y: el.center.Y + sn*u + cs*v}

				want := math.Sqrt(sampledDistanceSquared(curve, p))
				got := math.Sqrt(c.DistanceSquared(p))
				assert.InDelta(t, want, got, 1e-2+1e-4*want, "ellipse %d dir %.1f scale %.2f", k, dir, scale)
			}
		}
	}
}
