// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.14
//

package ptzcam

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

//-------------------------------------------------------------------
// CalibrationMatrix
//-------------------------------------------------------------------

// CalibrationMatrix with square pixels, zero skew and a fixed principal point
type CalibrationMatrix struct {
	Focal float64  // Focal length [px]
	PP    r2.Point // Principal point [px]
}

// K = [[f, 0, px], [0, f, py], [0, 0, 1]]
func (k CalibrationMatrix) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		k.Focal, 0, k.PP.X,
		0, k.Focal, k.PP.Y,
		0, 0, 1,
	})
}

//-------------------------------------------------------------------
// CameraPose
//-------------------------------------------------------------------

// CameraPose is a perspective camera x ~ K R (X - C)
type CameraPose struct {
	K      CalibrationMatrix
	R      Rotation
	Center r3.Vector
}

func (c *CameraPose) String() string {
	return fmt.Sprintf("f=%.6f pp=(%.3f, %.3f) rod=(%.9f, %.9f, %.9f) C=(%.6f, %.6f, %.6f)",
		c.K.Focal, c.K.PP.X, c.K.PP.Y, c.R.Rod.X, c.R.Rod.Y, c.R.Rod.Z, c.Center.X, c.Center.Y, c.Center.Z)
}

// Matrix returns the 3x4 projection matrix P = K R [I | -C]
func (c *CameraPose) Matrix() *mat.Dense {
	R := c.R.Matrix()
	t := mulVec3(R, c.Center).Mul(-1)

	Rt := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			Rt.Set(i, j, R.At(i, j))
		}
	}
	Rt.Set(0, 3, t.X)
	Rt.Set(1, 3, t.Y)
	Rt.Set(2, 3, t.Z)

	var P mat.Dense
	P.Mul(c.K.Matrix(), Rt)
	return &P
}

// PlaneHomography maps points of the world plane z = 0 to the image (columns 0, 1, 3 of P)
func (c *CameraPose) PlaneHomography() *mat.Dense {
	return planeHomography(c.Matrix())
}

func planeHomography(P mat.Matrix) *mat.Dense {
	H := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		H.Set(i, 0, P.At(i, 0))
		H.Set(i, 1, P.At(i, 1))
		H.Set(i, 2, P.At(i, 3))
	}
	return H
}

// Project a world point to the image
func (c *CameraPose) Project(X r3.Vector) r2.Point {
	return project(c.Matrix(), X)
}

func project(P mat.Matrix, X r3.Vector) r2.Point {
	x := P.At(0, 0)*X.X + P.At(0, 1)*X.Y + P.At(0, 2)*X.Z + P.At(0, 3)
	y := P.At(1, 0)*X.X + P.At(1, 1)*X.Y + P.At(1, 2)*X.Z + P.At(1, 3)
	w := P.At(2, 0)*X.X + P.At(2, 1)*X.Y + P.At(2, 2)*X.Z + P.At(2, 3)
	return r2.Point{X: x / w, Y: y / w}
}

// Depth of a world point along the optical axis. Positive in front of the camera.
func (c *CameraPose) Depth(X r3.Vector) float64 {
	return c.R.apply(X.Sub(c.Center)).Z
}

// Params returns the optimization vector [f, rx, ry, rz, cx, cy, cz]
func (c *CameraPose) Params() []float64 {
	x := make([]float64, NPARAM)
	x[P_FOCAL] = c.K.Focal
	x[P_ROT+0] = c.R.Rod.X
	x[P_ROT+1] = c.R.Rod.Y
	x[P_ROT+2] = c.R.Rod.Z
	x[P_CC+0] = c.Center.X
	x[P_CC+1] = c.Center.Y
	x[P_CC+2] = c.Center.Z
	return x
}

// PoseFromParams builds a pose from the optimization vector and a fixed principal point
func PoseFromParams(x []float64, pp r2.Point) *CameraPose {
	return &CameraPose{
		K:      CalibrationMatrix{Focal: x[P_FOCAL], PP: pp},
		R:      NewRotation(x[P_ROT], x[P_ROT+1], x[P_ROT+2]),
		Center: r3.Vector{X: x[P_CC], Y: x[P_CC+1], Z: x[P_CC+2]},
	}
}
