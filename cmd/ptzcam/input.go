// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.18
//

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	m "github.com/mkhts/ptzcam"
)

const maxInputSize = 16 * 1024 * 1024 // 16MB

// Correspondence file of one image
type inputFile struct {
	PrincipalPoint        *[2]float64     `json:"principal_point,omitempty"`
	WorldPoints           [][3]float64    `json:"world_points"`
	ImagePoints           [][2]float64    `json:"image_points"`
	WorldLines            [][2][3]float64 `json:"world_lines,omitempty"`
	ImageLinePoints       [][][2]float64  `json:"image_line_points,omitempty"`
	WorldConics           [][6]float64    `json:"world_conics,omitempty"`
	ImageConicPoints      [][][2]float64  `json:"image_conic_points,omitempty"`
	UnassignedConicPoints [][2]float64    `json:"unassigned_conic_points,omitempty"`
	InitialGuess          *inputPose      `json:"initial_guess,omitempty"`
}

// Camera pose as written in the input and output files
type inputPose struct {
	Focal    float64    `json:"focal"`
	Rotation [3]float64 `json:"rotation"` // Rodrigues vector [rad]
	Center   [3]float64 `json:"center"`
}

// Read and validate a correspondence file
func loadInput(path string) (*inputFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("input file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}
	if fileInfo.Size() > maxInputSize {
		return nil, fmt.Errorf("input file too large: %d bytes (max %d)", fileInfo.Size(), maxInputSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	in := &inputFile{}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("failed to parse input JSON: %w", err)
	}
	if err := in.Correspondences().Validate(); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	return in, nil
}

// Correspondences converts the file contents
func (in *inputFile) Correspondences() *m.Correspondences {
	c := &m.Correspondences{
		WorldPoints:           make([]r3.Vector, len(in.WorldPoints)),
		ImagePoints:           toPoints(in.ImagePoints),
		WorldLines:            make([]m.LineSegment3D, len(in.WorldLines)),
		ImageLinePoints:       toGroups(in.ImageLinePoints),
		WorldConics:           make([]m.Conic, len(in.WorldConics)),
		ImageConicPoints:      toGroups(in.ImageConicPoints),
		UnassignedConicPoints: toPoints(in.UnassignedConicPoints),
	}
	for i, p := range in.WorldPoints {
		c.WorldPoints[i] = toVector(p)
	}
	for i, l := range in.WorldLines {
		c.WorldLines[i] = m.LineSegment3D{P1: toVector(l[0]), P2: toVector(l[1])}
	}
	for i, k := range in.WorldConics {
		c.WorldConics[i] = m.Conic{A: k[0], B: k[1], C: k[2], D: k[3], E: k[4], F: k[5]}
	}
	return c
}

// Pose converts the initial guess (nil if absent)
func (p *inputPose) Pose() *m.CameraPose {
	if p == nil {
		return nil
	}
	return &m.CameraPose{
		K:      m.CalibrationMatrix{Focal: p.Focal},
		R:      m.NewRotation(p.Rotation[0], p.Rotation[1], p.Rotation[2]),
		Center: toVector(p.Center),
	}
}

func newInputPose(c *m.CameraPose) *inputPose {
	return &inputPose{
		Focal:    c.K.Focal,
		Rotation: [3]float64{c.R.Rod.X, c.R.Rod.Y, c.R.Rod.Z},
		Center:   [3]float64{c.Center.X, c.Center.Y, c.Center.Z},
	}
}

func toVector(p [3]float64) r3.Vector {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

func toPoints(ps [][2]float64) []r2.Point {
	if ps == nil {
		return nil
	}
	out := make([]r2.Point, len(ps))
	for i, p := range ps {
		out[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return out
}

func toGroups(g [][][2]float64) [][]r2.Point {
	if g == nil {
		return nil
	}
	out := make([][]r2.Point, len(g))
	for i := range g {
		out[i] = toPoints(g[i])
	}
	return out
}
