// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package ptzcam

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// ------------------------------------
// Mini functions
// ------------------------------------

func SQ(x float64) float64 {
	return x * x
}

func ToDeg(rad float64) float64 {
	return rad / PI * 180.0
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// ------------------------------------
// Debug print function
// ------------------------------------

// Matrix display with its size
func PrintMat(X mat.Matrix) {
	r, c := X.Dims()
	fmt.Fprintf(os.Stderr, "(%d x %d)\n%v\n", r, c, mat.Formatted(X, mat.Prefix("  "), mat.Squeeze()))
}

func PrintA(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format, a...)
}

// Debug display level. Set once before estimation starts; it is only read afterwards.
var DBG_ int

// Debug display
func PrintD(v int, format string, a ...any) {
	if DBG_ >= v {
		fmt.Fprintf(os.Stderr, format, a...)
	}
}

// Debug display of a matrix
func PrintMatD(v int, name string, X mat.Matrix) {
	if DBG_ >= v {
		PrintA("%s ", name)
		PrintMat(X)
	}
}

// Error display, prefixed with the program name
func PrintE(err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(os.Args[0]), err)
}
