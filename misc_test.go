// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.19
//

package ptzcam

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// Output written to stderr by fn. Not parallel: swaps os.Stderr and DBG_.
func captureStderr(t *testing.T, level int, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	stderr, dbg := os.Stderr, DBG_
	os.Stderr, DBG_ = w, level
	defer func() { os.Stderr, DBG_ = stderr, dbg }()

	fn()
	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestPrintD(t *testing.T) {
	out := captureStderr(t, 1, func() {
		PrintD(1, "shown %d\n", 1)
		PrintD(2, "hidden\n")
		PrintMatD(2, "hidden", mat.NewDense(1, 1, []float64{1}))
	})
	assert.Equal(t, "shown 1\n", out)

	out = captureStderr(t, 4, func() {
		PrintMatD(4, "H", mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	})
	assert.Contains(t, out, "H (2 x 2)")

	out = captureStderr(t, 0, func() {
		PrintE(errors.New("bad input"))
	})
	assert.Contains(t, out, ": bad input\n")
}
