// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package ptzcam

import "errors"

// Failure kinds returned by the estimation functions. They are wrapped with
// context, so test them with errors.Is.
var (
	ErrInsufficientData           = errors.New("insufficient data")
	ErrDegenerateGeometry         = errors.New("degenerate geometry")
	ErrAmbiguousSolution          = errors.New("ambiguous solution")
	ErrUnderconstrainedSystem     = errors.New("underconstrained system")
	ErrSingularHomography         = errors.New("singular homography")
	ErrOptimizationDidNotConverge = errors.New("optimization did not converge")
	ErrMismatchedInput            = errors.New("mismatched input")
)
