// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.12
//

package ptzcam

const (
	PI          = 3.1415926535897932 // Pi
	NPARAM      = 7                  // Pose parameters: focal length, rotation (3), camera center (3)
	MIN_CONSTR  = 4                  // Minimum number of point + line constraints for the homography
	PLANE_TOL   = 1e-9               // Maximum |z| of world geometry on the z = 0 plane
	RANK_TOL    = 1e-10              // Relative singular value threshold for the DLT system
	SING_TOL    = 1e-12              // Relative determinant threshold for singular 3x3 matrices
	CALIB_TOL   = 1e-8               // Relative size of the focal length constraints below which f is unobservable
	CONIC_EPS   = 1e-7               // Added under the square root of the conic residual
	ROOT_IM_TOL = 1e-7               // Imaginary part tolerance for real polynomial roots
)

// Parameter vector layout
const (
	P_FOCAL = 0 // focal length [px]
	P_ROT   = 1 // rotation, Rodrigues vector (3)
	P_CC    = 4 // camera center (3)
)
