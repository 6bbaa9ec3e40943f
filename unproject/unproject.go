// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package unproject implements pixel -> camera-frame-ray inversion for
// every lens model in lensmodel.Family. Models with a closed-form
// inverse (pinhole, stereographic, lonlat, latlon) use it directly;
// every other model is inverted by a local Newton solve over the
// stereographic representation of the hypothesis direction, built on the
// same gosl/num.NlSolver pattern msolid/hyperelast1.go uses to invert
// its own nonlinear stress-strain relation.
package unproject

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/num"

	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/project"
)

// residualTol2 is the squared-residual convergence bound: the Newton
// solve stops once ||q_guess - q||^2/2 < this.
const residualTol2 = 1e-4

// Unproject returns a camera-frame direction (not normalized) whose
// forward projection lands on q, or (zero, false) when the solve fails to
// converge (ok=false rather than a NaN-laced vector, so callers cannot
// silently propagate the failure).
func Unproject(m lensmodel.Model, q [2]float64, intrinsics []float64) (v [3]float64, ok bool) {
	switch m.Family {
	case lensmodel.Pinhole:
		return closedForm(m, q, intrinsics, project.UnprojectPinhole)
	case lensmodel.Stereographic:
		return closedForm(m, q, intrinsics, project.UnprojectStereographic)
	case lensmodel.LonLat:
		return closedForm(m, q, intrinsics, project.UnprojectLonLat)
	case lensmodel.LatLon:
		return closedForm(m, q, intrinsics, project.UnprojectLatLon)
	}
	return newtonUnproject(m, q, intrinsics)
}

func closedForm(m lensmodel.Model, q [2]float64, intrinsics []float64, f func([2]float64, []float64) [3]float64) ([3]float64, bool) {
	v := f(q, intrinsics)
	return fixBehindCamera(m, v), true
}

// fixBehindCamera negates the ray if a model that cannot project behind the
// camera produced a vz < 0 -- that half of the solution space maps to the
// same pixel only for models where the sign of vz is not itself observable
// from q.
func fixBehindCamera(m lensmodel.Model, v [3]float64) [3]float64 {
	if !m.Meta().CanProjectBehind && v[2] < 0 {
		return [3]float64{-v[0], -v[1], -v[2]}
	}
	return v
}

// newtonUnproject inverts models with no closed form (OpenCV family,
// CAHVOR, CAHVORE, splined stereographic) by a 2-variable Newton solve
// whose state is the stereographic representation of the hypothesis
// direction -- unlike the normalized plane (vx/vz, vy/vz), that state
// covers directions behind the camera, which the splined model can
// legitimately converge to.
func newtonUnproject(m lensmodel.Model, q [2]float64, intrinsics []float64) ([3]float64, bool) {
	seed := seedGuess(m, q, intrinsics)

	ffcn := func(fx, x []float64) error {
		v, _ := project.StereographicUnitInverse([2]float64{x[0], x[1]})
		res, err := project.Project(m, v, intrinsics, false)
		if err != nil {
			return err
		}
		fx[0] = res.Q[0] - q[0]
		fx[1] = res.Q[1] - q[1]
		return nil
	}
	jfcn := func(J [][]float64, x []float64) error {
		v, dVdU := project.StereographicUnitInverse([2]float64{x[0], x[1]})
		res, err := project.Project(m, v, intrinsics, true)
		if err != nil {
			return err
		}
		// d(residual)/du_j = sum_k d(q)/dv_k * dv_k/du_j
		for row := 0; row < 2; row++ {
			for j := 0; j < 2; j++ {
				J[row][j] = res.DqDv[row][0]*dVdU[0][j] +
					res.DqDv[row][1]*dVdU[1][j] +
					res.DqDv[row][2]*dVdU[2][j]
			}
		}
		return nil
	}

	// CAHVORE has no analytic gradient: fall back to NlSolver's own
	// numerical Jacobian instead of calling jfcn.
	numJ := !m.Meta().AnalyticGradients
	var nls num.NlSolver
	nls.Init(2, ffcn, nil, jfcn, true, numJ, map[string]float64{"lSearch": 0})

	x := []float64{seed[0], seed[1]}
	nls.SetTols(1e-12, 1e-12, 1e-15, num.EPS)
	if err := nls.Solve(x, true); err != nil {
		return [3]float64{}, false
	}

	v, _ := project.StereographicUnitInverse([2]float64{x[0], x[1]})
	res, err := project.Project(m, v, intrinsics, false)
	if err != nil {
		return [3]float64{}, false
	}
	resid2 := ((res.Q[0]-q[0])*(res.Q[0]-q[0]) + (res.Q[1]-q[1])*(res.Q[1]-q[1])) / 2
	if math.IsNaN(resid2) || resid2 >= residualTol2 {
		return [3]float64{}, false
	}
	return fixBehindCamera(m, v), true
}

// seedGuess starts the Newton solve from the stereographic coordinate of
// the pinhole-equivalent inverse, which is exact for small distortion and
// close enough for CAHVOR/CAHVORE to converge. Every model family in the
// registry has a core, so the (fx,fy,cx,cy) read below is always valid.
func seedGuess(m lensmodel.Model, q [2]float64, intrinsics []float64) [2]float64 {
	if !m.Meta().HasCore {
		chk.Panic("unproject: seedGuess: model %q has no core", m.Name())
	}
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	return project.StereographicUnitForward([3]float64{(q[0] - cx) / fx, (q[1] - cy) / fy, 1})
}
