// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

import (
	"fmt"
	"math"
	"os"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
)

// maxCahvoreNewtonIters bounds the theta solve of projectCahvore.
const maxCahvoreNewtonIters = 100

// projectCahvore implements the CAHVORE model: CAHVOR plus a fisheye-angle
// nonlinearity governed by (e0,e1,e2) and Config.Linearity, solved for by
// Newton iteration on the perspective angle theta.
//
// CAUTION: this reproduces the original CAHVORE projection verbatim,
// including an input normalization (p is rescaled to a unit vector before
// use) that the original author flagged as likely a workaround for a bug
// in the reference jplv implementation rather than a deliberate design:
// jplv's projection is not scale-invariant in p, which a valid projection
// function must be, and the normalization restores that invariance. This
// is reproduced exactly rather than "fixed" -- guessing at the intended
// behavior would silently change every fitted CAHVORE model.
func projectCahvore(m lensmodel.Model, p [3]float64, intrinsics []float64) (Result, error) {
	linearity := m.Config.Linearity
	alpha, beta, r0, r1, r2 := intrinsics[4], intrinsics[5], intrinsics[6], intrinsics[7], intrinsics[8]
	e0, e1, e2 := intrinsics[9], intrinsics[10], intrinsics[11]

	o, _, _ := cahvorO(alpha, beta)

	pnorm := norm3(p)
	v := [3]float64{p[0] / pnorm, p[1] / pnorm, p[2] / pnorm}

	omega := v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
	u := [3]float64{omega * o[0], omega * o[1], omega * o[2]}
	ll := [3]float64{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
	l := norm3(ll)

	theta := math.Atan2(l, omega)
	converged := false
	for i := 0; i < maxCahvoreNewtonIters; i++ {
		sth, cth := math.Sin(theta), math.Cos(theta)
		theta2 := theta * theta
		theta3 := theta * theta2
		theta4 := theta * theta3
		upsilon := omega*cth + l*sth -
			(1-cth)*(e0+e1*theta2+e2*theta4) -
			(theta-sth)*(2*e1*theta+4*e2*theta3)
		dtheta := (omega*sth - l*cth - (theta-sth)*(e0+e1*theta2+e2*theta4)) / upsilon
		theta -= dtheta
		if math.Abs(dtheta) < 1e-8 {
			converged = true
			break
		}
	}
	if !converged {
		fmt.Fprintf(os.Stderr, "projectCahvore(): too many iterations\n")
		return Result{}, chk.Err("project: projectCahvore: theta did not converge in %d iterations", maxCahvoreNewtonIters)
	}
	if theta*math.Abs(linearity) > math.Pi/2 {
		return Result{}, chk.Err("project: projectCahvore: theta out of bounds")
	}

	var uOut [3]float64
	if theta > 1e-8 {
		linth := linearity * theta
		var chi float64
		switch {
		case linearity < -1e-15:
			chi = math.Sin(linth) / linearity
		case linearity > 1e-15:
			chi = math.Tan(linth) / linearity
		default:
			chi = theta
		}
		chi2 := chi * chi
		chi4 := chi2 * chi2
		zetap := l / chi
		mu := r0 + r1*chi2 + r2*chi4
		for i := 0; i < 3; i++ {
			uOut[i] = zetap*o[i] + (1+mu)*ll[i]
		}
	} else {
		uOut = v
	}

	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	q := [2]float64{fx*uOut[0]/uOut[2] + cx, fy*uOut[1]/uOut[2] + cy}
	return Result{Q: q}, nil
}
