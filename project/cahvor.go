// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

import "math"

// cahvorO returns o(alpha,beta) = (sin(a)cos(b), sin(b), cos(a)cos(b)) and
// its gradient w.r.t. (alpha,beta), parameterized this way specifically to
// avoid the gimbal lock at alpha=beta=0 that a direct (ox,oy,oz) encoding
// would hit.
func cahvorO(alpha, beta float64) (o, dOdAlpha, dOdBeta [3]float64) {
	sa, ca := math.Sin(alpha), math.Cos(alpha)
	sb, cb := math.Sin(beta), math.Cos(beta)
	o = [3]float64{sa * cb, sb, ca * cb}
	dOdAlpha = [3]float64{ca * cb, 0, -sa * cb}
	dOdBeta = [3]float64{-sa * sb, cb, -ca * sb}
	return
}

// projectCahvor implements the CAHVOR model:
//
//	o = o(alpha,beta)
//	omega = v.o ; tau = |v|^2/omega^2 - 1 ; mu = r0 + tau*r1 + tau^2*r2
//	v' = v + mu*(v - omega*o)
//	project v' pinhole-style
func projectCahvor(v [3]float64, intrinsics []float64, wantGrad bool) Result {
	alpha, beta, r0, r1, r2 := intrinsics[4], intrinsics[5], intrinsics[6], intrinsics[7], intrinsics[8]
	o, dOdAlpha, dOdBeta := cahvorO(alpha, beta)

	omega := v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
	n2 := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	tau := n2/(omega*omega) - 1
	mu := r0 + tau*r1 + tau*tau*r2

	w := [3]float64{v[0] - omega*o[0], v[1] - omega*o[1], v[2] - omega*o[2]}
	vp := [3]float64{v[0] + mu*w[0], v[1] + mu*w[1], v[2] + mu*w[2]}

	pinRes := projectPinhole(vp, intrinsics, wantGrad)
	res := Result{Q: pinRes.Q}
	if !wantGrad {
		return res
	}

	dOmegaDAlpha := v[0]*dOdAlpha[0] + v[1]*dOdAlpha[1] + v[2]*dOdAlpha[2]
	dOmegaDBeta := v[0]*dOdBeta[0] + v[1]*dOdBeta[1] + v[2]*dOdBeta[2]

	dTauDAlpha := -2 * n2 / (omega * omega * omega) * dOmegaDAlpha
	dTauDBeta := -2 * n2 / (omega * omega * omega) * dOmegaDBeta

	dMuDAlpha := (r1 + 2*tau*r2) * dTauDAlpha
	dMuDBeta := (r1 + 2*tau*r2) * dTauDBeta

	dWdAlphaVec := [3]float64{
		-dOmegaDAlpha*o[0] - omega*dOdAlpha[0],
		-dOmegaDAlpha*o[1] - omega*dOdAlpha[1],
		-dOmegaDAlpha*o[2] - omega*dOdAlpha[2],
	}
	dWdBetaVec := [3]float64{
		-dOmegaDBeta*o[0] - omega*dOdBeta[0],
		-dOmegaDBeta*o[1] - omega*dOdBeta[1],
		-dOmegaDBeta*o[2] - omega*dOdBeta[2],
	}

	dVpDAlpha := [3]float64{
		dMuDAlpha*w[0] + mu*dWdAlphaVec[0],
		dMuDAlpha*w[1] + mu*dWdAlphaVec[1],
		dMuDAlpha*w[2] + mu*dWdAlphaVec[2],
	}
	dVpDBeta := [3]float64{
		dMuDBeta*w[0] + mu*dWdBetaVec[0],
		dMuDBeta*w[1] + mu*dWdBetaVec[1],
		dMuDBeta*w[2] + mu*dWdBetaVec[2],
	}
	dVpDr0 := w
	dVpDr1 := [3]float64{tau * w[0], tau * w[1], tau * w[2]}
	dVpDr2 := [3]float64{tau * tau * w[0], tau * tau * w[1], tau * tau * w[2]}

	// dv'/dv (3x3), column i is d(v')/d(v_i); domega/dv_i = o_i.
	var dVpDv [3][3]float64
	dOmegaDv := o // domega/dv_i = o_i
	dN2Dv := [3]float64{2 * v[0], 2 * v[1], 2 * v[2]}
	for i := 0; i < 3; i++ {
		dTauDv_i := dN2Dv[i]/(omega*omega) - 2*n2*dOmegaDv[i]/(omega*omega*omega)
		dMuDv_i := (r1 + 2*tau*r2) * dTauDv_i
		var dWDv_i [3]float64
		dWDv_i[i] += 1
		for k := 0; k < 3; k++ {
			dWDv_i[k] -= dOmegaDv[i] * o[k]
		}
		for k := 0; k < 3; k++ {
			dVpDv[k][i] = boolToFloat(k == i) + dMuDv_i*w[k] + mu*dWDv_i[k]
		}
	}

	// chain through pinhole's dq/dv'
	dqdvp := pinRes.DqDv
	for row := 0; row < 2; row++ {
		for i := 0; i < 3; i++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += dqdvp[row][k] * dVpDv[k][i]
			}
			res.DqDv[row][i] = s
		}
	}
	chainParam := func(dVp [3]float64) [2]float64 {
		return [2]float64{
			dqdvp[0][0]*dVp[0] + dqdvp[0][1]*dVp[1] + dqdvp[0][2]*dVp[2],
			dqdvp[1][0]*dVp[0] + dqdvp[1][1]*dVp[1] + dqdvp[1][2]*dVp[2],
		}
	}
	res.DqDDistortion = [][2]float64{
		chainParam(dVpDAlpha),
		chainParam(dVpDBeta),
		chainParam(dVpDr0),
		chainParam(dVpDr1),
		chainParam(dVpDr2),
	}
	return res
}
