// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

// stereographicUV returns s = 2/(|v|+vz) and u = (vx*s, vy*s), plus
// d(u)/d(v) (2x3) when wantGrad is set. Handles vz <= 0 (the whole point
// of the stereographic model over pinhole); singular only at v == -|v|*ẑ.
func stereographicUV(v [3]float64, wantGrad bool) (u [2]float64, dUdV [2][3]float64) {
	n := norm3(v)
	s := 2 / (n + v[2])
	u = [2]float64{v[0] * s, v[1] * s}
	if !wantGrad {
		return
	}
	// ds/dv_i = -2/(n+vz)^2 * d(n+vz)/dv_i ; d n/dv_i = v_i/n
	dnp2 := (n + v[2]) * (n + v[2])
	dsDv := [3]float64{
		-2 * (v[0] / n) / dnp2,
		-2 * (v[1] / n) / dnp2,
		-2 * (v[2]/n + 1) / dnp2,
	}
	for i := 0; i < 3; i++ {
		dUdV[0][i] = v[0]*dsDv[i] + boolToFloat(i == 0)*s
		dUdV[1][i] = v[1]*dsDv[i] + boolToFloat(i == 1)*s
	}
	return
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// projectStereographic implements s=2/(|v|+vz), q = (fx*vx*s+cx, fy*vy*s+cy).
func projectStereographic(v [3]float64, intrinsics []float64, wantGrad bool) Result {
	u, dUdV := stereographicUV(v, wantGrad)
	q, fx, fy := core(u, intrinsics)
	res := Result{Q: q}
	if wantGrad {
		for i := 0; i < 3; i++ {
			res.DqDv[0][i] = fx * dUdV[0][i]
			res.DqDv[1][i] = fy * dUdV[1][i]
		}
	}
	return res
}

// unprojectStereographic is the closed-form inverse.
//
//	u = (q-c)/f ; rho^2 = ux^2+uy^2 ; direction = (ux, uy, 1 - rho^2/4)
//
// derived by inverting s = 2/(|v|+vz) for a ray (any positive scaling of
// v is a valid answer since unprojection only recovers a direction): for
// this v, |v| = 1 + rho^2/4, so s = 2/(2) = 1 and the forward projection
// reproduces u exactly.
func unprojectStereographic(q [2]float64, intrinsics []float64) [3]float64 {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	ux, uy := (q[0]-cx)/fx, (q[1]-cy)/fy
	rho2 := ux*ux + uy*uy
	return [3]float64{ux, uy, 1 - rho2/4}
}

// StereographicUnitForward maps a direction to its unit-focal,
// zero-center stereographic coordinate. Package unproject uses this pair
// of maps as the state of its Newton solve: unlike the normalized plane
// (vx/vz, vy/vz), the stereographic coordinate covers directions behind
// the camera, which the splined and equirectangular models can produce.
func StereographicUnitForward(v [3]float64) [2]float64 {
	s := 2 / (norm3(v) + v[2])
	return [2]float64{v[0] * s, v[1] * s}
}

// StereographicUnitInverse maps a unit-focal stereographic coordinate
// back to a direction (not normalized), with the 3x2 gradient dv/du.
func StereographicUnitInverse(u [2]float64) (v [3]float64, dVdU [3][2]float64) {
	rho2 := u[0]*u[0] + u[1]*u[1]
	v = [3]float64{u[0], u[1], 1 - rho2/4}
	dVdU = [3][2]float64{
		{1, 0},
		{0, 1},
		{-u[0] / 2, -u[1] / 2},
	}
	return
}
