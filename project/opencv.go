// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

import "github.com/cpmech/camcal/lensmodel"

// opencvCoeffs is the full 12-parameter coefficient set
// (k1,k2,p1,p2,k3,k4,k5,k6,s1,s2,s3,s4); fewer-parameter models leave the
// trailing entries at zero, which collapses the rational denominator to 1
// and the thin-prism terms to 0 without any special-casing in the math
// below. Reproduced directly since no third-party Go package implements
// the bare OpenCV distortion polynomial outside of image-based
// calibration tools.
type opencvCoeffs struct {
	k1, k2, p1, p2, k3, k4, k5, k6, s1, s2, s3, s4 float64
}

func loadOpenCVCoeffs(distortion []float64) opencvCoeffs {
	var c opencvCoeffs
	get := func(i int) float64 {
		if i < len(distortion) {
			return distortion[i]
		}
		return 0
	}
	c.k1, c.k2, c.p1, c.p2 = get(0), get(1), get(2), get(3)
	c.k3 = get(4)
	c.k4, c.k5, c.k6 = get(5), get(6), get(7)
	c.s1, c.s2, c.s3, c.s4 = get(8), get(9), get(10), get(11)
	return c
}

// projectOpenCV implements the OpenCV 4/5/8/12-parameter
// radial+tangential(+rational)(+thin-prism) model.
func projectOpenCV(m lensmodel.Model, v [3]float64, intrinsics []float64, wantGrad bool) Result {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	distortion := intrinsics[4:]
	c := loadOpenCVCoeffs(distortion)

	invz := 1 / v[2]
	x, y := v[0]*invz, v[1]*invz
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2

	num := 1 + c.k1*r2 + c.k2*r4 + c.k3*r6
	den := 1 + c.k4*r2 + c.k5*r4 + c.k6*r6
	radial := num / den

	dxp := x*radial + 2*c.p1*x*y + c.p2*(r2+2*x*x) + c.s1*r2 + c.s2*r4
	dyp := y*radial + c.p1*(r2+2*y*y) + 2*c.p2*x*y + c.s3*r2 + c.s4*r4

	q := [2]float64{fx*dxp + cx, fy*dyp + cy}
	res := Result{Q: q}
	if !wantGrad {
		return res
	}

	dNum_dr2 := c.k1 + 2*c.k2*r2 + 3*c.k3*r4
	dDen_dr2 := c.k4 + 2*c.k5*r2 + 3*c.k6*r4
	dRadial_dr2 := (dNum_dr2*den - num*dDen_dr2) / (den * den)

	dDxpDx := radial + 2*x*x*dRadial_dr2 + 2*c.p1*y + 6*c.p2*x + 2*c.s1*x + 4*c.s2*r2*x
	dDxpDy := 2*x*y*dRadial_dr2 + 2*c.p1*x + 2*c.p2*y + 2*c.s1*y + 4*c.s2*r2*y
	dDypDx := 2*x*y*dRadial_dr2 + 2*c.p1*x + 2*c.p2*y + 2*c.s3*x + 4*c.s4*r2*x
	dDypDy := radial + 2*y*y*dRadial_dr2 + 6*c.p1*y + 2*c.p2*x + 2*c.s3*y + 4*c.s4*r2*y

	// dxy/dv
	dxDv := [3]float64{invz, 0, -x * invz}
	dyDv := [3]float64{0, invz, -y * invz}

	for i := 0; i < 3; i++ {
		dDxpDv := dDxpDx*dxDv[i] + dDxpDy*dyDv[i]
		dDypDv := dDypDx*dxDv[i] + dDypDy*dyDv[i]
		res.DqDv[0][i] = fx * dDxpDv
		res.DqDv[1][i] = fy * dDypDv
	}

	r2over := 1 / den
	num_over_den2 := num / (den * den)
	type paramDeriv struct{ ddx, ddy float64 }
	var derivs []paramDeriv
	derivs = append(derivs, paramDeriv{x * r2 * r2over, y * r2 * r2over})   // k1
	derivs = append(derivs, paramDeriv{x * r4 * r2over, y * r4 * r2over})   // k2
	derivs = append(derivs, paramDeriv{2 * x * y, r2 + 2*y*y})             // p1
	derivs = append(derivs, paramDeriv{r2 + 2*x*x, 2 * x * y})             // p2
	n := len(distortion)
	if n >= 5 {
		derivs = append(derivs, paramDeriv{x * r6 * r2over, y * r6 * r2over}) // k3
	}
	if n >= 8 {
		derivs = append(derivs, paramDeriv{-x * num_over_den2 * r2, -y * num_over_den2 * r2}) // k4
		derivs = append(derivs, paramDeriv{-x * num_over_den2 * r4, -y * num_over_den2 * r4}) // k5
		derivs = append(derivs, paramDeriv{-x * num_over_den2 * r6, -y * num_over_den2 * r6}) // k6
	}
	if n >= 12 {
		derivs = append(derivs, paramDeriv{r2, 0})  // s1
		derivs = append(derivs, paramDeriv{r4, 0})  // s2
		derivs = append(derivs, paramDeriv{0, r2})  // s3
		derivs = append(derivs, paramDeriv{0, r4})  // s4
	}
	res.DqDDistortion = make([][2]float64, len(derivs))
	for i, d := range derivs {
		res.DqDDistortion[i] = [2]float64{fx * d.ddx, fy * d.ddy}
	}
	return res
}
