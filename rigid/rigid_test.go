// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigid

import (
	"math"
	"testing"
)

func approxEqual(a, b, tol float64) bool { return math.Abs(a-b) < tol }

func TestRFromRIdentity(t *testing.T) {
	R, _ := RFromR([3]float64{0, 0, 0})
	want := identity3()
	for i := range R {
		if !approxEqual(R[i], want[i], 1e-12) {
			t.Fatalf("R(0) != I: %v", R)
		}
	}
}

func TestRFromRRoundTrip(t *testing.T) {
	r := [3]float64{0.1, -0.2, 0.3}
	R, _ := RFromR(r)
	back := RToR(R)
	for i := 0; i < 3; i++ {
		if !approxEqual(r[i], back[i], 1e-9) {
			t.Fatalf("round trip mismatch: got %v want %v", back, r)
		}
	}
}

func TestRFromRGradientFiniteDifference(t *testing.T) {
	r := [3]float64{0.3, 0.1, -0.15}
	_, dR_dr := RFromR(r)
	h := 1e-6
	for k := 0; k < 3; k++ {
		rp, rm := r, r
		rp[k] += h
		rm[k] -= h
		Rp, _ := RFromR(rp)
		Rm, _ := RFromR(rm)
		for e := 0; e < 9; e++ {
			fd := (Rp[e] - Rm[e]) / (2 * h)
			if math.Abs(fd-dR_dr[k][e]) > 1e-5 {
				t.Fatalf("dR/dr[%d][%d]: analytic %v fd %v", k, e, dR_dr[k][e], fd)
			}
		}
	}
}

func TestComposeIdentityCamera(t *testing.T) {
	frame := Pose{R: [3]float64{0.1, 0, 0}, T: [3]float64{1, 2, 3}}
	j := Compose(Pose{}, frame, true)
	if j.Pose != frame {
		t.Fatalf("expected joint == frame at identity camera, got %+v", j.Pose)
	}
}

func TestComposeMatchesMatrixMultiply(t *testing.T) {
	cam := Pose{R: [3]float64{0.2, -0.1, 0.05}, T: [3]float64{0.1, 0.2, 0.3}}
	frame := Pose{R: [3]float64{-0.1, 0.3, 0.2}, T: [3]float64{1, 2, 3}}
	j := Compose(cam, frame, false)

	Rc, _ := RFromR(cam.R)
	Rf, _ := RFromR(frame.R)
	Rj := mulMat3Mat3(Rc, Rf)
	wantT := mulMat3Vec(Rc, frame.T)
	wantT[0] += cam.T[0]
	wantT[1] += cam.T[1]
	wantT[2] += cam.T[2]

	RjFromVec, _ := RFromR(j.Pose.R)
	for i := range Rj {
		if !approxEqual(Rj[i], RjFromVec[i], 1e-9) {
			t.Fatalf("Rj mismatch at %d: %v vs %v", i, Rj[i], RjFromVec[i])
		}
	}
	for i := 0; i < 3; i++ {
		if !approxEqual(wantT[i], j.Pose.T[i], 1e-9) {
			t.Fatalf("tj mismatch: %v vs %v", wantT, j.Pose.T)
		}
	}
}

func TestComposeGradientFiniteDifference(t *testing.T) {
	cam := Pose{R: [3]float64{0.2, -0.1, 0.05}, T: [3]float64{0.1, 0.2, 0.3}}
	frame := Pose{R: [3]float64{-0.1, 0.3, 0.2}, T: [3]float64{1, 2, 3}}
	j := Compose(cam, frame, false)

	h := 1e-6
	for k := 0; k < 3; k++ {
		cp, cm := cam, cam
		cp.R[k] += h
		cm.R[k] -= h
		jp := Compose(cp, frame, false)
		jm := Compose(cm, frame, false)
		for i := 0; i < 3; i++ {
			fd := (jp.Pose.R[i] - jm.Pose.R[i]) / (2 * h)
			if math.Abs(fd-j.DRj_DRc[3*i+k]) > 1e-4 {
				t.Fatalf("drj/drc[%d][%d]: analytic %v fd %v", i, k, j.DRj_DRc[3*i+k], fd)
			}
			fdt := (jp.Pose.T[i] - jm.Pose.T[i]) / (2 * h)
			if math.Abs(fdt-j.DTj_DRc[i][k]) > 1e-4 {
				t.Fatalf("dtj/drc[%d][%d]: analytic %v fd %v", i, k, j.DTj_DRc[i][k], fdt)
			}
		}
	}
}
