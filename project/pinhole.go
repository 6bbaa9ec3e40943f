// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

// projectPinhole implements q = (fx*vx/vz + cx, fy*vy/vz + cy).
func projectPinhole(v [3]float64, intrinsics []float64, wantGrad bool) Result {
	u := [2]float64{v[0] / v[2], v[1] / v[2]}
	q, fx, fy := core(u, intrinsics)
	res := Result{Q: q}
	if wantGrad {
		invz := 1 / v[2]
		res.DqDv = [2][3]float64{
			{fx * invz, 0, -fx * v[0] * invz * invz},
			{0, fy * invz, -fy * v[1] * invz * invz},
		}
	}
	return res
}

// unprojectPinhole is the closed-form inverse: given a pixel and
// intrinsics, returns a direction (not normalized) parallel to the
// original camera-frame point.
func unprojectPinhole(q [2]float64, intrinsics []float64) [3]float64 {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	return [3]float64{(q[0] - cx) / fx, (q[1] - cy) / fy, 1}
}
