// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

import "math"

// lonlatUV computes (atan2(vx,vz), asin(vy/|v|)) and its gradient w.r.t. v.
func lonlatUV(v [3]float64, wantGrad bool) (u [2]float64, dUdV [2][3]float64) {
	n := norm3(v)
	lon := math.Atan2(v[0], v[2])
	lat := math.Asin(v[1] / n)
	u = [2]float64{lon, lat}
	if !wantGrad {
		return
	}
	// d atan2(vx,vz)/dv = (vz, 0, -vx) / (vx^2+vz^2)
	denomLon := v[0]*v[0] + v[2]*v[2]
	dUdV[0] = [3]float64{v[2] / denomLon, 0, -v[0] / denomLon}
	// d asin(vy/n)/dv_i = 1/sqrt(1-(vy/n)^2) * d(vy/n)/dv_i
	s := v[1] / n
	k := 1 / math.Sqrt(1-s*s)
	n3 := n * n * n
	dUdV[1] = [3]float64{
		k * (-v[1] * v[0] / n3),
		k * (1/n - v[1]*v[1]/n3),
		k * (-v[1] * v[2] / n3),
	}
	return
}

// projectLonLat implements q = (fx*atan2(vx,vz)+cx, fy*asin(vy/|v|)+cy).
func projectLonLat(v [3]float64, intrinsics []float64, wantGrad bool) Result {
	u, dUdV := lonlatUV(v, wantGrad)
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

// projectLatLon is lonlat with the x<->y axis convention transposed:
// q = (fx*asin(vx/|v|)+cx, fy*atan2(vy,vz)+cy).
func projectLatLon(v [3]float64, intrinsics []float64, wantGrad bool) Result {
	swapped := [3]float64{v[1], v[0], v[2]}
	u, dUdVSwapped := lonlatUV(swapped, wantGrad)
	// lonlatUV(swapped) returns (atan2(v1,v2), asin(v0/n)); we want
	// (asin(v0/n), atan2(v1,v2)) i.e. components transposed back.
	uT := [2]float64{u[1], u[0]}
	q, fx, fy := core(uT, intrinsics)
	res := Result{Q: q}
	if wantGrad {
		// dUdVSwapped[0] is d(atan2(v1,v2))/d(swapped) = d/d(v1,v0,v2)
		// dUdVSwapped[1] is d(asin(v0/n))/d(swapped)
		// Unswap the derivative's argument order back to (v0,v1,v2).
		dAtan := [3]float64{dUdVSwapped[0][1], dUdVSwapped[0][0], dUdVSwapped[0][2]}
		dAsin := [3]float64{dUdVSwapped[1][1], dUdVSwapped[1][0], dUdVSwapped[1][2]}
		for i := 0; i < 3; i++ {
			res.DqDv[0][i] = fx * dAsin[i]
			res.DqDv[1][i] = fy * dAtan[i]
		}
	}
	return res
}

func unprojectLonLat(q [2]float64, intrinsics []float64) [3]float64 {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	lon, lat := (q[0]-cx)/fx, (q[1]-cy)/fy
	cosLat := math.Cos(lat)
	return [3]float64{cosLat * math.Sin(lon), math.Sin(lat), cosLat * math.Cos(lon)}
}

func unprojectLatLon(q [2]float64, intrinsics []float64) [3]float64 {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	lat, lon := (q[0]-cx)/fx, (q[1]-cy)/fy
	cosLat := math.Cos(lat)
	return [3]float64{math.Sin(lat), cosLat * math.Sin(lon), cosLat * math.Cos(lon)}
}
