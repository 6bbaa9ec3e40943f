// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rigid

import "math"

// Mat3 is a row-major 3x3 matrix, kept as a plain array (not a general
// matrix type) the way gofem keeps its small per-integration-point
// gradient buffers as raw slices: these are hot-path, fixed-size, and
// never touch the sparse assembly machinery.
type Mat3 [9]float64

func (m Mat3) at(i, j int) float64 { return m[3*i+j] }

func mulMat3Vec(m Mat3, v [3]float64) [3]float64 {
	return [3]float64{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

func mulMat3Mat3(a, b Mat3) Mat3 {
	var c Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += a.at(i, k) * b.at(k, j)
			}
			c[3*i+j] = s
		}
	}
	return c
}

func skew(v [3]float64) Mat3 {
	return Mat3{
		0, -v[2], v[1],
		v[2], 0, -v[0],
		-v[1], v[0], 0,
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func sub3(a, b [3]float64) [3]float64 { return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func identity3() Mat3 { return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1} }

// RFromR implements Rodrigues' rotation formula R(r) = I + sin(theta)/theta
// K + (1-cos(theta))/theta^2 K^2, K = skew(r), theta = |r|, together with
// its exact gradient dR/dr (as 3 flattened 3x3 matrices, one per component
// of r), using the closed form of Gallego & Yezzi ("A compact formula for
// the derivative of a 3-D rotation in exponential coordinates"):
//
//	dR/dr_i = ( r_i*K + skew(r x ((I-R) e_i)) ) * R / theta^2
//
// For theta -> 0 this degenerates to the first-order approximation
// R = I + K, dR/dr_i = skew(e_i), which is what the closed form above
// reduces to in the limit; we special-case it directly to avoid dividing
// by theta^2 near zero.
func RFromR(r [3]float64) (R Mat3, dR_dr [3]Mat3) {
	theta2 := r[0]*r[0] + r[1]*r[1] + r[2]*r[2]
	theta := math.Sqrt(theta2)
	if theta < 1e-12 {
		R = identity3()
		R[1], R[2], R[3], R[5], R[6], R[7] = -r[2], r[1], r[2], -r[0], -r[1], r[0]
		for i := 0; i < 3; i++ {
			var e [3]float64
			e[i] = 1
			dR_dr[i] = skew(e)
		}
		return
	}
	K := skew(r)
	scaled := K
	for i := range scaled {
		scaled[i] /= theta
	}
	K2 := mulMat3Mat3(scaled, scaled)
	sinT, cosT := math.Sin(theta), math.Cos(theta)
	R = identity3()
	for i := range R {
		R[i] += sinT*scaled[i] + (1-cosT)*K2[i]
	}
	imr := identity3()
	for i := range imr {
		imr[i] -= R[i]
	}
	for i := 0; i < 3; i++ {
		var e [3]float64
		e[i] = 1
		imrEi := mulMat3Vec(imr, e)
		rxv := cross(r, imrEi)
		term := skew(rxv)
		for k := range term {
			term[k] += r[i] * K[k]
		}
		prod := mulMat3Mat3(term, R)
		for k := range prod {
			prod[k] /= theta2
		}
		dR_dr[i] = prod
	}
	return
}

// RToR converts a rotation matrix back to a rotation vector (the
// logarithm map of SO(3)), via angle = acos((trace(R)-1)/2) and axis from
// the skew-symmetric part of R, with the small-angle fallback taken
// directly from the first-order relation R - R^T = 2*sin(theta)*skew(axis).
func RToR(R Mat3) [3]float64 {
	trace := R.at(0, 0) + R.at(1, 1) + R.at(2, 2)
	cosT := (trace - 1) / 2
	if cosT > 1 {
		cosT = 1
	}
	if cosT < -1 {
		cosT = -1
	}
	theta := math.Acos(cosT)
	axisRaw := [3]float64{R.at(2, 1) - R.at(1, 2), R.at(0, 2) - R.at(2, 0), R.at(1, 0) - R.at(0, 1)}
	if theta < 1e-9 {
		return [3]float64{axisRaw[0] / 2, axisRaw[1] / 2, axisRaw[2] / 2}
	}
	sinT := math.Sin(theta)
	if math.Abs(sinT) < 1e-6 {
		// theta close to pi: axisRaw degenerates: fall back to the
		// symmetric part of R to recover the axis up to sign. Here
		// (R+R^T)/2 - cos(theta)*I = (1-cos(theta))*a*a^T; its column with
		// the largest diagonal entry k, scaled by 1/a_k, is the axis a.
		k := 0
		for i := 1; i < 3; i++ {
			if R.at(i, i) > R.at(k, k) {
				k = i
			}
		}
		ak := math.Copysign(math.Sqrt((R.at(k, k)-cosT)/(1-cosT)), axisRaw[k])
		var out [3]float64
		for i := 0; i < 3; i++ {
			out[i] = theta * ((R.at(i, k)+R.at(k, i))/2 - cosT*identity3().at(i, k)) / (1 - cosT) / ak
		}
		return out
	}
	scale := theta / (2 * sinT)
	return [3]float64{axisRaw[0] * scale, axisRaw[1] * scale, axisRaw[2] * scale}
}

// pinv3x9Left returns the 3x9 left-pseudo-inverse of the 9x3 matrix formed
// by stacking the three flattened dR/dr_i blocks as columns, i.e. the
// tangent-space map dr/dR such that (dr/dR)(dR/dr) = I_3. Computed as
// (A^T A)^-1 A^T with A (9x3); (A^T A) is a 3x3 matrix, inverted in closed
// form.
func pinv3x9Left(A [3]Mat3) (out [3][9]float64) {
	var AtA [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 9; k++ {
				s += A[i][k] * A[j][k]
			}
			AtA[i][j] = s
		}
	}
	inv, ok := invert3x3(AtA)
	if !ok {
		// Singular only if r is at a degenerate configuration the
		// forward map never produces for a valid rotation; return
		// zero gradient rather than panicking mid-assembly.
		return out
	}
	for row := 0; row < 3; row++ {
		for col := 0; col < 9; col++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += inv[row][k] * A[k][col]
			}
			out[row][col] = s
		}
	}
	return
}

func invert3x3(m [3][3]float64) (inv [3][3]float64, ok bool) {
	det := m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
	if math.Abs(det) < 1e-14 {
		return inv, false
	}
	invDet := 1 / det
	inv[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * invDet
	inv[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * invDet
	inv[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * invDet
	inv[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * invDet
	inv[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * invDet
	inv[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * invDet
	inv[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * invDet
	inv[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * invDet
	inv[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * invDet
	return inv, true
}
