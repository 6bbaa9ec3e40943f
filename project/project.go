// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package project implements forward projection (camera-frame point ->
// pixel) for every lens model in lensmodel.Family, plus the analytic
// gradients with respect to the camera-frame point and to the non-core
// intrinsics. Core-intrinsic gradient columns
// (fx,fy,cx,cy) are never materialized here: they are implicit and cheap
// enough that assembly computes them inline from q and the intrinsics.
package project

import (
	"math"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
)

// SparseGrad is the sparse intrinsics-gradient representation used only by
// the splined stereographic model: each pixel residual depends on exactly
// (order+1)^2 control points, laid out as the outer product of two 1D
// basis vectors. The core never densifies this into the outer product;
// assembly expands it inline while writing the Jacobian.
type SparseGrad struct {
	BasisU, BasisV []float64 // length order+1
	Ix0, Iy0       int       // starting (clamped) control-point grid indices
}

// Result is the output of a single Project call.
type Result struct {
	Q [2]float64

	// DqDv is d(q)/d(v), valid whenever gradients were requested and the
	// model has analytic gradients.
	DqDv [2][3]float64

	// DqDDistortion holds d(q)/d(distortion_i) for each non-core
	// intrinsic, in order; empty for splined models (use Sparse instead)
	// and for models with no distortion parameters.
	DqDDistortion [][2]float64

	// Sparse is non-nil only for SplinedStereographic.
	Sparse *SparseGrad
}

// Project dispatches to the per-family kernel. wantGrad requests the
// gradient blocks above; models without analytic gradients (Cahvore)
// return a non-nil error if wantGrad is set.
func Project(m lensmodel.Model, v [3]float64, intrinsics []float64, wantGrad bool) (Result, error) {
	if wantGrad && !m.Meta().AnalyticGradients {
		return Result{}, chk.Err("project: Project: model %q has no analytic gradients", m.Name())
	}
	switch m.Family {
	case lensmodel.Pinhole:
		return projectPinhole(v, intrinsics, wantGrad), nil
	case lensmodel.Stereographic:
		return projectStereographic(v, intrinsics, wantGrad), nil
	case lensmodel.LonLat:
		return projectLonLat(v, intrinsics, wantGrad), nil
	case lensmodel.LatLon:
		return projectLatLon(v, intrinsics, wantGrad), nil
	case lensmodel.Opencv4, lensmodel.Opencv5, lensmodel.Opencv8, lensmodel.Opencv12:
		return projectOpenCV(m, v, intrinsics, wantGrad), nil
	case lensmodel.Cahvor:
		return projectCahvor(v, intrinsics, wantGrad), nil
	case lensmodel.Cahvore:
		return projectCahvore(m, v, intrinsics)
	case lensmodel.SplinedStereographic:
		return projectSplined(m, v, intrinsics, wantGrad)
	}
	return Result{}, chk.Err("project: Project: unsupported family %v", m.Family)
}

// norm3 returns |v|.
func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// UnprojectPinhole, UnprojectStereographic, UnprojectLonLat and
// UnprojectLatLon expose the closed-form inverses of the models that have
// one, for package unproject to dispatch to directly (every other model
// is inverted there by a local Newton solve over this package's forward
// projection).
func UnprojectPinhole(q [2]float64, intrinsics []float64) [3]float64 {
	return unprojectPinhole(q, intrinsics)
}

func UnprojectStereographic(q [2]float64, intrinsics []float64) [3]float64 {
	return unprojectStereographic(q, intrinsics)
}

func UnprojectLonLat(q [2]float64, intrinsics []float64) [3]float64 {
	return unprojectLonLat(q, intrinsics)
}

func UnprojectLatLon(q [2]float64, intrinsics []float64) [3]float64 {
	return unprojectLatLon(q, intrinsics)
}

// core applies the implicit pinhole core (fx,fy,cx,cy) to a normalized
// (x/z, y/z)-style pair (u), and returns q plus d(q)/d(u) (2x2, diagonal:
// dqx/dux=fx, dqy/duy=fy) for the caller to chain with d(u)/dv.
func core(u [2]float64, intrinsics []float64) (q [2]float64, fx, fy float64) {
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	q[0] = fx*u[0] + cx
	q[1] = fy*u[1] + cy
	return
}
