// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

import (
	"math"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
)

// segmentsPerU converts the configured field of view into the spacing (in
// u-space) of the control-point grid. margin is
// order-1: the grid reserves that many knot spacings in total, half on each
// edge, so the sampled window never runs off the grid inside the configured
// FOV.
func segmentsPerU(cfg lensmodel.Config) float64 {
	margin := float64(cfg.Order - 1)
	uEdge := 2 * math.Tan(cfg.FovDeg*math.Pi/180/4)
	return (float64(cfg.Nx-1) - margin) / (2 * uEdge)
}

// projectSplined implements the splined stereographic model: an ordinary
// stereographic projection u(v), corrected by a 2D displacement field
// sampled from a tensor-product B-spline surface whose control points are
// the model's non-core intrinsics.
func projectSplined(m lensmodel.Model, v [3]float64, intrinsics []float64, wantGrad bool) (Result, error) {
	cfg := m.Config
	u, dUdV := stereographicUV(v, true)

	spu := segmentsPerU(cfg)
	ix := u[0]*spu + float64(cfg.Nx-1)/2
	iy := u[1]*spu + float64(cfg.Ny-1)/2

	var ix0, iy0 int
	var lx, ly float64
	switch cfg.Order {
	case 3:
		ix0 = clampInt(int(math.Floor(ix)), 1, cfg.Nx-3)
		iy0 = clampInt(int(math.Floor(iy)), 1, cfg.Ny-3)
	case 2:
		ix0 = clampInt(int(math.Floor(ix+0.5)), 1, cfg.Nx-2)
		iy0 = clampInt(int(math.Floor(iy+0.5)), 1, cfg.Ny-2)
	default:
		return Result{}, chk.Err("project: projectSplined: bad order %d", cfg.Order)
	}
	lx = ix - float64(ix0)
	ly = iy - float64(iy0)

	basisX, basisXd := bsplineBasis(cfg.Order, lx)
	basisY, basisYd := bsplineBasis(cfg.Order, ly)

	ix0Top, iy0Top := ix0-1, iy0-1

	var deltaU [2]float64
	var doutDx, doutDy [2]float64
	for dy := 0; dy <= cfg.Order; dy++ {
		gy := iy0Top + dy
		for dx := 0; dx <= cfg.Order; dx++ {
			gx := ix0Top + dx
			base := 4 + 2*(gy*cfg.Nx+gx)
			cx, cy := intrinsics[base], intrinsics[base+1]
			w := basisY[dy] * basisX[dx]
			deltaU[0] += cx * w
			deltaU[1] += cy * w
			wx := basisY[dy] * basisXd[dx]
			doutDx[0] += cx * wx
			doutDx[1] += cy * wx
			wy := basisYd[dy] * basisX[dx]
			doutDy[0] += cx * wy
			doutDy[1] += cy * wy
		}
	}

	fx, fy, cxI, cyI := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	q := [2]float64{
		fx*(u[0]+deltaU[0]) + cxI,
		fy*(u[1]+deltaU[1]) + cyI,
	}
	res := Result{Q: q}
	if !wantGrad {
		return res, nil
	}

	ddeltaux_dux := doutDx[0] * spu
	ddeltaux_duy := doutDy[0] * spu
	ddeltauy_dux := doutDx[1] * spu
	ddeltauy_duy := doutDy[1] * spu

	// dq/du (2x2)
	dqxDu := [2]float64{fx * (1 + ddeltaux_dux), fx * ddeltaux_duy}
	dqyDu := [2]float64{fy * ddeltauy_dux, fy * (1 + ddeltauy_duy)}

	for i := 0; i < 3; i++ {
		res.DqDv[0][i] = dqxDu[0]*dUdV[0][i] + dqxDu[1]*dUdV[1][i]
		res.DqDv[1][i] = dqyDu[0]*dUdV[0][i] + dqyDu[1]*dUdV[1][i]
	}

	res.Sparse = &SparseGrad{
		BasisU: basisX,
		BasisV: basisY,
		Ix0:    ix0Top,
		Iy0:    iy0Top,
	}
	return res, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
