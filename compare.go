// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camcal

import (
	"math"

	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/project"
	"github.com/cpmech/camcal/unproject"
)

// IntrinsicsDiff is one grid sample of CompareIntrinsics: the pixel in
// model 1's imager, and how far model 2 projects the same physical
// direction away from it.
type IntrinsicsDiff struct {
	Px, Py    float64
	PixelDist float64 // ||project(m2, unproject(m1,(px,py))) - (px,py)||
	AngleDeg  float64 // angle, in degrees, between the two models' unprojected directions
}

// CompareIntrinsics sweeps a grid of pixels on a WxH imager, unprojects
// each through model 1, reprojects the resulting direction through model
// 2, and reports the per-pixel and angular disagreement between the two
// fitted intrinsics. Useful for sanity-checking a recalibration against
// a prior one.
func CompareIntrinsics(m1 lensmodel.Model, intrinsics1 []float64, m2 lensmodel.Model, intrinsics2 []float64, width, height, gridStep int) ([]IntrinsicsDiff, error) {
	if gridStep <= 0 {
		gridStep = 1
	}
	var out []IntrinsicsDiff
	for py := 0; py < height; py += gridStep {
		for px := 0; px < width; px += gridStep {
			q := [2]float64{float64(px), float64(py)}
			v1, ok := unproject.Unproject(m1, q, intrinsics1)
			if !ok {
				continue
			}
			v2, ok := unproject.Unproject(m2, q, intrinsics2)
			if !ok {
				continue
			}
			res2, err := project.Project(m2, v1, intrinsics2, false)
			if err != nil {
				return nil, err
			}
			out = append(out, IntrinsicsDiff{
				Px:        q[0],
				Py:        q[1],
				PixelDist: math.Hypot(res2.Q[0]-q[0], res2.Q[1]-q[1]),
				AngleDeg:  angleBetweenDeg(v1, v2),
			})
		}
	}
	return out, nil
}

func angleBetweenDeg(a, b [3]float64) float64 {
	na := math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
	nb := math.Sqrt(b[0]*b[0] + b[1]*b[1] + b[2]*b[2])
	if na == 0 || nb == 0 {
		return 0
	}
	dot := (a[0]*b[0] + a[1]*b[1] + a[2]*b[2]) / (na * nb)
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot) * 180 / math.Pi
}
