// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camcal

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/cpmech/camcal/lensmodel"
)

func TestProjectPinhole(t *testing.T) {
	// fx=fy=1000, c=(500,500), v=(1,2,10) must land on (600,700).
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	intrinsics := []float64{1000, 1000, 500, 500}
	q, err := Project(m, r3.Vector{X: 1, Y: 2, Z: 10}, intrinsics)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if math.Abs(q.X-600) > 1e-9 || math.Abs(q.Y-700) > 1e-9 {
		t.Errorf("got (%v,%v), want (600,700)", q.X, q.Y)
	}
}

func TestUnprojectPinholeParallel(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	intrinsics := []float64{1000, 1000, 500, 500}
	v, ok := Unproject(m, r2.Point{X: 600, Y: 700}, intrinsics)
	if !ok {
		t.Fatalf("Unproject reported failure")
	}
	want := r3.Vector{X: 1, Y: 2, Z: 10}
	cos := v.Dot(want) / (v.Norm() * want.Norm())
	if cos < 1-1e-8 {
		t.Errorf("unprojected direction not parallel to (1,2,10): cos=%v", cos)
	}
}

func TestCompareIntrinsicsIdenticalModelsAreZero(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	intrinsics := []float64{1000, 1000, 500, 500}
	diffs, err := CompareIntrinsics(m, intrinsics, m, intrinsics, 100, 100, 20)
	if err != nil {
		t.Fatalf("CompareIntrinsics: %v", err)
	}
	if len(diffs) == 0 {
		t.Fatalf("expected at least one sample")
	}
	for _, d := range diffs {
		if d.PixelDist > 1e-6 {
			t.Errorf("identical models should diff by ~0px, got %v at (%v,%v)", d.PixelDist, d.Px, d.Py)
		}
	}
}
