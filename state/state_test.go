// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package state

import (
	"testing"

	"github.com/cpmech/camcal/lensmodel"
)

// TestLayoutTwoCamerasThreeFrames: 2 cameras, 3 frames, 0 points, splined
// (order=3, Nx=Ny=11) on cam 0, pinhole on cam 1, everything optimized.
func TestLayoutTwoCamerasThreeFrames(t *testing.T) {
	splined := lensmodel.Model{
		Family: lensmodel.SplinedStereographic,
		Config: lensmodel.Config{Order: 3, Nx: 11, Ny: 11, FovDeg: 170},
	}
	pinhole := lensmodel.Model{Family: lensmodel.Pinhole}
	models := []lensmodel.Model{splined, pinhole}

	opts := Options{
		OptimizeIntrinsicsCore:        true,
		OptimizeIntrinsicsDistortions: true,
		OptimizeExtrinsics:            true,
		OptimizeFrames:                true,
	}
	l := NewLayout(models, 1, 3, 0, opts)

	if got := l.NumStatesIntrinsics(0); got != 246 {
		t.Errorf("cam0 intrinsics block = %d, want 246", got)
	}
	if got := l.NumStatesIntrinsics(1); got != 4 {
		t.Errorf("cam1 intrinsics block = %d, want 4", got)
	}
	if got := l.StateIndexIntrinsics(0); got != 0 {
		t.Errorf("cam0 intrinsics offset = %d, want 0", got)
	}
	if got := l.StateIndexIntrinsics(1); got != 246 {
		t.Errorf("cam1 intrinsics offset = %d, want 246", got)
	}
	if got := l.NumStatesExtrinsics(); got != 6 {
		t.Errorf("extrinsics block = %d, want 6", got)
	}
	if got := l.StateIndexExtrinsics(0); got != 250 {
		t.Errorf("extrinsics offset = %d, want 250", got)
	}
	if got := l.NumStatesFrames(); got != 18 {
		t.Errorf("frames block = %d, want 18", got)
	}
	if got := l.StateIndexFrame(0); got != 256 {
		t.Errorf("frame 0 offset = %d, want 256", got)
	}
	if got := l.NumStates(); got != 274 {
		t.Errorf("total state = %d, want 274", got)
	}
}

func TestStateIndexExtrinsicsReferenceCamera(t *testing.T) {
	models := []lensmodel.Model{{Family: lensmodel.Pinhole}}
	l := NewLayout(models, 0, 1, 0, Options{OptimizeExtrinsics: true, OptimizeFrames: true})
	if got := l.StateIndexExtrinsics(-1); got != -1 {
		t.Errorf("reference camera extrinsics offset = %d, want -1", got)
	}
}

func TestStateIndexDisabledBlocksReturnMinusOne(t *testing.T) {
	models := []lensmodel.Model{{Family: lensmodel.Pinhole}}
	l := NewLayout(models, 0, 0, 0, Options{})
	if got := l.StateIndexIntrinsics(0); got != -1 {
		t.Errorf("intrinsics offset = %d, want -1", got)
	}
	if got := l.StateIndexCalobjectWarp(); got != -1 {
		t.Errorf("warp offset = %d, want -1", got)
	}
	if got := l.NumStates(); got != 0 {
		t.Errorf("total state = %d, want 0", got)
	}
}

func TestIntrinsicsScalesPinhole(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	s := IntrinsicsScales(m)
	want := []float64{ScaleFocalLength, ScaleFocalLength, ScaleCenterPixel, ScaleCenterPixel}
	for i := range want {
		if s[i] != want[i] {
			t.Errorf("scale[%d] = %v, want %v", i, s[i], want[i])
		}
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	v := 1234.5
	p := PackValue(v, ScaleFocalLength)
	if got := UnpackValue(p, ScaleFocalLength); got != v {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}
