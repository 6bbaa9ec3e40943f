// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solve

import (
	"math"
	"testing"

	"github.com/cpmech/camcal/assembly"
	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/measurement"
	"github.com/cpmech/camcal/rigid"
	"github.com/cpmech/camcal/state"
)

func TestOptimizeRecoversPerturbedFramePose(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	intrinsics := []float64{1000, 1000, 500, 400}
	truePose := rigid.Pose{R: [3]float64{0.02, -0.01, 0.03}, T: [3]float64{0.01, -0.02, 2.0}}

	_, pixels, err := measurement.SyntheticBoard(m, intrinsics, truePose, 6, 5, 0.1, [2]float64{})
	if err != nil {
		t.Fatalf("SyntheticBoard: %v", err)
	}

	seedPose := rigid.Pose{T: [3]float64{0, 0, 2.0}}
	opts := state.Options{OptimizeFrames: true}
	layout := state.NewLayout([]lensmodel.Model{m}, 0, 1, 0, opts)

	problem := &assembly.Problem{
		Models:            []lensmodel.Model{m},
		Intrinsics:        [][]float64{intrinsics},
		Frames:            []rigid.Pose{seedPose},
		Width:             6,
		Height:            5,
		BoardSpacing:      0.1,
		BoardObservations: []measurement.BoardObs{{ICamIntrinsics: 0, ICamExtrinsics: -1, IFrame: 0}},
		BoardPixels:       pixels,
	}

	solver := NewLevenbergMarquardt(DefaultLMConfig())
	result, err := Optimize(problem, layout, solver, Config{})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if result.RMSReprojError > 1e-4 {
		t.Errorf("rms=%v, want near 0 for a noiseless synthetic board", result.RMSReprojError)
	}

	fitted := problem.Frames[0]
	for i := 0; i < 3; i++ {
		if math.Abs(fitted.R[i]-truePose.R[i]) > 1e-4 {
			t.Errorf("R[%d]=%v, want %v", i, fitted.R[i], truePose.R[i])
		}
		if math.Abs(fitted.T[i]-truePose.T[i]) > 1e-4 {
			t.Errorf("T[%d]=%v, want %v", i, fitted.T[i], truePose.T[i])
		}
	}
}

func TestValidateRejectsNoOptimizedVariables(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	layout := state.NewLayout([]lensmodel.Model{m}, 0, 1, 0, state.Options{})
	problem := &assembly.Problem{Models: []lensmodel.Model{m}}
	if err := Validate(problem, layout); err == nil {
		t.Errorf("expected an error when no state variables are selected for optimization")
	}
}

func TestValidateRejectsModelWithoutAnalyticGradient(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Cahvore, Config: lensmodel.Config{Linearity: 1}}
	layout := state.NewLayout([]lensmodel.Model{m}, 0, 1, 0, state.Options{OptimizeFrames: true})
	problem := &assembly.Problem{Models: []lensmodel.Model{m}}
	if err := Validate(problem, layout); err == nil {
		t.Errorf("expected an error for a model lacking analytic gradients")
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	m := lensmodel.Model{Family: lensmodel.Pinhole}
	intrinsics := []float64{1000, 1000, 500, 400}
	pose := rigid.Pose{R: [3]float64{0.1, 0.2, 0.3}, T: [3]float64{1, 2, 3}}
	opts := state.Options{OptimizeIntrinsicsCore: true, OptimizeFrames: true}
	layout := state.NewLayout([]lensmodel.Model{m}, 0, 1, 0, opts)

	problem := &assembly.Problem{
		Models:            []lensmodel.Model{m},
		Intrinsics:        [][]float64{append([]float64(nil), intrinsics...)},
		Frames:            []rigid.Pose{pose},
		Width:             2,
		Height:            2,
		BoardSpacing:      1,
		BoardObservations: nil,
		BoardPixels:       nil,
	}

	packed := PackSeed(problem, layout)
	problem.Intrinsics[0] = []float64{0, 0, 0, 0}
	problem.Frames[0] = rigid.Pose{}
	Unpack(problem, layout, packed)

	for i, v := range intrinsics {
		if math.Abs(problem.Intrinsics[0][i]-v) > 1e-9 {
			t.Errorf("intrinsics[%d]=%v, want %v", i, problem.Intrinsics[0][i], v)
		}
	}
	for i := 0; i < 3; i++ {
		if math.Abs(problem.Frames[0].R[i]-pose.R[i]) > 1e-9 {
			t.Errorf("R[%d]=%v, want %v", i, problem.Frames[0].R[i], pose.R[i])
		}
		if math.Abs(problem.Frames[0].T[i]-pose.T[i]) > 1e-9 {
			t.Errorf("T[%d]=%v, want %v", i, problem.Frames[0].T[i], pose.T[i])
		}
	}
}
