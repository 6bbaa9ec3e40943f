// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// camcal-calibrate drives the public camcal entry points end-to-end from
// camera-model files: flag parsing, chk.Panic on fatal setup errors,
// io.Pf progress banners. Observation loading and corner detection live
// outside the optimization core; this driver demonstrates the wiring
// with a synthetic board (measurement.SyntheticBoard) standing in for a
// real corner detector, which a production deployment would swap in
// behind the Seeder interface below.
package main

import (
	"flag"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/cpmech/camcal/assembly"
	"github.com/cpmech/camcal/camfile"
	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/measurement"
	"github.com/cpmech/camcal/rigid"
	"github.com/cpmech/camcal/solve"
	"github.com/cpmech/camcal/state"
)

// Seeder produces an initial frame pose for one board snapshot. Real
// deployments derive this from detected board corners; camcal only ever
// consumes the result through this interface.
type Seeder interface {
	SeedFrame(iframe int) rigid.Pose
}

// IdentitySeeder is the trivial Seeder this CLI falls back to when no
// corner-based seed is available: every frame starts at the identity
// pose, offset along +Z so the board starts in front of the camera.
type IdentitySeeder struct{ Z float64 }

func (s IdentitySeeder) SeedFrame(iframe int) rigid.Pose {
	return rigid.Pose{T: [3]float64{0, 0, s.Z}}
}

func main() {
	modelPath := flag.String("model", "", "path to a camera-model file")
	outPath := flag.String("out", "", "path to write the fitted camera-model file")
	boardWidth := flag.Int("board-width", 10, "calibration board grid width")
	boardHeight := flag.Int("board-height", 10, "calibration board grid height")
	boardSpacing := flag.Float64("board-spacing", 0.1, "calibration board cell spacing")
	solverName := flag.String("solver", "lm", "registered solve.Solver name")
	outliers := flag.Bool("outlier-rejection", true, "enable outlier rejection")
	regularize := flag.Bool("regularization", true, "emit regularization residuals")
	flag.Parse()

	defer func() {
		if r := recover(); r != nil {
			io.PfRed("camcal-calibrate: FATAL: %v\n", r)
		}
	}()

	if *modelPath == "" {
		chk.Panic("camcal-calibrate: -model is required")
	}

	io.Pf("camcal-calibrate: reading camera model from %s\n", *modelPath)
	cm, err := camfile.Read(*modelPath)
	if err != nil {
		chk.Panic("%v", err)
	}

	seeder := IdentitySeeder{Z: *boardSpacing * float64(*boardWidth)}
	joint := seeder.SeedFrame(0)

	io.Pf("camcal-calibrate: synthesizing one board observation to exercise the solve\n")
	_, pixels, err := measurement.SyntheticBoard(cm.LensModel, cm.Intrinsics, joint, *boardWidth, *boardHeight, *boardSpacing, [2]float64{})
	if err != nil {
		chk.Panic("%v", err)
	}

	opts := state.Options{
		OptimizeIntrinsicsCore:        true,
		OptimizeIntrinsicsDistortions: true,
		OptimizeFrames:                true,
	}
	layout := state.NewLayout([]lensmodel.Model{cm.LensModel}, 0, 1, 0, opts)

	problem := &assembly.Problem{
		Models:              []lensmodel.Model{cm.LensModel},
		Intrinsics:          [][]float64{append([]float64(nil), cm.Intrinsics...)},
		Frames:              []rigid.Pose{joint},
		Width:               *boardWidth,
		Height:              *boardHeight,
		BoardSpacing:        *boardSpacing,
		ImagerSizes:         [][2]int{{cm.ImagerWidth, cm.ImagerHeight}},
		BoardObservations:   []measurement.BoardObs{{ICamIntrinsics: 0, ICamExtrinsics: -1, IFrame: 0}},
		BoardPixels:         pixels,
		ApplyRegularization: *regularize,
	}

	solver, err := solve.NewSolver(*solverName)
	if err != nil {
		chk.Panic("%v", err)
	}

	io.Pf("camcal-calibrate: solving (solver=%s, outlier-rejection=%v)\n", *solverName, *outliers)
	result, err := solve.Optimize(problem, layout, solver, solve.Config{ApplyOutlierRejection: *outliers, Verbose: true})
	if err != nil {
		chk.Panic("%v", err)
	}
	io.PfGreen("camcal-calibrate: converged: rms=%.6f px, outliers=%d, iterations=%d\n", result.RMSReprojError, result.NOutliers, result.Niterations)

	if *outPath != "" {
		out := &camfile.CameraModel{
			LensModel:    problem.Models[0],
			Intrinsics:   problem.Intrinsics[0],
			ImagerWidth:  cm.ImagerWidth,
			ImagerHeight: cm.ImagerHeight,
		}
		if err := camfile.Write(*outPath, out); err != nil {
			chk.Panic("%v", err)
		}
		io.Pf("camcal-calibrate: wrote %s\n", *outPath)
	}
}
