// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package camcal is the public entry point of the multi-camera
// calibration optimization core: forward
// projection, unprojection, a callback-only residual+Jacobian query, and
// the full solve-driver call. Everything else in this module (lensmodel,
// project, unproject, rigid, state, measurement, assembly, outlier,
// solve) is reached through these four operations plus the camfile and
// cmd/camcal-calibrate packages that round out a complete repository.
package camcal

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/cpmech/camcal/assembly"
	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/project"
	"github.com/cpmech/camcal/solve"
	"github.com/cpmech/camcal/state"
	"github.com/cpmech/camcal/unproject"
)

// Project forward-projects a camera-frame point through the given lens
// model. r3.Vector/r2.Point are used at this
// package boundary (the same pair viamrobotics/rdk's calibration code
// imports) instead of the bare [3]float64/[2]float64 the inner kernels
// use in their hot per-pixel loops.
func Project(m lensmodel.Model, v r3.Vector, intrinsics []float64) (r2.Point, error) {
	res, err := project.Project(m, [3]float64{v.X, v.Y, v.Z}, intrinsics, false)
	if err != nil {
		return r2.Point{}, err
	}
	return r2.Point{X: res.Q[0], Y: res.Q[1]}, nil
}

// Unproject inverts Project: given a pixel and a lens model, returns an
// (unnormalized) camera-frame direction. ok is false when the Newton
// solve failed to converge, reported as a boolean rather than a NaN-laced
// vector.
func Unproject(m lensmodel.Model, q r2.Point, intrinsics []float64) (v r3.Vector, ok bool) {
	out, ok := unproject.Unproject(m, [2]float64{q.X, q.Y}, intrinsics)
	if !ok {
		return r3.Vector{}, false
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, true
}

// OptimizerCallback is the callback-only entry point: compute the
// residual vector and (optionally) the sparse Jacobian transpose for a
// given packed state, without invoking a solver. Useful for
// finite-difference gradient checks and for callers that drive their own
// trust-region loop instead of solve.Optimize.
func OptimizerCallback(p *assembly.Problem, l *state.Layout, packedState []float64, wantJacobian bool) (residual []float64, jt *assembly.Jacobian, err error) {
	return assembly.Callback(p, l, packedState, wantJacobian)
}

// Optimize is the full-solve entry point: pack
// the seed, solve, reject outliers and re-solve as configured, unpack the
// solution back into p's semantic fields, and report fit statistics.
func Optimize(p *assembly.Problem, l *state.Layout, solver solve.Solver, cfg solve.Config) (solve.Result, error) {
	return solve.Optimize(p, l, solver, cfg)
}
