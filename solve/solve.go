// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package solve wraps the external trust-region nonlinear least-squares
// solver: it packs the seed state, drives
// assembly.Callback through the solver until convergence, loops
// "solve -> mark outliers -> re-solve" via package outlier, unpacks the
// fitted state back into the caller's semantic parameters, and reports
// summary statistics.
package solve

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"

	"github.com/cpmech/camcal/assembly"
	"github.com/cpmech/camcal/measurement"
	"github.com/cpmech/camcal/outlier"
	"github.com/cpmech/camcal/state"
)

// CallbackFunc is the shape assembly.Callback presents to a Solver: given
// a packed state, return the residual and (if requested) the Jacobian
// transpose in compressed-column form.
type CallbackFunc func(packedState []float64, wantJacobian bool) (residual []float64, jt *assembly.Jacobian, err error)

// Solver is the external trust-region nonlinear least-squares driver
// seam: a black box repeatedly
// calling back into the residual/Jacobian assembly and returning a
// converged state update. Mirrors the one-method seam gofem's own
// FEsolver interface (gofem/fem/fem.go) draws around its time-loop
// driver -- callers plug in a different trust-region implementation the
// same way gofem plugs in a different time integrator.
type Solver interface {
	Solve(x0 []float64, eval CallbackFunc) (xStar []float64, err error)
}

// solverallocators holds every registered Solver constructor, named the
// way gofem's solverallocators map (gofem/fem/fem.go) registers FE
// time-loop solvers by a string key.
var solverallocators = make(map[string]func() Solver)

func init() {
	solverallocators["lm"] = func() Solver { return NewLevenbergMarquardt(DefaultLMConfig()) }
}

// NewSolver looks up a registered Solver by name.
func NewSolver(name string) (Solver, error) {
	alloc, ok := solverallocators[name]
	if !ok {
		return nil, chk.Err("solve: NewSolver: no solver registered under %q", name)
	}
	return alloc(), nil
}

// Config toggles the driver-level behavior of Optimize.
type Config struct {
	ApplyOutlierRejection bool
	Verbose               bool
}

// Result is the fit statistics Optimize reports back to the caller.
type Result struct {
	RMSReprojError      float64
	NOutliers           int
	RegularizationRatio float64
	Niterations         int
}

// errResult is the sentinel returned for a configuration-incoherent
// call: rms=-1, no caller buffers touched.
var errResult = Result{RMSReprojError: -1}

// Validate checks for incoherent configurations before any buffer is
// packed or mutated.
func Validate(p *assembly.Problem, l *state.Layout) error {
	anySelected := l.Opts.OptimizeIntrinsicsCore || l.Opts.OptimizeIntrinsicsDistortions ||
		l.Opts.OptimizeExtrinsics || l.Opts.OptimizeFrames || l.Opts.OptimizeCalobjectWarp
	if !anySelected {
		return chk.Err("solve: configuration incoherent: no state variables selected for optimization")
	}
	for icam, m := range p.Models {
		if !m.Meta().AnalyticGradients {
			return chk.Err("solve: configuration incoherent: camera %d uses lens model %q, which has no analytic gradient available", icam, m.Name())
		}
	}
	if p.ApplyRegularization && l.Opts.OptimizeIntrinsicsCore && len(p.ImagerSizes) != len(p.Models) {
		return chk.Err("solve: configuration incoherent: center-pixel regularization needs one imager size per camera, got %d for %d cameras", len(p.ImagerSizes), len(p.Models))
	}
	return nil
}

// Optimize runs the full driver loop: validate, pack
// the seed, solve, optionally reject outliers and re-solve, unpack the
// solution back into p's semantic fields, and compute summary statistics.
func Optimize(p *assembly.Problem, l *state.Layout, solver Solver, cfg Config) (Result, error) {
	if err := Validate(p, l); err != nil {
		return errResult, err
	}

	packed := PackSeed(p, l)
	eval := func(x []float64, wantJac bool) ([]float64, *assembly.Jacobian, error) {
		return assembly.Callback(p, l, x, wantJac)
	}

	niter := 0
	for {
		niter++
		xStar, err := solver.Solve(packed, eval)
		if err != nil {
			return errResult, err
		}
		packed = xStar

		if !cfg.ApplyOutlierRejection {
			break
		}
		residual, _, err := assembly.Callback(p, l, packed, false)
		if err != nil {
			return errResult, err
		}
		if !outlier.Mark(p, residual) {
			break
		}
		if cfg.Verbose {
			io.Pf("solve: outliers marked, re-solving\n")
		}
	}

	residual, _, err := assembly.Callback(p, l, packed, false)
	if err != nil {
		return errResult, err
	}
	Unpack(p, l, packed)

	var ssq float64
	for _, r := range residual {
		ssq += r * r
	}
	dims := assembly.ComputeDims(p, l)
	rms := math.Sqrt(ssq * 2 / float64(dims.Nmeasurements))

	nOutliers := 0
	for _, px := range p.BoardPixels {
		if px.IsOutlier() {
			nOutliers++
		}
	}

	regRatio := regularizationRatio(p, l, residual, dims, ssq)
	if regRatio > 0.01 {
		io.PfRed("solve: regularization contributes %.2f%% of total squared residual (>1%% threshold)\n", regRatio*100)
	}
	if cfg.Verbose {
		io.Pf("solve: converged in %d iteration(s), rms=%.4f px, %d outlier(s)\n", niter, rms, nOutliers)
	}

	return Result{RMSReprojError: rms, NOutliers: nOutliers, RegularizationRatio: regRatio, Niterations: niter}, nil
}

// regularizationRatio returns the fraction of ssq contributed by the
// trailing regularization rows, for the >1% warning in Optimize.
func regularizationRatio(p *assembly.Problem, l *state.Layout, residual []float64, dims assembly.Dims, ssq float64) float64 {
	if !p.ApplyRegularization || ssq == 0 {
		return 0
	}
	nReg := measurement.NumRegularizationMeasurementsAll(p.Models, measurement.RegularizationConfigFromOptions(l.Opts))
	if nReg == 0 {
		return 0
	}
	var regSSQ float64
	for _, r := range residual[dims.Nmeasurements-nReg:] {
		regSSQ += r * r
	}
	return regSSQ / ssq
}

// PackSeed converts p's current semantic parameters into a packed,
// dimensionless state vector using the state package's scale table.
func PackSeed(p *assembly.Problem, l *state.Layout) []float64 {
	dims := assembly.ComputeDims(p, l)
	packed := make([]float64, dims.Nstate)

	for icam, m := range p.Models {
		coreBase, distBase := l.IntrinsicsColumnOffsets(icam, m)
		scales := state.IntrinsicsScales(m)
		intr := p.Intrinsics[icam]
		if coreBase >= 0 {
			for i := 0; i < 4; i++ {
				packed[coreBase+i] = state.PackValue(intr[i], scales[i])
			}
		}
		if distBase >= 0 {
			for i := 4; i < len(intr); i++ {
				packed[distBase+i-4] = state.PackValue(intr[i], scales[i])
			}
		}
	}

	packPose := func(base int, pose [2][3]float64, isFrame bool) {
		if base < 0 {
			return
		}
		s := state.PoseScales(isFrame)
		for i := 0; i < 3; i++ {
			packed[base+i] = state.PackValue(pose[0][i], s[i])
			packed[base+3+i] = state.PackValue(pose[1][i], s[3+i])
		}
	}
	for icamExtr := 0; icamExtr < l.NcamerasExtrin; icamExtr++ {
		pose := p.CamExtrinsics[icamExtr]
		packPose(l.StateIndexExtrinsics(icamExtr), [2][3]float64{pose.R, pose.T}, false)
	}
	for iframe := 0; iframe < l.Nframes; iframe++ {
		pose := p.Frames[iframe]
		packPose(l.StateIndexFrame(iframe), [2][3]float64{pose.R, pose.T}, true)
	}

	for ivar := 0; ivar < l.NpointsVar; ivar++ {
		off := l.StateIndexPoint(ivar)
		if off < 0 {
			continue
		}
		pt := p.Points[ivar]
		for i := 0; i < 3; i++ {
			packed[off+i] = state.PackValue(pt[i], state.ScalePointPosition)
		}
	}

	if off := l.StateIndexCalobjectWarp(); off >= 0 {
		packed[off] = state.PackValue(p.Warp[0], state.ScaleCalobjectWarp)
		packed[off+1] = state.PackValue(p.Warp[1], state.ScaleCalobjectWarp)
	}

	return packed
}

// Unpack writes a solved packed state back into p's semantic fields in
// place.
func Unpack(p *assembly.Problem, l *state.Layout, packed []float64) {
	for icam, m := range p.Models {
		coreBase, distBase := l.IntrinsicsColumnOffsets(icam, m)
		scales := state.IntrinsicsScales(m)
		if coreBase >= 0 {
			for i := 0; i < 4; i++ {
				p.Intrinsics[icam][i] = state.UnpackValue(packed[coreBase+i], scales[i])
			}
		}
		if distBase >= 0 {
			for i := 4; i < len(p.Intrinsics[icam]); i++ {
				p.Intrinsics[icam][i] = state.UnpackValue(packed[distBase+i-4], scales[i])
			}
		}
	}

	for icamExtr := 0; icamExtr < l.NcamerasExtrin; icamExtr++ {
		off := l.StateIndexExtrinsics(icamExtr)
		if off < 0 {
			continue
		}
		s := state.PoseScales(false)
		for i := 0; i < 3; i++ {
			p.CamExtrinsics[icamExtr].R[i] = state.UnpackValue(packed[off+i], s[i])
			p.CamExtrinsics[icamExtr].T[i] = state.UnpackValue(packed[off+3+i], s[3+i])
		}
	}

	for iframe := 0; iframe < l.Nframes; iframe++ {
		off := l.StateIndexFrame(iframe)
		if off < 0 {
			continue
		}
		s := state.PoseScales(true)
		for i := 0; i < 3; i++ {
			p.Frames[iframe].R[i] = state.UnpackValue(packed[off+i], s[i])
			p.Frames[iframe].T[i] = state.UnpackValue(packed[off+3+i], s[3+i])
		}
	}

	for ivar := 0; ivar < l.NpointsVar; ivar++ {
		off := l.StateIndexPoint(ivar)
		if off < 0 {
			continue
		}
		for i := 0; i < 3; i++ {
			p.Points[ivar][i] = state.UnpackValue(packed[off+i], state.ScalePointPosition)
		}
	}

	if off := l.StateIndexCalobjectWarp(); off >= 0 {
		p.Warp[0] = state.UnpackValue(packed[off], state.ScaleCalobjectWarp)
		p.Warp[1] = state.UnpackValue(packed[off+1], state.ScaleCalobjectWarp)
	}
}
