// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package measurement implements the order and count of residuals: board
// observations first, then point observations, then regularization.
package measurement

import (
	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/state"
)

// BoardObs identifies one calibration-board snapshot: which camera
// intrinsics and extrinsics apply, and which frame pose. icam_extrinsics
// == -1 designates the reference camera.
type BoardObs struct {
	ICamIntrinsics int
	ICamExtrinsics int
	IFrame         int
}

// PointObs identifies one discrete-point observation.
type PointObs struct {
	ICamIntrinsics int
	ICamExtrinsics int
	IPoint         int
}

// Pixel is one (px,py,weight) entry from the shared observation pool.
// Weight < 0 means "outlier; ignore".
type Pixel struct {
	Px, Py, Weight float64
}

// IsOutlier reports whether this pixel has been marked an outlier.
func (p Pixel) IsOutlier() bool { return p.Weight < 0 }

// MarkOutlier negates the weight in place; the sign carries the outlier
// flag so a single scan of the pool suffices.
func (p *Pixel) MarkOutlier() {
	if p.Weight > 0 {
		p.Weight = -p.Weight
	}
}

// NumBoardMeasurements returns the measurement count contributed by board
// observations: two residuals (x,y) per board cell per observation.
func NumBoardMeasurements(nObservations, width, height int) int {
	return nObservations * width * height * 2
}

// NumPointMeasurements returns the measurement count contributed by point
// observations: two pixel residuals plus one range-penalty residual each.
func NumPointMeasurements(nObservations int) int {
	return nObservations * 3
}

// RegularizationConfig selects which camera blocks emit regularization
// terms, mirroring which state blocks are being optimized:
// regularization only touches parameters that are actually free.
type RegularizationConfig struct {
	OptimizeCore        bool
	OptimizeDistortions bool
}

// NumRegularizationMeasurements returns the per-camera regularization term
// count for one lens model: two center-pixel terms if the core is being
// optimized, plus one term per distortion coefficient (two per control
// point for splined models: radial + tangential), if distortions are
// being optimized.
func NumRegularizationMeasurements(m lensmodel.Model, cfg RegularizationConfig) int {
	n := 0
	if cfg.OptimizeCore && m.Meta().HasCore {
		n += 2
	}
	if cfg.OptimizeDistortions {
		if m.Family == lensmodel.SplinedStereographic {
			n += 2 * m.Config.Nx * m.Config.Ny
		} else {
			n += m.NumParams() - 4
		}
	}
	return n
}

// NumRegularizationMeasurementsAll sums NumRegularizationMeasurements over
// every camera's model.
func NumRegularizationMeasurementsAll(models []lensmodel.Model, cfg RegularizationConfig) int {
	n := 0
	for _, m := range models {
		n += NumRegularizationMeasurements(m, cfg)
	}
	return n
}

// RegularizationConfigFromOptions projects a state.Options down to the
// fields NumRegularizationMeasurements needs.
func RegularizationConfigFromOptions(o state.Options) RegularizationConfig {
	return RegularizationConfig{
		OptimizeCore:        o.OptimizeIntrinsicsCore,
		OptimizeDistortions: o.OptimizeIntrinsicsDistortions,
	}
}
