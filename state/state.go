// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package state implements the bijection between the packed, dimensionless
// optimizer state vector and the semantic calibration parameters (camera
// intrinsics, camera/frame poses, variable points, calibration-object
// warp). Every block is independently toggled by
// Options; state_index_X/num_states_X are exposed as Layout methods.
package state

import (
	"math"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
)

// Fixed packing scales. These constants are a frozen
// interface with the trust-region solver: changing any of them changes the
// solver's trajectory and must never be done casually.
const (
	ScaleFocalLength       = 500.0
	ScaleCenterPixel       = 20.0
	ScaleCameraRotation    = 0.1 * math.Pi / 180
	ScaleCameraTranslation = 1.0
	ScaleFrameRotation     = 15.0 * math.Pi / 180
	ScaleFrameTranslation  = 1.0
	ScalePointPosition     = 1.0
	ScaleCalobjectWarp     = 0.01
	ScaleDistortion        = 1.0
)

// Options toggles each independently-optimizable state block.
type Options struct {
	OptimizeIntrinsicsCore        bool
	OptimizeIntrinsicsDistortions bool
	OptimizeExtrinsics            bool
	OptimizeFrames                bool
	OptimizeCalobjectWarp         bool
}

// Layout describes one problem's state-vector shape: how many cameras,
// frames and points there are, which lens model each camera uses, and
// which blocks Options selects. It is immutable once built by NewLayout.
type Layout struct {
	Models         []lensmodel.Model // one per intrinsics camera, NcamerasIntrinsics long
	NcamerasExtrin int               // number of non-reference cameras carrying extrinsics
	Nframes        int
	NpointsVar     int // number of variable (non-fixed) points
	Opts           Options

	intrinOffset []int // per-camera starting offset, or -1
	intrinSize   []int // per-camera block size
	extrinBase   int
	frameBase    int
	pointBase    int
	warpBase     int
	total        int
}

// NewLayout precomputes every block offset so later queries are O(1).
func NewLayout(models []lensmodel.Model, ncamerasExtrinsics, nframes, npointsVar int, opts Options) *Layout {
	l := &Layout{
		Models:         models,
		NcamerasExtrin: ncamerasExtrinsics,
		Nframes:        nframes,
		NpointsVar:     npointsVar,
		Opts:           opts,
	}
	l.intrinOffset = make([]int, len(models))
	l.intrinSize = make([]int, len(models))
	cursor := 0
	for i, m := range models {
		sz := 0
		if opts.OptimizeIntrinsicsCore && m.Meta().HasCore {
			sz += 4
		}
		if opts.OptimizeIntrinsicsDistortions {
			sz += m.NumParams() - numCore(m)
		}
		l.intrinSize[i] = sz
		if sz == 0 {
			l.intrinOffset[i] = -1
			continue
		}
		l.intrinOffset[i] = cursor
		cursor += sz
	}

	l.extrinBase = cursor
	if opts.OptimizeExtrinsics {
		cursor += 6 * ncamerasExtrinsics
	}

	l.frameBase = cursor
	if opts.OptimizeFrames {
		cursor += 6 * nframes
	}

	l.pointBase = cursor
	if opts.OptimizeFrames {
		cursor += 3 * npointsVar
	}

	l.warpBase = cursor
	if opts.OptimizeCalobjectWarp {
		cursor += 2
	}

	l.total = cursor
	return l
}

func numCore(m lensmodel.Model) int {
	if m.Meta().HasCore {
		return 4
	}
	return 0
}

// NumStates returns the total packed-state dimension.
func (l *Layout) NumStates() int { return l.total }

// NumStatesIntrinsics returns the block size for camera icam's intrinsics.
func (l *Layout) NumStatesIntrinsics(icam int) int {
	l.checkCamIntrinsics(icam)
	return l.intrinSize[icam]
}

// StateIndexIntrinsics returns the offset of camera icam's intrinsics
// block, or -1 if neither core nor distortions are being optimized for it.
func (l *Layout) StateIndexIntrinsics(icam int) int {
	l.checkCamIntrinsics(icam)
	return l.intrinOffset[icam]
}

// NumStatesExtrinsics returns the total size of the extrinsics block.
func (l *Layout) NumStatesExtrinsics() int {
	if !l.Opts.OptimizeExtrinsics {
		return 0
	}
	return 6 * l.NcamerasExtrin
}

// StateIndexExtrinsics returns the offset of camera icamExtrinsics's
// 6-vector, or -1 if extrinsics are not being optimized or icamExtrinsics
// is -1 (the reference camera, which carries no extrinsic state).
func (l *Layout) StateIndexExtrinsics(icamExtrinsics int) int {
	if !l.Opts.OptimizeExtrinsics || icamExtrinsics < 0 {
		return -1
	}
	if icamExtrinsics >= l.NcamerasExtrin {
		chk.Panic("state: StateIndexExtrinsics: icamExtrinsics=%d out of range [0,%d)", icamExtrinsics, l.NcamerasExtrin)
	}
	return l.extrinBase + 6*icamExtrinsics
}

// NumStatesFrames returns the total size of the frame-pose block.
func (l *Layout) NumStatesFrames() int {
	if !l.Opts.OptimizeFrames {
		return 0
	}
	return 6 * l.Nframes
}

// StateIndexFrame returns the offset of frame iframe's 6-vector, or -1 if
// frames are not being optimized.
func (l *Layout) StateIndexFrame(iframe int) int {
	if !l.Opts.OptimizeFrames {
		return -1
	}
	if iframe < 0 || iframe >= l.Nframes {
		chk.Panic("state: StateIndexFrame: iframe=%d out of range [0,%d)", iframe, l.Nframes)
	}
	return l.frameBase + 6*iframe
}

// NumStatesPoints returns the total size of the variable-point block.
// Variable points are toggled together with the frame poses.
func (l *Layout) NumStatesPoints() int {
	if !l.Opts.OptimizeFrames {
		return 0
	}
	return 3 * l.NpointsVar
}

// StateIndexPoint returns the offset of variable point ipointVar's
// 3-vector, or -1 if frames/points are not being optimized.
func (l *Layout) StateIndexPoint(ipointVar int) int {
	if !l.Opts.OptimizeFrames {
		return -1
	}
	if ipointVar < 0 || ipointVar >= l.NpointsVar {
		chk.Panic("state: StateIndexPoint: ipointVar=%d out of range [0,%d)", ipointVar, l.NpointsVar)
	}
	return l.pointBase + 3*ipointVar
}

// NumStatesCalobjectWarp returns 2 if the warp is being optimized, else 0.
func (l *Layout) NumStatesCalobjectWarp() int {
	if !l.Opts.OptimizeCalobjectWarp {
		return 0
	}
	return 2
}

// StateIndexCalobjectWarp returns the offset of the warp 2-vector, or -1.
func (l *Layout) StateIndexCalobjectWarp() int {
	if !l.Opts.OptimizeCalobjectWarp {
		return -1
	}
	return l.warpBase
}

// IntrinsicsColumnOffsets returns the starting column of camera icam's
// core block and distortion block within the packed state, or -1 for
// whichever block is not being optimized. Used by the assembly callback
// to place the implicit core-gradient columns and the distortion columns
// (dense or sparse) at the right offsets.
func (l *Layout) IntrinsicsColumnOffsets(icam int, m lensmodel.Model) (coreBase, distBase int) {
	base := l.StateIndexIntrinsics(icam)
	coreBase, distBase = -1, -1
	if base < 0 {
		return
	}
	offset := base
	if l.Opts.OptimizeIntrinsicsCore && m.Meta().HasCore {
		coreBase = offset
		offset += 4
	}
	if l.Opts.OptimizeIntrinsicsDistortions {
		distBase = offset
	}
	return
}

func (l *Layout) checkCamIntrinsics(icam int) {
	if icam < 0 || icam >= len(l.Models) {
		chk.Panic("state: icam=%d out of range [0,%d)", icam, len(l.Models))
	}
}

// IntrinsicsScales returns the per-parameter scale vector for model m's
// full intrinsics vector (core, when present, then distortion, all at
// ScaleDistortion=1).
func IntrinsicsScales(m lensmodel.Model) []float64 {
	n := m.NumParams()
	s := make([]float64, n)
	i := 0
	if m.Meta().HasCore {
		s[0], s[1], s[2], s[3] = ScaleFocalLength, ScaleFocalLength, ScaleCenterPixel, ScaleCenterPixel
		i = 4
	}
	for ; i < n; i++ {
		s[i] = ScaleDistortion
	}
	return s
}

// PoseScales returns the 6-vector scale for either a camera extrinsic pose
// or a frame pose -- they differ only in the rotation-component scale.
func PoseScales(isFrame bool) [6]float64 {
	if isFrame {
		return [6]float64{ScaleFrameRotation, ScaleFrameRotation, ScaleFrameRotation, ScaleFrameTranslation, ScaleFrameTranslation, ScaleFrameTranslation}
	}
	return [6]float64{ScaleCameraRotation, ScaleCameraRotation, ScaleCameraRotation, ScaleCameraTranslation, ScaleCameraTranslation, ScaleCameraTranslation}
}

// PackValue divides a semantic value by its scale; UnpackValue multiplies
// it back. Packing makes the state dimensionless and O(1) for the solver.
func PackValue(v, scale float64) float64   { return v / scale }
func UnpackValue(v, scale float64) float64 { return v * scale }
