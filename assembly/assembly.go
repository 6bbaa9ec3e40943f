// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package assembly implements the single residual+Jacobian callback
// invoked by the solver driver: given a packed
// state vector, produce the residual vector and the sparse Jacobian
// transpose in compressed-column form.
//
// Jacobian storage. The callback needs Jᵀ in compressed-column form
// (Jrowptr, columnindex, values), which is exactly J in compressed-row
// form. Measurement rows are emitted strictly in order, and within each
// row the state columns are emitted in increasing order (the state
// layout places intrinsics before extrinsics before frames before points
// before warp, and each block is walked front to back), so the writer
// below builds the three arrays directly with a running cursor -- no
// triplet accumulation and no sort pass, unlike gofem's global stiffness
// assembly where elements Put in arbitrary order and the grouping
// happens in la.Triplet.ToMatrix.
package assembly

import (
	"math"

	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/measurement"
	"github.com/cpmech/camcal/project"
	"github.com/cpmech/camcal/rigid"
	"github.com/cpmech/camcal/state"
)

// Problem carries every caller-owned input the callback needs: the
// current (seed, or most recently solved) semantic parameters, and the
// observation data. Intrinsics, CamExtrinsics, Frames and Points are read
// at their non-optimized indices and overlaid with packedState at their
// optimized indices, per measurement.
type Problem struct {
	Models        []lensmodel.Model // one per intrinsics camera
	Intrinsics    [][]float64       // current values, one slice per camera
	CamExtrinsics []rigid.Pose      // one per non-reference camera
	Frames        []rigid.Pose
	Points        [][3]float64 // variable points first, then NpointsFixed fixed points
	NpointsFixed  int
	Warp          [2]float64

	Width, Height int     // board grid dimensions
	BoardSpacing  float64 // board cell spacing

	// ImagerSizes is the (width,height) in pixels of each intrinsics
	// camera's imager; the center-pixel regularization pulls (cx,cy)
	// toward ((W-1)/2, (H-1)/2) of the corresponding entry. Required
	// whenever ApplyRegularization is set and the core is optimized.
	ImagerSizes [][2]int

	BoardObservations []measurement.BoardObs
	BoardPixels       []measurement.Pixel // length len(BoardObservations)*Width*Height

	PointObservations []measurement.PointObs
	PointPixels       []measurement.Pixel // length len(PointObservations)

	PointMinRange, PointMaxRange float64

	ApplyRegularization bool
}

// Dims is the set of sizes the layout and the callback must agree on.
type Dims struct {
	Nstate        int
	Nmeasurements int
	NnzMax        int
}

// ComputeDims derives Nstate/Nmeasurements/NnzMax from the problem and
// layout. The assembly below must land on exactly these numbers.
func ComputeDims(p *Problem, l *state.Layout) Dims {
	nBoard := measurement.NumBoardMeasurements(len(p.BoardObservations), p.Width, p.Height)
	nPoint := measurement.NumPointMeasurements(len(p.PointObservations))
	nReg := 0
	if p.ApplyRegularization {
		nReg = measurement.NumRegularizationMeasurementsAll(p.Models, measurement.RegularizationConfigFromOptions(l.Opts))
	}
	nnz := 0
	for _, obs := range p.BoardObservations {
		nnz += p.Width * p.Height * 2 * nnzPerBoardRow(p, l, obs)
	}
	for _, obs := range p.PointObservations {
		nnz += nnzPerPointObs(p, l, obs)
	}
	if p.ApplyRegularization {
		nnz += nnzRegularization(p, l)
	}
	return Dims{
		Nstate:        l.NumStates(),
		Nmeasurements: nBoard + nPoint + nReg,
		NnzMax:        nnz,
	}
}

// nnzPerBoardRow is the nonzero count of one x-or-y pixel residual row of
// a board observation: the intrinsics columns plus a full 6-vector for
// the camera pose (non-reference cameras only), a full 6-vector for the
// frame pose, and the 2 warp columns.
func nnzPerBoardRow(p *Problem, l *state.Layout, obs measurement.BoardObs) int {
	m := p.Models[obs.ICamIntrinsics]
	n := nnzIntrinsicsPerRow(m, l)
	if l.Opts.OptimizeExtrinsics && obs.ICamExtrinsics >= 0 {
		n += 6
	}
	if l.Opts.OptimizeFrames {
		n += 6
	}
	if l.Opts.OptimizeCalobjectWarp {
		n += 2
	}
	return n
}

func nnzPerPointObs(p *Problem, l *state.Layout, obs measurement.PointObs) int {
	m := p.Models[obs.ICamIntrinsics]
	perPixelRow := nnzIntrinsicsPerRow(m, l)
	if l.Opts.OptimizeExtrinsics && obs.ICamExtrinsics >= 0 {
		perPixelRow += 6
	}
	variable := obs.IPoint < len(p.Points)-p.NpointsFixed
	if l.Opts.OptimizeFrames && variable {
		perPixelRow += 3
	}
	rangeRow := 0
	if l.Opts.OptimizeExtrinsics && obs.ICamExtrinsics >= 0 {
		rangeRow += 6
	}
	if l.Opts.OptimizeFrames && variable {
		rangeRow += 3
	}
	return 2*perPixelRow + rangeRow
}

// nnzIntrinsicsPerRow is the per-(x or y)-residual nonzero count from
// intrinsics: 2 core columns (one of fx/fy and one of cx/cy: only one of
// each pair is nonzero per row) plus the distortion columns:
// (order+1)^2 for splined, Nintrinsics-4 for dense.
func nnzIntrinsicsPerRow(m lensmodel.Model, l *state.Layout) int {
	n := 0
	if l.Opts.OptimizeIntrinsicsCore && m.Meta().HasCore {
		n += 2 // fx-or-fy, cx-or-cy
	}
	if l.Opts.OptimizeIntrinsicsDistortions {
		if m.Family == lensmodel.SplinedStereographic {
			n += (m.Config.Order + 1) * (m.Config.Order + 1)
		} else {
			n += m.NumParams() - 4
		}
	}
	return n
}

func nnzRegularization(p *Problem, l *state.Layout) int {
	n := 0
	for icam, m := range p.Models {
		coreBase, distBase := l.IntrinsicsColumnOffsets(icam, m)
		if distBase >= 0 {
			if m.Family == lensmodel.SplinedStereographic {
				n += 2 * 2 * m.Config.Nx * m.Config.Ny // radial + tangential, 2 columns each
			} else {
				n += m.NumParams() - 4
			}
		}
		if coreBase >= 0 {
			n += 2
		}
	}
	return n
}

// Jacobian holds Jᵀ in compressed-column form:
// Rowptr[k] is the cumulative nonzero count at the start of measurement
// row k, Rowptr[Nmeasurements] the total; Colidx holds packed-state
// column indices and Values the entries, weight and packing scale
// included.
type Jacobian struct {
	Rowptr []int
	Colidx []int
	Values []float64
}

// Nnz returns the total nonzero count.
func (j *Jacobian) Nnz() int { return len(j.Colidx) }

// jacWriter builds a Jacobian row by row. put may only be called with
// nondecreasing measurement rows; the assemble functions below guarantee
// this by construction, and emit columns within a row in increasing
// order.
type jacWriter struct {
	want bool
	jac  Jacobian
	cur  int
}

func newJacWriter(nMeasurements, nnzMax int, want bool) *jacWriter {
	if !want {
		return &jacWriter{}
	}
	return &jacWriter{
		want: true,
		jac: Jacobian{
			Rowptr: make([]int, nMeasurements+1),
			Colidx: make([]int, 0, nnzMax),
			Values: make([]float64, 0, nnzMax),
		},
	}
}

func (w *jacWriter) put(stateIdx, measurementRow int, value float64) {
	if !w.want || stateIdx < 0 {
		return
	}
	if measurementRow < w.cur {
		chk.Panic("assembly: jacWriter: row %d emitted after row %d", measurementRow, w.cur)
	}
	for w.cur < measurementRow {
		w.cur++
		w.jac.Rowptr[w.cur] = len(w.jac.Colidx)
	}
	w.jac.Colidx = append(w.jac.Colidx, stateIdx)
	w.jac.Values = append(w.jac.Values, value)
}

// finish fills Rowptr for any trailing empty rows and returns the built
// Jacobian.
func (w *jacWriter) finish(nMeasurements int) *Jacobian {
	if !w.want {
		return nil
	}
	for w.cur < nMeasurements {
		w.cur++
		w.jac.Rowptr[w.cur] = len(w.jac.Colidx)
	}
	return &w.jac
}

// Callback computes the residual vector and (if wantJacobian) the sparse
// Jacobian transpose for packedState.
func Callback(p *Problem, l *state.Layout, packedState []float64, wantJacobian bool) (residual []float64, jt *Jacobian, err error) {
	dims := ComputeDims(p, l)
	if len(packedState) != dims.Nstate {
		return nil, nil, chk.Err("assembly: Callback: packed state has %d entries, want %d", len(packedState), dims.Nstate)
	}

	residual = make([]float64, dims.Nmeasurements)
	w := newJacWriter(dims.Nmeasurements, dims.NnzMax, wantJacobian)

	row := 0
	for iobs, obs := range p.BoardObservations {
		row, err = assembleBoard(p, l, packedState, w, residual, row, iobs, obs)
		if err != nil {
			return nil, nil, err
		}
	}
	for iobs, obs := range p.PointObservations {
		row, err = assemblePoint(p, l, packedState, w, residual, row, iobs, obs)
		if err != nil {
			return nil, nil, err
		}
	}
	if p.ApplyRegularization {
		row = assembleRegularization(p, l, packedState, w, residual, row)
	}

	if row != dims.Nmeasurements {
		chk.Panic("assembly: Callback: emitted %d measurements, declared %d", row, dims.Nmeasurements)
	}
	if wantJacobian {
		jt = w.finish(dims.Nmeasurements)
		if jt.Nnz() != dims.NnzMax {
			chk.Panic("assembly: Callback: emitted %d nonzeros, declared %d", jt.Nnz(), dims.NnzMax)
		}
	}
	return residual, jt, nil
}

func currentIntrinsics(p *Problem, l *state.Layout, icam int, packed []float64) []float64 {
	m := p.Models[icam]
	out := append([]float64(nil), p.Intrinsics[icam]...)
	coreBase, distBase := l.IntrinsicsColumnOffsets(icam, m)
	scales := state.IntrinsicsScales(m)
	if coreBase >= 0 {
		for i := 0; i < 4; i++ {
			out[i] = state.UnpackValue(packed[coreBase+i], scales[i])
		}
	}
	if distBase >= 0 {
		for i := 4; i < len(out); i++ {
			out[i] = state.UnpackValue(packed[distBase+i-4], scales[i])
		}
	}
	return out
}

func currentPose(base rigid.Pose, offset int, packed []float64, isFrame bool) rigid.Pose {
	if offset < 0 {
		return base
	}
	s := state.PoseScales(isFrame)
	var out rigid.Pose
	for i := 0; i < 3; i++ {
		out.R[i] = state.UnpackValue(packed[offset+i], s[i])
		out.T[i] = state.UnpackValue(packed[offset+3+i], s[3+i])
	}
	return out
}

func currentPoint(base [3]float64, offset int, packed []float64) [3]float64 {
	if offset < 0 {
		return base
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = state.UnpackValue(packed[offset+i], state.ScalePointPosition)
	}
	return out
}

func currentWarp(base [2]float64, offset int, packed []float64) [2]float64 {
	if offset < 0 {
		return base
	}
	return [2]float64{
		state.UnpackValue(packed[offset], state.ScaleCalobjectWarp),
		state.UnpackValue(packed[offset+1], state.ScaleCalobjectWarp),
	}
}

// emitIntrinsicsJacobian writes the implicit core columns and the
// dense-or-sparse distortion columns for one pixel-residual row.
func emitIntrinsicsJacobian(w *jacWriter, l *state.Layout, icam int, m lensmodel.Model, intrinsics []float64, res project.Result, comp int, measurementRow int, weight float64) {
	coreBase, distBase := l.IntrinsicsColumnOffsets(icam, m)
	scales := state.IntrinsicsScales(m)
	fx, fy, cx, cy := intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3]
	if coreBase >= 0 {
		if comp == 0 {
			w.put(coreBase+0, measurementRow, weight*scales[0]*(res.Q[0]-cx)/fx)
			w.put(coreBase+2, measurementRow, weight*scales[2]*1)
		} else {
			w.put(coreBase+1, measurementRow, weight*scales[1]*(res.Q[1]-cy)/fy)
			w.put(coreBase+3, measurementRow, weight*scales[3]*1)
		}
	}
	if distBase < 0 {
		return
	}
	if res.Sparse != nil {
		sp := res.Sparse
		nx := m.Config.Nx
		for dy := 0; dy <= m.Config.Order; dy++ {
			gy := sp.Iy0 + dy
			for dx := 0; dx <= m.Config.Order; dx++ {
				gx := sp.Ix0 + dx
				basis := sp.BasisU[dx] * sp.BasisV[dy]
				colBase := distBase + 2*(gy*nx+gx)
				if comp == 0 {
					w.put(colBase, measurementRow, weight*scales[4]*fx*basis)
				} else {
					w.put(colBase+1, measurementRow, weight*scales[4]*fy*basis)
				}
			}
		}
		return
	}
	for i, d := range res.DqDDistortion {
		w.put(distBase+i, measurementRow, weight*scales[4+i]*d[comp])
	}
}

func assembleBoard(p *Problem, l *state.Layout, packed []float64, w *jacWriter, residual []float64, row int, iobs int, obs measurement.BoardObs) (int, error) {
	m := p.Models[obs.ICamIntrinsics]
	intrinsics := currentIntrinsics(p, l, obs.ICamIntrinsics, packed)

	atIdentity := obs.ICamExtrinsics < 0
	var camPose rigid.Pose
	extrinOffset := -1
	if !atIdentity {
		camPose = currentPose(p.CamExtrinsics[obs.ICamExtrinsics], l.StateIndexExtrinsics(obs.ICamExtrinsics), packed, false)
		extrinOffset = l.StateIndexExtrinsics(obs.ICamExtrinsics)
	}
	framePose := currentPose(p.Frames[obs.IFrame], l.StateIndexFrame(obs.IFrame), packed, true)
	frameOffset := l.StateIndexFrame(obs.IFrame)
	warp := currentWarp(p.Warp, l.StateIndexCalobjectWarp(), packed)
	warpOffset := l.StateIndexCalobjectWarp()

	joint := rigid.Compose(camPose, framePose, atIdentity)

	poolBase := iobs * p.Width * p.Height

	for r := 0; r < p.Height; r++ {
		for c := 0; c < p.Width; c++ {
			pixel := p.BoardPixels[poolBase+r*p.Width+c]
			bp := measurement.BoardPoint(c, r, p.Width, p.Height, p.BoardSpacing, warp)
			camPoint, dOut_dRj := joint.Pose.TransformPoint(bp)

			outlier := pixel.IsOutlier()
			weight := pixel.Weight
			if outlier {
				weight = 0
			}

			res, perr := project.Project(m, camPoint, intrinsics, true)
			if perr != nil {
				return row, perr
			}

			residual[row] = weight * (res.Q[0] - pixel.Px)
			residual[row+1] = weight * (res.Q[1] - pixel.Py)

			for comp := 0; comp < 2; comp++ {
				mr := row + comp
				if outlier {
					// structural zeros: same sparsity, zero value.
					emitIntrinsicsJacobian(w, l, obs.ICamIntrinsics, m, intrinsics, res, comp, mr, 0)
					if extrinOffset >= 0 {
						w.put(extrinOffset, mr, 0)
						w.put(extrinOffset+1, mr, 0)
						w.put(extrinOffset+2, mr, 0)
						w.put(extrinOffset+3, mr, 0)
						w.put(extrinOffset+4, mr, 0)
						w.put(extrinOffset+5, mr, 0)
					}
					if frameOffset >= 0 {
						w.put(frameOffset, mr, 0)
						w.put(frameOffset+1, mr, 0)
						w.put(frameOffset+2, mr, 0)
						w.put(frameOffset+3, mr, 0)
						w.put(frameOffset+4, mr, 0)
						w.put(frameOffset+5, mr, 0)
					}
					if warpOffset >= 0 {
						w.put(warpOffset, mr, 0)
						w.put(warpOffset+1, mr, 0)
					}
					continue
				}

				emitIntrinsicsJacobian(w, l, obs.ICamIntrinsics, m, intrinsics, res, comp, mr, weight)

				// d(out)/d(rj) chained through res.DqDv (2x3) * dOut_dRj (3x3).
				var dq_drj [3]float64
				for k := 0; k < 3; k++ {
					var s float64
					for n := 0; n < 3; n++ {
						s += res.DqDv[comp][n] * dOut_dRj[3*n+k]
					}
					dq_drj[k] = s
				}
				dq_dtj := res.DqDv[comp] // d(out)/d(tj) is identity, so d(q)/d(tj) = d(q)/d(out)

				if extrinOffset >= 0 {
					for k := 0; k < 3; k++ {
						var drc float64
						for n := 0; n < 3; n++ {
							drc += dq_drj[n] * joint.DRj_DRc[3*n+k]
						}
						for n := 0; n < 3; n++ {
							drc += dq_dtj[n] * joint.DTj_DRc[n][k]
						}
						w.put(extrinOffset+k, mr, weight*state.ScaleCameraRotation*drc)
					}
					for k := 0; k < 3; k++ {
						w.put(extrinOffset+3+k, mr, weight*state.ScaleCameraTranslation*dq_dtj[k])
					}
				}
				if frameOffset >= 0 {
					for k := 0; k < 3; k++ {
						var drf float64
						for n := 0; n < 3; n++ {
							drf += dq_drj[n] * joint.DRj_DRf[3*n+k]
						}
						w.put(frameOffset+k, mr, weight*state.ScaleFrameRotation*drf)
					}
					for k := 0; k < 3; k++ {
						var dtf float64
						for n := 0; n < 3; n++ {
							dtf += dq_dtj[n] * joint.DTj_DTf[3*n+k]
						}
						w.put(frameOffset+3+k, mr, weight*state.ScaleFrameTranslation*dtf)
					}
				}
				if warpOffset >= 0 {
					// Δz is linear in the two warp amplitudes.
					xr := float64(c) / float64(p.Width-1)
					yr := float64(r) / float64(p.Height-1)
					dDzDwx := 4 * xr * (1 - xr)
					dDzDwy := 4 * yr * (1 - yr)
					// out = Rj*boardPoint + tj, so d(out)/d(boardPoint.z) is
					// Rj's third column; chain through dq_dtj (= dq/d(out)).
					Rj, _ := rigid.RFromR(joint.Pose.R)
					dqDDz := dq_dtj[0]*Rj[2] + dq_dtj[1]*Rj[5] + dq_dtj[2]*Rj[8]
					w.put(warpOffset, mr, weight*state.ScaleCalobjectWarp*dqDDz*dDzDwx)
					w.put(warpOffset+1, mr, weight*state.ScaleCalobjectWarp*dqDDz*dDzDwy)
				}
			}
			row += 2
		}
	}
	return row, nil
}

func assemblePoint(p *Problem, l *state.Layout, packed []float64, w *jacWriter, residual []float64, row int, iobs int, obs measurement.PointObs) (int, error) {
	m := p.Models[obs.ICamIntrinsics]
	intrinsics := currentIntrinsics(p, l, obs.ICamIntrinsics, packed)

	atIdentity := obs.ICamExtrinsics < 0
	var camPose rigid.Pose
	extrinOffset := -1
	if !atIdentity {
		camPose = currentPose(p.CamExtrinsics[obs.ICamExtrinsics], l.StateIndexExtrinsics(obs.ICamExtrinsics), packed, false)
		extrinOffset = l.StateIndexExtrinsics(obs.ICamExtrinsics)
	}

	nvar := len(p.Points) - p.NpointsFixed
	variable := obs.IPoint < nvar
	var pointOffset int = -1
	if variable {
		pointOffset = l.StateIndexPoint(obs.IPoint)
	}
	pt := currentPoint(p.Points[obs.IPoint], pointOffset, packed)

	var camPoint [3]float64
	var dOut_dRj rigid.Mat3
	if atIdentity {
		camPoint = pt
		dOut_dRj = rigid.Mat3{}
	} else {
		camPoint, dOut_dRj = rigid.Pose{R: camPose.R}.TransformPoint(pt)
		camPoint[0] += camPose.T[0]
		camPoint[1] += camPose.T[1]
		camPoint[2] += camPose.T[2]
	}

	pixel := p.PointPixels[iobs]
	outlier := pixel.IsOutlier()
	weight := pixel.Weight
	if outlier {
		weight = 0
	}

	res, err := project.Project(m, camPoint, intrinsics, true)
	if err != nil {
		return row, err
	}
	residual[row] = weight * (res.Q[0] - pixel.Px)
	residual[row+1] = weight * (res.Q[1] - pixel.Py)

	for comp := 0; comp < 2; comp++ {
		mr := row + comp
		if outlier {
			emitIntrinsicsJacobian(w, l, obs.ICamIntrinsics, m, intrinsics, res, comp, mr, 0)
			if extrinOffset >= 0 {
				for k := 0; k < 6; k++ {
					w.put(extrinOffset+k, mr, 0)
				}
			}
			if pointOffset >= 0 {
				for k := 0; k < 3; k++ {
					w.put(pointOffset+k, mr, 0)
				}
			}
			continue
		}
		emitIntrinsicsJacobian(w, l, obs.ICamIntrinsics, m, intrinsics, res, comp, mr, weight)
		if extrinOffset >= 0 {
			var dq_drj [3]float64
			for k := 0; k < 3; k++ {
				var s float64
				for n := 0; n < 3; n++ {
					s += res.DqDv[comp][n] * dOut_dRj[3*n+k]
				}
				dq_drj[k] = s
			}
			for k := 0; k < 3; k++ {
				w.put(extrinOffset+k, mr, weight*state.ScaleCameraRotation*dq_drj[k])
			}
			for k := 0; k < 3; k++ {
				w.put(extrinOffset+3+k, mr, weight*state.ScaleCameraTranslation*res.DqDv[comp][k])
			}
		}
		if pointOffset >= 0 {
			var Rc rigid.Mat3
			if atIdentity {
				Rc = rigid.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
			} else {
				Rc, _ = rigid.RFromR(camPose.R)
			}
			for k := 0; k < 3; k++ {
				var s float64
				for n := 0; n < 3; n++ {
					s += res.DqDv[comp][n] * Rc[3*n+k]
				}
				w.put(pointOffset+k, mr, weight*state.ScalePointPosition*s)
			}
		}
	}

	d2 := camPoint[0]*camPoint[0] + camPoint[1]*camPoint[1] + camPoint[2]*camPoint[2]
	d2sign := 1.0
	if !m.Meta().CanProjectBehind && camPoint[2] < 0 {
		d2 = -d2
		d2sign = -1
	}
	rangeRow := row + 2
	var penalty, dPenaltyDd2 float64
	switch {
	case d2 > p.PointMaxRange*p.PointMaxRange:
		penalty = weight * (d2/(p.PointMaxRange*p.PointMaxRange) - 1)
		dPenaltyDd2 = weight / (p.PointMaxRange * p.PointMaxRange)
	case d2 < p.PointMinRange*p.PointMinRange:
		penalty = weight * (1 - d2/(p.PointMinRange*p.PointMinRange))
		dPenaltyDd2 = -weight / (p.PointMinRange * p.PointMinRange)
	}
	residual[rangeRow] = penalty
	if outlier || dPenaltyDd2 == 0 {
		// structural zeros: the range row keeps its sparsity pattern when
		// the point sits inside the allowed band (or is an outlier), so
		// the Jacobian structure is identical at every iterate.
		if extrinOffset >= 0 {
			for k := 0; k < 6; k++ {
				w.put(extrinOffset+k, rangeRow, 0)
			}
		}
		if pointOffset >= 0 {
			for k := 0; k < 3; k++ {
				w.put(pointOffset+k, rangeRow, 0)
			}
		}
		return row + 3, nil
	}

	dd2_dp := [3]float64{d2sign * 2 * camPoint[0], d2sign * 2 * camPoint[1], d2sign * 2 * camPoint[2]}
	if extrinOffset >= 0 {
		for k := 0; k < 3; k++ {
			var s float64
			for n := 0; n < 3; n++ {
				s += dd2_dp[n] * dOut_dRj[3*n+k]
			}
			w.put(extrinOffset+k, rangeRow, state.ScaleCameraRotation*dPenaltyDd2*s)
		}
		for k := 0; k < 3; k++ {
			w.put(extrinOffset+3+k, rangeRow, state.ScaleCameraTranslation*dPenaltyDd2*dd2_dp[k])
		}
	}
	if pointOffset >= 0 {
		var Rc rigid.Mat3
		if atIdentity {
			Rc = rigid.Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
		} else {
			Rc, _ = rigid.RFromR(camPose.R)
		}
		for k := 0; k < 3; k++ {
			var s float64
			for n := 0; n < 3; n++ {
				s += dd2_dp[n] * Rc[3*n+k]
			}
			w.put(pointOffset+k, rangeRow, state.ScalePointPosition*dPenaltyDd2*s)
		}
	}

	return row + 3, nil
}

const (
	regNormalNonSplinedDistortion = 2.0
	regNormalSplinedDistortion    = 0.2
	regNormalCenterPixel          = 500.0
	regOpenCVDenomExtraScale      = 5.0
	regSplinedTangentialExtra     = 10.0
	regTotalBudgetFraction        = 0.005
)

func assembleRegularization(p *Problem, l *state.Layout, packed []float64, w *jacWriter, residual []float64, row int) int {
	nNonReg := row // everything emitted so far is non-regularization
	regCfg := measurement.RegularizationConfigFromOptions(l.Opts)
	nRegDistortion, nRegCenter := 0, 0
	for _, m := range p.Models {
		c := measurement.RegularizationConfig{OptimizeDistortions: regCfg.OptimizeDistortions}
		nRegDistortion += measurement.NumRegularizationMeasurements(m, c)
		if regCfg.OptimizeCore && m.Meta().HasCore {
			nRegCenter += 2
		}
	}

	// distortion terms for every camera first, then the center-pixel
	// terms for every camera
	for icam, m := range p.Models {
		_, distBase := l.IntrinsicsColumnOffsets(icam, m)
		if distBase < 0 {
			continue
		}
		intrinsics := currentIntrinsics(p, l, icam, packed)
		if m.Family == lensmodel.SplinedStereographic {
			scale := regScale(nNonReg, nRegDistortion, regNormalSplinedDistortion)
			row = assembleSplinedRegularization(m, intrinsics, distBase, scale, w, residual, row)
			continue
		}
		nDist := m.NumParams() - 4
		baseScale := regScale(nNonReg, nRegDistortion, regNormalNonSplinedDistortion)
		for i := 0; i < nDist; i++ {
			scale := baseScale
			// k4,k5,k6 (intrinsics indices 5..7 past the core): the
			// rational-denominator coefficients of OPENCV8+ get an
			// extra 5x weighting.
			if (m.Family == lensmodel.Opencv8 || m.Family == lensmodel.Opencv12) && i >= 5 && i <= 7 {
				scale *= regOpenCVDenomExtraScale
			}
			residual[row] = scale * intrinsics[4+i]
			w.put(distBase+i, row, scale*state.ScaleDistortion)
			row++
		}
	}

	centerScale := regScale(nNonReg, nRegCenter, regNormalCenterPixel)
	for icam, m := range p.Models {
		coreBase, _ := l.IntrinsicsColumnOffsets(icam, m)
		if coreBase < 0 {
			continue
		}
		intrinsics := currentIntrinsics(p, l, icam, packed)
		cx, cy := intrinsics[2], intrinsics[3]
		imgCx := float64(p.ImagerSizes[icam][0]-1) / 2
		imgCy := float64(p.ImagerSizes[icam][1]-1) / 2
		residual[row] = centerScale * (cx - imgCx)
		w.put(coreBase+2, row, centerScale*state.ScaleCenterPixel)
		row++
		residual[row] = centerScale * (cy - imgCy)
		w.put(coreBase+3, row, centerScale*state.ScaleCenterPixel)
		row++
	}
	return row
}

func assembleSplinedRegularization(m lensmodel.Model, intrinsics []float64, distBase int, scale float64, w *jacWriter, residual []float64, row int) int {
	nx, ny := m.Config.Nx, m.Config.Ny
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			base := distBase + 2*(iy*nx+ix)
			cx, cy := intrinsics[4+2*(iy*nx+ix)], intrinsics[4+2*(iy*nx+ix)+1]

			// u is the knot's normalized direction from the grid center;
			// the exact-center knot has no direction, so it is treated
			// isotropically: u=(1,0) and no tangential extra.
			var u [2]float64
			tangExtra := regSplinedTangentialExtra
			if 2*ix == nx-1 && 2*iy == ny-1 {
				u = [2]float64{1, 0}
				tangExtra = 1
			} else {
				ux := float64(2*ix - nx + 1)
				uy := float64(2*iy - ny + 1)
				n := math.Sqrt(ux*ux + uy*uy)
				u = [2]float64{ux / n, uy / n}
			}

			residual[row] = scale * (cx*u[0] + cy*u[1])
			w.put(base, row, scale*state.ScaleDistortion*u[0])
			w.put(base+1, row, scale*state.ScaleDistortion*u[1])
			row++

			// tangential component deltaux*uy - deltauy*ux, penalized
			// harder to suppress curl in the deflection field
			residual[row] = scale * tangExtra * (cx*u[1] - cy*u[0])
			w.put(base, row, scale*tangExtra*state.ScaleDistortion*u[1])
			w.put(base+1, row, -scale*tangExtra*state.ScaleDistortion*u[0])
			row++
		}
	}
	return row
}

// regScale derives one regularization kind's per-term scale: the total
// regularization budget is regTotalBudgetFraction of the expected
// non-regularization squared norm (one pixel^2 per measurement), split
// evenly between the two regularization kinds, with each term expected
// to sit at normalValue:
//
//	scale^2 = budget * N_nonreg / (Nkinds * N_reg * normal_value^2)
func regScale(nNonReg, nReg int, normalValue float64) float64 {
	if nReg == 0 {
		return 0
	}
	const nRegularizationKinds = 2
	expectedPixelSq := float64(nNonReg)
	scaleSq := regTotalBudgetFraction * expectedPixelSq / (nRegularizationKinds * float64(nReg) * normalValue * normalValue)
	return math.Sqrt(scaleSq)
}
