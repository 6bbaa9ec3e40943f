// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package assembly

import (
	"math"
	"testing"

	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/measurement"
	"github.com/cpmech/camcal/rigid"
	"github.com/cpmech/camcal/state"
)

// mixedProblem builds a small but fully-featured fixture: one OPENCV4
// camera with extrinsics, one board observation, two point observations
// (one variable point, one fixed), warp, and regularization.
func mixedProblem() (*Problem, *state.Layout) {
	m := lensmodel.Model{Family: lensmodel.Opencv4}
	intrinsics := []float64{1000, 1000, 500, 400, 0.05, -0.01, 0.001, -0.0005}

	width, height := 4, 3
	pixels := make([]measurement.Pixel, width*height)
	cam := rigid.Pose{R: [3]float64{0.01, -0.02, 0.005}, T: [3]float64{0.05, -0.03, 0.1}}
	frame := rigid.Pose{R: [3]float64{0.03, 0.02, -0.01}, T: [3]float64{-0.1, 0.05, 2.0}}
	warp := [2]float64{0.01, -0.005}
	joint := rigid.Compose(cam, frame, false)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			bp := measurement.BoardPoint(c, r, width, height, 0.1, warp)
			// observed pixels are offset from the prediction so residuals
			// and their gradients are nonzero
			v := joint.Pose.Apply(bp)
			q := [2]float64{1000*v[0]/v[2] + 500, 1000*v[1]/v[2] + 400}
			pixels[r*width+c] = measurement.Pixel{Px: q[0] + 0.3, Py: q[1] - 0.2, Weight: 0.9}
		}
	}

	p := &Problem{
		Models:        []lensmodel.Model{m},
		Intrinsics:    [][]float64{intrinsics},
		CamExtrinsics: []rigid.Pose{cam},
		Frames:        []rigid.Pose{frame},
		Points: [][3]float64{
			{0.2, -0.1, 3.0},
			{-0.3, 0.2, 2.5},
		},
		NpointsFixed: 1,
		Warp:         warp,

		Width:        width,
		Height:       height,
		BoardSpacing: 0.1,
		ImagerSizes:  [][2]int{{1000, 800}},

		BoardObservations: []measurement.BoardObs{{ICamIntrinsics: 0, ICamExtrinsics: 0, IFrame: 0}},
		BoardPixels:       pixels,

		PointObservations: []measurement.PointObs{
			{ICamIntrinsics: 0, ICamExtrinsics: 0, IPoint: 0},
			{ICamIntrinsics: 0, ICamExtrinsics: 0, IPoint: 1},
		},
		PointPixels: []measurement.Pixel{
			{Px: 580, Py: 360, Weight: 1},
			{Px: 390, Py: 480, Weight: 0.7},
		},

		PointMinRange:       0.5,
		PointMaxRange:       1.5, // both points are beyond this, so the penalty is active and smooth
		ApplyRegularization: true,
	}

	opts := state.Options{
		OptimizeIntrinsicsCore:        true,
		OptimizeIntrinsicsDistortions: true,
		OptimizeExtrinsics:            true,
		OptimizeFrames:                true,
		OptimizeCalobjectWarp:         true,
	}
	l := state.NewLayout(p.Models, 1, 1, 1, opts)
	return p, l
}

func packProblem(p *Problem, l *state.Layout) []float64 {
	packed := make([]float64, l.NumStates())
	scales := state.IntrinsicsScales(p.Models[0])
	base := l.StateIndexIntrinsics(0)
	for i, v := range p.Intrinsics[0] {
		packed[base+i] = state.PackValue(v, scales[i])
	}
	if off := l.StateIndexExtrinsics(0); off >= 0 {
		s := state.PoseScales(false)
		for i := 0; i < 3; i++ {
			packed[off+i] = state.PackValue(p.CamExtrinsics[0].R[i], s[i])
			packed[off+3+i] = state.PackValue(p.CamExtrinsics[0].T[i], s[3+i])
		}
	}
	if off := l.StateIndexFrame(0); off >= 0 {
		s := state.PoseScales(true)
		for i := 0; i < 3; i++ {
			packed[off+i] = state.PackValue(p.Frames[0].R[i], s[i])
			packed[off+3+i] = state.PackValue(p.Frames[0].T[i], s[3+i])
		}
	}
	if off := l.StateIndexPoint(0); off >= 0 {
		for i := 0; i < 3; i++ {
			packed[off+i] = state.PackValue(p.Points[0][i], state.ScalePointPosition)
		}
	}
	if off := l.StateIndexCalobjectWarp(); off >= 0 {
		packed[off] = state.PackValue(p.Warp[0], state.ScaleCalobjectWarp)
		packed[off+1] = state.PackValue(p.Warp[1], state.ScaleCalobjectWarp)
	}
	return packed
}

func TestCallbackDimsMatchEmitted(t *testing.T) {
	p, l := mixedProblem()
	dims := ComputeDims(p, l)
	packed := packProblem(p, l)

	residual, jt, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if len(residual) != dims.Nmeasurements {
		t.Errorf("residual has %d entries, layout declared %d", len(residual), dims.Nmeasurements)
	}
	if jt.Nnz() != dims.NnzMax {
		t.Errorf("Jacobian has %d nonzeros, layout declared %d", jt.Nnz(), dims.NnzMax)
	}
	if len(jt.Rowptr) != dims.Nmeasurements+1 {
		t.Errorf("Rowptr has %d entries, want %d", len(jt.Rowptr), dims.Nmeasurements+1)
	}
	if jt.Rowptr[len(jt.Rowptr)-1] != jt.Nnz() {
		t.Errorf("Rowptr[last]=%d, want total nonzeros %d", jt.Rowptr[len(jt.Rowptr)-1], jt.Nnz())
	}
	for row := 0; row < dims.Nmeasurements; row++ {
		if jt.Rowptr[row] > jt.Rowptr[row+1] {
			t.Fatalf("Rowptr not monotonic at row %d", row)
		}
		for a := jt.Rowptr[row] + 1; a < jt.Rowptr[row+1]; a++ {
			if jt.Colidx[a-1] >= jt.Colidx[a] {
				t.Fatalf("row %d: columns not strictly increasing (%d then %d)", row, jt.Colidx[a-1], jt.Colidx[a])
			}
		}
	}
}

func TestCallbackDeterministic(t *testing.T) {
	p, l := mixedProblem()
	packed := packProblem(p, l)

	r1, j1, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	r2, j2, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	for i := range r1 {
		if r1[i] != r2[i] {
			t.Fatalf("residual[%d] differs between identical invocations: %v vs %v", i, r1[i], r2[i])
		}
	}
	for i := range j1.Values {
		if j1.Colidx[i] != j2.Colidx[i] || j1.Values[i] != j2.Values[i] {
			t.Fatalf("Jacobian entry %d differs between identical invocations", i)
		}
	}
}

// TestCallbackJacobianFiniteDifference verifies the whole chain rule --
// projection gradients, composed-transform gradients, warp, range
// penalty, packing scales -- against central differences of the residual
// in packed-state space.
func TestCallbackJacobianFiniteDifference(t *testing.T) {
	p, l := mixedProblem()
	packed := packProblem(p, l)
	dims := ComputeDims(p, l)

	_, jt, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}

	dense := make([][]float64, dims.Nmeasurements)
	for row := range dense {
		dense[row] = make([]float64, dims.Nstate)
		for a := jt.Rowptr[row]; a < jt.Rowptr[row+1]; a++ {
			dense[row][jt.Colidx[a]] = jt.Values[a]
		}
	}

	h := 1e-6
	for j := 0; j < dims.Nstate; j++ {
		xp := append([]float64(nil), packed...)
		xm := append([]float64(nil), packed...)
		xp[j] += h
		xm[j] -= h
		rp, _, err := Callback(p, l, xp, false)
		if err != nil {
			t.Fatalf("Callback(+): %v", err)
		}
		rm, _, err := Callback(p, l, xm, false)
		if err != nil {
			t.Fatalf("Callback(-): %v", err)
		}
		for row := 0; row < dims.Nmeasurements; row++ {
			fd := (rp[row] - rm[row]) / (2 * h)
			if math.Abs(fd-dense[row][j]) > 1e-4*(1+math.Abs(fd)) {
				t.Fatalf("J[%d][%d]: analytic %v, finite-difference %v", row, j, dense[row][j], fd)
			}
		}
	}
}

// TestSplinedJacobianSparsity: each pixel residual of a splined camera
// depends on exactly (order+1)^2 control points, and every touched
// column lies inside the distortion block.
func TestSplinedJacobianSparsity(t *testing.T) {
	cfg := lensmodel.Config{Order: 3, Nx: 9, Ny: 8, FovDeg: 120}
	m := lensmodel.Model{Family: lensmodel.SplinedStereographic, Config: cfg}
	intrinsics := make([]float64, m.NumParams())
	intrinsics[0], intrinsics[1], intrinsics[2], intrinsics[3] = 800, 800, 500, 400
	for i := 4; i < len(intrinsics); i++ {
		intrinsics[i] = 1e-4 * float64(i%7)
	}

	frame := rigid.Pose{T: [3]float64{0, 0, 2.0}}
	width, height := 3, 3
	pixels := make([]measurement.Pixel, width*height)
	for i := range pixels {
		pixels[i] = measurement.Pixel{Px: 500, Py: 400, Weight: 1}
	}

	p := &Problem{
		Models:            []lensmodel.Model{m},
		Intrinsics:        [][]float64{intrinsics},
		Frames:            []rigid.Pose{frame},
		Width:             width,
		Height:            height,
		BoardSpacing:      0.3,
		BoardObservations: []measurement.BoardObs{{ICamIntrinsics: 0, ICamExtrinsics: -1, IFrame: 0}},
		BoardPixels:       pixels,
	}
	opts := state.Options{OptimizeIntrinsicsDistortions: true}
	l := state.NewLayout(p.Models, 0, 1, 0, opts)

	packed := make([]float64, l.NumStates())
	base := l.StateIndexIntrinsics(0)
	for i := 4; i < len(intrinsics); i++ {
		packed[base+i-4] = intrinsics[i]
	}

	_, jt, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}

	want := (cfg.Order + 1) * (cfg.Order + 1)
	nDistCols := 2 * cfg.Nx * cfg.Ny
	for row := 0; row < width*height*2; row++ {
		got := jt.Rowptr[row+1] - jt.Rowptr[row]
		if got != want {
			t.Errorf("row %d touches %d control points, want %d", row, got, want)
		}
		for a := jt.Rowptr[row]; a < jt.Rowptr[row+1]; a++ {
			col := jt.Colidx[a]
			if col < base || col >= base+nDistCols {
				t.Errorf("row %d touches column %d outside the distortion block [%d,%d)", row, col, base, base+nDistCols)
			}
		}
	}
}

func TestRegularizationScaleValue(t *testing.T) {
	// 1000 non-regularization measurements, 8 distortion terms at normal
	// value 2.0: scale^2 = 0.005*1000/(2*8*4) = 0.078125.
	got := regScale(1000, 8, 2.0)
	want := math.Sqrt(0.078125)
	if math.Abs(got-want) > 1e-6*want {
		t.Errorf("regScale(1000,8,2.0) = %.9f, want %.9f", got, want)
	}
}

// TestOutlierStructuralZeros: a negatively-weighted board pixel must
// contribute zero residuals and zero-valued Jacobian entries with the
// same sparsity pattern as an inlier, so the Hessian keeps its rank and
// the column structure is independent of the outlier set.
func TestOutlierStructuralZeros(t *testing.T) {
	p, l := mixedProblem()
	packed := packProblem(p, l)

	_, before, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}

	p.BoardPixels[5].MarkOutlier()
	residual, after, err := Callback(p, l, packed, true)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}

	if residual[2*5] != 0 || residual[2*5+1] != 0 {
		t.Errorf("outlier residuals not zeroed: (%v,%v)", residual[2*5], residual[2*5+1])
	}
	if before.Nnz() != after.Nnz() {
		t.Fatalf("outlier changed the nonzero count: %d vs %d", before.Nnz(), after.Nnz())
	}
	for i := range before.Colidx {
		if before.Colidx[i] != after.Colidx[i] {
			t.Fatalf("outlier changed the sparsity pattern at entry %d", i)
		}
	}
	for row := 2 * 5; row < 2*5+2; row++ {
		for a := after.Rowptr[row]; a < after.Rowptr[row+1]; a++ {
			if after.Values[a] != 0 {
				t.Errorf("outlier row %d has nonzero Jacobian value %v", row, after.Values[a])
			}
		}
	}
}
