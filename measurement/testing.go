// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package measurement

import (
	"github.com/cpmech/gosl/chk"

	"github.com/cpmech/camcal/lensmodel"
	"github.com/cpmech/camcal/project"
	"github.com/cpmech/camcal/rigid"
)

// BoardPointDeflection returns the warp-induced out-of-plane deflection
// for board cell (x,y) of a W×H grid. The two warp parameters are the
// parabolic deflection amplitudes along each in-plane axis; the
// deflection is linear in them:
// Δz = warp[0]·4·xr·(1−xr) + warp[1]·4·yr·(1−yr), xr=x/(W−1), yr=y/(H−1).
func BoardPointDeflection(x, y, width, height int, warp [2]float64) float64 {
	xr := float64(x) / float64(width-1)
	yr := float64(y) / float64(height-1)
	return warp[0]*4*xr*(1-xr) + warp[1]*4*yr*(1-yr)
}

// BoardPoint returns the board-frame 3D point at grid cell (x,y).
func BoardPoint(x, y, width, height int, spacing float64, warp [2]float64) [3]float64 {
	return [3]float64{
		float64(x) * spacing,
		float64(y) * spacing,
		BoardPointDeflection(x, y, width, height, warp),
	}
}

// SyntheticBoard generates a noiseless set of pixel observations for a
// W×H calibration board of the given spacing/warp, seen by a camera with
// the given lens model/intrinsics through the given joint (camera-from-
// board) pose. It exists to drive assembly and solve tests without a real
// dataset, the way gofem's package-level testing.go helpers build
// synthetic finite-element meshes for its own tests.
func SyntheticBoard(m lensmodel.Model, intrinsics []float64, joint rigid.Pose, width, height int, spacing float64, warp [2]float64) (boardPoints [][3]float64, pixels []Pixel, err error) {
	if width < 2 || height < 2 {
		return nil, nil, chk.Err("measurement: SyntheticBoard: width and height must be >= 2")
	}
	boardPoints = make([][3]float64, 0, width*height)
	pixels = make([]Pixel, 0, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			bp := BoardPoint(col, row, width, height, spacing, warp)
			cam := joint.Apply(bp)
			res, perr := project.Project(m, cam, intrinsics, false)
			if perr != nil {
				return nil, nil, perr
			}
			boardPoints = append(boardPoints, bp)
			pixels = append(pixels, Pixel{Px: res.Q[0], Py: res.Q[1], Weight: 1})
		}
	}
	return boardPoints, pixels, nil
}
