// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camcal

import "github.com/cpmech/camcal/measurement"

// ValidRegion is the bounding box, in board-grid cell indices (column and
// row of the W×H calibration grid), of the board cells observed often
// enough. It is not a region in imager pixel coordinates.
type ValidRegion struct {
	MinCol, MinRow, MaxCol, MaxRow int
	Found                          bool
}

// ValidIntrinsicsRegion reports the bounding box of board cells that
// accumulated at least minCount non-outlier observations for camera
// icamIntrinsics, across every board observation in boardObs/boardPixels
// (a W*H*len(boardObs) pool laid out the way assembly.Problem stores it).
// Counts are kept per board cell: where on the imager each observation
// landed is not taken into account.
func ValidIntrinsicsRegion(icamIntrinsics, width, height int, boardObs []measurement.BoardObs, boardPixels []measurement.Pixel, minCount int) ValidRegion {
	counts := make([]int, width*height)
	for iobs, obs := range boardObs {
		if obs.ICamIntrinsics != icamIntrinsics {
			continue
		}
		base := iobs * width * height
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				if !boardPixels[base+r*width+c].IsOutlier() {
					counts[r*width+c]++
				}
			}
		}
	}

	region := ValidRegion{MinCol: width, MinRow: height, MaxCol: -1, MaxRow: -1}
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			if counts[r*width+c] < minCount {
				continue
			}
			region.Found = true
			if c < region.MinCol {
				region.MinCol = c
			}
			if c > region.MaxCol {
				region.MaxCol = c
			}
			if r < region.MinRow {
				region.MinRow = r
			}
			if r > region.MaxRow {
				region.MaxRow = r
			}
		}
	}
	return region
}
