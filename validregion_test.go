// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package camcal

import (
	"testing"

	"github.com/cpmech/camcal/measurement"
)

func TestValidIntrinsicsRegionFindsDenseCells(t *testing.T) {
	width, height := 4, 4
	boardObs := []measurement.BoardObs{{ICamIntrinsics: 0}, {ICamIntrinsics: 0}, {ICamIntrinsics: 1}}
	pixels := make([]measurement.Pixel, 3*width*height)
	for i := range pixels {
		pixels[i] = measurement.Pixel{Weight: 1}
	}
	region := ValidIntrinsicsRegion(0, width, height, boardObs, pixels, 2)
	if !region.Found {
		t.Fatalf("expected a region to be found")
	}
	if region.MinCol != 0 || region.MinRow != 0 || region.MaxCol != width-1 || region.MaxRow != height-1 {
		t.Errorf("got %+v, want the full grid covered", region)
	}
}

func TestValidIntrinsicsRegionEmptyWhenNoObservations(t *testing.T) {
	region := ValidIntrinsicsRegion(0, 4, 4, nil, nil, 1)
	if region.Found {
		t.Errorf("expected no region when there are no observations")
	}
}
