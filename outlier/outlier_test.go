// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package outlier

import (
	"testing"

	"github.com/cpmech/camcal/assembly"
	"github.com/cpmech/camcal/measurement"
)

func TestMarkNoOutliersWhenResidualsSmall(t *testing.T) {
	p := &assembly.Problem{
		BoardPixels: []measurement.Pixel{{Weight: 1}, {Weight: 1}, {Weight: 1}, {Weight: 1}},
	}
	residual := []float64{0.1, 0.1, 0.1, -0.1, -0.1, 0.1, 0.1, -0.1}
	if Mark(p, residual) {
		t.Fatalf("expected no outliers marked for uniformly small residuals")
	}
	for k, px := range p.BoardPixels {
		if px.IsOutlier() {
			t.Errorf("pixel %d unexpectedly marked outlier", k)
		}
	}
}

func TestMarkFindsSingleBlowup(t *testing.T) {
	// 100 well-behaved pixels (residual ~0.1px) and one blowup at index 3;
	// sigma^2 includes the blowup (~24.8, sigma ~5px), so its 50px
	// components sit at ~10 sigma.
	const n = 101
	p := &assembly.Problem{BoardPixels: make([]measurement.Pixel, n)}
	residual := make([]float64, 2*n)
	for k := 0; k < n; k++ {
		p.BoardPixels[k].Weight = 1
		residual[2*k] = 0.1
		residual[2*k+1] = -0.1
	}
	residual[2*3], residual[2*3+1] = 50, 50 // blown-up pixel
	if !Mark(p, residual) {
		t.Fatalf("expected the blown-up pixel to be marked")
	}
	if !p.BoardPixels[3].IsOutlier() {
		t.Errorf("pixel 3 should be marked outlier")
	}

	// Second pass: the marked pixel no longer contributes to sigma^2 or to
	// the exceeds-K1 scan, so nothing new should be found.
	if Mark(p, residual) {
		t.Errorf("second pass should not find additional outliers")
	}
}
