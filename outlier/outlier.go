// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package outlier implements the post-solve outlier-marking pass: board
// pixel observations whose residual magnitude
// is large relative to the current inlier standard deviation are marked
// (negative weight) so the driver can re-solve without them.
package outlier

import (
	"math"

	"github.com/cpmech/camcal/assembly"
)

// K0 and K1 are the two rejection thresholds. K1 decides
// whether this pass finds anything at all; K0, the smaller margin, then
// sweeps in every point close enough to the same blow-up that the next
// solve is likely the last one.
const (
	K0 = 4.0
	K1 = 5.0
)

// Mark scans the board residuals -- assembly.Callback's row order puts
// board measurements first, one x/y pair per BoardPixels entry, so
// residual[2*k], residual[2*k+1] is the pair for p.BoardPixels[k] -- and
// negates the weight of every inlier pixel whose squared residual exceeds
// the K0 margin, provided at least one pixel exceeded the stricter K1
// threshold. Returns true iff any pixel was newly marked. Only board
// observations participate; point observations keep their weights.
func Mark(p *assembly.Problem, residual []float64) bool {
	n := len(p.BoardPixels)
	if n == 0 {
		return false
	}

	maxSq := make([]float64, n)
	var sumSq float64
	var ninlier int
	for k := 0; k < n; k++ {
		if p.BoardPixels[k].IsOutlier() {
			continue
		}
		dx := residual[2*k]
		dy := residual[2*k+1]
		maxSq[k] = math.Max(dx*dx, dy*dy)
		sumSq += dx*dx + dy*dy
		ninlier++
	}
	if ninlier == 0 {
		return false
	}
	sigma2 := sumSq / float64(2*ninlier)

	exceedsK1 := false
	for k := 0; k < n; k++ {
		if !p.BoardPixels[k].IsOutlier() && maxSq[k] > K1*K1*sigma2 {
			exceedsK1 = true
			break
		}
	}
	if !exceedsK1 {
		return false
	}

	marked := false
	for k := 0; k < n; k++ {
		if p.BoardPixels[k].IsOutlier() {
			continue
		}
		if maxSq[k] > K0*K0*sigma2 {
			p.BoardPixels[k].MarkOutlier()
			marked = true
		}
	}
	return marked
}
