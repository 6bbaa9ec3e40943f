// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package project

// bsplineBasis evaluates the order+1 tensor-product B-spline basis
// functions (and their derivatives w.r.t. the local coordinate x) for
// evenly spaced knots.
//
// order 3: x in [0,1], basis functions A,B,C,D.
// order 2: x in [-1/2,1/2], basis functions A,B,C.
func bsplineBasis(order int, x float64) (vals, derivs []float64) {
	x2 := x * x
	switch order {
	case 3:
		x3 := x2 * x
		vals = []float64{
			(-x3 + 3*x2 - 3*x + 1) / 6,
			x3/2 - x2 + 2.0/3.0,
			-x3/2 + x2/2 + x/2 + 1.0/6.0,
			x3 / 6,
		}
		derivs = []float64{
			-x2/2 + x - 0.5,
			3*x2/2 - 2*x,
			-3*x2/2 + x + 0.5,
			x2 / 2,
		}
	case 2:
		vals = []float64{
			(4*x2 - 4*x + 1) / 8,
			(3 - 4*x2) / 4,
			(4*x2 + 4*x + 1) / 8,
		}
		derivs = []float64{
			x - 0.5,
			-2 * x,
			x + 0.5,
		}
	default:
		panic("project: bsplineBasis: order must be 2 or 3")
	}
	return
}
