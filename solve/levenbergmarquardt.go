// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solve

import (
	"github.com/cpmech/gosl/fun"
	"github.com/cpmech/gosl/la"
	"gonum.org/v1/gonum/mat"

	"github.com/cpmech/camcal/assembly"
)

// LMConfig holds the trust-region driver's stopping criteria: iteration
// cap 300, update-norm threshold 1e-6, gradient/trust-region thresholds
// both 0 (i.e. not used to stop early -- only the update norm and the
// iteration cap do).
type LMConfig struct {
	MaxIterations  int
	GradientTol    float64
	UpdateNormTol  float64
	TrustRegionTol float64
	LambdaInit     float64
	LambdaUp       float64
	LambdaDown     float64
}

// DefaultLMConfig returns the stock stopping criteria above.
func DefaultLMConfig() LMConfig {
	return LMConfig{
		MaxIterations:  300,
		GradientTol:    0,
		UpdateNormTol:  1e-6,
		TrustRegionTol: 0,
		LambdaInit:     1e-3,
		LambdaUp:       10,
		LambdaDown:     10,
	}
}

// GetPrms returns the configuration as a parameter set.
func (c LMConfig) GetPrms() fun.Prms {
	return []*fun.Prm{
		&fun.Prm{N: "maxit", V: float64(c.MaxIterations)},
		&fun.Prm{N: "gtol", V: c.GradientTol},
		&fun.Prm{N: "utol", V: c.UpdateNormTol},
		&fun.Prm{N: "ttol", V: c.TrustRegionTol},
		&fun.Prm{N: "lam0", V: c.LambdaInit},
		&fun.Prm{N: "lamup", V: c.LambdaUp},
		&fun.Prm{N: "lamdn", V: c.LambdaDown},
	}
}

// LMConfigFromPrms builds an LMConfig from a parameter set, starting
// from the defaults for any parameter not named.
func LMConfigFromPrms(prms fun.Prms) (c LMConfig) {
	c = DefaultLMConfig()
	for _, p := range prms {
		switch p.N {
		case "maxit":
			c.MaxIterations = int(p.V)
		case "gtol":
			c.GradientTol = p.V
		case "utol":
			c.UpdateNormTol = p.V
		case "ttol":
			c.TrustRegionTol = p.V
		case "lam0":
			c.LambdaInit = p.V
		case "lamup":
			c.LambdaUp = p.V
		case "lamdn":
			c.LambdaDown = p.V
		}
	}
	return
}

// LevenbergMarquardt is the default, concrete Solver implementation: a
// damped Gauss-Newton iteration solving the dense normal equations
// (JᵀJ + λ diag(JᵀJ))δ = -Jᵀr at each step via gonum/mat. The sparse Jᵀ
// itself comes from package assembly; only the small dense
// normal-equations system is handed to gonum.
type LevenbergMarquardt struct {
	Cfg LMConfig
}

// NewLevenbergMarquardt constructs a solver with the given config.
func NewLevenbergMarquardt(cfg LMConfig) *LevenbergMarquardt {
	return &LevenbergMarquardt{Cfg: cfg}
}

// Solve implements Solver.
func (s *LevenbergMarquardt) Solve(x0 []float64, eval CallbackFunc) ([]float64, error) {
	n := len(x0)
	x := make([]float64, n)
	la.VecCopy(x, 1, x0)

	residual, jt, err := eval(x, true)
	if err != nil {
		return nil, err
	}
	cost := la.VecNorm(residual)
	cost *= cost
	lambda := s.Cfg.LambdaInit

	xTrial := make([]float64, n)
	for iter := 0; iter < s.Cfg.MaxIterations; iter++ {
		JtJ, Jtr := normalEquations(jt, residual, n)

		damped := mat.NewDense(n, n, nil)
		damped.Copy(JtJ)
		for i := 0; i < n; i++ {
			damped.Set(i, i, damped.At(i, i)*(1+lambda))
		}

		negJtr := mat.NewVecDense(n, nil)
		negJtr.ScaleVec(-1, Jtr)

		var delta mat.VecDense
		if err := delta.SolveVec(damped, negJtr); err != nil {
			lambda *= s.Cfg.LambdaUp
			continue
		}

		la.VecAdd2(xTrial, 1, x, 1, delta.RawVector().Data)
		residTrial, jtTrial, err := eval(xTrial, true)
		if err != nil {
			return nil, err
		}
		costTrial := la.VecNorm(residTrial)
		costTrial *= costTrial

		if costTrial < cost {
			la.VecCopy(x, 1, xTrial)
			residual, jt, cost = residTrial, jtTrial, costTrial
			lambda /= s.Cfg.LambdaDown
			if mat.Norm(&delta, 2) < s.Cfg.UpdateNormTol {
				break
			}
		} else {
			lambda *= s.Cfg.LambdaUp
		}
	}

	return x, nil
}

// normalEquations builds the dense JᵀJ (n x n) and Jᵀr (n) from the
// sparse Jᵀ assembly.Callback returns: for each measurement row i, the
// (stateIndex, value) pairs in [Rowptr[i], Rowptr[i+1]) are exactly J's
// i-th row, so JᵀJ is the sum over rows of each row's outer product with
// itself.
func normalEquations(jt *assembly.Jacobian, residual []float64, n int) (*mat.Dense, *mat.VecDense) {
	JtJ := mat.NewDense(n, n, nil)
	Jtr := mat.NewVecDense(n, nil)
	if jt == nil {
		return JtJ, Jtr
	}
	for row := 0; row < len(jt.Rowptr)-1; row++ {
		lo, hi := jt.Rowptr[row], jt.Rowptr[row+1]
		r := residual[row]
		for a := lo; a < hi; a++ {
			ia, va := jt.Colidx[a], jt.Values[a]
			Jtr.SetVec(ia, Jtr.AtVec(ia)+va*r)
			for b := lo; b < hi; b++ {
				ib, vb := jt.Colidx[b], jt.Values[b]
				JtJ.Set(ia, ib, JtJ.At(ia, ib)+va*vb)
			}
		}
	}
	return JtJ, Jtr
}
