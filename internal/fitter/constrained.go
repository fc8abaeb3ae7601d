// Copyright Volt Labs Inc., 2026. All rights reserved.

package fitter

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/voltlab/ocvfit/pkg/types"
)

// FitOptions configures ConstrainedFit.
type FitOptions struct {
	// BoundsRadius is the symmetric bound radius for the four
	// stoichiometry parameters: one value broadcast to all four, or one
	// value per parameter. Values are clipped into [1e-3, 1]; a radius
	// of 1 effectively disables the bound.
	BoundsRadius []float64

	// Xtol is the convergence tolerance on parameters.
	Xtol float64

	// MaxIter caps solver iterations.
	MaxIter int
}

// DefaultFitOptions mirrors the package defaults.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		BoundsRadius: []float64{0.1},
		Xtol:         1e-8,
		MaxIter:      100000,
	}
}

// hessianScale is the Tikhonov nudge applied to the uncertainty Hessian
// diagonal, relative to the largest eigenvalue magnitude. It only guards
// the inversion against flat directions.
const hessianScale = 1e-16

// maxRestarts caps the number of fresh solver passes taken from an
// accepted optimum. A restart resets the trust radius and the curvature
// model, which carries the iterate further along the shallow valley the
// parameters trade off in.
const maxRestarts = 5

// ConstrainedFit refines x0 (4 or 5 components) with the projected
// trust-region solver under box bounds centered on the guess and the
// electrode ordering constraints. iR is always (re)seeded from the mean
// residual between the guess's synthesized and measured voltage; when
// voltage is not an active cost term its bound pins it to a
// numerically-zero interval and the reported value is forced to exactly
// zero.
//
// Non-convergence is not an error: it surfaces as Success=false on the
// summary. Approximate parameter standard deviations come from the
// curvature of the unweighted squared-residual objective at the optimum
// and are nil when the covariance solve fails.
func (f *Fitter) ConstrainedFit(x0 []float64, opts FitOptions) (types.FitSummary, error) {
	if err := f.checkReady("ConstrainedFit"); err != nil {
		return types.FitSummary{}, err
	}
	if len(x0) != 4 && len(x0) != 5 {
		return types.FitSummary{}, fmt.Errorf("x0 must have 4 or 5 components, has %d", len(x0))
	}

	radius, err := expandRadius(opts.BoundsRadius)
	if err != nil {
		return types.FitSummary{}, err
	}
	if opts.Xtol <= 0 {
		return types.FitSummary{}, fmt.Errorf("xtol must be positive, got %g", opts.Xtol)
	}
	if opts.MaxIter < 1 {
		return types.FitSummary{}, fmt.Errorf("max_iter must be at least 1, got %d", opts.MaxIter)
	}

	// Seed iR from the mean voltage residual at the guess.
	terms, err := f.ErrTerms(x0)
	if err != nil {
		return types.FitSummary{}, err
	}
	resid := make([]float64, len(terms.VoltFit))
	for i := range resid {
		resid[i] = terms.VoltFit[i] - terms.VoltData[i]
	}
	iR0 := stat.Mean(resid, nil)

	x := make([]float64, 5)
	copy(x, x0)
	x[4] = iR0

	lower := make([]float64, 5)
	upper := make([]float64, 5)
	for i := 0; i < 4; i++ {
		lower[i] = math.Max(0, x[i]-radius[i])
		upper[i] = math.Min(1, x[i]+radius[i])
	}
	if f.costTerms.Has(types.CostVoltage) {
		lower[4] = math.Inf(-1)
		upper[4] = math.Inf(1)
	} else {
		// iR disabled: pin the dimension with a numerically-zero bound
		// instead of shortening the vector.
		eps := math.Nextafter(1, 2) - 1
		lower[4] = -eps
		upper[4] = eps
	}

	result := minimizeTrustRegion(f.objective, x, lower, upper, opts.Xtol, opts.MaxIter)

	// Refit from the accepted optimum until a pass stops improving.
	for r := 0; r < maxRestarts; r++ {
		again := minimizeTrustRegion(f.objective, result.X, lower, upper, opts.Xtol, opts.MaxIter)
		again.NumEval += result.NumEval
		again.Iterations += result.Iterations

		improved := result.Fun-again.Fun > math.Max(1e-12, 1e-9*math.Abs(result.Fun))
		if again.Fun <= result.Fun {
			result = again
		}
		if !improved {
			break
		}
	}

	stdev := f.uncertainty(result.X)

	if !f.costTerms.Has(types.CostVoltage) {
		result.X[4] = 0
		if stdev != nil {
			stdev[4] = 0
		}
	}

	return types.FitSummary{
		Success:    result.Success,
		Message:    result.Message,
		NumEval:    result.NumEval,
		Iterations: result.Iterations,
		Objective:  result.Fun,
		X:          result.X,
		Stdev:      stdev,
		Solver: &types.SolverInfo{
			TrustRadius:  result.TrustRadius,
			GradientNorm: result.GradientNorm,
		},
	}, nil
}

// expandRadius broadcasts a single radius to the four stoichiometry
// parameters and clips each value into [1e-3, 1].
func expandRadius(radius []float64) ([4]float64, error) {
	var out [4]float64
	switch len(radius) {
	case 1:
		radius = []float64{radius[0], radius[0], radius[0], radius[0]}
	case 4:
	default:
		return out, fmt.Errorf("bounds_radius must have length 1 or 4, has %d", len(radius))
	}
	for i, r := range radius {
		out[i] = math.Min(1, math.Max(1e-3, r))
	}
	return out, nil
}

// uncertainty approximates per-parameter standard deviations from the
// Hessian of the unweighted squared-residual objective at x. The Hessian
// diagonal is nudged by hessianScale times its largest eigenvalue
// magnitude before inversion so flat directions do not make the solve
// singular. A failed factorization or inversion yields nil rather than
// an error.
func (f *Fitter) uncertainty(x []float64) []float64 {
	p := &trustProblem{fn: f.ssr}
	hess := p.hessian(x)

	var eig mat.EigenSym
	if !eig.Factorize(hess, false) {
		return nil
	}
	vals := eig.Values(nil)
	maxAbs := 0.0
	for _, v := range vals {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}

	n := len(x)
	reg := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			reg.Set(i, j, hess.At(i, j))
		}
		reg.Set(i, i, reg.At(i, i)+hessianScale*maxAbs)
	}

	var cov mat.Dense
	if err := cov.Inverse(reg); err != nil {
		// An ill-conditioned but finite inverse is still usable; a hard
		// singularity is not.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil
		}
	}

	stdev := make([]float64, n)
	for i := 0; i < n; i++ {
		stdev[i] = math.Sqrt(math.Abs(cov.At(i, i)))
	}
	return stdev
}
