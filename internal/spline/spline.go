// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package spline builds differentiable voltage-vs-SOC interpolants for
// the three curve domains (negative electrode, positive electrode, full
// cell). The spline interpolates the samples exactly; its first
// derivative comes from the piecewise polynomial, never from finite
// differences of the samples.
package spline

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/voltlab/ocvfit/pkg/types"
)

// Model is a fitted cubic spline over the normalized coordinate of one
// domain, with an analytic first derivative.
type Model struct {
	cubic      interp.NaturalCubic
	xmin, xmax float64
}

// New fits an interpolating natural cubic spline to the curve.
// Duplicate abscissa values collapse to the first occurrence by original
// sample order; the surviving samples are then sorted ascending before
// fitting.
func New(curve types.Curve) (*Model, error) {
	if err := curve.Validate(); err != nil {
		return nil, err
	}

	xs, ys := dedupe(curve.SOC, curve.Voltage)
	if len(xs) < 2 {
		return nil, fmt.Errorf("spline needs at least 2 distinct soc values, has %d", len(xs))
	}

	m := &Model{xmin: xs[0], xmax: xs[len(xs)-1]}
	if err := m.cubic.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("fitting spline: %w", err)
	}
	return m, nil
}

// Eval returns the spline value at x. Queries outside the fitted
// abscissa range clamp to the nearest endpoint, so the optimizer sees a
// finite, continuous surface even when the affine stoichiometry map
// lands outside the observed samples.
func (m *Model) Eval(x float64) float64 {
	return m.cubic.Predict(m.clamp(x))
}

// EvalDeriv returns the first derivative of the spline at x, with the
// same clamping policy as Eval.
func (m *Model) EvalDeriv(x float64) float64 {
	return m.cubic.PredictDerivative(m.clamp(x))
}

func (m *Model) clamp(x float64) float64 {
	if x < m.xmin {
		return m.xmin
	}
	if x > m.xmax {
		return m.xmax
	}
	return x
}

// dedupe keeps the first occurrence of each abscissa by input order and
// returns the survivors sorted ascending. Later samples at a repeated
// abscissa are discarded, not averaged.
func dedupe(xs, ys []float64) ([]float64, []float64) {
	type sample struct{ x, y float64 }

	seen := make(map[float64]bool, len(xs))
	samples := make([]sample, 0, len(xs))
	for i, x := range xs {
		if seen[x] {
			continue
		}
		seen[x] = true
		samples = append(samples, sample{x, ys[i]})
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].x < samples[j].x })

	outX := make([]float64, len(samples))
	outY := make([]float64, len(samples))
	for i, s := range samples {
		outX[i] = s.x
		outY[i] = s.y
	}
	return outX, outY
}
