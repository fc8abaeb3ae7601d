// Copyright Volt Labs Inc., 2026. All rights reserved.

package fitter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/voltlab/ocvfit/pkg/types"
)

// GridSearch sweeps the Cartesian product of nx evenly spaced values on
// [0, 1] over the four stoichiometry dimensions, with iR fixed at zero,
// and returns the feasible combination with the lowest objective.
// Combinations with xn0 >= xn1 or xp0 >= xp1 are skipped: the affine
// stoichiometry map requires each upper bound to exceed its lower one.
// Ties keep the first combination in enumeration order. The sweep is
// deliberately brute force, O(nx^4) evaluations; its job is a coarse,
// globally-aware starting point, not precision.
func (f *Fitter) GridSearch(nx int) (types.FitSummary, error) {
	if err := f.checkReady("GridSearch"); err != nil {
		return types.FitSummary{}, err
	}
	if nx < 2 {
		return types.FitSummary{}, fmt.Errorf("grid_nx must be at least 2, got %d", nx)
	}

	span := make([]float64, nx)
	floats.Span(span, 0, 1)

	best := math.Inf(1)
	var bestX [4]float64
	nfev := 0

	trial := make([]float64, 5)
	for _, xn0 := range span {
		for _, xn1 := range span {
			if xn0 >= xn1 {
				continue
			}
			for _, xp0 := range span {
				for _, xp1 := range span {
					if xp0 >= xp1 {
						continue
					}
					trial[0], trial[1], trial[2], trial[3] = xn0, xn1, xp0, xp1
					v := f.objective(trial)
					nfev++
					if v < best {
						best = v
						bestX = [4]float64{xn0, xn1, xp0, xp1}
					}
				}
			}
		}
	}

	stdev := make([]float64, 5)
	for i := range stdev {
		stdev[i] = math.NaN()
	}

	return types.FitSummary{
		Success:    true,
		Message:    "Done searching.",
		NumEval:    nfev,
		Iterations: -1,
		Objective:  best,
		X:          []float64{bestX[0], bestX[1], bestX[2], bestX[3], 0},
		Stdev:      stdev,
	}, nil
}
