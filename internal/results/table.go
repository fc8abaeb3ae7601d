// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package results accumulates fit summaries over a cell's life and
// derives aging metrics (loss of active material, loss of lithium
// inventory) from the fitted stoichiometry windows. Tables persist to a
// SQLite database and export to YAML or JSON.
package results

import (
	"fmt"
	"math"

	"github.com/voltlab/ocvfit/pkg/types"
)

// Row is one fitted dataset in a longitudinal table.
type Row struct {
	// Ah is the measured full-cell capacity for this dataset.
	Ah float64 `json:"ah" yaml:"ah"`

	// Params is the fitted parameter vector.
	Params types.FitParams `json:"params" yaml:"params"`

	// Stdev holds the per-parameter standard deviations; nil when the
	// fit produced no uncertainty estimate.
	Stdev *types.FitParams `json:"stdev,omitempty" yaml:"stdev,omitempty"`

	// Objective is the final objective value of the fit.
	Objective float64 `json:"objective" yaml:"objective"`

	// Success and Message mirror the fit summary.
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`

	// Iterations is the solver iteration count, -1 for grid search.
	Iterations int `json:"iterations" yaml:"iterations"`
}

// Table accumulates rows in append order, which callers are expected to
// keep chronological (beginning of life first) so aging metrics can
// reference the first row.
type Table struct {
	Rows []Row `json:"rows" yaml:"rows"`
}

// Append adds a fit summary for a dataset of the given capacity.
func (t *Table) Append(ah float64, summary types.FitSummary) error {
	if len(summary.X) != 5 {
		return fmt.Errorf("summary parameter vector must have 5 components, has %d", len(summary.X))
	}

	row := Row{
		Ah:         ah,
		Params:     summary.Params(),
		Objective:  summary.Objective,
		Success:    summary.Success,
		Message:    summary.Message,
		Iterations: summary.Iterations,
	}
	if summary.Stdev != nil {
		sd, err := types.ParamsFromVector(summary.Stdev)
		if err != nil {
			return err
		}
		row.Stdev = &sd
	}

	t.Rows = append(t.Rows, row)
	return nil
}

// stdevOrNaN returns the row's standard deviations, or all-NaN when the
// fit carried none.
func (r Row) stdevOrNaN() types.FitParams {
	if r.Stdev != nil {
		return *r.Stdev
	}
	nan := math.NaN()
	return types.FitParams{Xn0: nan, Xn1: nan, Xp0: nan, Xp1: nan, IR: nan}
}
