// Copyright Volt Labs Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// CostTerm is a bit set selecting which normalized error terms enter the
// scalar fitting objective. The zero value is invalid; combine the
// constants with bitwise OR or use CostAll.
type CostTerm uint8

const (
	// CostVoltage scores the synthesized full-cell voltage. Selecting it
	// is the sole trigger for fitting the ohmic iR offset.
	CostVoltage CostTerm = 1 << iota

	// CostDqdv scores the differential capacity dQ/dV.
	CostDqdv

	// CostDvdq scores the differential voltage dV/dQ.
	CostDvdq

	// CostAll selects all three error terms.
	CostAll = CostVoltage | CostDqdv | CostDvdq
)

// Has reports whether term is part of the selection.
func (t CostTerm) Has(term CostTerm) bool {
	return t&term != 0
}

// Validate returns an error when the selection is empty or contains
// unknown bits.
func (t CostTerm) Validate() error {
	if t == 0 {
		return fmt.Errorf("cost_terms is empty: select 'all' or a subset of [voltage dqdv dvdq]")
	}
	if t&^CostAll != 0 {
		return fmt.Errorf("cost_terms contains unknown selection bits: %#x", uint8(t&^CostAll))
	}
	return nil
}

// String renders the selection as a comma-separated list.
func (t CostTerm) String() string {
	var parts []string
	if t.Has(CostVoltage) {
		parts = append(parts, "voltage")
	}
	if t.Has(CostDqdv) {
		parts = append(parts, "dqdv")
	}
	if t.Has(CostDvdq) {
		parts = append(parts, "dvdq")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseCostTerms converts the textual form used by config files and CLI
// flags ("all" or names from [voltage dqdv dvdq]) into a CostTerm.
func ParseCostTerms(names []string) (CostTerm, error) {
	var t CostTerm
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "all":
			t |= CostAll
		case "voltage":
			t |= CostVoltage
		case "dqdv":
			t |= CostDqdv
		case "dvdq":
			t |= CostDvdq
		case "":
			// tolerate empty entries from comma splitting
		default:
			return 0, fmt.Errorf("invalid cost term %q: must be 'all' or a subset of [voltage dqdv dvdq]", name)
		}
	}
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return t, nil
}

// ParamNames maps parameter-vector indices to parameter names.
var ParamNames = [5]string{"xn0", "xn1", "xp0", "xp1", "iR"}

// FitParams is the 5-parameter stoichiometry window: lower and upper
// negative-electrode stoichiometry, lower and upper positive-electrode
// stoichiometry, and the lumped ohmic offset.
type FitParams struct {
	Xn0 float64 `json:"xn0" yaml:"xn0"`
	Xn1 float64 `json:"xn1" yaml:"xn1"`
	Xp0 float64 `json:"xp0" yaml:"xp0"`
	Xp1 float64 `json:"xp1" yaml:"xp1"`
	IR  float64 `json:"iR" yaml:"iR"`
}

// Vector returns the parameters in ParamNames order.
func (p FitParams) Vector() []float64 {
	return []float64{p.Xn0, p.Xn1, p.Xp0, p.Xp1, p.IR}
}

// ParamsFromVector builds FitParams from a 4- or 5-component vector.
// A missing fifth component means iR = 0.
func ParamsFromVector(x []float64) (FitParams, error) {
	switch len(x) {
	case 4:
		return FitParams{Xn0: x[0], Xn1: x[1], Xp0: x[2], Xp1: x[3]}, nil
	case 5:
		return FitParams{Xn0: x[0], Xn1: x[1], Xp0: x[2], Xp1: x[3], IR: x[4]}, nil
	default:
		return FitParams{}, fmt.Errorf("parameter vector must have 4 or 5 components, has %d", len(x))
	}
}

// SolverInfo carries diagnostics from the underlying local solver for
// callers that want more than the summary fields.
type SolverInfo struct {
	TrustRadius  float64 `json:"trust_radius" yaml:"trust_radius"`
	GradientNorm float64 `json:"gradient_norm" yaml:"gradient_norm"`
}

// FitSummary reports the outcome of a grid search or constrained fit.
type FitSummary struct {
	// Success is false only when the local solver failed to converge.
	// Grid search always reports true.
	Success bool `json:"success" yaml:"success"`

	// Message is the solver termination message.
	Message string `json:"message" yaml:"message"`

	// NumEval counts objective evaluations.
	NumEval int `json:"num_eval" yaml:"num_eval"`

	// Iterations is the solver iteration count, or -1 for grid search,
	// which has no iteration notion.
	Iterations int `json:"iterations" yaml:"iterations"`

	// Objective is the final scalar objective value.
	Objective float64 `json:"objective" yaml:"objective"`

	// X is the fitted parameter vector in ParamNames order.
	X []float64 `json:"x" yaml:"x"`

	// Stdev holds approximate per-parameter standard deviations from the
	// Hessian at the optimum. It is all NaN for grid search and nil when
	// the covariance solve failed.
	Stdev []float64 `json:"stdev,omitempty" yaml:"stdev,omitempty"`

	// Solver holds optional diagnostics from the local solver; nil for
	// grid search.
	Solver *SolverInfo `json:"solver,omitempty" yaml:"solver,omitempty"`
}

// Params returns the fitted parameter vector as a FitParams value.
func (s FitSummary) Params() FitParams {
	p, _ := ParamsFromVector(s.X)
	return p
}

// MarshalJSON writes NaN standard deviations as null. Grid-search
// summaries carry an all-NaN stdev vector, which encoding/json rejects.
func (s FitSummary) MarshalJSON() ([]byte, error) {
	type plain FitSummary
	out := struct {
		plain
		Stdev []any `json:"stdev,omitempty"`
	}{plain: plain(s)}

	if s.Stdev != nil {
		out.Stdev = make([]any, len(s.Stdev))
		for i, v := range s.Stdev {
			if math.IsNaN(v) {
				out.Stdev[i] = nil
			} else {
				out.Stdev[i] = v
			}
		}
	}
	return json.Marshal(out)
}
