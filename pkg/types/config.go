// Copyright Volt Labs Inc., 2026. All rights reserved.

package types

// FitConfig holds settings for the fitting stage.
type FitConfig struct {
	// CostTerms selects the error terms: "all" or a subset of
	// voltage, dqdv, dvdq (default all).
	CostTerms []string `json:"cost_terms" yaml:"cost_terms"`

	// GridNx is the per-parameter discretization count for the
	// grid-search warm start (default 11).
	GridNx int `json:"grid_nx" yaml:"grid_nx"`

	// BoundsRadius is the symmetric bound radius around the initial
	// guess for the four stoichiometry parameters (default 0.1).
	BoundsRadius float64 `json:"bounds_radius" yaml:"bounds_radius"`

	// Xtol is the parameter convergence tolerance (default 1e-8).
	Xtol float64 `json:"xtol" yaml:"xtol"`

	// MaxIter caps local solver iterations (default 100000).
	MaxIter int `json:"max_iter" yaml:"max_iter"`
}

// DefaultFitConfig returns the fitting defaults.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		CostTerms:    []string{"all"},
		GridNx:       11,
		BoundsRadius: 0.1,
		Xtol:         1e-8,
		MaxIter:      100000,
	}
}

// StoreConfig holds settings for the longitudinal result store.
type StoreConfig struct {
	// DBPath is the SQLite database file for accumulated fits
	// (default results/ocvfit.db).
	DBPath string `json:"db_path" yaml:"db_path"`
}

// DefaultStoreConfig returns the store defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{DBPath: "results/ocvfit.db"}
}
