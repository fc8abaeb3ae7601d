// Copyright Volt Labs Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voltlab/ocvfit/internal/dataset"
	"github.com/voltlab/ocvfit/internal/fitter"
	"github.com/voltlab/ocvfit/internal/results"
	"github.com/voltlab/ocvfit/pkg/types"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a stoichiometry window to a full-cell dataset",
	Long: `Fit runs a grid-search warm start followed by a constrained local
refinement against the given full-cell curve, using the half-cell OCV
curves as the forward model. The full-cell input is either a soc/voltage
curve (--cell) or a raw cycler log (--cell-log) that is integrated to
capacity first.

The fitted parameters, uncertainties, and solver diagnostics print to
stdout; with --db the fit is also appended to the longitudinal store.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().String("neg", "", "negative electrode CSV (soc, voltage)")
	fitCmd.Flags().String("pos", "", "positive electrode CSV (soc, voltage)")
	fitCmd.Flags().String("cell", "", "full-cell CSV (soc, voltage)")
	fitCmd.Flags().String("cell-log", "", "full-cell cycler log CSV (seconds, amps, volts)")
	fitCmd.Flags().Float64("ah", 0, "measured full-cell capacity in Ah (derived from --cell-log when omitted)")
	fitCmd.Flags().Float64("resolution", 0, "downsample the full-cell curve to this SOC resolution (0 keeps all samples)")
	fitCmd.Flags().String("terms", "", "cost terms: 'all' or comma-separated subset of voltage,dqdv,dvdq")
	fitCmd.Flags().Int("grid-nx", 0, "grid-search discretization per parameter")
	fitCmd.Flags().Float64("radius", 0, "bound radius around the grid-search result")
	fitCmd.Flags().Float64("xtol", 0, "parameter convergence tolerance")
	fitCmd.Flags().Int("maxiter", 0, "maximum solver iterations")
	fitCmd.Flags().String("db", "", "append the fit to this SQLite result store")
	fitCmd.Flags().Bool("json", false, "output the summary as JSON")

	rootCmd.AddCommand(fitCmd)
}

// fitConfig merges defaults, config-file values, and set flags.
func fitConfig(cmd *cobra.Command) types.FitConfig {
	cfg := types.DefaultFitConfig()

	if v := viper.GetStringSlice("fit.cost_terms"); len(v) > 0 {
		cfg.CostTerms = v
	}
	if v := viper.GetInt("fit.grid_nx"); v > 0 {
		cfg.GridNx = v
	}
	if v := viper.GetFloat64("fit.bounds_radius"); v > 0 {
		cfg.BoundsRadius = v
	}
	if v := viper.GetFloat64("fit.xtol"); v > 0 {
		cfg.Xtol = v
	}
	if v := viper.GetInt("fit.max_iter"); v > 0 {
		cfg.MaxIter = v
	}

	if terms, _ := cmd.Flags().GetString("terms"); terms != "" {
		cfg.CostTerms = strings.Split(terms, ",")
	}
	if v, _ := cmd.Flags().GetInt("grid-nx"); v > 0 {
		cfg.GridNx = v
	}
	if v, _ := cmd.Flags().GetFloat64("radius"); v > 0 {
		cfg.BoundsRadius = v
	}
	if v, _ := cmd.Flags().GetFloat64("xtol"); v > 0 {
		cfg.Xtol = v
	}
	if v, _ := cmd.Flags().GetInt("maxiter"); v > 0 {
		cfg.MaxIter = v
	}

	return cfg
}

// loadFitter builds a ready Fitter from the input flags and returns the
// measured capacity when one is available.
func loadFitter(cmd *cobra.Command, costTerms types.CostTerm) (*fitter.Fitter, float64, error) {
	negPath, _ := cmd.Flags().GetString("neg")
	posPath, _ := cmd.Flags().GetString("pos")
	cellPath, _ := cmd.Flags().GetString("cell")
	logPath, _ := cmd.Flags().GetString("cell-log")

	if negPath == "" || posPath == "" {
		return nil, 0, fmt.Errorf("both --neg and --pos are required")
	}
	if (cellPath == "") == (logPath == "") {
		return nil, 0, fmt.Errorf("exactly one of --cell or --cell-log is required")
	}

	f, err := fitter.New(costTerms)
	if err != nil {
		return nil, 0, err
	}

	neg, err := dataset.ReadCurve(negPath)
	if err != nil {
		return nil, 0, err
	}
	if err := f.SetNegative(neg); err != nil {
		return nil, 0, err
	}

	pos, err := dataset.ReadCurve(posPath)
	if err != nil {
		return nil, 0, err
	}
	if err := f.SetPositive(pos); err != nil {
		return nil, 0, err
	}

	ah, _ := cmd.Flags().GetFloat64("ah")
	var cell types.Curve
	if cellPath != "" {
		cell, err = dataset.ReadCurve(cellPath)
	} else {
		var logAh float64
		cell, logAh, err = dataset.ReadCyclerLog(logPath)
		if ah == 0 {
			ah = logAh
		}
	}
	if err != nil {
		return nil, 0, err
	}
	if res, _ := cmd.Flags().GetFloat64("resolution"); res > 0 {
		cell = dataset.Downsample(cell, res)
	}
	if err := f.SetCell(cell); err != nil {
		return nil, 0, err
	}

	return f, ah, nil
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg := fitConfig(cmd)
	costTerms, err := types.ParseCostTerms(cfg.CostTerms)
	if err != nil {
		return err
	}

	f, ah, err := loadFitter(cmd, costTerms)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "grid search (nx=%d)...\n", cfg.GridNx)
	warm, err := f.GridSearch(cfg.GridNx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "constrained fit (radius=%g, xtol=%g)...\n", cfg.BoundsRadius, cfg.Xtol)
	summary, err := f.ConstrainedFit(warm.X, fitter.FitOptions{
		BoundsRadius: []float64{cfg.BoundsRadius},
		Xtol:         cfg.Xtol,
		MaxIter:      cfg.MaxIter,
	})
	if err != nil {
		return err
	}

	if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
		if err := appendToStore(dbPath, ah, summary); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "appended fit to %s\n", dbPath)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return printSummary(summary, jsonOutput)
}

func appendToStore(dbPath string, ah float64, summary types.FitSummary) error {
	store, err := results.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var table results.Table
	if err := table.Append(ah, summary); err != nil {
		return err
	}
	return store.Append(table.Rows[0])
}

func printSummary(summary types.FitSummary, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling summary: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("success:    %t\n", summary.Success)
	fmt.Printf("message:    %s\n", summary.Message)
	fmt.Printf("objective:  %.6e\n", summary.Objective)
	fmt.Printf("num_eval:   %d\n", summary.NumEval)
	if summary.Iterations >= 0 {
		fmt.Printf("iterations: %d\n", summary.Iterations)
	}
	for i, name := range types.ParamNames {
		if summary.Stdev != nil {
			fmt.Printf("%-4s = %12.6f +/- %.4g\n", name, summary.X[i], summary.Stdev[i])
		} else {
			fmt.Printf("%-4s = %12.6f\n", name, summary.X[i])
		}
	}
	return nil
}
