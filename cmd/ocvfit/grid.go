package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voltlab/ocvfit/pkg/types"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Run only the grid-search warm start",
	Long: `Grid sweeps a coarse discretization of the four stoichiometry
parameters and prints the best feasible combination. Useful for
inspecting the warm start before committing to a refined fit, or for
producing an initial guess for an external workflow.`,
	RunE: runGrid,
}

func init() {
	gridCmd.Flags().String("neg", "", "negative electrode CSV (soc, voltage)")
	gridCmd.Flags().String("pos", "", "positive electrode CSV (soc, voltage)")
	gridCmd.Flags().String("cell", "", "full-cell CSV (soc, voltage)")
	gridCmd.Flags().String("cell-log", "", "full-cell cycler log CSV (seconds, amps, volts)")
	gridCmd.Flags().Float64("ah", 0, "measured full-cell capacity in Ah")
	gridCmd.Flags().Float64("resolution", 0, "downsample the full-cell curve to this SOC resolution (0 keeps all samples)")
	gridCmd.Flags().String("terms", "", "cost terms: 'all' or comma-separated subset of voltage,dqdv,dvdq")
	gridCmd.Flags().Int("grid-nx", 0, "grid-search discretization per parameter")
	gridCmd.Flags().Bool("json", false, "output the summary as JSON")

	rootCmd.AddCommand(gridCmd)
}

func runGrid(cmd *cobra.Command, args []string) error {
	cfg := fitConfig(cmd)
	costTerms, err := types.ParseCostTerms(cfg.CostTerms)
	if err != nil {
		return err
	}

	f, _, err := loadFitter(cmd, costTerms)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "grid search (nx=%d)...\n", cfg.GridNx)
	summary, err := f.GridSearch(cfg.GridNx)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return printSummary(summary, jsonOutput)
}
