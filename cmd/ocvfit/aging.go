package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/voltlab/ocvfit/internal/results"
	"github.com/voltlab/ocvfit/pkg/types"
)

var agingCmd = &cobra.Command{
	Use:   "aging",
	Short: "Derive LAM/LLI aging metrics from accumulated fits",
	Long: `Aging loads the longitudinal fit table from the result store and derives
electrode capacities, loss of active material (LAM), and loss of lithium
inventory (LLI) for each stored fit, relative to the first (beginning of
life) row. Results print as a table or export to YAML/JSON files.`,
	RunE: runAging,
}

func init() {
	agingCmd.Flags().String("db", "", "SQLite result store with accumulated fits")
	agingCmd.Flags().String("yaml", "", "export fits and aging metrics to this YAML file")
	agingCmd.Flags().String("json", "", "export fits and aging metrics to this JSON file")

	rootCmd.AddCommand(agingCmd)
}

func runAging(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = viper.GetString("store.db_path")
	}
	if dbPath == "" {
		dbPath = types.DefaultStoreConfig().DBPath
	}

	store, err := results.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	table, err := store.List()
	if err != nil {
		return err
	}

	aging, err := results.Aging(table)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("yaml"); path != "" {
		if err := results.ExportYAML(path, table, aging); err != nil {
			return err
		}
	}
	if path, _ := cmd.Flags().GetString("json"); path != "" {
		if err := results.ExportJSON(path, table, aging); err != nil {
			return err
		}
	}

	fmt.Printf("%10s %10s %10s %10s %10s %10s\n", "Ah", "Qn", "Qp", "LAMn", "LAMp", "LLI")
	for i, a := range aging {
		fmt.Printf("%10.4f %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			table.Rows[i].Ah, a.Qn, a.Qp, a.LAMn, a.LAMp, a.LLI)
	}
	return nil
}
