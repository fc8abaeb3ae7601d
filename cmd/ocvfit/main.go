// Copyright Volt Labs Inc., 2026. All rights reserved.

// Package main is the entry point for the ocvfit CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the ocvfit CLI.
var rootCmd = &cobra.Command{
	Use:   "ocvfit",
	Short: "Electrode-level parameter extraction from full-cell OCV curves",
	Long: `ocvfit determines the stoichiometry window of each electrode and an ohmic
iR offset so that a full-cell curve synthesized from half-cell OCV data
matches the measured one. Fits accumulate in a local database over a
cell's life; the aging command derives loss of active material and loss
of lithium inventory from the stored windows.

Inputs are cleaned CSV exports: half-cell and full-cell curves with
soc/voltage columns, or cycler logs with seconds/amps/volts columns.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ocvfit.yaml or ~/.config/ocvfit/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ocvfit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ocvfit"))
		}
	}

	viper.SetEnvPrefix("OCVFIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
