// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"github.com/spf13/cobra"
	_ "github.com/tliron/commonlog/simple"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "panoptes",
	Short:         "PTX memory-checking translation layer",
	Long:          `Panoptes rewrites PTX device code so that every guarded memory access is checked against shadow memory before it executes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func main() {
	rootCmd.Version = version

	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(instrumentCmd)
	rootCmd.AddCommand(fatbinCmd)
	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(replCmd)

	rootCmd.PersistentFlags().String("config", "", "configuration file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Int("verbosity", -1, "log verbosity, overrides the configuration")

	if err := rootCmd.Execute(); err != nil {
		failure("%v", err)
		os.Exit(1)
	}
}
