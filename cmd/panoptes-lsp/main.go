// SPDX-License-Identifier: Apache-2.0
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/tliron/glsp/server"

	"panoptes/internal/lsp"
)

const lsName = "panoptes"

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "panoptes-lsp",
	Short:         "PTX language server over stdio",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func run(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetInt("verbosity")
	logFile, _ := cmd.Flags().GetString("log")

	var path *string
	if logFile != "" {
		path = &logFile
	}
	commonlog.Configure(verbosity, path)
	log := commonlog.GetLogger("panoptes.lsp")

	s := server.NewServer(lsp.NewHandler().Protocol(), lsName, false)
	log.Infof("starting %s language server %s", lsName, version)
	return s.RunStdio()
}

func main() {
	rootCmd.Version = version
	rootCmd.Flags().Int("verbosity", 1, "log verbosity")
	rootCmd.Flags().String("log", "", "log file (default: stderr)")

	if err := rootCmd.Execute(); err != nil {
		commonlog.GetLogger("panoptes.lsp").Errorf("language server stopped: %s", err)
		os.Exit(1)
	}
}
