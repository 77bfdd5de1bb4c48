// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"panoptes/internal/ir"
	"panoptes/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse file.ptx",
	Short: "Parse and validate a PTX file, then print it back",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().Bool("quiet", false, "only report problems")
}

func runParse(cmd *cobra.Command, args []string) error {
	path := args[0]
	quiet, _ := cmd.Flags().GetBool("quiet")

	start := time.Now()
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := parser.Parse(path, string(source))
	if err == nil {
		err = ir.Validate(m)
	}
	if err != nil {
		if !report(path, source, err) {
			return err
		}
		return fmt.Errorf("%s is not valid PTX", path)
	}

	if !quiet {
		fmt.Fprint(cmd.OutOrStdout(), ir.Print(m))
	}
	fmt.Fprintln(os.Stderr, color.GreenString("parsed %s (%d functions) in %s", path, len(m.Functions()), formatDuration(time.Since(start))))
	return nil
}
