// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"panoptes/internal/lexer"
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize file.ptx",
	Short: "Print the tokens of a PTX file",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenize,
}

func runTokenize(cmd *cobra.Command, args []string) error {
	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	kind := color.New(color.FgCyan).SprintFunc()
	out := cmd.OutOrStdout()
	for tok, err := range lexer.NewScanner(path, string(source)).All() {
		if err != nil {
			if !report(path, source, err) {
				return err
			}
			return fmt.Errorf("tokenization of %s failed", path)
		}
		fmt.Fprintf(out, "%-8s %-12s %q\n", tok.Pos, kind(tok.Kind), tok.Text)
	}
	return nil
}
