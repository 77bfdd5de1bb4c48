// SPDX-License-Identifier: Apache-2.0
package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"panoptes/internal/instrument"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
)

const (
	prompt         = ">> "
	continuePrompt = ".. "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Instrument PTX snippets interactively",
	Long: `Repl reads PTX until an empty line and prints the guarded result.
Input without a .version directive is treated as the body of a kernel whose
pointer arguments are named by the registers it uses.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := cfg.InstrumentOptions()
		if err != nil {
			return err
		}
		return startREPL(cmd.InOrStdin(), cmd.OutOrStdout(), opts)
	},
}

func startREPL(in io.Reader, out io.Writer, opts instrument.Options) error {
	scanner := bufio.NewScanner(in)
	pipeline := instrument.NewPipeline(opts)
	var snippet []string

	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) != "" {
			snippet = append(snippet, line)
			fmt.Fprint(out, continuePrompt)
			continue
		}
		if len(snippet) > 0 {
			evalSnippet(out, pipeline, strings.Join(snippet, "\n")+"\n")
			snippet = snippet[:0]
		}
		fmt.Fprint(out, prompt)
	}
	if len(snippet) > 0 {
		evalSnippet(out, pipeline, strings.Join(snippet, "\n")+"\n")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func evalSnippet(out io.Writer, pipeline *instrument.Pipeline, src string) {
	src = wrapSnippet(src)
	m, err := parser.Parse("<repl>", src)
	if err == nil {
		m, _, err = pipeline.Run(m)
	}
	if err != nil {
		if !report("<repl>", []byte(src), err) {
			fmt.Fprintln(out, color.RedString("error: ")+err.Error())
		}
		return
	}
	fmt.Fprint(out, ir.Print(m))
}

// wrapSnippet turns bare instructions into a complete module with one
// kernel so they can be parsed on their own.
func wrapSnippet(src string) string {
	if strings.Contains(src, ".version") {
		return src
	}
	var b strings.Builder
	b.WriteString(".version 7.0\n.target sm_80\n.address_size 64\n.visible .entry snippet()\n{\n")
	b.WriteString("\t.reg .b64 %rd<16>;\n\t.reg .b32 %r<16>;\n\t.reg .f32 %f<16>;\n\t.reg .pred %p<4>;\n")
	b.WriteString(src)
	b.WriteString("\tret;\n}\n")
	return b.String()
}
