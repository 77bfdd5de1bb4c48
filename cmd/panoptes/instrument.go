// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"panoptes/internal/cache"
	"panoptes/internal/fatbin"
	"panoptes/internal/instrument"
)

var instrumentCmd = &cobra.Command{
	Use:   "instrument [flags] file.ptx...",
	Short: "Insert memory-access guards into PTX files or fatbin images",
	Long: `Instrument translates each input through the module cache and writes the
guarded PTX. With a single input and no --out directory the result goes to
standard output.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstrument,
}

func init() {
	instrumentCmd.Flags().StringP("out", "o", "", "directory receiving <name>.ptx for each input")
	instrumentCmd.Flags().IntP("jobs", "j", 0, "parallel translations (0 = GOMAXPROCS)")
	instrumentCmd.Flags().Bool("permissive", false, "let accesses to memory of unknown status through")
}

type instrumented struct {
	Path     string
	Source   []byte
	Entry    *cache.Entry
	Err      error
	Duration time.Duration
}

func runInstrument(cmd *cobra.Command, args []string) error {
	outDir, _ := cmd.Flags().GetString("out")
	jobs, _ := cmd.Flags().GetInt("jobs")
	if cmd.Flags().Changed("permissive") {
		cfg.Permissive, _ = cmd.Flags().GetBool("permissive")
	}
	if len(args) > 1 && outDir == "" {
		return fmt.Errorf("--out is required with more than one input")
	}

	c, err := newCache(nil)
	if err != nil {
		return err
	}
	results, err := instrumentFiles(cmd.Context(), c, args, jobs)
	if err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			if !report(r.Path, r.Source, r.Err) {
				failure("%s: %v", r.Path, r.Err)
			}
			continue
		}
		if outDir == "" {
			if _, err := cmd.OutOrStdout().Write(r.Entry.Text); err != nil {
				return err
			}
		} else if err := writeOutput(outDir, r); err != nil {
			return err
		}
		rep := r.Entry.Report
		fmt.Fprintf(os.Stderr, "%s %s: %d guards in %d functions, %d accesses unguarded (%s)\n",
			color.GreenString("ok"), r.Path, rep.Guards, rep.Functions, rep.Skipped, formatDuration(r.Duration))
	}
	if len(results) > 1 {
		total := summarize(results)
		fmt.Fprintf(os.Stderr, "total: %d guards in %d functions, %d accesses unguarded\n", total.Guards, total.Functions, total.Skipped)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed", failed, len(results))
	}
	return nil
}

// instrumentFiles translates every path through c, at most jobs at a time.
// Per-file failures are reported in the results; only cancellation aborts
// the batch.
func instrumentFiles(ctx context.Context, c *cache.Cache, paths []string, jobs int) ([]instrumented, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	results := make([]instrumented, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(jobs, len(paths))))
	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			start := time.Now()
			r := instrumented{Path: path}
			defer func() {
				r.Duration = time.Since(start)
				results[i] = r
			}()

			image, err := os.ReadFile(path)
			if err != nil {
				r.Err = err
				return nil
			}
			r.Source = image
			ptx, err := fatbin.Extract(image)
			if err != nil {
				r.Err = err
				return nil
			}
			r.Source = ptx
			r.Entry, r.Err = c.Translate(gctx, ptx)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeOutput(dir string, r instrumented) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Base(r.Path)
	name = name[:len(name)-len(filepath.Ext(name))] + ".ptx"
	return os.WriteFile(filepath.Join(dir, name), r.Entry.Text, 0o644)
}

// summarize totals the reports of successful results.
func summarize(results []instrumented) instrument.Report {
	var total instrument.Report
	for _, r := range results {
		if r.Err == nil {
			total.Functions += r.Entry.Report.Functions
			total.Guards += r.Entry.Report.Guards
			total.Skipped += r.Entry.Report.Skipped
		}
	}
	return total
}
