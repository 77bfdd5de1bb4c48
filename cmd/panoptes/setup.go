// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	"golang.org/x/term"

	"panoptes/internal/cache"
	"panoptes/internal/config"
	perrors "panoptes/internal/errors"
)

var cfg = config.Default()

func setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()

	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if v, _ := flags.GetInt("verbosity"); v >= 0 {
		cfg.Log.Verbosity = v
	}
	commonlog.Configure(cfg.Log.Verbosity, cfg.LogFile())

	mode, _ := flags.GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	case "auto":
		color.NoColor = !isTerminal(os.Stdout)
	default:
		return fmt.Errorf("unknown color mode %q", mode)
	}
	return nil
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// newCache builds the translation cache described by the configuration.
func newCache(observer cache.Observer) (*cache.Cache, error) {
	opts, err := cfg.InstrumentOptions()
	if err != nil {
		return nil, err
	}
	var store *cache.DiskStore
	if cfg.Cache.Dir != "" {
		if store, err = cache.OpenDiskStore(cfg.Cache.Dir); err != nil {
			return nil, err
		}
	}
	return cache.New(cache.NewPTXTranslator(opts), cache.Options{Store: store, Observer: observer}), nil
}

// report prints the diagnostics carried by err against source. It returns
// false when err has none, leaving the caller to print err itself.
func report(path string, source []byte, err error) bool {
	ds := perrors.Diagnose(err)
	if len(ds) == 0 {
		return false
	}
	fmt.Fprint(os.Stderr, perrors.NewReporter(path, string(source)).FormatAll(ds))
	return true
}

func failure(format string, args ...any) {
	fmt.Fprintln(os.Stderr, color.RedString("error: ")+fmt.Sprintf(format, args...))
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
}
