// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"panoptes/internal/fatbin"
)

var fatbinCmd = &cobra.Command{
	Use:   "fatbin",
	Short: "Inspect fatbin module images",
}

var fatbinListCmd = &cobra.Command{
	Use:   "list image",
	Short: "List the entries of a fatbin image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fb, err := readFatbin(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for i, e := range fb.Entries {
			fmt.Fprintf(out, "%3d  %-4s sm_%d  %d bytes\n", i, e.Kind, e.SmVersion, len(e.Payload))
		}
		return nil
	},
}

var fatbinExtractCmd = &cobra.Command{
	Use:   "extract image",
	Short: "Print the PTX text a module load would translate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		image, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		ptx, err := fatbin.Extract(image)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		_, err = cmd.OutOrStdout().Write(ptx)
		return err
	},
}

var fatbinPackCmd = &cobra.Command{
	Use:   "pack [flags] file.ptx...",
	Short: "Wrap PTX files into a fatbin image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFatbinPack,
}

func init() {
	fatbinPackCmd.Flags().StringP("out", "o", "", "image file to write (required)")
	fatbinPackCmd.Flags().Uint32("sm", 80, "SM version recorded for every entry")
	fatbinPackCmd.Flags().Bool("compress", true, "lz4-compress payloads when that makes them smaller")
	_ = fatbinPackCmd.MarkFlagRequired("out")

	fatbinCmd.AddCommand(fatbinListCmd)
	fatbinCmd.AddCommand(fatbinExtractCmd)
	fatbinCmd.AddCommand(fatbinPackCmd)
}

func runFatbinPack(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	sm, _ := cmd.Flags().GetUint32("sm")
	compress, _ := cmd.Flags().GetBool("compress")

	entries := make([]fatbin.Entry, 0, len(args))
	for _, path := range args {
		ptx, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, fatbin.Entry{Kind: fatbin.KindPTX, SmVersion: sm, Payload: ptx})
	}
	image, err := fatbin.Build(entries, compress)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, image, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d entries, %d bytes)\n", out, len(entries), len(image))
	return nil
}

func readFatbin(path string) (*fatbin.Fatbin, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !fatbin.IsFatbin(image) {
		return nil, fmt.Errorf("%s: not a fatbin image", path)
	}
	fb, err := fatbin.Parse(image)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fb, nil
}
