// SPDX-License-Identifier: Apache-2.0
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panoptes/internal/fatbin"
	"panoptes/internal/instrument"
	"panoptes/internal/parser"
)

func writeInputs(t *testing.T, files map[string][]byte) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, content, 0o644))
		paths = append(paths, path)
	}
	return paths
}

func TestInstrumentFiles(t *testing.T) {
	image, err := fatbin.Build([]fatbin.Entry{{Kind: fatbin.KindPTX, SmVersion: 80, Payload: []byte(selftestKernel)}}, true)
	require.NoError(t, err)

	paths := writeInputs(t, map[string][]byte{
		"a.ptx":    []byte(selftestKernel),
		"b.fatbin": image,
		"c.ptx":    []byte(".version 7.0\n.target sm_80\n.visible .entry k()\n{\n"),
	})
	paths = append(paths, filepath.Join(t.TempDir(), "missing.ptx"))

	c, err := newCache(nil)
	require.NoError(t, err)
	results, err := instrumentFiles(context.Background(), c, paths, 2)
	require.NoError(t, err)
	require.Len(t, results, len(paths))

	byName := make(map[string]instrumented)
	for _, r := range results {
		byName[filepath.Base(r.Path)] = r
	}
	require.NoError(t, byName["a.ptx"].Err)
	require.NoError(t, byName["b.fatbin"].Err)
	assert.Same(t, byName["a.ptx"].Entry, byName["b.fatbin"].Entry, "identical PTX shares one cache entry")
	assert.Equal(t, 2, byName["a.ptx"].Entry.Report.Guards)

	var se *parser.SyntaxError
	assert.ErrorAs(t, byName["c.ptx"].Err, &se)
	assert.ErrorIs(t, byName["missing.ptx"].Err, os.ErrNotExist)

	assert.Equal(t, instrument.Report{Functions: 2, Guards: 4}, summarize(results))
	assert.Equal(t, 1, c.Len())
}

func TestWriteOutput(t *testing.T) {
	paths := writeInputs(t, map[string][]byte{"kernel.fatbin": []byte(selftestKernel)})
	c, err := newCache(nil)
	require.NoError(t, err)
	results, err := instrumentFiles(context.Background(), c, paths, 0)
	require.NoError(t, err)

	out := t.TempDir()
	require.NoError(t, writeOutput(out, results[0]))
	got, err := os.ReadFile(filepath.Join(out, "kernel.ptx"))
	require.NoError(t, err)
	assert.Contains(t, string(got), instrument.QueryFunction)
}

func TestSelftestBuiltinKernel(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().String("kernel", "", "")
	cmd.Flags().Bool("serve", false, "")
	cmd.SetOut(&out)

	require.NoError(t, runSelftest(cmd, nil))
	assert.Contains(t, out.String(), "LaunchKernel after free")
	assert.NotContains(t, out.String(), "✗")
}

func TestREPL(t *testing.T) {
	in := strings.NewReader("ld.global.f32 %f1, [%rd1];\n\nst.shared.u32 [%rd2+4], %r1;\n")
	var out bytes.Buffer
	require.NoError(t, startREPL(in, &out, instrument.Options{}))

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "call.uni (__panoptes_param_status), "+instrument.QueryFunction))
	assert.Contains(t, text, "cvta.shared.u64")
	assert.True(t, strings.HasPrefix(text, prompt+continuePrompt+".version 7.0"))
}

func TestFatbinPack(t *testing.T) {
	paths := writeInputs(t, map[string][]byte{"kernel.ptx": []byte(selftestKernel)})
	image := filepath.Join(t.TempDir(), "kernel.fatbin")

	cmd := &cobra.Command{}
	cmd.Flags().StringP("out", "o", "", "")
	cmd.Flags().Uint32("sm", 80, "")
	cmd.Flags().Bool("compress", true, "")
	require.NoError(t, cmd.Flags().Set("out", image))
	require.NoError(t, cmd.Flags().Set("sm", "90"))
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	require.NoError(t, runFatbinPack(cmd, paths))
	assert.Contains(t, stdout.String(), "1 entries")

	fb, err := readFatbin(image)
	require.NoError(t, err)
	require.Len(t, fb.Entries, 1)
	assert.Equal(t, uint32(90), fb.Entries[0].SmVersion)
	assert.Equal(t, selftestKernel, string(fb.Entries[0].Payload))
}
