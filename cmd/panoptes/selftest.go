// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"panoptes/internal/cache"
	"panoptes/internal/cudart"
	"panoptes/internal/driver"
	"panoptes/internal/fatbin"
	"panoptes/internal/ir"
	"panoptes/internal/metrics"
	"panoptes/internal/shadow"
	"panoptes/internal/shim"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest [file.ptx]",
	Short: "Run a kernel on the simulated driver and check that a freed buffer is caught",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSelftest,
}

func init() {
	selftestCmd.Flags().String("kernel", "", "entry point to launch (default: the first one)")
	selftestCmd.Flags().Bool("serve", false, "keep serving metrics on metrics.listen after the run")
}

const selftestKernel = `.version 7.0
.target sm_80
.address_size 64

.visible .entry copy(
	.param .u64 p_dst,
	.param .u64 p_src
)
{
	.reg .b32 %r<2>;
	.reg .b64 %rd<3>;
	ld.param.u64 %rd1, [p_dst];
	ld.param.u64 %rd2, [p_src];
	ld.global.u32 %r1, [%rd2];
	st.global.u32 [%rd1], %r1;
	ret;
}
`

type checker struct {
	out    io.Writer
	failed int
}

func (c *checker) expect(step string, got, want cudart.Error) bool {
	if got == want {
		fmt.Fprintf(c.out, "%s %-40s %s\n", color.GreenString("✓"), step, got.String())
		return true
	}
	c.failed++
	fmt.Fprintf(c.out, "%s %-40s got %s, want %s\n", color.RedString("✗"), step, got.String(), want.String())
	return false
}

func runSelftest(cmd *cobra.Command, args []string) error {
	source := []byte(selftestKernel)
	name := "selftest.ptx"
	if len(args) == 1 {
		name = args[0]
		var err error
		if source, err = os.ReadFile(name); err != nil {
			return err
		}
	}
	kernel, _ := cmd.Flags().GetString("kernel")
	serve, _ := cmd.Flags().GetBool("serve")

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	mem := shadow.NewMemory()
	sim := driver.NewSimulator(cfg.Driver.Devices, driver.WithQuerier(mem), driver.WithPermissive(cfg.Permissive))
	c, err := newCache(collectors)
	if err != nil {
		return err
	}
	rt := shim.NewRuntime(sim, c, shim.WithMarker(mem), shim.WithObserver(collectors))
	ctx := rt.NewContext()
	check := &checker{out: cmd.OutOrStdout()}

	devices, code := ctx.GetDeviceCount()
	if !check.expect(fmt.Sprintf("GetDeviceCount (%d)", devices), code, cudart.Success) {
		return fmt.Errorf("no device to test on")
	}
	check.expect("SetDeviceFlags(BlockingSync)", ctx.SetDeviceFlags(shim.DeviceScheduleBlockingSync), cudart.Success)

	mod, code := ctx.ModuleLoadData(source)
	if !check.expect("ModuleLoadData", code, cudart.Success) {
		if err := ctx.LastTranslationError(); err != nil && !report(name, source, err) {
			failure("%v", err)
		}
		return fmt.Errorf("self test failed")
	}
	fn, err := pickKernel(c, source, kernel)
	if err != nil {
		return err
	}
	f, code := ctx.ModuleGetFunction(mod, fn.Name)
	if !check.expect("ModuleGetFunction("+fn.Name+")", code, cudart.Success) {
		return fmt.Errorf("self test failed")
	}

	args64 := make([]uint64, len(fn.Params))
	var buffers []driver.DevicePtr
	for i, p := range fn.Params {
		if ir.TypeWidth(p.Type) != 8 {
			continue
		}
		ptr, code := ctx.Malloc(256)
		check.expect("Malloc("+p.Name+")", code, cudart.Success)
		args64[i] = uint64(ptr)
		buffers = append(buffers, ptr)
	}

	cfg1 := driver.LaunchConfig{Grid: driver.Dim3{X: 1, Y: 1, Z: 1}, Block: driver.Dim3{X: 32, Y: 1, Z: 1}}
	check.expect("LaunchKernel", ctx.LaunchKernel(f, cfg1, args64), cudart.Success)
	check.expect("DeviceSynchronize", ctx.DeviceSynchronize(), cudart.Success)

	if len(buffers) > 0 {
		check.expect("Free(first buffer)", ctx.Free(buffers[0]), cudart.Success)
		check.expect("LaunchKernel after free", ctx.LaunchKernel(f, cfg1, args64), cudart.ErrorLaunchFailure)
		check.expect("GetLastError", ctx.GetLastError(), cudart.ErrorLaunchFailure)
	}
	check.expect("GetLastError (consumed)", ctx.GetLastError(), cudart.Success)
	check.expect("SetDeviceFlags on active device", ctx.SetDeviceFlags(shim.DeviceScheduleSpin), cudart.ErrorSetOnActiveProcess)
	check.expect("ModuleUnload", ctx.ModuleUnload(mod), cudart.Success)

	if serve && cfg.Metrics.Listen != "" {
		if err := serveMetrics(cmd.Context(), cfg.Metrics.Listen, reg); err != nil {
			return err
		}
	}
	if check.failed > 0 {
		return fmt.Errorf("%d self test checks failed", check.failed)
	}
	return nil
}

// pickKernel returns the named entry point of the translated module, or
// its first entry point when name is empty.
func pickKernel(c *cache.Cache, image []byte, name string) (*ir.Function, error) {
	ptx, err := fatbin.Extract(image)
	if err != nil {
		return nil, err
	}
	entry, ok := c.Get(cache.FingerprintOf(ptx))
	if !ok {
		return nil, fmt.Errorf("module is not in the cache")
	}
	for _, fn := range entry.Module.Entries() {
		if !fn.Prototype && (name == "" || fn.Name == name) {
			return fn, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("module has no entry point")
	}
	return nil, fmt.Errorf("module has no entry point %q", name)
}

func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: metrics.Handler(g)}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	fmt.Fprintf(os.Stderr, "serving metrics on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
