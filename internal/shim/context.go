package shim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"panoptes/internal/cache"
	"panoptes/internal/cudart"
	"panoptes/internal/driver"
	"panoptes/internal/fatbin"
)

// DeviceContext tracks one device ordinal as seen from a single execution
// context. It is created on first touch and activated lazily by the first
// call that needs a live device context.
type DeviceContext struct {
	Ordinal int
	Flags   uint32
	Active  bool

	generation uint64
}

type loadedModule struct {
	ordinal    int
	generation uint64
	entry      *cache.Entry
}

// Context is the per-execution-context state machine: the selected
// device, per-device flags and activation, and the sticky error slot.
// Calls are serialized. Device contexts and allocations are process-wide
// and live on the Runtime.
type Context struct {
	rt *Runtime

	mu          sync.Mutex
	pending     cudart.Error
	device      int
	devices     map[int]*DeviceContext
	modules     map[driver.ModuleHandle]*loadedModule
	translation error
}

// invoke runs fn under the context lock, converts a driver panic into
// ErrorUnknown and records the result.
func (c *Context) invoke(name string, fn func() cudart.Error) (code cudart.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("%s: driver panicked: %v", name, r)
			code = cudart.ErrorUnknown
		}
		c.record(name, code)
	}()
	return fn()
}

// record stores a failure in the pending slot. A success never clears an
// earlier failure; only GetLastError does.
func (c *Context) record(name string, code cudart.Error) {
	if code != cudart.Success {
		log.Debugf("%s: %s", name, code)
		c.pending = code
	}
	if c.rt.observer != nil {
		c.rt.observer.Call(name, code)
	}
}

func (c *Context) deviceContext(ordinal int) *DeviceContext {
	dc, ok := c.devices[ordinal]
	if !ok {
		dc = &DeviceContext{Ordinal: ordinal}
		c.devices[ordinal] = dc
	}
	return dc
}

// activate makes sure the selected device has a live driver context,
// creating it with the flags recorded so far. A context reset by another
// Context is re-created here, the way the runtime re-creates a primary
// context. When another Context already activated the device with other
// flags, those flags are adopted and the call fails with
// ErrorSetOnActiveProcess; the next call proceeds.
func (c *Context) activate() (*DeviceContext, cudart.Error) {
	dc := c.deviceContext(c.device)
	if dc.Active {
		gen, live := c.rt.current(dc.Ordinal)
		if live && gen == dc.generation {
			return dc, cudart.Success
		}
		c.dropStale(dc)
	}
	gen, flags, code := c.rt.acquire(dc.Ordinal, dc.Flags)
	if code != cudart.Success {
		return nil, code
	}
	dc.Active = true
	dc.generation = gen
	if flags != dc.Flags {
		log.Warningf("device %d is active with flags %#x, ignoring %#x", dc.Ordinal, flags, dc.Flags)
		dc.Flags = flags
		return nil, cudart.ErrorSetOnActiveProcess
	}
	return dc, cudart.Success
}

// dropStale forgets the activation of dc and the modules this context
// loaded into the driver context that has since been destroyed.
func (c *Context) dropStale(dc *DeviceContext) {
	dc.Active = false
	for h, m := range c.modules {
		if m.ordinal == dc.Ordinal && m.generation == dc.generation {
			m.entry.Release()
			delete(c.modules, h)
		}
	}
}

// module returns a loaded module whose driver context is still live.
func (c *Context) module(h driver.ModuleHandle) (*loadedModule, bool) {
	m, ok := c.modules[h]
	if !ok {
		return nil, false
	}
	if gen, live := c.rt.current(m.ordinal); !live || gen != m.generation {
		m.entry.Release()
		delete(c.modules, h)
		return nil, false
	}
	return m, true
}

// Device returns a snapshot of the state tracked for ordinal. Active is
// false once the device was reset, by this context or another.
func (c *Context) Device(ordinal int) (DeviceContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dc, ok := c.devices[ordinal]
	if !ok {
		return DeviceContext{}, false
	}
	snap := *dc
	if gen, live := c.rt.current(ordinal); !live || gen != dc.generation {
		snap.Active = false
	}
	return snap, true
}

func (c *Context) GetDeviceCount() (count int, code cudart.Error) {
	code = c.invoke("GetDeviceCount", func() cudart.Error {
		n, code := c.rt.driver.DeviceCount()
		if code == cudart.Success {
			count = n
		}
		return code
	})
	return count, code
}

// SetDevice selects the device used by subsequent calls. An ordinal out of
// range fails with ErrorInvalidDevice and keeps the current selection.
func (c *Context) SetDevice(ordinal int) cudart.Error {
	return c.invoke("SetDevice", func() cudart.Error {
		n, code := c.rt.driver.DeviceCount()
		if code != cudart.Success {
			return code
		}
		if ordinal < 0 || ordinal >= n {
			return cudart.ErrorInvalidDevice
		}
		c.device = ordinal
		return cudart.Success
	})
}

func (c *Context) GetDevice() (ordinal int, code cudart.Error) {
	code = c.invoke("GetDevice", func() cudart.Error {
		ordinal = c.device
		return cudart.Success
	})
	return ordinal, code
}

// SetDeviceFlags records the flags used when the selected device is
// activated. Once the device is active, through any context, the flags are
// locked and the call fails with ErrorSetOnActiveProcess.
func (c *Context) SetDeviceFlags(flags uint32) cudart.Error {
	return c.invoke("SetDeviceFlags", func() cudart.Error {
		if !validFlags(flags) {
			return cudart.ErrorInvalidValue
		}
		dc := c.deviceContext(c.device)
		if _, live := c.rt.current(dc.Ordinal); live {
			return cudart.ErrorSetOnActiveProcess
		}
		dc.Flags = flags
		return cudart.Success
	})
}

func (c *Context) GetDeviceFlags() (flags uint32, code cudart.Error) {
	code = c.invoke("GetDeviceFlags", func() cudart.Error {
		flags = c.deviceContext(c.device).Flags
		return cudart.Success
	})
	return flags, code
}

// Malloc allocates device memory on the selected device and marks it valid
// in the shadow.
func (c *Context) Malloc(size uint64) (ptr driver.DevicePtr, code cudart.Error) {
	code = c.invoke("Malloc", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		p, code := c.rt.driver.Malloc(dc.Ordinal, size)
		if code != cudart.Success {
			return code
		}
		c.rt.track(p, allocation{ordinal: dc.Ordinal, size: size})
		ptr = p
		return cudart.Success
	})
	return ptr, code
}

// Free releases an allocation, whichever context made it, and marks its
// range invalid. Freeing the null pointer only activates the device.
func (c *Context) Free(ptr driver.DevicePtr) cudart.Error {
	return c.invoke("Free", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		if code := c.rt.driver.Free(dc.Ordinal, ptr); code != cudart.Success {
			return code
		}
		c.rt.untrack(ptr)
		return cudart.Success
	})
}

func (c *Context) MemcpyHtoD(dst driver.DevicePtr, src []byte) cudart.Error {
	return c.invoke("MemcpyHtoD", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.MemcpyHtoD(dc.Ordinal, dst, src)
	})
}

func (c *Context) MemcpyDtoH(dst []byte, src driver.DevicePtr) cudart.Error {
	return c.invoke("MemcpyDtoH", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.MemcpyDtoH(dc.Ordinal, dst, src)
	})
}

func (c *Context) MemcpyDtoD(dst, src driver.DevicePtr, n uint64) cudart.Error {
	return c.invoke("MemcpyDtoD", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.MemcpyDtoD(dc.Ordinal, dst, src, n)
	})
}

func (c *Context) Memset(dst driver.DevicePtr, value byte, n uint64) cudart.Error {
	return c.invoke("Memset", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.Memset(dc.Ordinal, dst, value, n)
	})
}

func (c *Context) DeviceSynchronize() cudart.Error {
	return c.invoke("DeviceSynchronize", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.Synchronize(dc.Ordinal)
	})
}

// DeviceReset tears down the selected device's context for the whole
// process. Every allocation on that device is invalidated and this
// context's modules there are dropped; other contexts notice on their next
// call and re-activate. The flags may be changed again until the next
// activation.
func (c *Context) DeviceReset() cudart.Error {
	return c.invoke("DeviceReset", func() cudart.Error {
		dc := c.deviceContext(c.device)
		if code := c.rt.reset(dc.Ordinal); code != cudart.Success {
			return code
		}
		if dc.Active {
			c.dropStale(dc)
		}
		return cudart.Success
	})
}

// ModuleLoadData is ModuleLoadDataContext without a deadline.
func (c *Context) ModuleLoadData(image []byte) (driver.ModuleHandle, cudart.Error) {
	return c.ModuleLoadDataContext(context.Background(), image)
}

// ModuleLoadDataContext unwraps image, translates its PTX through the
// shared cache and hands the instrumented text to the driver. A module
// that cannot be translated fails with ErrorInvalidPtx; the underlying
// error is available from LastTranslationError.
func (c *Context) ModuleLoadDataContext(ctx context.Context, image []byte) (h driver.ModuleHandle, code cudart.Error) {
	code = c.invoke("ModuleLoadData", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		c.translation = nil
		ptx, err := fatbin.Extract(image)
		if err != nil {
			c.translation = fmt.Errorf("unwrap module image: %w", err)
			return cudart.ErrorInvalidKernelImage
		}
		entry, err := c.rt.cache.Translate(ctx, ptx)
		if err != nil {
			c.translation = err
			var te *cache.TranslationError
			if errors.As(err, &te) {
				return cudart.ErrorInvalidPtx
			}
			return cudart.ErrorUnknown
		}
		mh, code := c.rt.driver.LoadModule(dc.Ordinal, entry.Text)
		if code != cudart.Success {
			entry.Release()
			return code
		}
		c.modules[mh] = &loadedModule{ordinal: dc.Ordinal, generation: dc.generation, entry: entry}
		h = mh
		return cudart.Success
	})
	return h, code
}

func (c *Context) ModuleUnload(h driver.ModuleHandle) cudart.Error {
	return c.invoke("ModuleUnload", func() cudart.Error {
		m, ok := c.module(h)
		if !ok {
			return cudart.ErrorInvalidResourceHandle
		}
		if code := c.rt.driver.UnloadModule(m.ordinal, h); code != cudart.Success {
			return code
		}
		m.entry.Release()
		delete(c.modules, h)
		return cudart.Success
	})
}

func (c *Context) ModuleGetFunction(h driver.ModuleHandle, name string) (f driver.FunctionHandle, code cudart.Error) {
	code = c.invoke("ModuleGetFunction", func() cudart.Error {
		m, ok := c.module(h)
		if !ok {
			return cudart.ErrorInvalidResourceHandle
		}
		fh, code := c.rt.driver.GetFunction(m.ordinal, h, name)
		if code != cudart.Success {
			return code
		}
		f = fh
		return cudart.Success
	})
	return f, code
}

// LaunchKernel launches f on the selected device. A guard violation inside
// the kernel surfaces here as ErrorLaunchFailure.
func (c *Context) LaunchKernel(f driver.FunctionHandle, cfg driver.LaunchConfig, args []uint64) cudart.Error {
	return c.invoke("LaunchKernel", func() cudart.Error {
		dc, code := c.activate()
		if code != cudart.Success {
			return code
		}
		return c.rt.driver.Launch(dc.Ordinal, f, cfg, args)
	})
}

// GetLastError returns the pending error and resets it to Success.
func (c *Context) GetLastError() cudart.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := c.pending
	c.pending = cudart.Success
	return code
}

// PeekAtLastError returns the pending error without resetting it.
func (c *Context) PeekAtLastError() cudart.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// LastTranslationError returns the detailed error behind the most recent
// failed module load, or nil if the last load succeeded.
func (c *Context) LastTranslationError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.translation
}
