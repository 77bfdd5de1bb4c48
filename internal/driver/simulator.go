package driver

import (
	"fmt"
	"sync"

	"github.com/tliron/commonlog"

	"panoptes/internal/cudart"
	"panoptes/internal/instrument"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
	"panoptes/internal/shadow"
)

var log = commonlog.GetLogger("panoptes.driver")

// DefaultMemory is the per-device memory size of the simulator.
const DefaultMemory = 1 << 30

// Simulator is an in-process driver. It keeps device memory in host slices,
// JIT-compiles modules by parsing them, and runs kernels only as far as
// checking their pointer arguments: an instrumented kernel traps with a
// launch failure when the querier reports a 64-bit argument invalid, or
// not valid unless the simulator is permissive, as the guards would.
type Simulator struct {
	mu         sync.Mutex
	devices    []*simDevice
	querier    shadow.Querier
	permissive bool

	nextModule   ModuleHandle
	nextFunction FunctionHandle
}

type simDevice struct {
	info      DeviceInfo
	active    bool
	flags     uint32
	used      uint64
	next      DevicePtr
	allocs    map[DevicePtr][]byte
	modules   map[ModuleHandle]*simModule
	functions map[FunctionHandle]simFunction
}

type simFunction struct {
	fn      *ir.Function
	guarded bool
}

type simModule struct {
	module    *ir.Module
	functions map[string]FunctionHandle
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithQuerier lets launches of instrumented kernels consult q.
func WithQuerier(q shadow.Querier) SimulatorOption {
	return func(s *Simulator) { s.querier = q }
}

// WithPermissive lets arguments of unknown shadow status through, matching
// guards generated with the permissive policy.
func WithPermissive(permissive bool) SimulatorOption {
	return func(s *Simulator) { s.permissive = permissive }
}

// WithMemory sets the memory size of every device.
func WithMemory(bytes uint64) SimulatorOption {
	return func(s *Simulator) {
		for _, d := range s.devices {
			d.info.TotalMemory = bytes
		}
	}
}

func NewSimulator(devices int, opts ...SimulatorOption) *Simulator {
	s := &Simulator{}
	for i := range devices {
		s.devices = append(s.devices, &simDevice{
			info: DeviceInfo{
				Name:              fmt.Sprintf("Simulated Device %d", i),
				TotalMemory:       DefaultMemory,
				ComputeCapability: "8.0",
			},
			// Each device gets its own slice of the address space.
			next: DevicePtr(0x7f00_0000_0000 + uint64(i)<<36),
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) device(ordinal int) (*simDevice, cudart.Error) {
	if ordinal < 0 || ordinal >= len(s.devices) {
		return nil, cudart.ErrorInvalidDevice
	}
	d := s.devices[ordinal]
	if !d.active {
		return nil, cudart.ErrorDeviceUninitialized
	}
	return d, cudart.Success
}

func (s *Simulator) DeviceCount() (int, cudart.Error) {
	if len(s.devices) == 0 {
		return 0, cudart.ErrorNoDevice
	}
	return len(s.devices), cudart.Success
}

func (s *Simulator) DeviceInfo(ordinal int) (DeviceInfo, cudart.Error) {
	if ordinal < 0 || ordinal >= len(s.devices) {
		return DeviceInfo{}, cudart.ErrorInvalidDevice
	}
	return s.devices[ordinal].info, cudart.Success
}

func (s *Simulator) CreateContext(ordinal int, flags uint32) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ordinal < 0 || ordinal >= len(s.devices) {
		return cudart.ErrorInvalidDevice
	}
	d := s.devices[ordinal]
	if d.active {
		return cudart.Success
	}
	d.active = true
	d.flags = flags
	d.allocs = make(map[DevicePtr][]byte)
	d.modules = make(map[ModuleHandle]*simModule)
	d.functions = make(map[FunctionHandle]simFunction)
	log.Debugf("context created on device %d with flags %#x", ordinal, flags)
	return cudart.Success
}

func (s *Simulator) DestroyContext(ordinal int) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	d.active = false
	d.used = 0
	d.allocs = nil
	d.modules = nil
	d.functions = nil
	return cudart.Success
}

func (s *Simulator) Synchronize(ordinal int) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, code := s.device(ordinal)
	return code
}

func (s *Simulator) Malloc(ordinal int, size uint64) (DevicePtr, cudart.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return 0, code
	}
	if size > d.info.TotalMemory-d.used {
		return 0, cudart.ErrorMemoryAllocation
	}
	ptr := d.next
	// 256-byte alignment, as the real allocator guarantees.
	d.next += DevicePtr((max(size, 1) + 255) &^ 255)
	d.used += size
	d.allocs[ptr] = make([]byte, size)
	return ptr, cudart.Success
}

func (s *Simulator) Free(ordinal int, ptr DevicePtr) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	if ptr == 0 {
		return cudart.Success
	}
	buf, ok := d.allocs[ptr]
	if !ok {
		return cudart.ErrorInvalidValue
	}
	d.used -= uint64(len(buf))
	delete(d.allocs, ptr)
	return cudart.Success
}

// span returns the bytes backing [ptr, ptr+n) if they lie inside a single
// allocation.
func (d *simDevice) span(ptr DevicePtr, n uint64) ([]byte, bool) {
	for base, buf := range d.allocs {
		if ptr >= base && uint64(ptr-base) <= uint64(len(buf)) && n <= uint64(len(buf))-uint64(ptr-base) {
			off := uint64(ptr - base)
			return buf[off : off+n], true
		}
	}
	return nil, false
}

func (s *Simulator) MemcpyHtoD(ordinal int, dst DevicePtr, src []byte) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	buf, ok := d.span(dst, uint64(len(src)))
	if !ok {
		return cudart.ErrorInvalidValue
	}
	copy(buf, src)
	return cudart.Success
}

func (s *Simulator) MemcpyDtoH(ordinal int, dst []byte, src DevicePtr) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	buf, ok := d.span(src, uint64(len(dst)))
	if !ok {
		return cudart.ErrorInvalidValue
	}
	copy(dst, buf)
	return cudart.Success
}

func (s *Simulator) MemcpyDtoD(ordinal int, dst, src DevicePtr, n uint64) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	from, ok := d.span(src, n)
	if !ok {
		return cudart.ErrorInvalidValue
	}
	to, ok := d.span(dst, n)
	if !ok {
		return cudart.ErrorInvalidValue
	}
	copy(to, from)
	return cudart.Success
}

func (s *Simulator) Memset(ordinal int, dst DevicePtr, value byte, n uint64) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	buf, ok := d.span(dst, n)
	if !ok {
		return cudart.ErrorInvalidValue
	}
	for i := range buf {
		buf[i] = value
	}
	return cudart.Success
}

func (s *Simulator) LoadModule(ordinal int, ptx []byte) (ModuleHandle, cudart.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return 0, code
	}
	m, err := parser.Parse("jit.ptx", string(ptx))
	if err != nil {
		log.Warningf("JIT rejected module: %s", err)
		return 0, cudart.ErrorInvalidPtx
	}
	s.nextModule++
	d.modules[s.nextModule] = &simModule{module: m, functions: make(map[string]FunctionHandle)}
	return s.nextModule, cudart.Success
}

func (s *Simulator) UnloadModule(ordinal int, h ModuleHandle) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	m, ok := d.modules[h]
	if !ok {
		return cudart.ErrorInvalidResourceHandle
	}
	for _, f := range m.functions {
		delete(d.functions, f)
	}
	delete(d.modules, h)
	return cudart.Success
}

func (s *Simulator) GetFunction(ordinal int, h ModuleHandle, name string) (FunctionHandle, cudart.Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return 0, code
	}
	m, ok := d.modules[h]
	if !ok {
		return 0, cudart.ErrorInvalidResourceHandle
	}
	if f, ok := m.functions[name]; ok {
		return f, cudart.Success
	}
	fn := m.module.Function(name)
	if fn == nil || fn.Kind != ir.FunctionEntry || fn.Prototype {
		return 0, cudart.ErrorNotFound
	}
	s.nextFunction++
	m.functions[name] = s.nextFunction
	d.functions[s.nextFunction] = simFunction{fn: fn, guarded: instrument.IsInstrumented(m.module)}
	return s.nextFunction, cudart.Success
}

func (s *Simulator) Launch(ordinal int, f FunctionHandle, cfg LaunchConfig, args []uint64) cudart.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, code := s.device(ordinal)
	if code != cudart.Success {
		return code
	}
	sf, ok := d.functions[f]
	if !ok {
		return cudart.ErrorInvalidResourceHandle
	}
	fn := sf.fn
	if cfg.Grid.X == 0 || cfg.Block.X == 0 || len(args) != len(fn.Params) {
		return cudart.ErrorInvalidValue
	}
	if s.querier == nil || !sf.guarded {
		return cudart.Success
	}
	for i, p := range fn.Params {
		if ir.TypeWidth(p.Type) != 8 {
			continue
		}
		status := s.querier.Query(args[i], 1)
		if status == shadow.Invalid || (status == shadow.Unknown && !s.permissive) {
			log.Infof("kernel %s trapped on argument %s = %#x", fn.Name, p.Name, args[i])
			return cudart.ErrorLaunchFailure
		}
	}
	return cudart.Success
}
