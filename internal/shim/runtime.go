package shim

import (
	"sync"

	"github.com/tliron/commonlog"

	"panoptes/internal/cache"
	"panoptes/internal/cudart"
	"panoptes/internal/driver"
	"panoptes/internal/shadow"
)

var log = commonlog.GetLogger("panoptes.shim")

// Observer is notified of the result of every recorded call.
type Observer interface {
	Call(name string, code cudart.Error)
}

// Runtime holds the process-wide collaborators shared by every Context:
// the driver, the module cache and the shadow marker. Device contexts and
// allocations belong to the process, so they are tracked here too.
type Runtime struct {
	driver   driver.Driver
	cache    *cache.Cache
	marker   shadow.Marker
	observer Observer

	mu       sync.Mutex
	contexts map[uint64]*Context

	devMu     sync.Mutex
	primaries map[int]*primary
	allocs    map[driver.DevicePtr]allocation
}

// primary is the driver context of one device. Generation changes every
// time the context is created, so a Context can tell that a reset issued
// elsewhere invalidated what it activated.
type primary struct {
	live       bool
	flags      uint32
	generation uint64
}

type allocation struct {
	ordinal int
	size    uint64
}

type Option func(*Runtime)

// WithMarker makes allocations and frees update shadow validity.
func WithMarker(m shadow.Marker) Option {
	return func(r *Runtime) { r.marker = m }
}

func WithObserver(o Observer) Option {
	return func(r *Runtime) { r.observer = o }
}

func NewRuntime(drv driver.Driver, c *cache.Cache, opts ...Option) *Runtime {
	r := &Runtime{
		driver:   drv,
		cache:     c,
		contexts:  make(map[uint64]*Context),
		primaries: make(map[int]*primary),
		allocs:    make(map[driver.DevicePtr]allocation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewContext returns a fresh execution context with device 0 selected and
// no pending error.
func (r *Runtime) NewContext() *Context {
	return &Context{
		rt:      r,
		devices: make(map[int]*DeviceContext),
		modules: make(map[driver.ModuleHandle]*loadedModule),
	}
}

// ContextFor returns the context bound to a caller-supplied thread id,
// creating it on first use.
func (r *Runtime) ContextFor(id uint64) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[id]
	if !ok {
		c = r.NewContext()
		r.contexts[id] = c
	}
	return c
}

// Forget drops the context bound to id. Later calls to ContextFor with the
// same id start from a fresh context.
func (r *Runtime) Forget(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contexts, id)
}

// Cache returns the module cache shared by all contexts.
func (r *Runtime) Cache() *cache.Cache {
	return r.cache
}

func (r *Runtime) primaryFor(ordinal int) *primary {
	p, ok := r.primaries[ordinal]
	if !ok {
		p = &primary{}
		r.primaries[ordinal] = p
	}
	return p
}

// current reports the generation of ordinal's driver context and whether
// it is live.
func (r *Runtime) current(ordinal int) (uint64, bool) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	p := r.primaryFor(ordinal)
	return p.generation, p.live
}

// acquire makes sure ordinal has a live driver context, creating it with
// flags when there is none. It returns the generation and the flags the
// live context was created with.
func (r *Runtime) acquire(ordinal int, flags uint32) (uint64, uint32, cudart.Error) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	p := r.primaryFor(ordinal)
	if p.live {
		return p.generation, p.flags, cudart.Success
	}
	if code := r.driver.CreateContext(ordinal, flags); code != cudart.Success {
		return 0, 0, code
	}
	p.live = true
	p.flags = flags
	p.generation++
	log.Debugf("device %d activated with flags %#x", ordinal, flags)
	return p.generation, flags, cudart.Success
}

// reset destroys ordinal's driver context and invalidates every
// allocation made on it, whichever context made it.
func (r *Runtime) reset(ordinal int) cudart.Error {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	p := r.primaryFor(ordinal)
	if !p.live {
		return cudart.Success
	}
	if code := r.driver.DestroyContext(ordinal); code != cudart.Success {
		return code
	}
	p.live = false
	for ptr, a := range r.allocs {
		if a.ordinal == ordinal {
			r.invalidate(ptr, a)
		}
	}
	return cudart.Success
}

// track records a fresh allocation and marks it valid.
func (r *Runtime) track(ptr driver.DevicePtr, a allocation) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	r.allocs[ptr] = a
	if r.marker != nil {
		r.marker.Mark(uint64(ptr), a.size, true)
	}
}

// untrack forgets a freed allocation and marks it invalid.
func (r *Runtime) untrack(ptr driver.DevicePtr) {
	r.devMu.Lock()
	defer r.devMu.Unlock()
	if a, ok := r.allocs[ptr]; ok {
		r.invalidate(ptr, a)
	}
}

func (r *Runtime) invalidate(ptr driver.DevicePtr, a allocation) {
	delete(r.allocs, ptr)
	if r.marker != nil {
		r.marker.Mark(uint64(ptr), a.size, false)
	}
}
