// Package driver defines the collaborator the shim forwards calls to.
package driver

import "panoptes/internal/cudart"

// DevicePtr is a device virtual address.
type DevicePtr uint64

// ModuleHandle identifies a loaded module.
type ModuleHandle uint64

// FunctionHandle identifies a kernel inside a loaded module.
type FunctionHandle uint64

// Dim3 is a grid or block extent.
type Dim3 struct {
	X, Y, Z uint32
}

// LaunchConfig describes one kernel launch.
type LaunchConfig struct {
	Grid        Dim3
	Block       Dim3
	SharedBytes uint32
}

// DeviceInfo describes one device.
type DeviceInfo struct {
	Name              string
	TotalMemory       uint64
	ComputeCapability string
}

// Driver is the real device driver seen from the shim. Every method reports
// a result code; ordinal always names a device whose context was created
// with CreateContext, except for DeviceCount, DeviceInfo and CreateContext
// itself.
//
// Implementations must be safe for concurrent use.
type Driver interface {
	DeviceCount() (int, cudart.Error)
	DeviceInfo(ordinal int) (DeviceInfo, cudart.Error)

	// CreateContext makes the primary context of ordinal current with the
	// given scheduling flags.
	CreateContext(ordinal int, flags uint32) cudart.Error
	// DestroyContext tears the context down and releases its resources.
	DestroyContext(ordinal int) cudart.Error
	Synchronize(ordinal int) cudart.Error

	Malloc(ordinal int, size uint64) (DevicePtr, cudart.Error)
	Free(ordinal int, ptr DevicePtr) cudart.Error
	MemcpyHtoD(ordinal int, dst DevicePtr, src []byte) cudart.Error
	MemcpyDtoH(ordinal int, dst []byte, src DevicePtr) cudart.Error
	MemcpyDtoD(ordinal int, dst, src DevicePtr, n uint64) cudart.Error
	Memset(ordinal int, dst DevicePtr, value byte, n uint64) cudart.Error

	// LoadModule JIT-compiles PTX text.
	LoadModule(ordinal int, ptx []byte) (ModuleHandle, cudart.Error)
	UnloadModule(ordinal int, m ModuleHandle) cudart.Error
	GetFunction(ordinal int, m ModuleHandle, name string) (FunctionHandle, cudart.Error)
	// Launch enqueues a kernel. args holds one value per kernel parameter.
	Launch(ordinal int, f FunctionHandle, cfg LaunchConfig, args []uint64) cudart.Error
}
