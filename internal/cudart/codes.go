package cudart

import "fmt"

// Error is a runtime result code. The numeric values are those of the
// native runtime API (10.1 and later); applications compare against them,
// so they must never be renumbered.
//
// Code ranges:
// 0-99:    argument and allocation errors
// 100-199: device enumeration errors
// 200-299: module and image errors
// 400-499: handle errors
// 500-599: lookup errors
// 700-799: launch and execution errors
// 999:     unknown
type Error int

const (
	Success Error = 0

	// 1: Invalid argument value, including unknown device flags
	ErrorInvalidValue Error = 1

	// 2: Device allocation failed
	ErrorMemoryAllocation Error = 2

	// 3: Driver or runtime could not be initialised
	ErrorInitializationError Error = 3

	// 100: No device present
	ErrorNoDevice Error = 100

	// 101: Device ordinal out of range
	ErrorInvalidDevice Error = 101

	// 200: Image could not be loaded
	ErrorInvalidKernelImage Error = 200

	// 201: No context bound
	ErrorDeviceUninitialized Error = 201

	// 218: PTX failed to translate or compile
	ErrorInvalidPtx Error = 218

	// 400: Unknown module, function or allocation handle
	ErrorInvalidResourceHandle Error = 400

	// 500: Named symbol not found
	ErrorNotFound Error = 500

	// 700: Kernel touched an invalid address
	ErrorIllegalAddress Error = 700

	// 708: Device flags changed after the context became active
	ErrorSetOnActiveProcess Error = 708

	// 719: Kernel trapped or faulted during execution
	ErrorLaunchFailure Error = 719

	ErrorUnknown Error = 999
)

var errorNames = map[Error]string{
	Success:                    "cudaSuccess",
	ErrorInvalidValue:          "cudaErrorInvalidValue",
	ErrorMemoryAllocation:      "cudaErrorMemoryAllocation",
	ErrorInitializationError:   "cudaErrorInitializationError",
	ErrorNoDevice:              "cudaErrorNoDevice",
	ErrorInvalidDevice:         "cudaErrorInvalidDevice",
	ErrorInvalidKernelImage:    "cudaErrorInvalidKernelImage",
	ErrorDeviceUninitialized:   "cudaErrorDeviceUninitialized",
	ErrorInvalidPtx:            "cudaErrorInvalidPtx",
	ErrorInvalidResourceHandle: "cudaErrorInvalidResourceHandle",
	ErrorNotFound:              "cudaErrorNotFound",
	ErrorIllegalAddress:        "cudaErrorIllegalAddress",
	ErrorSetOnActiveProcess:    "cudaErrorSetOnActiveProcess",
	ErrorLaunchFailure:         "cudaErrorLaunchFailure",
	ErrorUnknown:               "cudaErrorUnknown",
}

// GetErrorName returns the symbolic name of a result code.
func GetErrorName(e Error) string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return "cudaErrorUnknown"
}

// GetErrorString returns a human-readable description of the result code
func GetErrorString(e Error) string {
	switch e {
	case Success:
		return "no error"
	case ErrorInvalidValue:
		return "invalid argument"
	case ErrorMemoryAllocation:
		return "out of memory"
	case ErrorInitializationError:
		return "initialization error"
	case ErrorNoDevice:
		return "no CUDA-capable device is detected"
	case ErrorInvalidDevice:
		return "invalid device ordinal"
	case ErrorInvalidKernelImage:
		return "device kernel image is invalid"
	case ErrorDeviceUninitialized:
		return "invalid device context"
	case ErrorInvalidPtx:
		return "a PTX JIT compilation failed"
	case ErrorInvalidResourceHandle:
		return "invalid resource handle"
	case ErrorNotFound:
		return "named symbol not found"
	case ErrorIllegalAddress:
		return "an illegal memory access was encountered"
	case ErrorSetOnActiveProcess:
		return "cannot set while device is active in this process"
	case ErrorLaunchFailure:
		return "unspecified launch failure"
	default:
		return "unknown error"
	}
}

// Known reports whether e is one of the codes above.
func Known(e Error) bool {
	_, ok := errorNames[e]
	return ok
}

func (e Error) String() string {
	return GetErrorName(e)
}

// Error makes result codes usable as Go errors when a failure has to cross
// an error-returning boundary. Success is never returned that way.
func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", GetErrorName(e), GetErrorString(e))
}

// Err converts e to a Go error, nil for Success.
func (e Error) Err() error {
	if e == Success {
		return nil
	}
	return e
}
