package cudart

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericValues(t *testing.T) {
	tests := []struct {
		code Error
		want int
	}{
		{Success, 0},
		{ErrorInvalidValue, 1},
		{ErrorMemoryAllocation, 2},
		{ErrorInitializationError, 3},
		{ErrorNoDevice, 100},
		{ErrorInvalidDevice, 101},
		{ErrorInvalidKernelImage, 200},
		{ErrorDeviceUninitialized, 201},
		{ErrorInvalidPtx, 218},
		{ErrorInvalidResourceHandle, 400},
		{ErrorNotFound, 500},
		{ErrorIllegalAddress, 700},
		{ErrorSetOnActiveProcess, 708},
		{ErrorLaunchFailure, 719},
		{ErrorUnknown, 999},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, int(tt.code))
			assert.True(t, Known(tt.code))
			if tt.code != ErrorUnknown {
				assert.NotEqual(t, "unknown error", GetErrorString(tt.code))
			}
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, "cudaSuccess", GetErrorName(Success))
	assert.Equal(t, "cudaErrorInvalidDevice", GetErrorName(ErrorInvalidDevice))
	assert.Equal(t, "cudaErrorSetOnActiveProcess", ErrorSetOnActiveProcess.String())
	assert.Equal(t, "cudaErrorUnknown", GetErrorName(Error(12345)))
	assert.False(t, Known(Error(12345)))
	assert.Equal(t, "unknown error", GetErrorString(Error(12345)))
}

func TestAsGoError(t *testing.T) {
	assert.NoError(t, Success.Err())

	err := fmt.Errorf("load module: %w", ErrorInvalidPtx.Err())
	assert.True(t, errors.Is(err, ErrorInvalidPtx))
	assert.EqualError(t, ErrorInvalidPtx, "cudaErrorInvalidPtx: a PTX JIT compilation failed")

	var code Error
	assert.True(t, errors.As(err, &code))
	assert.Equal(t, ErrorInvalidPtx, code)
}
