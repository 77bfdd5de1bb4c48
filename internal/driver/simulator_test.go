package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panoptes/internal/cudart"
	"panoptes/internal/instrument"
	"panoptes/internal/ir"
	"panoptes/internal/parser"
	"panoptes/internal/shadow"
)

const copyKernel = `.version 7.0
.target sm_80
.address_size 64
.visible .entry copy(
	.param .u64 p_dst,
	.param .u64 p_src
)
{
	.reg .b64 %rd<3>;
	.reg .b32 %r1;
	ld.param.u64 %rd1, [p_dst];
	ld.param.u64 %rd2, [p_src];
	ld.global.u32 %r1, [%rd2];
	st.global.u32 [%rd1], %r1;
	ret;
}
`

var oneThread = LaunchConfig{Grid: Dim3{1, 1, 1}, Block: Dim3{1, 1, 1}}

func TestDeviceEnumeration(t *testing.T) {
	s := NewSimulator(2)
	n, code := s.DeviceCount()
	assert.Equal(t, cudart.Success, code)
	assert.Equal(t, 2, n)

	info, code := s.DeviceInfo(1)
	assert.Equal(t, cudart.Success, code)
	assert.Equal(t, "Simulated Device 1", info.Name)

	_, code = s.DeviceInfo(2)
	assert.Equal(t, cudart.ErrorInvalidDevice, code)

	_, code = NewSimulator(0).DeviceCount()
	assert.Equal(t, cudart.ErrorNoDevice, code)
}

func TestCallsNeedContext(t *testing.T) {
	s := NewSimulator(1)
	_, code := s.Malloc(0, 16)
	assert.Equal(t, cudart.ErrorDeviceUninitialized, code)
	assert.Equal(t, cudart.ErrorInvalidDevice, s.CreateContext(3, 0))
	require.Equal(t, cudart.Success, s.CreateContext(0, 0))
	_, code = s.Malloc(0, 16)
	assert.Equal(t, cudart.Success, code)
}

func TestMemoryRoundTrip(t *testing.T) {
	s := NewSimulator(1)
	require.Equal(t, cudart.Success, s.CreateContext(0, 0))

	a, code := s.Malloc(0, 64)
	require.Equal(t, cudart.Success, code)
	b, code := s.Malloc(0, 64)
	require.Equal(t, cudart.Success, code)
	assert.Zero(t, uint64(a)%256)
	assert.NotEqual(t, a, b)

	require.Equal(t, cudart.Success, s.MemcpyHtoD(0, a, []byte("hello")))
	require.Equal(t, cudart.Success, s.MemcpyDtoD(0, b+8, a, 5))
	require.Equal(t, cudart.Success, s.Memset(0, b, '-', 8))

	out := make([]byte, 13)
	require.Equal(t, cudart.Success, s.MemcpyDtoH(0, out, b))
	assert.Equal(t, "--------hello", string(out))

	assert.Equal(t, cudart.ErrorInvalidValue, s.MemcpyHtoD(0, a+60, []byte("overflow")))
	assert.Equal(t, cudart.ErrorInvalidValue, s.Free(0, a+1))
	assert.Equal(t, cudart.Success, s.Free(0, a))
	assert.Equal(t, cudart.ErrorInvalidValue, s.Free(0, a))
	assert.Equal(t, cudart.Success, s.Free(0, 0))
}

func TestOutOfMemory(t *testing.T) {
	s := NewSimulator(1, WithMemory(1024))
	require.Equal(t, cudart.Success, s.CreateContext(0, 0))
	_, code := s.Malloc(0, 1000)
	require.Equal(t, cudart.Success, code)
	_, code = s.Malloc(0, 100)
	assert.Equal(t, cudart.ErrorMemoryAllocation, code)
}

func TestModulesAndLaunch(t *testing.T) {
	s := NewSimulator(1)
	require.Equal(t, cudart.Success, s.CreateContext(0, 0))

	_, code := s.LoadModule(0, []byte(".entry k(\n"))
	assert.Equal(t, cudart.ErrorInvalidPtx, code)

	mod, code := s.LoadModule(0, []byte(copyKernel))
	require.Equal(t, cudart.Success, code)

	_, code = s.GetFunction(0, mod, "missing")
	assert.Equal(t, cudart.ErrorNotFound, code)
	fn, code := s.GetFunction(0, mod, "copy")
	require.Equal(t, cudart.Success, code)
	again, _ := s.GetFunction(0, mod, "copy")
	assert.Equal(t, fn, again)

	assert.Equal(t, cudart.Success, s.Launch(0, fn, oneThread, []uint64{1, 2}))
	assert.Equal(t, cudart.ErrorInvalidValue, s.Launch(0, fn, oneThread, []uint64{1}))
	assert.Equal(t, cudart.ErrorInvalidValue, s.Launch(0, fn, LaunchConfig{}, []uint64{1, 2}))

	require.Equal(t, cudart.Success, s.UnloadModule(0, mod))
	assert.Equal(t, cudart.ErrorInvalidResourceHandle, s.Launch(0, fn, oneThread, []uint64{1, 2}))
	assert.Equal(t, cudart.ErrorInvalidResourceHandle, s.UnloadModule(0, mod))
}

func TestGuardedKernelTraps(t *testing.T) {
	mem := shadow.NewMemory()
	s := NewSimulator(1, WithQuerier(mem))
	require.Equal(t, cudart.Success, s.CreateContext(0, 0))

	m, err := parser.Parse("copy.ptx", copyKernel)
	require.NoError(t, err)
	guarded, _, err := instrument.New(instrument.Options{}).Apply(m)
	require.NoError(t, err)

	mod, code := s.LoadModule(0, []byte(ir.Print(guarded)))
	require.Equal(t, cudart.Success, code)
	fn, code := s.GetFunction(0, mod, "copy")
	require.Equal(t, cudart.Success, code)

	dst, _ := s.Malloc(0, 4)
	src, _ := s.Malloc(0, 4)
	mem.Mark(uint64(dst), 4, true)
	mem.Mark(uint64(src), 4, true)
	assert.Equal(t, cudart.Success, s.Launch(0, fn, oneThread, []uint64{uint64(dst), uint64(src)}))

	mem.Mark(uint64(src), 4, false)
	assert.Equal(t, cudart.ErrorLaunchFailure, s.Launch(0, fn, oneThread, []uint64{uint64(dst), uint64(src)}))
}

func TestDestroyContextReleasesState(t *testing.T) {
	s := NewSimulator(1)
	require.Equal(t, cudart.Success, s.CreateContext(0, 4))
	ptr, _ := s.Malloc(0, 16)
	require.Equal(t, cudart.Success, s.DestroyContext(0))
	assert.Equal(t, cudart.ErrorDeviceUninitialized, s.Free(0, ptr))
	assert.Equal(t, cudart.ErrorDeviceUninitialized, s.Synchronize(0))
}

func TestUnknownArgumentFollowsPolicy(t *testing.T) {
	m, err := parser.Parse("copy.ptx", copyKernel)
	require.NoError(t, err)
	guarded, _, err := instrument.New(instrument.Options{}).Apply(m)
	require.NoError(t, err)
	text := []byte(ir.Print(guarded))

	for _, tc := range []struct {
		permissive bool
		want       cudart.Error
	}{
		{false, cudart.ErrorLaunchFailure},
		{true, cudart.Success},
	} {
		mem := shadow.NewMemory()
		s := NewSimulator(1, WithQuerier(mem), WithPermissive(tc.permissive))
		require.Equal(t, cudart.Success, s.CreateContext(0, 0))
		mod, code := s.LoadModule(0, text)
		require.Equal(t, cudart.Success, code)
		fn, code := s.GetFunction(0, mod, "copy")
		require.Equal(t, cudart.Success, code)

		dst, _ := s.Malloc(0, 4)
		src, _ := s.Malloc(0, 4)
		mem.Mark(uint64(dst), 4, true)
		// src is never marked, so its status is unknown.
		assert.Equal(t, tc.want, s.Launch(0, fn, oneThread, []uint64{uint64(dst), uint64(src)}), "permissive=%v", tc.permissive)
	}
}
