package fatbin

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ptx = []byte(strings.Repeat("\tld.global.f32 %f1, [%rd1];\n", 64))

func TestExtractBareText(t *testing.T) {
	out, err := Extract(append([]byte(".version 7.0\n"), 0))
	require.NoError(t, err)
	assert.Equal(t, ".version 7.0\n", string(out))
}

func TestRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		image, err := Build([]Entry{
			{Kind: KindSM, SmVersion: 80, Payload: []byte("\x7fELF cubin")},
			{Kind: KindPTX, SmVersion: 52, Payload: []byte("old ptx")},
			{Kind: KindPTX, SmVersion: 80, Payload: append(bytes.Clone(ptx), 0)},
		}, compress)
		require.NoError(t, err)
		require.True(t, IsFatbin(image))

		fb, err := Parse(image)
		require.NoError(t, err)
		require.Len(t, fb.Entries, 3)
		assert.Equal(t, KindSM, fb.Entries[0].Kind)

		best, ok := fb.PTX()
		require.True(t, ok)
		assert.Equal(t, uint32(80), best.SmVersion)

		out, err := Extract(image)
		require.NoError(t, err)
		assert.Equal(t, ptx, out)
	}
}

func TestCompressionShrinksRepetitivePayload(t *testing.T) {
	plain, err := Build([]Entry{{Kind: KindPTX, Payload: ptx}}, false)
	require.NoError(t, err)
	packed, err := Build([]Entry{{Kind: KindPTX, Payload: ptx}}, true)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(plain))
}

func TestNoPTX(t *testing.T) {
	image, err := Build([]Entry{{Kind: KindSM, SmVersion: 90, Payload: []byte("cubin")}}, false)
	require.NoError(t, err)
	_, err = Extract(image)
	assert.ErrorIs(t, err, ErrNoPTX)
}

func TestCorruptImages(t *testing.T) {
	image, err := Build([]Entry{{Kind: KindPTX, Payload: ptx}}, false)
	require.NoError(t, err)

	badVersion := bytes.Clone(image)
	binary.LittleEndian.PutUint16(badVersion[4:], 7)
	_, err = Parse(badVersion)
	assert.ErrorContains(t, err, "invalid fatbin header")

	badKind := bytes.Clone(image)
	binary.LittleEndian.PutUint16(badKind[16:], 9)
	_, err = Parse(badKind)
	assert.ErrorContains(t, err, "kind 9")

	truncated := image[:len(image)-16]
	_, err = Parse(truncated)
	assert.ErrorContains(t, err, "failed to read payload")

	// Sizes come from the image and must not drive allocations.
	hugePadding := bytes.Clone(image)
	binary.LittleEndian.PutUint32(hugePadding[24:], 0xffffffff)
	_, err = Extract(hugePadding)
	assert.ErrorContains(t, err, "exceeds the")

	hugeUncompressed := bytes.Clone(image)
	binary.LittleEndian.PutUint64(hugeUncompressed[72:], 1<<62)
	_, err = Extract(hugeUncompressed)
	assert.ErrorContains(t, err, "out of range")

	inflated := bytes.Clone(image)
	binary.LittleEndian.PutUint64(inflated[72:], uint64(len(ptx))*1000)
	_, err = Extract(inflated)
	assert.ErrorContains(t, err, "out of range")
}

func TestConcatenatedContainers(t *testing.T) {
	a, err := Build([]Entry{{Kind: KindPTX, SmVersion: 70, Payload: []byte("a")}}, false)
	require.NoError(t, err)
	b, err := Build([]Entry{{Kind: KindPTX, SmVersion: 90, Payload: []byte("b")}}, false)
	require.NoError(t, err)

	out, err := Extract(append(a, b...))
	require.NoError(t, err)
	assert.Equal(t, "b", string(out))
}
