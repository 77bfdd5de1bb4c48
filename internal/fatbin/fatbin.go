// Package fatbin unwraps the fatbin containers that module-load calls may
// receive instead of bare PTX text.
//
// Layout of an image:
//
//	header        (16 bytes)
//	  data header (64 bytes or more)
//	  payload     (padded)
//	  ...
//	header        (16 bytes)
//	  ...
package fatbin

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/pierrec/lz4/v4"
)

// Kind is the payload type of one fatbin entry.
type Kind uint16

const (
	KindPTX Kind = 1
	KindSM  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindPTX:
		return "ptx"
	case KindSM:
		return "sm"
	default:
		return fmt.Sprintf("Kind(%d)", uint16(k))
	}
}

const (
	magic         uint32 = 0xBA55ED50
	headerVersion uint16 = 1
	dataVersion   uint16 = 0x0101
)

// ErrNoPTX is returned when an image holds only compiled device code.
var ErrNoPTX = errors.New("fatbin contains no PTX entry")

type header struct {
	Magic      uint32
	Version    uint16
	HeaderSize uint16
	FatSize    uint64 // not including the header
}

func (h *header) validate() error {
	if h.Magic != magic {
		return fmt.Errorf("magic number %x does not match expected %x", h.Magic, magic)
	}
	if h.Version != headerVersion {
		return fmt.Errorf("version %d does not match expected %d", h.Version, headerVersion)
	}
	return nil
}

type dataHeader struct {
	Kind                    uint16
	Version                 uint16
	HeaderSize              uint32
	PaddedPayloadSize       uint32
	Unknown0                uint32
	PayloadSize             uint32
	Unknown1                uint32
	Unknown2                uint32
	SmVersion               uint32
	BitWidth                uint32
	Unknown3                uint32
	Unknown4                uint64
	Unknown5                uint64
	UncompressedPayloadSize uint64
}

var dataHeaderSize = binary.Size(dataHeader{})

// lz4 cannot expand a block by more than about 255 times, and no PTX
// payload comes near maxPayload.
const (
	maxExpansion = 255
	maxPayload   = 1 << 30
)

func (d *dataHeader) validate() error {
	if k := Kind(d.Kind); k != KindPTX && k != KindSM {
		return fmt.Errorf("kind %d is not in the expected range [%d, %d]", k, KindPTX, KindSM)
	}
	if d.Version != dataVersion {
		return fmt.Errorf("version %d does not match expected %d", d.Version, dataVersion)
	}
	if d.PayloadSize > d.PaddedPayloadSize {
		return fmt.Errorf("payload size %d exceeds padded size %d", d.PayloadSize, d.PaddedPayloadSize)
	}
	return nil
}

// Entry is one decoded payload.
type Entry struct {
	Kind      Kind
	SmVersion uint32
	Payload   []byte
}

// Fatbin holds the entries of every container found in an image.
type Fatbin struct {
	Entries []Entry
}

// IsFatbin reports whether image starts with the fatbin magic number.
func IsFatbin(image []byte) bool {
	return len(image) >= 4 && binary.LittleEndian.Uint32(image) == magic
}

// Parse decodes every container in image.
func Parse(image []byte) (*Fatbin, error) {
	r := bytes.NewReader(image)
	fb := &Fatbin{}
	for {
		var h header
		if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse fatbin header: %w", err)
		}
		if err := h.validate(); err != nil {
			return nil, fmt.Errorf("invalid fatbin header: %w", err)
		}

		start := offset(r)
		for offset(r)-start < h.FatSize {
			entry, err := parseData(r)
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("failed to parse fatbin data: %w", err)
			}
			fb.Entries = append(fb.Entries, entry)
		}
	}
	return fb, nil
}

func offset(r *bytes.Reader) uint64 {
	return uint64(r.Size()) - uint64(r.Len())
}

func parseData(r *bytes.Reader) (Entry, error) {
	var d dataHeader
	if err := binary.Read(r, binary.LittleEndian, &d); err != nil {
		return Entry{}, err
	}
	if err := d.validate(); err != nil {
		return Entry{}, fmt.Errorf("invalid fatbin data: %w", err)
	}

	// The header in the image may be longer than the fields we know.
	if extra := int64(d.HeaderSize) - int64(dataHeaderSize); extra > 0 {
		if _, err := r.Seek(extra, io.SeekCurrent); err != nil {
			return Entry{}, fmt.Errorf("failed to skip rest of data header: %w", err)
		}
	}

	if uint64(d.PaddedPayloadSize) > uint64(r.Len()) {
		return Entry{}, fmt.Errorf("failed to read payload: padded size %d exceeds the %d bytes left", d.PaddedPayloadSize, r.Len())
	}
	padded := make([]byte, d.PaddedPayloadSize)
	if _, err := io.ReadFull(r, padded); err != nil {
		return Entry{}, fmt.Errorf("failed to read payload: %w", err)
	}
	payload := padded[:d.PayloadSize]

	// A non-zero uncompressed size marks an lz4 block.
	if d.UncompressedPayloadSize != 0 {
		if d.UncompressedPayloadSize > maxPayload || d.UncompressedPayloadSize > uint64(d.PayloadSize)*maxExpansion {
			return Entry{}, fmt.Errorf("uncompressed size %d out of range for a %d byte payload", d.UncompressedPayloadSize, d.PayloadSize)
		}
		size, err := safecast.Conv[int](d.UncompressedPayloadSize)
		if err != nil {
			return Entry{}, fmt.Errorf("uncompressed size: %w", err)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return Entry{}, fmt.Errorf("failed to decompress payload: %w", err)
		}
		payload = out[:n]
	}

	return Entry{Kind: Kind(d.Kind), SmVersion: d.SmVersion, Payload: payload}, nil
}

// PTX returns the PTX entry for the highest SM version.
func (fb *Fatbin) PTX() (Entry, bool) {
	var best Entry
	found := false
	for _, e := range fb.Entries {
		if e.Kind != KindPTX {
			continue
		}
		if !found || e.SmVersion > best.SmVersion {
			best, found = e, true
		}
	}
	return best, found
}

// Extract returns the PTX text carried by a module image. Bare text is
// returned as is; a fatbin yields its best PTX entry. Trailing NUL bytes
// are dropped in both cases.
func Extract(image []byte) ([]byte, error) {
	if !IsFatbin(image) {
		return bytes.TrimRight(image, "\x00"), nil
	}
	fb, err := Parse(image)
	if err != nil {
		return nil, err
	}
	e, ok := fb.PTX()
	if !ok {
		return nil, ErrNoPTX
	}
	return bytes.TrimRight(e.Payload, "\x00"), nil
}
