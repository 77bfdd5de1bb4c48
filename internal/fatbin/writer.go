package fatbin

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"
	"github.com/pierrec/lz4/v4"
)

// Build packs entries into a single-container image. With compress set,
// payloads that lz4 can shrink are stored compressed.
func Build(entries []Entry, compress bool) ([]byte, error) {
	var body bytes.Buffer
	for _, e := range entries {
		if err := writeEntry(&body, e, compress); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	h := header{Magic: magic, Version: headerVersion, HeaderSize: 16, FatSize: uint64(body.Len())}
	if err := binary.Write(&out, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func writeEntry(w *bytes.Buffer, e Entry, compress bool) error {
	payload := e.Payload
	var uncompressed uint64
	if compress {
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return fmt.Errorf("failed to compress payload: %w", err)
		}
		// n == 0 means the data did not compress.
		if n > 0 && n < len(payload) {
			uncompressed = uint64(len(payload))
			payload = dst[:n]
		}
	}

	size, err := safecast.Conv[uint32](len(payload))
	if err != nil {
		return fmt.Errorf("payload too large: %w", err)
	}
	padded := (size + 7) &^ 7
	headerSize, err := safecast.Conv[uint32](dataHeaderSize)
	if err != nil {
		return err
	}

	d := dataHeader{
		Kind:                    uint16(e.Kind),
		Version:                 dataVersion,
		HeaderSize:              headerSize,
		PaddedPayloadSize:       padded,
		PayloadSize:             size,
		SmVersion:               e.SmVersion,
		UncompressedPayloadSize: uncompressed,
	}
	if err := binary.Write(w, binary.LittleEndian, &d); err != nil {
		return err
	}
	w.Write(payload)
	w.Write(make([]byte, padded-size))
	return nil
}
