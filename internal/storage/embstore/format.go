package embstore

import (
	"encoding/binary"
	"fmt"

	"github.com/0x5457/code-index/internal/storage"
)

const (
	// Magic identifies embedding files (ASCII "ADIE").
	Magic = "ADIE"
	// Version is the only format version this package reads and writes.
	Version uint32 = 1

	// HeaderSize is the fixed header length; vector records start right after it.
	HeaderSize = 56

	offVersion   = 4
	offDims      = 8
	offCount     = 16
	offModelHash = 24
)

// ModelHash fingerprints the embedding model that produced a store's vectors.
type ModelHash [32]byte

// header is the decoded form of the first HeaderSize bytes:
//
//	magic[4] | version u32 | dimensions u32 | padding u32 | count u64 | model hash [32]
//
// All integers are little-endian.
type header struct {
	Version    uint32
	Dimensions uint32
	Count      uint64
	ModelHash  ModelHash
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[offVersion:], h.Version)
	binary.LittleEndian.PutUint32(buf[offDims:], h.Dimensions)
	binary.LittleEndian.PutUint64(buf[offCount:], h.Count)
	copy(buf[offModelHash:], h.ModelHash[:])
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	var h header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("%w: header is %d bytes", storage.ErrCorrupt, len(buf))
	}
	if string(buf[0:4]) != Magic {
		return h, fmt.Errorf("%w: bad magic %q", storage.ErrCorrupt, buf[0:4])
	}
	h.Version = binary.LittleEndian.Uint32(buf[offVersion:])
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", storage.ErrUnsupportedVersion, h.Version)
	}
	h.Dimensions = binary.LittleEndian.Uint32(buf[offDims:])
	if h.Dimensions == 0 {
		return h, fmt.Errorf("%w: zero dimensions", storage.ErrCorrupt)
	}
	h.Count = binary.LittleEndian.Uint64(buf[offCount:])
	copy(h.ModelHash[:], buf[offModelHash:offModelHash+32])
	return h, nil
}
