package hnsw

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

var (
	_ gob.GobEncoder = (*HNSW)(nil)
	_ gob.GobDecoder = (*HNSW)(nil)
)

func (h *HNSW) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)

	deleted, err := h.deleted.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("hnsw: encode tombstones: %w", err)
	}

	for _, v := range []any{h.dimension, h.ep, h.maxLevel, h.nodes, h.opts, deleted} {
		if err := encoder.Encode(v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (h *HNSW) GobDecode(data []byte) error {
	decoder := gob.NewDecoder(bytes.NewBuffer(data))

	var (
		opts    Options
		deleted []byte
	)
	for _, v := range []any{&h.dimension, &h.ep, &h.maxLevel, &h.nodes, &opts, &deleted} {
		if err := decoder.Decode(v); err != nil {
			return err
		}
	}

	h.deleted = roaring.New()
	if len(deleted) > 0 {
		if err := h.deleted.UnmarshalBinary(deleted); err != nil {
			return fmt.Errorf("hnsw: decode tombstones: %w", err)
		}
	}
	h.applyOptions(normalizeOptions(opts))

	h.keys = make(map[int64]uint32, len(h.nodes))
	for id, n := range h.nodes {
		if !h.deleted.Contains(uint32(id)) {
			h.keys[n.Key] = uint32(id)
		}
	}
	return nil
}
