// Package embstore implements the append-only embedding file: a fixed
// header followed by equally sized float32 records addressed by their
// sequential index. Reads go through a read-only memory mapping.
package embstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/0x5457/code-index/internal/storage"
	"golang.org/x/exp/mmap"
)

// Store is safe for concurrent readers. Append must be called by a single
// writer at a time.
type Store struct {
	path      string
	f         *os.File
	dims      int
	stride    int64
	modelHash ModelHash
	count     atomic.Uint64

	mu   sync.RWMutex // guards view
	view *mmap.ReaderAt
}

// Create writes a new empty store, truncating any existing file at path.
func Create(path string, dims int, modelHash ModelHash) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("embstore: dimensions must be positive, got %d", dims)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("embstore: create %s: %w", path, err)
	}
	h := header{Version: Version, Dimensions: uint32(dims), ModelHash: modelHash}
	if _, err := f.WriteAt(h.encode(), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("embstore: write header: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("embstore: sync: %w", err)
	}
	return newStore(path, f, h)
}

// Open validates and opens an existing store. A body shorter than the
// header's record count is corrupt. Bytes past the last counted record are
// the remains of an interrupted Append and are truncated.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("embstore: open %s: %w", path, err)
	}
	buf := make([]byte, HeaderSize)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n < HeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("%w: short header (%d bytes)", storage.ErrCorrupt, n)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("embstore: stat: %w", err)
	}
	stride := int64(h.Dimensions) * 4
	body := info.Size() - HeaderSize
	if body < 0 || h.Count > uint64(body/stride) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: body holds %d bytes, header claims %d records",
			storage.ErrCorrupt, body, h.Count)
	}
	if want := HeaderSize + int64(h.Count)*stride; info.Size() > want {
		if err := f.Truncate(want); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("embstore: truncate torn tail: %w", err)
		}
	}
	return newStore(path, f, h)
}

// OpenOrCreate opens the store at path when it exists and otherwise creates
// it. An existing store must have the requested dimensionality.
func OpenOrCreate(path string, dims int, modelHash ModelHash) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Create(path, dims, modelHash)
	}
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if s.dims != dims {
		_ = s.Close()
		return nil, &storage.DimensionMismatchError{Expected: dims, Actual: s.dims}
	}
	return s, nil
}

func newStore(path string, f *os.File, h header) (*Store, error) {
	s := &Store{
		path:      path,
		f:         f,
		dims:      int(h.Dimensions),
		stride:    int64(h.Dimensions) * 4,
		modelHash: h.ModelHash,
	}
	s.count.Store(h.Count)
	if err := s.remap(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string         { return s.path }
func (s *Store) Dimensions() int      { return s.dims }
func (s *Store) ModelHash() ModelHash { return s.modelHash }
func (s *Store) Count() uint64        { return s.count.Load() }

// Append validates every vector before writing any of them, then writes the
// records at the end of the file followed by the new count. It returns the
// index of the first appended record.
func (s *Store) Append(vectors [][]float32) (uint64, error) {
	if s.f == nil {
		return 0, fmt.Errorf("embstore: append: %w", os.ErrClosed)
	}
	first := s.count.Load()
	for _, v := range vectors {
		if len(v) != s.dims {
			return 0, &storage.DimensionMismatchError{Expected: s.dims, Actual: len(v)}
		}
	}
	if len(vectors) == 0 {
		return first, nil
	}

	buf := make([]byte, int64(len(vectors))*s.stride)
	off := 0
	for _, v := range vectors {
		for _, x := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(x))
			off += 4
		}
	}
	if _, err := s.f.WriteAt(buf, HeaderSize+int64(first)*s.stride); err != nil {
		return 0, fmt.Errorf("embstore: write records: %w", err)
	}

	next := first + uint64(len(vectors))
	var cnt [8]byte
	binary.LittleEndian.PutUint64(cnt[:], next)
	if _, err := s.f.WriteAt(cnt[:], offCount); err != nil {
		return 0, fmt.Errorf("embstore: write count: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return 0, fmt.Errorf("embstore: sync: %w", err)
	}
	s.count.Store(next)
	return first, nil
}

// Get copies out the record at index i.
func (s *Store) Get(i uint64) ([]float32, error) {
	if i >= s.count.Load() {
		return nil, fmt.Errorf("%w: %d >= %d", storage.ErrOutOfRange, i, s.count.Load())
	}
	off := HeaderSize + int64(i)*s.stride
	end := off + s.stride

	s.mu.RLock()
	if s.view != nil && int64(s.view.Len()) < end {
		s.mu.RUnlock()
		// The count says the record exists, so the mapping is stale.
		if err := s.remap(); err != nil {
			return nil, err
		}
		s.mu.RLock()
	}
	defer s.mu.RUnlock()
	if s.view == nil {
		return nil, fmt.Errorf("embstore: get %d: %w", i, os.ErrClosed)
	}
	if int64(s.view.Len()) < end {
		return nil, fmt.Errorf("%w: record %d beyond mapped length", storage.ErrOutOfRange, i)
	}

	raw := make([]byte, s.stride)
	if _, err := s.view.ReadAt(raw, off); err != nil {
		return nil, fmt.Errorf("embstore: read record %d: %w", i, err)
	}
	out := make([]float32, s.dims)
	for j := range out {
		out[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[j*4:]))
	}
	return out, nil
}

// GetBatch returns the records at the given indexes in order. It fails on
// the first out-of-range index.
func (s *Store) GetBatch(indexes []uint64) ([][]float32, error) {
	out := make([][]float32, len(indexes))
	for k, i := range indexes {
		v, err := s.Get(i)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Iter returns an iterator over the records present when it is created.
func (s *Store) Iter() *Iterator {
	return &Iterator{s: s, end: s.count.Load(), next: 0}
}

func (s *Store) remap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fmt.Errorf("embstore: map %s: %w", s.path, os.ErrClosed)
	}
	view, err := mmap.Open(s.path)
	if err != nil {
		return fmt.Errorf("embstore: map %s: %w", s.path, err)
	}
	if s.view != nil {
		_ = s.view.Close()
	}
	s.view = view
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.view != nil {
		errs = append(errs, s.view.Close())
		s.view = nil
	}
	if s.f != nil {
		errs = append(errs, s.f.Close())
		s.f = nil
	}
	return errors.Join(errs...)
}

// Iterator walks records in index order.
type Iterator struct {
	s     *Store
	end   uint64
	next  uint64
	index uint64
	cur   []float32
	err   error
}

func (it *Iterator) Next() bool {
	if it.err != nil || it.next >= it.end {
		return false
	}
	v, err := it.s.Get(it.next)
	if err != nil {
		it.err = err
		return false
	}
	it.index, it.cur = it.next, v
	it.next++
	return true
}

func (it *Iterator) Index() uint64     { return it.index }
func (it *Iterator) Vector() []float32 { return it.cur }
func (it *Iterator) Err() error        { return it.err }

var _ storage.EmbeddingLog = (*Store)(nil)
