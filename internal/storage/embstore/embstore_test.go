package embstore_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/0x5457/code-index/internal/storage"
	"github.com/0x5457/code-index/internal/storage/embstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash() embstore.ModelHash {
	var h embstore.ModelHash
	copy(h[:], "model-under-test")
	return h
}

func TestRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 3, testHash())
	require.NoError(t, err)

	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0.5, -0.25, 2}}
	first, err := s.Append(vecs)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)

	got, err := s.Get(2)
	require.NoError(t, err)
	assert.Equal(t, vecs[2], got)
	require.NoError(t, s.Close())

	s, err = embstore.Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	assert.Equal(t, 3, s.Dimensions())
	assert.Equal(t, uint64(3), s.Count())
	assert.Equal(t, testHash(), s.ModelHash())
	for i, want := range vecs {
		got, err := s.Get(uint64(i))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Later appends continue the sequence and are visible without reopening.
	first, err = s.Append([][]float32{{9, 9, 9}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), first)
	got, err = s.Get(3)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9, 9}, got)
}

func TestAppendRejectsWrongDimensionsWithoutWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 4, testHash())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Append([][]float32{{1, 2, 3, 4}, {1, 2, 3}})
	var dimErr *storage.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Actual)
	assert.Equal(t, uint64(0), s.Count())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(embstore.HeaderSize), info.Size())
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	copy(raw, "XXXX")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = embstore.Open(path)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[4] = 7
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = embstore.Open(path)
	require.ErrorIs(t, err, storage.ErrUnsupportedVersion)
}

func TestOpenRejectsShortBody(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	_, err = s.Append([][]float32{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, os.Truncate(path, embstore.HeaderSize+8+4))
	_, err = embstore.Open(path)
	require.ErrorIs(t, err, storage.ErrCorrupt)
}

func TestOpenRejectsOverflowingCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	_, err = s.Append([][]float32{{1, 2}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	var cnt [8]byte
	binary.LittleEndian.PutUint64(cnt[:], math.MaxUint64/2)
	_, err = f.WriteAt(cnt[:], 16)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = embstore.Open(path)
	require.ErrorIs(t, err, storage.ErrCorrupt)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(embstore.HeaderSize+8), info.Size())
}

func TestClosedStoreReturnsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	_, err = s.Append([][]float32{{1, 2}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(0)
	require.ErrorIs(t, err, os.ErrClosed)
	_, err = s.Append([][]float32{{3, 4}})
	require.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	_, err = s.Append([][]float32{{1, 2}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err = embstore.Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, uint64(1), s.Count())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(embstore.HeaderSize+8), info.Size())
}

func TestGetOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 2, testHash())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Get(0)
	require.ErrorIs(t, err, storage.ErrOutOfRange)

	_, err = s.Append([][]float32{{1, 1}})
	require.NoError(t, err)
	_, err = s.GetBatch([]uint64{0, 1})
	require.ErrorIs(t, err, storage.ErrOutOfRange)
}

func TestOpenOrCreateChecksDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.OpenOrCreate(path, 8, testHash())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = embstore.OpenOrCreate(path, 16, testHash())
	var dimErr *storage.DimensionMismatchError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 16, dimErr.Expected)
	assert.Equal(t, 8, dimErr.Actual)
}

func TestIterSnapshotsCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.bin")
	s, err := embstore.Create(path, 1, testHash())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.Append([][]float32{{0}, {1}, {2}})
	require.NoError(t, err)

	it := s.Iter()
	_, err = s.Append([][]float32{{3}})
	require.NoError(t, err)

	var seen []float32
	for it.Next() {
		assert.Equal(t, uint64(len(seen)), it.Index())
		seen = append(seen, it.Vector()[0])
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []float32{0, 1, 2}, seen)
}
