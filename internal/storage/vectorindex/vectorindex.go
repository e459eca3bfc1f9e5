// Package vectorindex is the persistent approximate nearest-neighbour index
// over symbol embeddings. It wraps an HNSW graph keyed by symbol id and
// snapshots it to a single zstd-compressed gob file.
package vectorindex

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/0x5457/code-index/internal/hnsw"
	"github.com/0x5457/code-index/internal/storage"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// FileName is the snapshot file inside the index directory.
const FileName = "vectors.hnsw"

const DefaultDimensions = 384

type Config struct {
	Dimensions      int
	M               int
	EfConstruction  int
	EfSearch        int
	InitialCapacity int
}

func DefaultConfig() Config {
	return Config{
		Dimensions:      DefaultDimensions,
		M:               16,
		EfConstruction:  200,
		EfSearch:        64,
		InitialCapacity: 1024,
	}
}

// Hit is a search result. Similarity is 1 - cosine distance.
type Hit = storage.VectorHit

// IndexError wraps a failure of the underlying graph or its snapshot.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string { return "vectorindex: " + e.Op + ": " + e.Err.Error() }
func (e *IndexError) Unwrap() error { return e.Err }

// Index serializes every operation behind one mutex.
type Index struct {
	mu     sync.Mutex
	dir    string
	cfg    Config
	graph  *hnsw.HNSW
	dirty  bool
	logger *zap.Logger
}

// Open loads the snapshot in dir when present, taking its dimensionality,
// and otherwise starts an empty index with DefaultConfig.
func Open(dir string, logger *zap.Logger) (*Index, error) {
	cfg := DefaultConfig()
	cfg.Dimensions = 0
	return OpenWithConfig(dir, cfg, logger)
}

// OpenWithConfig loads the snapshot in dir when present and otherwise starts
// an empty index. A zero Dimensions accepts whatever the snapshot holds; a
// non-zero one must match it.
func OpenWithConfig(dir string, cfg Config, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.M <= 0 {
		cfg.M = def.M
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = def.EfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = def.EfSearch
	}
	if cfg.InitialCapacity <= 0 {
		cfg.InitialCapacity = def.InitialCapacity
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &IndexError{Op: "open", Err: err}
	}

	idx := &Index{dir: dir, cfg: cfg, logger: logger.Named("vectorindex")}

	graph, err := load(filepath.Join(dir, FileName))
	switch {
	case errors.Is(err, os.ErrNotExist):
		if cfg.Dimensions <= 0 {
			cfg.Dimensions = DefaultDimensions
		}
		idx.cfg = cfg
		idx.graph = hnsw.New(cfg.Dimensions, func(o *hnsw.Options) {
			o.M = cfg.M
			o.EfConstruction = cfg.EfConstruction
			o.EfSearch = cfg.EfSearch
			o.InitialCapacity = cfg.InitialCapacity
		})
		idx.logger.Debug("created empty index", zap.String("dir", dir), zap.Int("dims", cfg.Dimensions))
	case err != nil:
		return nil, &IndexError{Op: "load", Err: err}
	default:
		if cfg.Dimensions > 0 && cfg.Dimensions != graph.Dimension() {
			return nil, &storage.DimensionMismatchError{Expected: cfg.Dimensions, Actual: graph.Dimension()}
		}
		idx.cfg.Dimensions = graph.Dimension()
		idx.graph = graph
		idx.logger.Debug("loaded index",
			zap.String("dir", dir),
			zap.Int("dims", graph.Dimension()),
			zap.Int("count", graph.Len()))
	}
	return idx, nil
}

func (i *Index) Dimensions() int { return i.cfg.Dimensions }

// Add inserts vec under id, replacing any previous vector for id.
func (i *Index) Add(id int64, vec []float32) error {
	if len(vec) != i.cfg.Dimensions {
		return &storage.DimensionMismatchError{Expected: i.cfg.Dimensions, Actual: len(vec)}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.graph.Insert(id, vec); err != nil {
		return &IndexError{Op: "add", Err: err}
	}
	i.dirty = true
	return nil
}

// Remove reports whether id was present.
func (i *Index) Remove(id int64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.graph.Delete(id) {
		return false
	}
	i.dirty = true
	return true
}

// Search returns up to k hits sorted by descending similarity.
func (i *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != i.cfg.Dimensions {
		return nil, &storage.DimensionMismatchError{Expected: i.cfg.Dimensions, Actual: len(query)}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	res, err := i.graph.Search(query, k, i.cfg.EfSearch)
	if err != nil {
		return nil, &IndexError{Op: "search", Err: err}
	}
	hits := make([]Hit, len(res))
	for n, r := range res {
		hits[n] = Hit{ID: r.Key, Similarity: 1 - r.Distance}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Similarity > hits[b].Similarity })
	return hits, nil
}

// Contains reports whether id has a live vector.
func (i *Index) Contains(id int64) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.graph.Contains(id)
}

// Deleted is the number of replaced or removed vectors still held by the
// graph. Save reclaims them once they outnumber the live ones.
func (i *Index) Deleted() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.graph.Deleted()
}

func (i *Index) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.graph.Len()
}

// Save writes the snapshot through a temporary file and a rename, so a
// crash leaves either the old or the new snapshot in place.
func (i *Index) Save() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.dirty {
		return nil
	}
	if dead := i.graph.Deleted(); dead > 0 && dead > i.graph.Len() {
		i.graph.Compact()
		i.logger.Debug("compacted index", zap.Int("dropped", dead), zap.Int("count", i.graph.Len()))
	}

	path := filepath.Join(i.dir, FileName)
	tmp, err := os.CreateTemp(i.dir, FileName+".*.tmp")
	if err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		_ = tmp.Close()
		return &IndexError{Op: "save", Err: err}
	}
	if err := gob.NewEncoder(zw).Encode(i.graph); err != nil {
		_ = zw.Close()
		_ = tmp.Close()
		return &IndexError{Op: "save", Err: err}
	}
	if err := zw.Close(); err != nil {
		_ = tmp.Close()
		return &IndexError{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return &IndexError{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &IndexError{Op: "save", Err: err}
	}
	i.dirty = false
	i.logger.Debug("saved index", zap.String("path", path), zap.Int("count", i.graph.Len()))
	return nil
}

func load(path string) (*hnsw.HNSW, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open zstd stream: %w", err)
	}
	defer zr.Close()

	graph := &hnsw.HNSW{}
	if err := gob.NewDecoder(zr).Decode(graph); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupt, err)
	}
	return graph, nil
}

var _ storage.VectorStore = (*Index)(nil)
