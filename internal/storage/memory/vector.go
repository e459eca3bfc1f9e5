// Package memory holds an exact, in-process vector store. It scans every
// vector on each search, which makes it a reference for the approximate
// index and a stand-in where persistence is not wanted.
package memory

import (
	"math"
	"sort"
	"sync"

	"github.com/0x5457/code-index/internal/storage"
)

type VectorStore struct {
	mu   sync.RWMutex
	dims int
	data map[int64][]float32
}

func NewVectorStore(dims int) *VectorStore {
	return &VectorStore{dims: dims, data: make(map[int64][]float32)}
}

func (s *VectorStore) Add(id int64, vec []float32) error {
	if len(vec) != s.dims {
		return &storage.DimensionMismatchError{Expected: s.dims, Actual: len(vec)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = append([]float32(nil), vec...)
	return nil
}

func (s *VectorStore) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return false
	}
	delete(s.data, id)
	return true
}

func (s *VectorStore) Contains(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[id]
	return ok
}

// Search ranks every stored vector by cosine similarity; ties go to the
// lower id.
func (s *VectorStore) Search(query []float32, k int) ([]storage.VectorHit, error) {
	if len(query) != s.dims {
		return nil, &storage.DimensionMismatchError{Expected: s.dims, Actual: len(query)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := make([]storage.VectorHit, 0, len(s.data))
	for id, vec := range s.data {
		hits = append(hits, storage.VectorHit{ID: id, Similarity: cosine(vec, query)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:max(k, 0)]
	}
	return hits, nil
}

func (s *VectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Save is a no-op; nothing outlives the process.
func (s *VectorStore) Save() error { return nil }

func cosine(a, b []float32) float32 {
	var dot float64
	var na float64
	var nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0
	}
	return float32(dot / den)
}

var _ storage.VectorStore = (*VectorStore)(nil)
