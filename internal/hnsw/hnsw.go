// Package hnsw implements a Hierarchical Navigable Small World graph for
// approximate nearest-neighbour search under cosine distance.
//
// Vectors are stored L2-normalized, so the distance between two of them is
// 1 - dot(a, b). Every vector carries a caller-chosen int64 key; removing
// or replacing a key tombstones its node, which keeps routing searches but
// is never returned.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// ErrDimensionMismatch reports a vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Node is one vector in the graph.
type Node struct {
	Connections [][]uint32 // neighbour ids per layer, 0..Layer
	Vector      []float32  // normalized
	Layer       int
	Key         int64
}

type Options struct {
	// M is the number of links created per node and layer. Layer 0 keeps
	// up to 2*M.
	M int
	// EfConstruction is the candidate list size while inserting.
	EfConstruction int
	// EfSearch is the default candidate list size while querying.
	EfSearch int
	// Heuristic selects neighbours with the diversity heuristic instead of
	// plain nearest-M.
	Heuristic bool
	// Seed drives layer assignment. Zero seeds from the clock.
	Seed int64
	// InitialCapacity reserves room for this many nodes.
	InitialCapacity int
}

var DefaultOptions = Options{
	M:              16,
	EfConstruction: 200,
	EfSearch:       64,
	Heuristic:      true,
}

// Result is a live key and its distance to the query.
type Result struct {
	Key      int64
	Distance float32
}

// HNSW is not safe for concurrent use; callers serialize access.
type HNSW struct {
	dimension int
	mmax      int
	mmax0     int
	ml        float64
	ep        int // entry point node id, -1 when the graph is empty
	maxLevel  int

	nodes   []*Node
	keys    map[int64]uint32
	deleted *roaring.Bitmap

	opts Options
	rng  *rand.Rand
}

func New(dimension int, optFns ...func(o *Options)) *HNSW {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts = normalizeOptions(opts)

	h := &HNSW{
		dimension: dimension,
		ep:        -1,
		nodes:     make([]*Node, 0, opts.InitialCapacity),
		keys:      make(map[int64]uint32, opts.InitialCapacity),
		deleted:   roaring.New(),
	}
	h.applyOptions(opts)
	return h
}

func normalizeOptions(opts Options) Options {
	if opts.M < 2 {
		// M == 1 makes the level multiplier 1/ln(1).
		opts.M = 2
	}
	if opts.EfConstruction < opts.M {
		opts.EfConstruction = opts.M
	}
	if opts.EfSearch <= 0 {
		opts.EfSearch = DefaultOptions.EfSearch
	}
	return opts
}

func (h *HNSW) applyOptions(opts Options) {
	h.opts = opts
	h.mmax = opts.M
	h.mmax0 = 2 * opts.M
	h.ml = 1 / math.Log(float64(opts.M))
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	h.rng = rand.New(rand.NewSource(seed)) // nolint:gosec
}

func (h *HNSW) Dimension() int { return h.dimension }

// Len is the number of live keys.
func (h *HNSW) Len() int { return len(h.keys) }

// Deleted is the number of tombstoned nodes still in the graph.
func (h *HNSW) Deleted() int { return int(h.deleted.GetCardinality()) }

func (h *HNSW) Contains(key int64) bool {
	_, ok := h.keys[key]
	return ok
}

// Insert adds v under key. An existing vector for key is tombstoned first.
func (h *HNSW) Insert(key int64, v []float32) error {
	if len(v) != h.dimension {
		return &ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}
	h.Delete(key)

	id := uint32(len(h.nodes))
	node := &Node{
		Key:    key,
		Vector: normalize(v),
		Layer:  h.randomLevel(),
	}
	node.Connections = make([][]uint32, node.Layer+1)

	if h.ep < 0 {
		h.nodes = append(h.nodes, node)
		h.keys[key] = id
		h.ep = int(id)
		h.maxLevel = node.Layer
		return nil
	}

	currObj, currDist := h.findShortestPath(node.Vector, node.Layer)

	topCandidates := &PriorityQueue{}
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		h.searchLayer(node.Vector, &PriorityQueueItem{Node: currObj, Distance: currDist}, topCandidates, h.opts.EfConstruction, level)

		// The closest candidate found on this layer enters the next one down.
		nearest := nearestOf(topCandidates)
		currObj, currDist = nearest.Node, nearest.Distance

		if h.opts.Heuristic {
			h.selectNeighboursHeuristic(topCandidates, h.opts.M)
		} else {
			selectNeighboursSimple(topCandidates, h.opts.M)
		}

		node.Connections[level] = make([]uint32, topCandidates.Len())
		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
			node.Connections[level][i] = candidate.Node
		}
	}

	h.nodes = append(h.nodes, node)
	h.keys[key] = id

	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			h.link(neighbour, id, level)
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = int(id)
		h.maxLevel = node.Layer
	}
	return nil
}

// Delete tombstones key. It reports whether key was live.
func (h *HNSW) Delete(key int64) bool {
	id, ok := h.keys[key]
	if !ok {
		return false
	}
	delete(h.keys, key)
	h.deleted.Add(id)
	return true
}

// Compact rebuilds the graph from its live nodes and drops every
// tombstone. Keys and vectors survive; internal node ids do not.
func (h *HNSW) Compact() {
	if h.deleted.IsEmpty() {
		return
	}
	live := make([]*Node, 0, len(h.keys))
	for id, n := range h.nodes {
		if !h.deleted.Contains(uint32(id)) {
			live = append(live, n)
		}
	}
	opts := h.opts
	opts.Seed = h.rng.Int63()
	opts.InitialCapacity = len(live)
	fresh := New(h.dimension, func(o *Options) { *o = opts })
	for _, n := range live {
		// Stored vectors already have the graph's dimension.
		_ = fresh.Insert(n.Key, n.Vector)
	}
	*h = *fresh
}

// Vector returns a copy of the stored (normalized) vector for key.
func (h *HNSW) Vector(key int64) ([]float32, bool) {
	id, ok := h.keys[key]
	if !ok {
		return nil, false
	}
	out := make([]float32, h.dimension)
	copy(out, h.nodes[id].Vector)
	return out, true
}

// Search returns up to k live keys closest to q, nearest first. ef <= 0
// uses the configured EfSearch.
func (h *HNSW) Search(q []float32, k, ef int) ([]Result, error) {
	if len(q) != h.dimension {
		return nil, &ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}
	if k <= 0 || h.ep < 0 || len(h.keys) == 0 {
		return nil, nil
	}
	if ef <= 0 {
		ef = h.opts.EfSearch
	}
	// Tombstones occupy candidate slots, so widen the beam by their count.
	ef = max(ef, k) + h.Deleted()
	ef = min(ef, len(h.nodes))

	query := normalize(q)
	currObj, currDist := h.findShortestPath(query, 0)

	topCandidates := &PriorityQueue{}
	h.searchLayer(query, &PriorityQueueItem{Node: currObj, Distance: currDist}, topCandidates, ef, 0)

	results := make([]Result, 0, topCandidates.Len())
	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
		if h.deleted.Contains(item.Node) {
			continue
		}
		results = append(results, Result{Key: h.nodes[item.Node].Key, Distance: item.Distance})
	}
	// Popped from a max-heap: farthest first.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// findShortestPath descends greedily from the entry point down to the
// layer above stopLevel and returns the closest node found.
func (h *HNSW) findShortestPath(q []float32, stopLevel int) (uint32, float32) {
	currObj := uint32(h.ep)
	currDist := distance(q, h.nodes[currObj].Vector)

	for level := h.maxLevel; level > stopLevel; level-- {
		changed := true
		for changed {
			changed = false
			conns := h.nodes[currObj].Connections
			if len(conns) <= level {
				break
			}
			for _, n := range conns[level] {
				d := distance(q, h.nodes[n].Vector)
				if d < currDist {
					currObj, currDist = n, d
					changed = true
				}
			}
		}
	}
	return currObj, currDist
}

// searchLayer runs a beam search of width ef on one layer. topCandidates
// ends up as a max-heap of the ef closest nodes.
func (h *HNSW) searchLayer(q []float32, ep *PriorityQueueItem, topCandidates *PriorityQueue, ef int, level int) {
	var visited bitset.BitSet
	visited.Set(uint(ep.Node))

	candidates := &PriorityQueue{Order: false}
	heap.Init(candidates)
	heap.Push(candidates, &PriorityQueueItem{Node: ep.Node, Distance: ep.Distance})

	topCandidates.Order = true
	topCandidates.Items = topCandidates.Items[:0]
	heap.Init(topCandidates)
	heap.Push(topCandidates, &PriorityQueueItem{Node: ep.Node, Distance: ep.Distance})

	for candidates.Len() > 0 {
		lowerBound := topCandidates.Top().Distance
		candidate, _ := heap.Pop(candidates).(*PriorityQueueItem)
		if candidate.Distance > lowerBound {
			break
		}

		node := h.nodes[candidate.Node]
		if len(node.Connections) <= level {
			continue
		}
		for _, n := range node.Connections[level] {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			d := distance(q, h.nodes[n].Vector)
			if topCandidates.Len() < ef {
				heap.Push(topCandidates, &PriorityQueueItem{Node: n, Distance: d})
				heap.Push(candidates, &PriorityQueueItem{Node: n, Distance: d})
			} else if topCandidates.Top().Distance > d {
				heap.Pop(topCandidates)
				heap.Push(topCandidates, &PriorityQueueItem{Node: n, Distance: d})
				heap.Push(candidates, &PriorityQueueItem{Node: n, Distance: d})
			}
		}
	}
}

// link adds second to first's neighbour list on level and prunes the list
// back to the layer's limit.
func (h *HNSW) link(first, second uint32, level int) {
	maxConnections := h.mmax
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]
	node.Connections[level] = append(node.Connections[level], second)
	if len(node.Connections[level]) <= maxConnections {
		return
	}

	topCandidates := &PriorityQueue{Order: true}
	heap.Init(topCandidates)
	for _, id := range node.Connections[level] {
		heap.Push(topCandidates, &PriorityQueueItem{
			Node:     id,
			Distance: distance(node.Vector, h.nodes[id].Vector),
		})
	}

	if h.opts.Heuristic {
		h.selectNeighboursHeuristic(topCandidates, maxConnections)
	} else {
		selectNeighboursSimple(topCandidates, maxConnections)
	}

	conns := make([]uint32, topCandidates.Len())
	for i := len(conns) - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
		conns[i] = item.Node
	}
	node.Connections[level] = conns
}

// selectNeighboursSimple trims a max-heap down to its m closest items.
func selectNeighboursSimple(topCandidates *PriorityQueue, m int) {
	for topCandidates.Len() > m {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic keeps candidates that are closer to the base
// node than to any already selected neighbour, then tops up with the
// closest rejected ones. topCandidates is a max-heap on entry and exit.
func (h *HNSW) selectNeighboursHeuristic(topCandidates *PriorityQueue, m int) {
	if topCandidates.Len() <= m {
		return
	}

	ascending := &PriorityQueue{Order: false}
	heap.Init(ascending)
	for topCandidates.Len() > 0 {
		item, _ := heap.Pop(topCandidates).(*PriorityQueueItem)
		heap.Push(ascending, item)
	}

	rejected := &PriorityQueue{Order: false}
	heap.Init(rejected)

	items := make([]*PriorityQueueItem, 0, m)
	for ascending.Len() > 0 && len(items) < m {
		item, _ := heap.Pop(ascending).(*PriorityQueueItem)
		keep := true
		for _, sel := range items {
			if distance(h.nodes[sel.Node].Vector, h.nodes[item.Node].Vector) < item.Distance {
				keep = false
				break
			}
		}
		if keep {
			items = append(items, item)
		} else {
			heap.Push(rejected, item)
		}
	}
	for len(items) < m && rejected.Len() > 0 {
		item, _ := heap.Pop(rejected).(*PriorityQueueItem)
		items = append(items, item)
	}

	topCandidates.Order = true
	topCandidates.Items = topCandidates.Items[:0]
	for _, item := range items {
		heap.Push(topCandidates, item)
	}
}

func (h *HNSW) randomLevel() int {
	// 1-Float64 is in (0, 1], keeping the log finite.
	return int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
}

func nearestOf(pq *PriorityQueue) PriorityQueueItem {
	best := *pq.Items[0]
	for _, it := range pq.Items[1:] {
		if it.Distance < best.Distance {
			best = *it
		}
	}
	return best
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// distance is the cosine distance of two normalized vectors.
func distance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}
