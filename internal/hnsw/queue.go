package hnsw

import "container/heap"

var _ heap.Interface = (*PriorityQueue)(nil)

// PriorityQueueItem is a node paired with its distance to the current query.
type PriorityQueueItem struct {
	Node     uint32
	Distance float32
	Index    int // maintained by heap.Interface
}

// PriorityQueue is a binary heap of items. Order false is a min-heap on
// distance, true a max-heap.
type PriorityQueue struct {
	Order bool
	Items []*PriorityQueueItem
}

func (pq *PriorityQueue) Len() int { return len(pq.Items) }

func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.Order {
		return pq.Items[i].Distance > pq.Items[j].Distance
	}
	return pq.Items[i].Distance < pq.Items[j].Distance
}

func (pq *PriorityQueue) Swap(i, j int) {
	pq.Items[i], pq.Items[j] = pq.Items[j], pq.Items[i]
	pq.Items[i].Index, pq.Items[j].Index = i, j
}

func (pq *PriorityQueue) Push(x any) {
	item, _ := x.(*PriorityQueueItem)
	item.Index = len(pq.Items)
	pq.Items = append(pq.Items, item)
}

func (pq *PriorityQueue) Pop() any {
	old := pq.Items
	n := len(old)
	if n == 0 {
		return nil
	}
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	pq.Items = old[:n-1]
	return item
}

// Top returns the root of the heap without removing it.
func (pq *PriorityQueue) Top() *PriorityQueueItem {
	return pq.Items[0]
}
