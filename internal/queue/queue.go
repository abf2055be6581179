// Package queue provides the binary heaps used for top-k selection and graph traversal.
package queue

import "math"

// PriorityQueueItem represents an item in the priority queue.
type PriorityQueueItem struct {
	Node     uint64  // Node is the payload: an external id or an internal slot.
	Distance float64 // Distance is the priority of the item in the queue.
}

// Less orders items by ascending distance, breaking ties by ascending node.
// NaN distances order after every other distance.
func Less(a, b PriorityQueueItem) bool {
	if c := cmpDistance(a.Distance, b.Distance); c != 0 {
		return c < 0
	}
	return a.Node < b.Node
}

func cmpDistance(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare is Less as a three-way comparison, for use with slices.SortFunc.
func Compare(a, b PriorityQueueItem) int {
	switch {
	case Less(a, b):
		return -1
	case Less(b, a):
		return 1
	default:
		return 0
	}
}

// PriorityQueue is a value-based binary heap of PriorityQueueItems.
// A max-heap keeps the worst item on top; a min-heap keeps the best on top.
type PriorityQueue struct {
	isMaxHeap bool
	items     []PriorityQueueItem
}

// NewMin initializes a new priority queue with minimum priority.
func NewMin(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: false,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// NewMax initializes a new priority queue with maximum priority.
func NewMax(capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: true,
		items:     make([]PriorityQueueItem, 0, capacity),
	}
}

// Len returns the number of elements in the priority queue.
func (pq *PriorityQueue) Len() int { return len(pq.items) }

// Reset empties the queue, keeping its capacity.
func (pq *PriorityQueue) Reset() { pq.items = pq.items[:0] }

// TopItem returns the top element of the heap.
func (pq *PriorityQueue) TopItem() (PriorityQueueItem, bool) {
	if len(pq.items) == 0 {
		return PriorityQueueItem{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item PriorityQueueItem) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PopItem removes and returns the top element while maintaining the heap invariant.
func (pq *PriorityQueue) PopItem() (PriorityQueueItem, bool) {
	n := len(pq.items)
	if n == 0 {
		return PriorityQueueItem{}, false
	}
	root := pq.items[0]
	last := pq.items[n-1]
	pq.items = pq.items[:n-1]
	if n-1 > 0 {
		pq.items[0] = last
		pq.siftDown(0)
	}
	return root, true
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.isMaxHeap {
		return Less(pq.items[j], pq.items[i])
	}
	return Less(pq.items[i], pq.items[j])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !pq.less(i, p) {
			return
		}
		pq.items[i], pq.items[p] = pq.items[p], pq.items[i]
		i = p
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		r := l + 1
		if r < n && pq.less(r, l) {
			best = r
		}
		if !pq.less(best, i) {
			return
		}
		pq.items[i], pq.items[best] = pq.items[best], pq.items[i]
		i = best
	}
}

// TopK keeps the k best (smallest) items seen so far in a bounded max-heap.
// Offering N items costs O(N log k).
type TopK struct {
	k    int
	heap *PriorityQueue
}

// NewTopK creates a bounded selector for k items.
func NewTopK(k int) *TopK {
	return &TopK{k: k, heap: NewMax(k)}
}

// Offer considers item for inclusion. It reports whether the item was kept.
func (t *TopK) Offer(item PriorityQueueItem) bool {
	if t.k <= 0 {
		return false
	}
	if t.heap.Len() < t.k {
		t.heap.PushItem(item)
		return true
	}
	worst, _ := t.heap.TopItem()
	if !Less(item, worst) {
		return false
	}
	t.heap.items[0] = item
	t.heap.siftDown(0)
	return true
}

// Len returns the number of items currently kept.
func (t *TopK) Len() int { return t.heap.Len() }

// Full reports whether k items are kept.
func (t *TopK) Full() bool { return t.heap.Len() >= t.k }

// Sorted drains the selector and returns the kept items, best first.
func (t *TopK) Sorted() []PriorityQueueItem {
	out := make([]PriorityQueueItem, t.heap.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i], _ = t.heap.PopItem()
	}
	return out
}
