// Package queue provides an ordered container keyed by priority and
// insertion sequence.
//
// Ordering is a total order: descending priority first, then ascending
// insertion sequence, so equal-priority elements come out FIFO. The job
// scheduler uses it for its pending queue; other subsystems use it
// standalone for display ordering.
//
// A Queue is not internally locked. The scheduler guards its queue with the
// same mutex that guards the active-job slot; standalone users wrap it with
// their own lock when shared across goroutines.
package queue

import "container/heap"

// Item pairs an element with the priority it was pushed at and the sequence
// the queue assigned on insertion.
type Item[T comparable] struct {
	Priority int
	Sequence uint64
	Value    T
}

type itemHeap[T comparable] []Item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(Item[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// Queue holds (priority, sequence, element) triples.
type Queue[T comparable] struct {
	heap itemHeap[T]
	seq  uint64
}

func New[T comparable]() *Queue[T] {
	return &Queue[T]{}
}

// Push inserts v at the given priority and returns the sequence assigned to
// it. Higher priority pops first; equal priorities pop in push order.
func (q *Queue[T]) Push(v T, priority int) uint64 {
	q.seq++
	heap.Push(&q.heap, Item[T]{Priority: priority, Sequence: q.seq, Value: v})
	return q.seq
}

// Pop removes and returns the highest-priority, earliest-pushed element.
func (q *Queue[T]) Pop() (T, bool) {
	if len(q.heap) == 0 {
		var zero T
		return zero, false
	}
	it := heap.Pop(&q.heap).(Item[T])
	return it.Value, true
}

// Peek returns the element Pop would return, without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.heap) == 0 {
		var zero T
		return zero, false
	}
	return q.heap[0].Value, true
}

func (q *Queue[T]) Len() int { return len(q.heap) }

// Remove deletes the first element equal to v. It reports whether anything
// was removed.
//
// Removal is a linear scan followed by a re-heapify: O(n). Queues here hold
// tens of elements, not thousands, so scan cost is irrelevant next to the
// work the elements represent. An identity-to-index map would make this
// O(log n) at the cost of bookkeeping on every swap.
func (q *Queue[T]) Remove(v T) bool {
	for i := range q.heap {
		if q.heap[i].Value == v {
			heap.Remove(&q.heap, i)
			return true
		}
	}
	return false
}

// RemoveIf deletes every element matching pred and returns the removed
// values in no particular order.
func (q *Queue[T]) RemoveIf(pred func(T) bool) []T {
	var removed []T
	kept := q.heap[:0]
	for _, it := range q.heap {
		if pred(it.Value) {
			removed = append(removed, it.Value)
		} else {
			kept = append(kept, it)
		}
	}
	if len(removed) > 0 {
		q.heap = kept
		heap.Init(&q.heap)
	}
	return removed
}

// Snapshot returns the items in pop order without disturbing the queue.
func (q *Queue[T]) Snapshot() []Item[T] {
	cp := make(itemHeap[T], len(q.heap))
	copy(cp, q.heap)
	out := make([]Item[T], 0, len(cp))
	for cp.Len() > 0 {
		out = append(out, heap.Pop(&cp).(Item[T]))
	}
	return out
}

// Purge drops all elements. The sequence counter keeps counting.
func (q *Queue[T]) Purge() {
	q.heap = q.heap[:0]
}
