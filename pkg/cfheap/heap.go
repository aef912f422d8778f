// Package cfheap implements the min-heap keyed by a 64-bit deadline that
// backs each TaskThread's timer wheel (pkg/cftask).
//
// It is built directly on container/heap the way other_examples' gaio
// watcher.go builds its own deadline heap (timedHeap) on container/heap;
// the only addition on top of the stdlib interface is O(log n)
// arbitrary-element removal by identity, via a back-pointer each Elem
// carries to the heap it currently belongs to.
package cfheap

import "container/heap"

// Elem is one entry in a TimerHeap: a deadline and an opaque payload
// (typically a *cftask.Task). Membership in a heap is exclusive --
// Insert panics if e already belongs to any heap.
type Elem struct {
	Deadline int64
	Value    any

	index int
	owner *TimerHeap
}

// NewElem creates an unattached element ready to Insert.
func NewElem(deadline int64, value any) *Elem {
	return &Elem{Deadline: deadline, Value: value, index: -1}
}

// InHeap reports whether e currently belongs to any TimerHeap.
func (e *Elem) InHeap() bool { return e.owner != nil }

// Leave removes e from whichever TimerHeap currently owns it, if any. It is
// how a caller that only holds the element (not the heap) cancels a
// pending timer before re-arming it with a new deadline.
func (e *Elem) Leave() {
	if e.owner != nil {
		e.owner.Remove(e)
	}
}

// innerHeap adapts []*Elem to container/heap.Interface, keeping each
// element's index current on every Swap so Remove can locate it in
// O(log n) via heap.Remove instead of a linear scan.
type innerHeap []*Elem

func (h innerHeap) Len() int            { return len(h) }
func (h innerHeap) Less(i, j int) bool  { return h[i].Deadline < h[j].Deadline }
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *innerHeap) Push(x any) {
	e := x.(*Elem)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerHeap is a min-heap of Elems ordered by Deadline. It is not
// internally synchronized: each cftask.TaskThread owns exactly one
// TimerHeap and accesses it only from its own goroutine.
type TimerHeap struct {
	h innerHeap
}

// New returns an empty TimerHeap.
func New() *TimerHeap {
	return &TimerHeap{}
}

// Len returns the number of elements currently in the heap.
func (t *TimerHeap) Len() int { return len(t.h) }

// Insert adds e to the heap. Panics if e already belongs to a heap.
func (t *TimerHeap) Insert(e *Elem) {
	if e.owner != nil {
		panic("cfheap: element already belongs to a heap")
	}
	e.owner = t
	heap.Push(&t.h, e)
}

// PeekMin returns the minimum-deadline element without removing it, or nil
// if the heap is empty.
func (t *TimerHeap) PeekMin() *Elem {
	if len(t.h) == 0 {
		return nil
	}
	return t.h[0]
}

// ExtractMin removes and returns the minimum-deadline element, or nil if
// the heap is empty.
func (t *TimerHeap) ExtractMin() *Elem {
	if len(t.h) == 0 {
		return nil
	}
	e := heap.Pop(&t.h).(*Elem)
	e.owner = nil
	return e
}

// Remove removes e from this heap. It is a deliberate no-op (not an error)
// if e does not currently belong to this heap, so callers can remove
// speculatively -- a task that yields while still heap-resident gets
// removed-then-enqueued unconditionally rather than checked first.
func (t *TimerHeap) Remove(e *Elem) {
	if e.owner != t {
		return
	}
	heap.Remove(&t.h, e.index)
	e.owner = nil
	e.index = -1
}

// CheckInvariants validates the heap-order property over every internal
// node. It is O(n) and intended for debug-build assertions and tests,
// not the hot path.
func (t *TimerHeap) CheckInvariants() error {
	for i := range t.h {
		for _, c := range []int{2*i + 1, 2*i + 2} {
			if c < len(t.h) && t.h[c].Deadline < t.h[i].Deadline {
				return errHeapOrder
			}
		}
	}
	return nil
}

var errHeapOrder = heapOrderError{}

type heapOrderError struct{}

func (heapOrderError) Error() string { return "cfheap: heap-order invariant violated" }
