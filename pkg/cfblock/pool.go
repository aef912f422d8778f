package cfblock

import (
	"container/list"
	"fmt"

	"github.com/relaycore/cfcore/pkg/cfsync"
)

// Pool is a bounded set of fixed-size Buffers, allocated lazily up to a
// current maximum and then recycled least-recently-used once that
// maximum is reached. SetMax/IncMax/DecMax let a FileSource grow or
// shrink its cache budget at runtime. Lowering the budget frees no
// buffer already handed out: current stays as it is, and Acquire
// recycles instead of allocating while current is at or above max.
type Pool struct {
	mu cfsync.InvariantMutex

	unitSize  int
	max       uint32
	increment uint32
	current   uint32

	// queue holds every live *Buffer, front = least recently used. A
	// buffer is moved to the back by MarkUsed whenever it is touched.
	queue *list.List
}

// NewPool creates a pool of unitSize-byte buffers. max is the initial
// buffer budget (at least 1); increment is how much IncMax/DecMax
// adjusts it by each call.
func NewPool(unitSize int, max, increment uint32) *Pool {
	if unitSize <= 0 {
		unitSize = DefaultUnitSizeBytes
	}
	if max == 0 {
		max = 1
	}
	if increment == 0 {
		increment = 1
	}
	p := &Pool{unitSize: unitSize, max: max, increment: increment, queue: list.New()}
	p.mu = cfsync.NewInvariantMutex(p.checkInvariants)
	return p
}

// checkInvariants verifies the LRU queue tracks exactly as many
// buffers as current claims to have allocated.
func (p *Pool) checkInvariants() {
	if uint32(p.queue.Len()) != p.current {
		panic(fmt.Sprintf("cfblock: pool queue holds %d buffers, current says %d", p.queue.Len(), p.current))
	}
}

// SetMax overrides the buffer budget directly. A zero value is ignored.
func (p *Pool) SetMax(max uint32) {
	if max == 0 {
		return
	}
	p.mu.Lock()
	p.max = max
	p.mu.Unlock()
}

// IncMax grows the budget by increment.
func (p *Pool) IncMax() {
	p.mu.Lock()
	p.max += p.increment
	p.mu.Unlock()
}

// DecMax shrinks the budget by increment, never below increment itself
// (matching the original's DecMaxBuffers, which refuses to go to zero).
func (p *Pool) DecMax() {
	p.mu.Lock()
	if p.max > p.increment {
		p.max -= p.increment
		if p.max < p.increment {
			p.max = p.increment
		}
	}
	p.mu.Unlock()
}

// MaxBuffers returns the current budget.
func (p *Pool) MaxBuffers() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// CurrentBuffers returns how many buffers have actually been allocated
// so far (<= MaxBuffers, since allocation is lazy).
func (p *Pool) CurrentBuffers() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// UnitSize returns the fixed size of every buffer in the pool.
func (p *Pool) UnitSize() int { return p.unitSize }

// Acquire returns a buffer for the caller to fill: a freshly allocated
// one if the pool hasn't reached its budget yet, otherwise the least
// recently used buffer already in circulation (evicting whatever block
// it held). Either way the returned buffer is placed at the back of the
// LRU queue, as the most recently used one.
func (p *Pool) Acquire() *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current < p.max || p.queue.Len() == 0 {
		b := newBuffer(p.unitSize)
		p.current++
		p.queue.PushBack(b)
		return b
	}

	front := p.queue.Front()
	b := front.Value.(*Buffer)
	p.queue.Remove(front)
	p.queue.PushBack(b)
	return b
}

// MarkUsed moves b to the back of the LRU queue, the way
// FileBlockPool::MarkUsed does whenever a buffer is touched again
// before eviction.
func (p *Pool) MarkUsed(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for e := p.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(*Buffer) == b {
			p.queue.MoveToBack(e)
			return
		}
	}
}
