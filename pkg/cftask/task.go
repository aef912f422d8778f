// Package cftask implements the cooperative scheduler component E of the
// core is built from: a fixed pool of worker threads, each owning a
// ready queue and a deadline-ordered timer heap, running Tasks that
// yield an int64 telling the worker what to do next instead of blocking
// it.
//
// A Task never blocks the worker that runs it. Its Run method does
// whatever work is ready, then returns one of:
//
//	Requeue (0)   run again as soon as the worker is free
//	Suspend (<0)  go quiescent; some other signal will re-enqueue it
//	Kill    (<0)  self-destruct; the scheduler drops its reference
//	n > 0         run again no sooner than n milliseconds from now
//
// This mirrors the run-loop contract of the original C++
// (CFCore/Task.h) rather than Go's usual goroutine-per-connection model:
// it exists so a fixed, small number of OS threads can multiplex an
// arbitrarily large number of concurrent streams.
package cftask

import (
	"sync/atomic"

	"github.com/relaycore/cfcore/pkg/cfheap"
)

// Sentinel values a Runner's Run method returns, alongside any positive
// millisecond delay.
const (
	// Requeue asks the scheduler to run the task again as soon as a
	// worker is free.
	Requeue int64 = 0
	// Suspend tells the scheduler not to requeue the task at all; the
	// caller is pledging to Signal it later. Use this when a task is
	// waiting on an external event (socket readiness, a different
	// task's completion) rather than a timer.
	Suspend int64 = -1
	// Kill tells the scheduler the task is finished and its reference
	// may be dropped. The task must not be touched again after
	// returning Kill.
	Kill int64 = -2
)

// EventFlags is a bitset of reasons a Task has been signalled to run.
// Run implementations inspect and clear the bits they handle via
// Task.Pending and Task.Clear.
type EventFlags uint32

const (
	EventRead EventFlags = 1 << iota
	EventWrite
	EventTimeout
	EventKilled
	EventUser1
	EventUser2
)

// Runner is the work a Task performs. Run must not block; it should do
// only what is immediately ready and return promptly.
type Runner interface {
	Run(t *Task) int64
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(t *Task) int64

func (f RunnerFunc) Run(t *Task) int64 { return f(t) }

// Task is one schedulable unit of work. Tasks are created via
// TaskPool.NewTask and must not be constructed directly -- a Task needs
// to know which pool dispatches it.
type Task struct {
	Name   string
	Runner Runner

	pool *TaskPool

	eventFlags atomic.Uint32
	inQueue    atomic.Bool
	running    atomic.Bool

	useThisThread atomic.Pointer[TaskThread]
	timerElem     *cfheap.Elem
}

// Pending reports whether any of bits is currently set.
func (t *Task) Pending(bits EventFlags) bool {
	return EventFlags(t.eventFlags.Load())&bits != 0
}

// Clear clears bits from the pending set. Run implementations call this
// once they've handled the reason(s) a bit was set, so a later Signal
// for the same reason is not lost.
func (t *Task) Clear(bits EventFlags) {
	t.eventFlags.And(^uint32(bits))
}

// ClearAll clears every pending bit.
func (t *Task) ClearAll() { t.eventFlags.Store(0) }

// PinTo restricts t to always run on w, overriding the pool's
// round-robin placement. Pass nil to release the pin. Two tasks pinned
// to the same worker never run at the same time as each other.
func (t *Task) PinTo(w *TaskThread) { t.useThisThread.Store(w) }

// Signal ORs bits into the pending set and, if the task is not already
// queued, enqueues it onto its target worker. Signal is the only
// thread-safe entry point into a Task from outside its own Run method --
// any goroutine may call it at any time.
func (t *Task) Signal(bits EventFlags) {
	t.eventFlags.Or(uint32(bits))
	t.scheduleIfIdle()
}

func (t *Task) scheduleIfIdle() {
	if t.inQueue.CompareAndSwap(false, true) {
		t.worker().enqueue(t)
	}
}

func (t *Task) worker() *TaskThread {
	if w := t.useThisThread.Load(); w != nil {
		return w
	}
	return t.pool.pick()
}
