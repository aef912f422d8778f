package cftask

import (
	"github.com/relaycore/cfcore/pkg/cfheap"
	"github.com/relaycore/cfcore/pkg/cflog"
	"github.com/relaycore/cfcore/pkg/cfsync"
	"github.com/relaycore/cfcore/pkg/cfthread"
)

// defaultIdleSleepMillis bounds how long a worker sleeps when it has
// nothing queued and no armed timer, so it still wakes periodically
// even if a Signal is somehow missed -- a safety net, not a correctness
// requirement (the Cond/queue handshake in loop is race-free on its
// own).
const defaultIdleSleepMillis = 5000

// TaskThread is one worker in a TaskPool: a ready queue fed by Signal
// calls from any goroutine, and a timer heap of tasks waiting out a
// positive reschedule delay. Both are owned exclusively by the
// goroutine running loop -- nothing else touches the heap, and the
// queue's own mutex is the only cross-goroutine contended state.
type TaskThread struct {
	name   string
	pool   *TaskPool
	logger *cflog.Logger

	mu    cfsync.Mutex
	cond  *cfsync.Cond
	ready []*Task

	heap *cfheap.TimerHeap

	thread *cfthread.Thread
}

func newWorker(name string, pool *TaskPool, logger *cflog.Logger) *TaskThread {
	w := &TaskThread{name: name, pool: pool, logger: logger, heap: cfheap.New()}
	w.cond = cfsync.NewCond(&w.mu)
	return w
}

// Name returns the worker's diagnostic name.
func (w *TaskThread) Name() string { return w.name }

func (w *TaskThread) enqueue(t *Task) {
	w.mu.Lock()
	w.ready = append(w.ready, t)
	w.mu.Unlock()
	w.cond.Signal()
}

func (w *TaskThread) start() {
	w.thread = cfthread.New(w.name)
	w.thread.Start(w.loop)
}

func (w *TaskThread) stop() {
	if w.thread != nil {
		w.thread.StopAndJoin()
	}
}

// loop is the worker's entire run-to-completion body:
//
//  1. drain the ready queue and dispatch every task in it
//  2. extract and dispatch every timer-heap element whose deadline has
//     arrived
//  3. if nothing was dispatched this pass, sleep until the next
//     deadline or the next Signal, whichever comes first
func (w *TaskThread) loop(self *cfthread.Thread) {
	for !self.StopRequested() {
		dispatchedAny := false

		for _, t := range w.drain() {
			w.admit(t)
			dispatchedAny = true
		}

		now := w.pool.clock.NowMillis()
		for {
			min := w.heap.PeekMin()
			if min == nil || min.Deadline > now {
				break
			}
			e := w.heap.ExtractMin()
			w.dispatch(e.Value.(*Task))
			dispatchedAny = true
		}

		if dispatchedAny {
			continue
		}

		w.sleepUntilNextEvent(now)
	}
}

func (w *TaskThread) drain() []*Task {
	w.mu.Lock()
	items := w.ready
	w.ready = nil
	w.mu.Unlock()
	return items
}

func (w *TaskThread) sleepUntilNextEvent(now int64) {
	sleepMs := int64(defaultIdleSleepMillis)
	if min := w.heap.PeekMin(); min != nil {
		if d := min.Deadline - now; d > 0 {
			sleepMs = d
		} else {
			sleepMs = 0
		}
	}

	w.mu.Lock()
	if len(w.ready) == 0 {
		w.cond.Wait(sleepMs)
	}
	w.mu.Unlock()
}

// admit handles a task freshly drained from the ready queue: if it is
// currently parked in a timer heap (its own, per the single-owner
// invariant), that pending timer is cancelled first, since an external
// Signal supersedes a stale reschedule-after-N-ms request.
func (w *TaskThread) admit(t *Task) {
	if t.timerElem != nil {
		t.timerElem.Leave()
	}
	w.dispatch(t)
}

// dispatch runs one task turn and acts on its return value. It enforces
// the single-runner invariant: if the task is somehow already marked
// running (a race between an external Signal and this worker's own
// drain of a stale queue entry), it is pushed back onto the queue
// instead of being run concurrently with itself.
func (w *TaskThread) dispatch(t *Task) {
	t.inQueue.Store(false)

	if !t.running.CompareAndSwap(false, true) {
		t.scheduleIfIdle()
		return
	}

	n := t.Runner.Run(t)
	t.running.Store(false)

	switch {
	case n == Kill:
		// task is finished; drop our reference by simply not
		// requeueing it anywhere.
	case n == Suspend:
		// orphaned: some future Signal is responsible for waking it.
	case n == Requeue:
		w.requeue(t)
	case n > 0:
		w.arm(t, n)
	default:
		// unrecognized negative sentinel: treat like Suspend rather
		// than risk a busy-loop on a misbehaving Runner.
	}
}

func (w *TaskThread) requeue(t *Task) {
	if t.inQueue.CompareAndSwap(false, true) {
		w.enqueue(t)
	}
}

func (w *TaskThread) arm(t *Task, delayMillis int64) {
	deadline := w.pool.clock.NowMillis() + delayMillis
	if t.timerElem == nil {
		t.timerElem = cfheap.NewElem(deadline, t)
	} else {
		t.timerElem.Deadline = deadline
	}
	w.heap.Insert(t.timerElem)
}
