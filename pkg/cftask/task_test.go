package cftask

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaycore/cfcore/pkg/cfthread"
)

func cfthreadCurrentName() string {
	if th := cfthread.Current(); th != nil {
		return th.Name
	}
	return ""
}

func newTestPool(t *testing.T, workers int) *TaskPool {
	t.Helper()
	p := NewTaskPool(workers, nil, nil)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

// TestRequeueRunsRepeatedly covers a Runner that yields Requeue a fixed
// number of times before switching to Kill, exercising the "0 ->
// reschedule immediately" path end to end.
func TestRequeueRunsRepeatedly(t *testing.T) {
	p := newTestPool(t, 2)

	var runs atomic.Int32
	done := make(chan struct{})
	var task *Task
	task = p.NewTask("requeue", RunnerFunc(func(tk *Task) int64 {
		n := runs.Add(1)
		if n >= 5 {
			close(done)
			return Kill
		}
		return Requeue
	}))
	task.Signal(EventUser1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task only ran %d times, want 5", runs.Load())
	}
	_ = task
}

// TestPositiveYieldReschedulesAfterDelay is the timer scenario: a task
// yields a positive delay and must not run again before it elapses.
func TestPositiveYieldReschedulesAfterDelay(t *testing.T) {
	p := newTestPool(t, 1)

	var runs atomic.Int32
	var firstRun, secondRun time.Time
	done := make(chan struct{})
	task := p.NewTask("timer", RunnerFunc(func(tk *Task) int64 {
		n := runs.Add(1)
		switch n {
		case 1:
			firstRun = time.Now()
			return 150 // ms
		case 2:
			secondRun = time.Now()
			close(done)
			return Kill
		default:
			return Kill
		}
	}))
	task.Signal(EventTimeout)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task only ran %d times, want 2", runs.Load())
	}

	if gap := secondRun.Sub(firstRun); gap < 140*time.Millisecond {
		t.Fatalf("reschedule fired early: gap=%v, want >=150ms", gap)
	}
}

// TestSuspendWaitsForExternalSignal covers the negative "orphan" path: a
// Suspended task must not run again until something calls Signal.
func TestSuspendWaitsForExternalSignal(t *testing.T) {
	p := newTestPool(t, 1)

	var runs atomic.Int32
	ran := make(chan struct{}, 4)
	task := p.NewTask("suspend", RunnerFunc(func(tk *Task) int64 {
		runs.Add(1)
		ran <- struct{}{}
		return Suspend
	}))
	task.Signal(EventRead)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task never ran once")
	}

	// No second run should arrive without another Signal.
	select {
	case <-ran:
		t.Fatal("suspended task ran again without being signalled")
	case <-time.After(100 * time.Millisecond):
	}

	task.Signal(EventRead)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("task did not resume after re-signal")
	}

	if got := runs.Load(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}

// TestSingleRunnerInvariant signals the same task from many goroutines
// concurrently and checks the Runner never observes re-entrancy.
func TestSingleRunnerInvariant(t *testing.T) {
	p := newTestPool(t, 4)

	var inFlight atomic.Int32
	var violated atomic.Bool
	var totalRuns atomic.Int32

	task := p.NewTask("concurrent", RunnerFunc(func(tk *Task) int64 {
		if inFlight.Add(1) > 1 {
			violated.Store(true)
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
		totalRuns.Add(1)
		if totalRuns.Load() >= 40 {
			return Kill
		}
		return Requeue
	}))

	for i := 0; i < 20; i++ {
		go task.Signal(EventUser1)
	}

	deadline := time.After(3 * time.Second)
	for totalRuns.Load() < 40 {
		select {
		case <-deadline:
			t.Fatalf("only completed %d runs", totalRuns.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if violated.Load() {
		t.Fatal("single-runner invariant violated: Runner re-entered concurrently")
	}
}

// TestPinToKeepsTaskOnOneWorker exercises useThisThread pinning: every
// turn must land on the pinned worker's own goroutine, never another.
func TestPinToKeepsTaskOnOneWorker(t *testing.T) {
	p := newTestPool(t, 3)
	pinned := p.Workers()[1]

	var wrongWorker atomic.Bool
	done := make(chan struct{})
	var runs atomic.Int32

	task := p.NewTask("pinned", RunnerFunc(func(tk *Task) int64 {
		if cfthreadCurrentName() != pinned.Name() {
			wrongWorker.Store(true)
		}
		n := runs.Add(1)
		if n >= 10 {
			close(done)
			return Kill
		}
		return Requeue
	}))
	task.PinTo(pinned)
	task.Signal(EventUser1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pinned task did not complete")
	}
	if wrongWorker.Load() {
		t.Fatal("pinned task ran on a worker other than the one it was pinned to")
	}
}

// TestClearAndPending exercises the flag bookkeeping Run implementations
// rely on to consume one reason for waking without losing others.
func TestClearAndPending(t *testing.T) {
	p := newTestPool(t, 1)
	seen := make(chan EventFlags, 1)

	task := p.NewTask("flags", RunnerFunc(func(tk *Task) int64 {
		if tk.Pending(EventRead) {
			tk.Clear(EventRead)
		}
		if tk.Pending(EventWrite) {
			seen <- EventWrite
			tk.Clear(EventWrite)
			return Kill
		}
		return Suspend
	}))
	task.Signal(EventRead)
	task.Signal(EventWrite)

	select {
	case got := <-seen:
		if got != EventWrite {
			t.Fatalf("got %v, want EventWrite still pending after EventRead cleared", got)
		}
	case <-time.After(time.Second):
		t.Fatal("task never observed EventWrite")
	}
}
