package cfsession

import (
	"sync/atomic"

	"github.com/relaycore/cfcore/pkg/cfclock"
	"github.com/relaycore/cfcore/pkg/cftask"
)

// TimeoutTask is a Task keyed on its own deadline, reset on every byte
// of session activity. It is not pinned to any worker: it can run on a
// different worker from the session's socket Task, and at the same
// time as it.
type TimeoutTask struct {
	Task *cftask.Task

	idleMillis int64
	lastTouch  atomic.Int64
	expired    atomic.Bool
	expire     func()
}

// NewTimeoutTask creates a TimeoutTask that calls expire once idleMillis
// elapses with no intervening Touch call. expire runs on the worker
// goroutine and must not block. The Task starts life already touched
// (its clock starts now); call Arm to schedule its first deadline.
func NewTimeoutTask(pool *cftask.TaskPool, name string, idleMillis int64, expire func()) *TimeoutTask {
	tt := &TimeoutTask{idleMillis: idleMillis, expire: expire}
	tt.lastTouch.Store(cfclock.NowMillis())
	tt.Task = pool.NewTask(name, cftask.RunnerFunc(tt.run))
	return tt
}

func (tt *TimeoutTask) run(t *cftask.Task) int64 {
	t.ClearAll()
	if tt.expired.Load() {
		return cftask.Kill
	}
	elapsed := cfclock.NowMillis() - tt.lastTouch.Load()
	if elapsed >= tt.idleMillis {
		tt.expired.Store(true)
		tt.expire()
		return cftask.Kill
	}
	return tt.idleMillis - elapsed
}

// Touch resets the idle clock and, if the Task is not currently
// scheduled, makes sure it gets dispatched at least once more so the
// new deadline is armed. Safe to call from any goroutine.
func (tt *TimeoutTask) Touch() {
	tt.lastTouch.Store(cfclock.NowMillis())
	tt.Task.Signal(cftask.EventTimeout)
}

// Arm schedules the TimeoutTask's first deadline. Equivalent to an
// initial Touch, kept as a separate name for callers that want to be
// explicit about "start the clock" versus "activity happened".
func (tt *TimeoutTask) Arm() { tt.Touch() }

// Cancel marks the timeout as already handled, so a race between
// genuine expiry and an explicit session close does not double-fire
// expire.
func (tt *TimeoutTask) Cancel() { tt.expired.Store(true) }
