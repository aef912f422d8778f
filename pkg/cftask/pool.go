package cftask

import (
	"fmt"
	"sync/atomic"

	"github.com/relaycore/cfcore/pkg/cfclock"
	"github.com/relaycore/cfcore/pkg/cflog"
)

// TaskPool owns a fixed set of TaskThread workers and the clock they
// share. It is the scheduler's single entry point for creating Tasks:
// construction is deliberately not exposed on Task itself, since a Task
// is meaningless without a pool to dispatch it.
type TaskPool struct {
	workers []*TaskThread
	clock   *cfclock.Clock
	logger  *cflog.Logger
	rr      atomic.Uint64
}

// NewTaskPool creates a pool of n workers. n must be >= 1. A nil clock
// defaults to the real wall clock; a nil logger discards everything.
func NewTaskPool(n int, clock *cfclock.Clock, logger *cflog.Logger) *TaskPool {
	if n < 1 {
		n = 1
	}
	if clock == nil {
		clock = cfclock.New(nil)
	}
	p := &TaskPool{clock: clock, logger: logger}
	p.workers = make([]*TaskThread, n)
	for i := range p.workers {
		p.workers[i] = newWorker(fmt.Sprintf("cftask-worker-%d", i), p, logger)
	}
	return p
}

// Start launches every worker's goroutine. Start must be called before
// any Task created against the pool can make progress.
func (p *TaskPool) Start() {
	for _, w := range p.workers {
		w.start()
	}
}

// Stop requests every worker to finish its current loop iteration and
// return, then blocks until all have joined.
func (p *TaskPool) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
}

// Workers returns the pool's workers, for pinning a Task to a specific
// one via Task.PinTo.
func (p *TaskPool) Workers() []*TaskThread {
	out := make([]*TaskThread, len(p.workers))
	copy(out, p.workers)
	return out
}

// pick selects a worker by round robin for a task with no pin.
func (p *TaskPool) pick() *TaskThread {
	idx := p.rr.Add(1) % uint64(len(p.workers))
	return p.workers[idx]
}

// NewTask creates a Task bound to this pool, running runner. The task
// does nothing until it is first Signal-ed.
func (p *TaskPool) NewTask(name string, runner Runner) *Task {
	t := &Task{Name: name, Runner: runner, pool: p}
	return t
}
