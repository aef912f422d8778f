// Package cfsync provides the mutex, scoped-lock and condition-variable
// primitives component A of the core is built from.
//
// Structures with a checkable invariant and more than one goroutine
// touching them (the block pool's LRU queue) embed an InvariantMutex,
// the same github.com/jacobsa/gcloud/syncutil type jacobsa-fuse's
// samples/memfs uses for its inode and directory locks: Lock/Unlock/
// RLock/RUnlock run a caller-supplied invariant check in debug builds.
// Everything else (the per-Socket cookie map, the per-worker heartbeat
// mutex) uses a plain Mutex. The timer heap has a checkable invariant
// too (heap order) but is deliberately left unsynchronized: each
// TaskThread owns exactly one and never shares it across goroutines,
// so CheckInvariants is exposed for tests to call directly rather than
// wired into a lock.
package cfsync

import (
	"sync"

	"github.com/jacobsa/gcloud/syncutil"
)

// InvariantMutex re-exports syncutil.InvariantMutex under the cfsync name so
// callers only need one import for every lock in the package tree.
type InvariantMutex = syncutil.InvariantMutex

// NewInvariantMutex builds a lock that calls checkInvariants after every
// Lock/RLock (via jacobsa/gcloud/syncutil's own unlock-time checking) -
// violations panic in debug builds; release builds should supply a
// checkInvariants that logs and recovers rather than panicking, so a
// detected violation terminates the owning session, not the process.
func NewInvariantMutex(checkInvariants func()) InvariantMutex {
	return syncutil.NewInvariantMutex(checkInvariants)
}

// Mutex is a non-recursive mutual-exclusion lock with a scoped-acquisition
// helper. It exists separately from sync.Mutex only to carry the Scoped
// method; embedding sync.Mutex directly would expose Lock/Unlock with no way
// to attach Scoped without an import cycle in the other direction.
type Mutex struct {
	mu sync.Mutex
}

func (m *Mutex) Lock()   { m.mu.Lock() }
func (m *Mutex) Unlock() { m.mu.Unlock() }

// Unlocker releases a lock acquired by Scoped. Calling it more than once
// panics, matching sync.Mutex.Unlock's own double-unlock behavior.
type Unlocker func()

// Scoped acquires the lock and returns a release function intended to be
// called via defer, so the lock is released on every exit path -- including
// a panic unwinding through the caller -- the way an RAII lock guard would
// in C++.
//
//	unlock := m.Scoped()
//	defer unlock()
func (m *Mutex) Scoped() Unlocker {
	m.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(m.mu.Unlock)
	}
}

// RWMutex is the reader/writer counterpart of Mutex, with the same Scoped
// helpers for each mode.
type RWMutex struct {
	mu sync.RWMutex
}

func (m *RWMutex) Lock()    { m.mu.Lock() }
func (m *RWMutex) Unlock()  { m.mu.Unlock() }
func (m *RWMutex) RLock()   { m.mu.RLock() }
func (m *RWMutex) RUnlock() { m.mu.RUnlock() }

// Scoped acquires the write lock; ScopedRead acquires the read lock. Both
// return a release function safe to defer exactly once.
func (m *RWMutex) Scoped() Unlocker {
	m.mu.Lock()
	var once sync.Once
	return func() { once.Do(m.mu.Unlock) }
}

func (m *RWMutex) ScopedRead() Unlocker {
	m.mu.RLock()
	var once sync.Once
	return func() { once.Do(m.mu.RUnlock) }
}
