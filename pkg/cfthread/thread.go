// Package cfthread provides the cooperative thread abstraction component C
// of the core is built from: start/stop/join plus a "current thread"
// lookup usable from inside the thread's own entry function without
// threading a reference through every call.
//
// Go has no public per-OS-thread storage, so the thread-local lookup is
// built the way github.com/joeycumines/go-utilpkg's eventloop package
// identifies "am I running on the loop goroutine": by parsing the
// "goroutine N [...]" header runtime.Stack prints for the calling
// goroutine and using N as a stand-in for a thread-local-storage key. A
// Thread's entry function runs for the whole lifetime of one goroutine
// that never migrates, so this id is as stable as a pthread TLS key would
// be for the same object.
package cfthread

import (
	"runtime"
	"sync"
	"sync/atomic"
)

var registry sync.Map // goroutineID uint64 -> *Thread

// goroutineID returns the calling goroutine's runtime id.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// Thread is a named, cooperatively stoppable unit of execution. A TaskPool
// worker (pkg/cftask) is a Thread running a scheduling loop; the event
// notifier's routing goroutine is another.
type Thread struct {
	Name string

	stopRequested atomic.Bool
	done          chan struct{}
	goid          uint64
}

// New creates a Thread that has not yet been started.
func New(name string) *Thread {
	return &Thread{Name: name, done: make(chan struct{})}
}

// Start launches entry on a new goroutine, registering the Thread so that
// Current(), called from inside entry (directly or transitively), finds
// it. entry should return when StopRequested() becomes true, or whenever
// its own work is done.
func (t *Thread) Start(entry func(*Thread)) {
	go func() {
		t.goid = goroutineID()
		registry.Store(t.goid, t)
		defer registry.Delete(t.goid)
		defer close(t.done)
		entry(t)
	}()
}

// StopRequested reports whether StopAndJoin has been called. entry
// functions poll this between scheduling turns to know when to return.
func (t *Thread) StopRequested() bool { return t.stopRequested.Load() }

// StopAndJoin requests termination and blocks until entry has returned.
// Must not be called from within entry itself (it would deadlock).
func (t *Thread) StopAndJoin() {
	t.stopRequested.Store(true)
	<-t.done
}

// Current returns the Thread running on the calling goroutine, or nil if
// the caller is the main goroutine or any other goroutine not started via
// Start (mirroring OSThread::GetCurrentThread returning null on the main
// thread in the original C++ implementation this package is modeled on).
func Current() *Thread {
	v, ok := registry.Load(goroutineID())
	if !ok {
		return nil
	}
	return v.(*Thread)
}

// mainData is the single slot exposed for the one goroutine that hosts
// neither a worker nor the notifier -- process startup/teardown. It
// has no Thread object of its own, matching OSThread's single
// sMainThreadData slot rather than a full registry entry.
var mainData atomic.Value

// SetMainData stores a value associated with the main goroutine.
func SetMainData(v any) { mainData.Store(boxed{v}) }

// MainData retrieves the value stored by SetMainData, or nil if unset.
func MainData() any {
	b, ok := mainData.Load().(boxed)
	if !ok {
		return nil
	}
	return b.v
}

// boxed lets mainData hold a nil interface value distinctly from "unset".
type boxed struct{ v any }
