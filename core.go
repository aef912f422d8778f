package cfcore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relaycore/cfcore/pkg/cfaddr"
	"github.com/relaycore/cfcore/pkg/cfblock"
	"github.com/relaycore/cfcore/pkg/cflog"
	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cfthread"
	"github.com/relaycore/cfcore/pkg/cftask"
)

// Engine is the process-wide set of singletons Initialize wires up:
// the task-scheduler pool, the event notifier, its routing thread, the
// local-address table, and the shared block-buffer pool every cffile
// Source should cache against so separate FileSources conserve memory
// against one budget instead of each allocating their own. Mirrors the
// original SocketUtils::Initialize static wiring, expressed as an
// explicit value instead of hidden package globals so a process can
// (in principle) run more than one.
type Engine struct {
	Config    *Config
	Pool      *cftask.TaskPool
	Notifier  *cfnotify.Notifier
	Addrs     *cfaddr.Table
	Logger    *cflog.Logger
	BlockPool *cfblock.Pool

	router *cfthread.Thread
}

var (
	initOnce sync.Once
	engine   atomic.Pointer[Engine]
	initErr  error
)

// Initialize performs the one-time process-wide wiring described by
// cfg: a TaskPool of cfg.Workers workers, a platform Notifier, a
// dedicated routing Thread pumping the Notifier's events into Task
// signals, and a local address table (reverse-DNS resolved eagerly iff
// cfg.LookupDNS). Calling Initialize more than once returns the same
// Engine and the error (if any) from the first call -- it is not an
// error to call it again, matching SocketUtils::Initialize's
// idempotent "already initialized" guard.
func Initialize(cfg *Config, logger *cflog.Logger) (*Engine, error) {
	initOnce.Do(func() {
		if cfg == nil {
			cfg = Default()
		}
		if err := cfg.Validate(); err != nil {
			initErr = err
			return
		}

		pool := cftask.NewTaskPool(cfg.Workers, nil, logger)

		notifier, err := cfnotify.New(logger)
		if err != nil {
			initErr = fmt.Errorf("cfcore: creating notifier: %w", err)
			return
		}

		addrs, err := cfaddr.Discover(cfg.LookupDNS)
		if err != nil {
			initErr = fmt.Errorf("cfcore: discovering local addresses: %w", err)
			return
		}

		blockPool := cfblock.NewPool(cfg.BlockUnitBytes, uint32(cfg.BlockPoolMax), uint32(cfg.BlockPoolIncrement))

		e := &Engine{Config: cfg, Pool: pool, Notifier: notifier, Addrs: addrs, Logger: logger, BlockPool: blockPool}
		e.router = cfthread.New("cfcore-notifier-router")

		pool.Start()
		e.router.Start(func(self *cfthread.Thread) {
			routeEvents(self, notifier, cfg.NotifierWaitMillis)
		})

		engine.Store(e)
	})
	return engine.Load(), initErr
}

// routeEvents is the event-routing loop body Initialize runs on the
// Engine's router Thread.
func routeEvents(self *cfthread.Thread, notifier *cfnotify.Notifier, waitMillis int64) {
	for !self.StopRequested() {
		ev, ok, err := notifier.Wait(waitMillis)
		if err != nil || !ok {
			continue
		}
		task, isTask := ev.Cookie.(*cftask.Task)
		if !isTask {
			continue
		}
		var bits cftask.EventFlags
		if ev.Interest&cfnotify.Readable != 0 {
			bits |= cftask.EventRead
		}
		if ev.Interest&cfnotify.Writable != 0 {
			bits |= cftask.EventWrite
		}
		task.Signal(bits)
	}
}

// Get returns the Engine built by the first Initialize call, or nil if
// Initialize has not been called (or failed).
func Get() *Engine {
	return engine.Load()
}

// Uninitialize stops the TaskPool and the routing Thread and closes
// the Notifier, then clears the singleton so a later Initialize call
// can build a fresh Engine. Safe to call when no Engine was ever
// built.
func Uninitialize() {
	if e := engine.Load(); e != nil {
		e.router.StopAndJoin()
		e.Pool.Stop()
		_ = e.Notifier.Close()
		engine.Store(nil)
	}
	initOnce = sync.Once{}
	initErr = nil
}
