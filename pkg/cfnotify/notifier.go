// Package cfnotify implements the event notifier component D: one-shot
// read/write readiness delivery for raw file descriptors, backed by
// epoll on Linux and poll(2) everywhere else, the way
// original_source/CFSocket/epollev.cpp backs RTSPSession's socket
// readiness with epoll_wait -- and, separately, the way other_examples'
// gaio watcher.go layers its own proactor-style completion queue over a
// platform poller.
//
// Watch registers interest in a descriptor; exactly one matching Wait
// call later delivers it, after which the descriptor is automatically
// dropped from the interest set -- the caller must Watch again for
// further events. This one-shot contract is what lets cftask's
// event-routing worker hand a descriptor to a Task's Run method and
// know the Task, not the notifier, now owns deciding whether to watch
// again.
package cfnotify

import (
	"sync"

	"github.com/relaycore/cfcore/pkg/cflog"
)

// Interest is a bitmask of readiness a caller wants to be told about.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Event is one readiness delivery.
type Event struct {
	FD       int
	Interest Interest
	Cookie   any
}

// rawEvent is what a backend reports before the notifier attaches the
// caller's cookie and applies one-shot bookkeeping.
type rawEvent struct {
	fd       int
	interest Interest
}

// backend is the OS-specific half: epoll on Linux (epoll_linux.go),
// poll(2) everywhere else (poll_other.go).
type backend interface {
	watch(fd int, interest Interest) error
	unwatch(fd int) error
	wait(timeoutMillis int64) ([]rawEvent, error)
	close() error
}

// defaultWaitCapMillis bounds a single blocking wait the same way the
// original's epoll_wait(..., 15000) call does, so a Wait call with no
// caller-supplied timeout (or an excessive one) still returns
// periodically to let the owning worker re-check for shutdown.
const defaultWaitCapMillis = 15000

// Notifier serializes watch/wait/remove behind a single mutex and
// reproduces the original's canEpoll gate: Wait returns immediately
// with no event if nothing has been registered or changed since the
// last call, instead of busy-polling the backend.
type Notifier struct {
	mu      sync.Mutex
	backend backend
	cookies map[int]any
	pending []rawEvent
	gate    bool
	logger  *cflog.Logger
}

// New creates a Notifier using the platform backend.
func New(logger *cflog.Logger) (*Notifier, error) {
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Notifier{backend: b, cookies: make(map[int]any), logger: logger}, nil
}

// Close releases the backend's OS resources (the epoll fd, on Linux).
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.backend.close()
}

// Watch registers one-shot interest in fd. cookie is returned unchanged
// on the Event that eventually reports it -- callers typically pass the
// *cftask.Task (or something identifying it) that requested the watch.
func (n *Notifier) Watch(fd int, interest Interest, cookie any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.backend.watch(fd, interest); err != nil {
		return err
	}
	n.cookies[fd] = cookie
	n.gate = true
	return nil
}

// Remove cancels interest in fd before it has fired. It is not an error
// to remove an fd that was never watched or has already fired.
func (n *Notifier) Remove(fd int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.cookies, fd)
	err := n.backend.unwatch(fd)
	n.gate = true
	return err
}

// Wait delivers the next matching event, blocking for up to
// timeoutMillis (<=0 or above defaultWaitCapMillis is clamped to
// defaultWaitCapMillis) if none is already queued. ok is false if the
// call timed out or the gate was closed (no Watch or Remove since the
// last batch of events was drained) -- not an error.
//
// Exactly one Event is returned per call; if the last backend wait
// produced several, they are drained one at a time across successive
// Wait calls, mirroring the original's m_curEventReadPos/
// m_curTotalEvents batch draining.
//
// n.mu guards only cookies/pending/gate bookkeeping; the blocking
// backend.wait call itself runs with the lock released so a worker
// calling Watch or Remove to re-arm a socket is never stalled behind
// an in-flight wait.
func (n *Notifier) Wait(timeoutMillis int64) (Event, bool, error) {
	n.mu.Lock()

	if !n.gate && len(n.pending) == 0 {
		n.mu.Unlock()
		return Event{}, false, nil
	}

	if len(n.pending) == 0 {
		waitMillis := timeoutMillis
		if waitMillis <= 0 || waitMillis > defaultWaitCapMillis {
			waitMillis = defaultWaitCapMillis
		}
		n.mu.Unlock()

		raws, err := n.backend.wait(waitMillis)

		n.mu.Lock()
		if err != nil {
			n.mu.Unlock()
			return Event{}, false, err
		}
		if len(raws) == 0 {
			// Timed out: the gate stays open so the next Wait tries
			// again, matching canEpoll = true on epoll_wait returning 0.
			n.gate = true
			n.mu.Unlock()
			return Event{}, false, nil
		}
		n.pending = raws
	}

	raw := n.pending[0]
	n.pending = n.pending[1:]
	n.gate = len(n.pending) > 0

	cookie := n.cookies[raw.fd]
	delete(n.cookies, raw.fd)
	n.mu.Unlock()

	_ = n.backend.unwatch(raw.fd) // one-shot: caller must Watch again to hear more

	return Event{FD: raw.fd, Interest: raw.interest, Cookie: cookie}, true, nil
}
