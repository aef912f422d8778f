//go:build !linux

package cfnotify

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollBackend is the portable fallback used on every non-Linux target;
// no kqueue or IOCP backend ships. It re-derives the fd set on every
// wait call rather than maintaining kernel-side registration, since
// poll(2) has no persistent interest set to mutate.
type pollBackend struct {
	mu       sync.Mutex
	interest map[int]Interest
}

func newBackend() (backend, error) {
	return &pollBackend{interest: make(map[int]Interest)}, nil
}

func (b *pollBackend) watch(fd int, interest Interest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interest[fd] = interest
	return nil
}

func (b *pollBackend) unwatch(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.interest, fd)
	return nil
}

func (b *pollBackend) wait(timeoutMillis int64) ([]rawEvent, error) {
	b.mu.Lock()
	fds := make([]unix.PollFd, 0, len(b.interest))
	for fd, interest := range b.interest {
		var events int16
		if interest&Readable != 0 {
			events |= unix.POLLIN
		}
		if interest&Writable != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	b.mu.Unlock()

	if len(fds) == 0 {
		return nil, nil
	}

	n, err := unix.Poll(fds, int(timeoutMillis))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]rawEvent, 0, n)
	for _, pfd := range fds {
		var interest Interest
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			interest |= Readable
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			interest |= Writable
		}
		if interest != 0 {
			out = append(out, rawEvent{fd: int(pfd.Fd), interest: interest})
		}
	}
	return out, nil
}

func (b *pollBackend) close() error { return nil }
