//go:build linux

package cfnotify

import "golang.org/x/sys/unix"

// epollBackend is the Linux backend, one epoll instance shared by every
// watched descriptor.
type epollBackend struct {
	fd int
}

func newBackend() (backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{fd: fd}, nil
}

func epollEventsFor(interest Interest) uint32 {
	var ev uint32
	if interest&Readable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLHUP | unix.EPOLLERR
	}
	if interest&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (b *epollBackend) watch(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollEventsFor(interest), Fd: int32(fd)}
	err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, fd, &ev)
	if err == unix.EEXIST {
		err = unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	return err
}

func (b *epollBackend) unwatch(fd int) error {
	err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *epollBackend) wait(timeoutMillis int64) ([]rawEvent, error) {
	events := make([]unix.EpollEvent, 128)
	n, err := unix.EpollWait(b.fd, events, int(timeoutMillis))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	out := make([]rawEvent, 0, n)
	for i := 0; i < n; i++ {
		var interest Interest
		// Bitmask, not equality: the original compared
		// events == EPOLLIN / == EPOLLHUP / == EPOLLERR, which silently
		// dropped any fd reporting more than one of those bits set at
		// once (e.g. readable-and-hung-up in the same wait).
		mask := events[i].Events
		if mask&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			interest |= Readable
		}
		if mask&unix.EPOLLOUT != 0 {
			interest |= Writable
		}
		out = append(out, rawEvent{fd: int(events[i].Fd), interest: interest})
	}
	return out, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.fd)
}
