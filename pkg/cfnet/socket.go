// Package cfnet implements the non-blocking socket abstraction
// component F is built from: raw, non-blocking IPv4 TCP descriptors
// driven directly through golang.org/x/sys/unix rather than net.Conn,
// so that readiness is reported through pkg/cfnotify and pkg/cftask
// instead of Go's runtime netpoller -- the whole point of rebuilding
// this layer rather than using net.Listener/net.Conn as-is.
//
// Grounded on
// original_source/CFSocket/include/CF/Net/Socket/SocketUtils.h for the
// address-table half (see pkg/cfaddr) and on epollev.cpp's fd-keyed
// event model for how a Socket's readiness ties back to a single
// owning Task.
package cfnet

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cftask"
)

// Socket is a non-blocking IPv4 TCP descriptor, optionally bound to a
// cftask.Task that RequestEvent signals on readiness.
type Socket struct {
	mu     sync.Mutex
	fd     int
	closed bool

	notifier *cfnotify.Notifier
	task     *cftask.Task

	dnsOnce sync.Once
	dnsName string
}

func newNonblockingTCP() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Open creates a fresh non-blocking TCP socket. notifier/task may both
// be nil for a socket that will never call RequestEvent (e.g. the
// listening socket of a server that polls Accept synchronously).
func Open(notifier *cfnotify.Notifier, task *cftask.Task) (*Socket, error) {
	fd, err := newNonblockingTCP()
	if err != nil {
		return nil, classify("open", err)
	}
	return &Socket{fd: fd, notifier: notifier, task: task}, nil
}

func sockaddrFromTCPAddr(a *net.TCPAddr) (unix.Sockaddr, error) {
	var ip4 [4]byte
	if a != nil && a.IP != nil {
		ip := a.IP.To4()
		if ip == nil {
			return nil, fmt.Errorf("cfnet: only IPv4 addresses are supported, got %v", a.IP)
		}
		copy(ip4[:], ip)
	}
	port := 0
	if a != nil {
		port = a.Port
	}
	return &unix.SockaddrInet4{Port: port, Addr: ip4}, nil
}

func tcpAddrFromSockaddr(sa unix.Sockaddr) *net.TCPAddr {
	a, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, a.Addr[:])
	return &net.TCPAddr{IP: ip, Port: a.Port}
}

// Bind binds the socket to addr (SO_REUSEADDR is set first, the way a
// streaming server's listening socket needs to survive a quick
// restart).
func (s *Socket) Bind(addr *net.TCPAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return classify("bind", err)
	}
	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Bind(s.fd, sa); err != nil {
		return classify("bind", err)
	}
	return nil
}

// Listen marks the socket as a listening socket with the given accept
// backlog.
func (s *Socket) Listen(backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Listen(s.fd, backlog); err != nil {
		return classify("listen", err)
	}
	return nil
}

// Connect begins a non-blocking connect to addr. A returned *Error with
// Kind == InProgress is not a failure: the caller should RequestEvent
// with Writable interest and retry once the socket is signalled.
func (s *Socket) Connect(addr *net.TCPAddr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := sockaddrFromTCPAddr(addr)
	if err != nil {
		return err
	}
	if err := unix.Connect(s.fd, sa); err != nil {
		return classify("connect", err)
	}
	return nil
}

// Accept accepts one pending connection as a new Socket, inheriting
// this socket's notifier (but not its task -- callers bind a task to
// the accepted Socket explicitly via SetTask).
func (s *Socket) Accept() (*Socket, *net.TCPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nfd, sa, err := unix.Accept(s.fd)
	if err != nil {
		return nil, nil, classify("accept", err)
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return nil, nil, classify("accept", err)
	}
	return &Socket{fd: nfd, notifier: s.notifier}, tcpAddrFromSockaddr(sa), nil
}

// SetTask binds (or rebinds) the Task that RequestEvent signals.
func (s *Socket) SetTask(task *cftask.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.task = task
}

// Read performs a single non-blocking read. A *Error with Kind ==
// WouldBlock means the caller should RequestEvent(Readable) and wait
// for the next signal rather than retry immediately.
func (s *Socket) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return 0, classify("read", err)
	}
	return n, nil
}

// Write performs a single non-blocking write, with the same
// WouldBlock-means-RequestEvent contract as Read.
func (s *Socket) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := unix.Write(s.fd, buf)
	if err != nil {
		return 0, classify("write", err)
	}
	return n, nil
}

// Close releases the descriptor, first cancelling any pending notifier
// watch. Safe to call more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.notifier != nil {
		_ = s.notifier.Remove(s.fd)
	}
	return unix.Close(s.fd)
}

// FD returns the underlying descriptor, for callers that need to pass
// it to something outside this package (e.g. a notifier Watch call
// made directly rather than through RequestEvent).
func (s *Socket) FD() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// RequestEvent arms a one-shot readiness watch for interest, delivered
// eventually as a Signal on this socket's bound Task.
func (s *Socket) RequestEvent(interest cfnotify.Interest) error {
	s.mu.Lock()
	notifier, task, fd := s.notifier, s.task, s.fd
	s.mu.Unlock()
	if notifier == nil {
		return fmt.Errorf("cfnet: socket has no notifier bound")
	}
	if task == nil {
		return fmt.Errorf("cfnet: socket has no task bound")
	}
	return notifier.Watch(fd, interest, task)
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() (*net.TCPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, classify("getsockname", err)
	}
	return tcpAddrFromSockaddr(sa), nil
}

// RemoteAddr returns the address of the connected peer.
func (s *Socket) RemoteAddr() (*net.TCPAddr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return nil, classify("getpeername", err)
	}
	return tcpAddrFromSockaddr(sa), nil
}

// DNSName lazily resolves and caches the peer's reverse-DNS name.
func (s *Socket) DNSName() string {
	s.dnsOnce.Do(func() {
		addr, err := s.RemoteAddr()
		if err != nil {
			return
		}
		names, err := net.LookupAddr(addr.IP.String())
		if err != nil || len(names) == 0 {
			return
		}
		s.dnsName = strings.TrimSuffix(names[0], ".")
	})
	return s.dnsName
}

// Snarf transfers ownership of other's descriptor to s, closing
// whatever descriptor s previously held. other is left closed. This
// mirrors the original Socket layer's fd "snarfing" used when an
// accepted connection needs to be rehomed onto a differently-configured
// Socket object.
func (s *Socket) Snarf(other *Socket) error {
	first, second := s, other
	if first == second {
		return fmt.Errorf("cfnet: cannot snarf a socket from itself")
	}
	// Lock in a fixed order (by pointer address) so two sockets can
	// never snarf each other concurrently and deadlock.
	if fmt.Sprintf("%p", first) > fmt.Sprintf("%p", second) {
		first, second = second, first
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if !s.closed {
		unix.Close(s.fd)
	}
	s.fd = other.fd
	s.closed = other.closed
	other.fd = -1
	other.closed = true
	return nil
}
