// Package cfsession provides the thin scaffolding a protocol layer sits
// on top of: a Socket, a Task identity, a monotonic id, and buffered
// input/output streams. It owns transport, not protocol -- no request
// parsing or routing lives here.
package cfsession

import (
	"bufio"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/relaycore/cfcore/pkg/cfnet"
	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cftask"
)

// firstID is the server-chosen starting value for the process-global
// monotonic session id counter.
const firstID = 1000

var nextID atomic.Int64

func init() {
	nextID.Store(firstID)
}

// NextID returns the next value of the process-global monotonic id
// counter, starting at firstID.
func NextID() int64 {
	return nextID.Add(1) - 1
}

// Session owns one accepted connection: its Socket, a Task identity, a
// unique monotonic id, buffered input/output streams, and a timeout
// Task that protocol layers re-arm on every byte of activity.
type Session struct {
	ID   int64
	Tag  string // cosmetic diagnostic label, not the id
	Task *cftask.Task

	mu sync.Mutex

	socket *cfnet.Socket
	in     *bufio.Reader
	out    *bufio.Writer

	timeoutTask *TimeoutTask

	objectHolders        int32
	requestBodyRemaining int64
}

// New creates a Session owning socket, scheduled on task. timeoutTask
// may be nil if the caller has no idle-timeout concern.
func New(socket *cfnet.Socket, task *cftask.Task, timeoutTask *TimeoutTask) *Session {
	id := NextID()
	return &Session{
		ID:          id,
		Tag:         fmt.Sprintf("sess-%d-%s", id, uuid.New().String()[:8]),
		Task:        task,
		socket:      socket,
		in:          bufio.NewReader(socketReader{socket}),
		out:         bufio.NewWriter(socketWriter{socket}),
		timeoutTask: timeoutTask,
	}
}

// socketReader/socketWriter adapt cfnet.Socket's single-shot,
// possibly-WouldBlock Read/Write to io.Reader/io.Writer so bufio can
// wrap them. A WouldBlock is passed straight through: the caller (a
// Task's Run method) must react to it by requesting an event and
// suspending, not by retrying here.
type socketReader struct{ s *cfnet.Socket }

func (r socketReader) Read(p []byte) (int, error) { return r.s.Read(p) }

type socketWriter struct{ s *cfnet.Socket }

func (w socketWriter) Write(p []byte) (int, error) { return w.s.Write(p) }

// Read reads buffered input, delegating to the underlying stream.
func (s *Session) Read(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Read(buf)
}

// Write writes through the buffered output stream.
func (s *Session) Write(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(buf)
}

// WriteVec writes each buffer in turn, stopping at the first error.
func (s *Session) WriteVec(bufs [][]byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, b := range bufs {
		n, err := s.out.Write(b)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Flush pushes any buffered output through to the Socket. A WouldBlock
// from the underlying Write surfaces here; the caller should
// RequestEvent(Writable) and retry Flush once signalled.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Flush()
}

// RequestEvent forwards to the owned Socket.
func (s *Session) RequestEvent(interest cfnotify.Interest) error {
	return s.socket.RequestEvent(interest)
}

// TouchTimeout re-arms the session's idle timer by signalling its
// timeout Task, if one is bound. Protocol layers call this on every
// byte of activity so an idle connection -- not a busy one -- is what
// eventually fires the timeout.
func (s *Session) TouchTimeout() {
	if s.timeoutTask != nil {
		s.timeoutTask.Touch()
	}
}

// Pin increments the object-holder count, letting an external
// subsystem keep the session alive past its own logical completion.
func (s *Session) Pin() {
	atomic.AddInt32(&s.objectHolders, 1)
}

// Unpin decrements the object-holder count and reports whether it has
// reached zero. Zero holders is necessary but not sufficient for
// teardown -- the caller must still confirm no other reason to keep
// the session around remains.
func (s *Session) Unpin() (atZero bool) {
	return atomic.AddInt32(&s.objectHolders, -1) == 0
}

// Holders reports the current object-holder count.
func (s *Session) Holders() int32 {
	return atomic.LoadInt32(&s.objectHolders)
}

// SetRequestBodyRemaining records how many bytes of request body the
// protocol layer still expects to read.
func (s *Session) SetRequestBodyRemaining(n int64) {
	atomic.StoreInt64(&s.requestBodyRemaining, n)
}

// RequestBodyRemaining reports the outstanding request body byte count.
func (s *Session) RequestBodyRemaining() int64 {
	return atomic.LoadInt64(&s.requestBodyRemaining)
}

// Socket returns the owned Socket, for callers that need raw access
// (e.g. Snarf during a protocol upgrade).
func (s *Session) Socket() *cfnet.Socket {
	return s.socket
}

// Close flushes any buffered output (best effort) and closes the
// owned Socket.
func (s *Session) Close() error {
	_ = s.Flush()
	return s.socket.Close()
}
