package cfsession

import (
	"net"
	"testing"
	"time"

	"github.com/relaycore/cfcore/pkg/cfnet"
	"github.com/relaycore/cfcore/pkg/cftask"
)

func mustPair(t *testing.T) (*cfnet.Socket, *cfnet.Socket) {
	t.Helper()
	ln, err := cfnet.Open(nil, nil)
	if err != nil {
		t.Fatalf("Open listener: %v", err)
	}
	defer ln.Close()
	// reuse cfnet's own test helper shape inline rather than exporting one
	if err := ln.Bind(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := ln.Listen(1); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr, err := ln.LocalAddr()
	if err != nil {
		t.Fatalf("LocalAddr: %v", err)
	}

	client, err := cfnet.Open(nil, nil)
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	_ = client.Connect(addr)

	var server *cfnet.Socket
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, _, err := ln.Accept()
		if err == nil {
			server = s
			break
		}
		if cfnet.KindOf(err) != cfnet.WouldBlock {
			t.Fatalf("Accept: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	if server == nil {
		t.Fatal("never accepted")
	}
	return client, server
}

func TestSessionIDsAreMonotonicAndUnique(t *testing.T) {
	a := NextID()
	b := NextID()
	if b <= a {
		t.Fatalf("ids not monotonic: %d then %d", a, b)
	}
}

func TestSessionReadWriteRoundTrip(t *testing.T) {
	client, server := mustPair(t)
	defer client.Close()
	defer server.Close()

	clientSess := New(client, nil, nil)
	serverSess := New(server, nil, nil)

	payload := []byte("hello session")
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := clientSess.Write(payload)
		if err == nil {
			break
		}
		if cfnet.KindOf(err) != cfnet.WouldBlock {
			t.Fatalf("Write: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out writing")
		}
	}
	if err := clientSess.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	buf := make([]byte, len(payload))
	total := 0
	for total < len(buf) {
		n, err := serverSess.Read(buf[total:])
		total += n
		if err != nil && cfnet.KindOf(err) != cfnet.WouldBlock {
			t.Fatalf("Read: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out reading")
		}
	}

	if string(buf) != string(payload) {
		t.Fatalf("got %q, want %q", buf, payload)
	}
}

func TestPinUnpinTracksHolders(t *testing.T) {
	client, server := mustPair(t)
	defer client.Close()
	defer server.Close()

	s := New(client, nil, nil)
	s.Pin()
	s.Pin()
	if s.Holders() != 2 {
		t.Fatalf("Holders = %d, want 2", s.Holders())
	}
	if s.Unpin() {
		t.Fatal("Unpin reported zero too early")
	}
	if !s.Unpin() {
		t.Fatal("Unpin should report zero on the last release")
	}
}

func TestTimeoutTaskFiresAfterIdlePeriod(t *testing.T) {
	pool := cftask.NewTaskPool(1, nil, nil)
	pool.Start()
	defer pool.Stop()

	fired := make(chan struct{}, 1)
	tt := NewTimeoutTask(pool, "test-timeout", 20, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	tt.Arm()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout task never fired")
	}
}

func TestTimeoutTaskTouchDelaysExpiry(t *testing.T) {
	pool := cftask.NewTaskPool(1, nil, nil)
	pool.Start()
	defer pool.Stop()

	fired := make(chan struct{}, 1)
	tt := NewTimeoutTask(pool, "test-timeout", 60, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	tt.Arm()

	// Keep touching faster than the idle window for a while; expiry
	// must not have fired yet.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		tt.Touch()
	}
	select {
	case <-fired:
		t.Fatal("timeout fired despite repeated activity")
	default:
	}

	// Now let it actually expire.
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout task never fired after activity stopped")
	}
}
