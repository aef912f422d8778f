package cfnet

import (
	"testing"
	"time"

	"github.com/relaycore/cfcore/pkg/cfnotify"
	"github.com/relaycore/cfcore/pkg/cftask"
	"github.com/relaycore/cfcore/pkg/cfthread"
)

// TestEchoOverNotifierAndTaskPool wires components D, E and F together
// end to end: a client Socket driven entirely by a cftask.Task whose
// Run method never blocks, woken up by cfnotify events routed through
// PumpNotifier, exchanging one message with a synchronously-driven
// server socket.
func TestEchoOverNotifierAndTaskPool(t *testing.T) {
	notifier, err := cfnotify.New(nil)
	if err != nil {
		t.Fatalf("cfnotify.New: %v", err)
	}
	defer notifier.Close()

	pool := cftask.NewTaskPool(2, nil, nil)
	pool.Start()
	defer pool.Stop()

	router := cfthread.New("router")
	router.Start(func(self *cfthread.Thread) { PumpNotifier(self, notifier) })
	defer router.StopAndJoin()

	ln, addr := mustListener(t)
	defer ln.Close()

	serverConnCh := make(chan *Socket, 1)
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			s, _, err := ln.Accept()
			if err == nil {
				serverConnCh <- s
				return
			}
			if KindOf(err) != WouldBlock {
				serverConnCh <- nil
				return
			}
			time.Sleep(time.Millisecond)
		}
		serverConnCh <- nil
	}()

	client, err := Open(notifier, nil)
	if err != nil {
		t.Fatalf("Open client: %v", err)
	}
	defer client.Close()
	_ = client.Connect(addr) // non-blocking; completion observed via Writable

	payload := []byte("ping-pong")
	reply := make([]byte, len(payload))
	written, readN := 0, 0
	done := make(chan error, 1)

	clientTask := pool.NewTask("echo-client", cftask.RunnerFunc(func(tk *cftask.Task) int64 {
		for written < len(payload) {
			n, err := client.Write(payload[written:])
			written += n
			if err != nil {
				if KindOf(err) == WouldBlock {
					if rerr := client.RequestEvent(cfnotify.Writable); rerr != nil {
						done <- rerr
						return cftask.Kill
					}
					return cftask.Suspend
				}
				done <- err
				return cftask.Kill
			}
		}

		for readN < len(reply) {
			n, err := client.Read(reply[readN:])
			readN += n
			if err != nil {
				if KindOf(err) == WouldBlock {
					if rerr := client.RequestEvent(cfnotify.Readable); rerr != nil {
						done <- rerr
						return cftask.Kill
					}
					return cftask.Suspend
				}
				done <- err
				return cftask.Kill
			}
			if n == 0 {
				if rerr := client.RequestEvent(cfnotify.Readable); rerr != nil {
					done <- rerr
					return cftask.Kill
				}
				return cftask.Suspend
			}
		}

		done <- nil
		return cftask.Kill
	}))
	client.SetTask(clientTask)
	clientTask.Signal(cftask.EventUser1) // kick off the first turn

	server := <-serverConnCh
	if server == nil {
		t.Fatal("server never accepted the connection")
	}
	defer server.Close()

	go func() {
		buf := make([]byte, len(payload))
		total := 0
		deadline := time.Now().Add(2 * time.Second)
		for total < len(buf) && time.Now().Before(deadline) {
			n, err := server.Read(buf[total:])
			total += n
			if err != nil && KindOf(err) != WouldBlock {
				return
			}
			if n == 0 {
				time.Sleep(time.Millisecond)
			}
		}
		sent := 0
		for sent < total && time.Now().Before(deadline) {
			n, err := server.Write(buf[sent:total])
			sent += n
			if err != nil && KindOf(err) != WouldBlock {
				return
			}
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("client task reported error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("echo exchange did not complete")
	}

	if string(reply) != string(payload) {
		t.Fatalf("reply = %q, want %q", reply, payload)
	}
}
