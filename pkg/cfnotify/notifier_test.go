package cfnotify

import (
	"os"
	"testing"
	"time"
)

func TestWatchDoesNotBlockBehindAnInFlightWait(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	other, otherW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer other.Close()
	defer otherW.Close()

	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Watch(int(r.Fd()), Readable, "blocker"); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	waitDone := make(chan struct{})
	go func() {
		defer close(waitDone)
		n.Wait(2000) // nothing written yet: blocks in the backend for a while
	}()
	time.Sleep(50 * time.Millisecond) // let the goroutine above enter backend.wait

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- n.Watch(int(other.Fd()), Readable, "second")
	}()

	select {
	case err := <-watchDone:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Watch blocked behind an in-flight Wait call")
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	<-waitDone
}

func TestNotifierDeliversReadReadiness(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Watch(int(r.Fd()), Readable, "cookie-1"); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ev, ok, err := n.Wait(1000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !ok {
		t.Fatal("Wait reported no event after write")
	}
	if ev.FD != int(r.Fd()) {
		t.Fatalf("Event.FD = %d, want %d", ev.FD, int(r.Fd()))
	}
	if ev.Interest&Readable == 0 {
		t.Fatalf("Event.Interest = %v, want Readable set", ev.Interest)
	}
	if ev.Cookie != "cookie-1" {
		t.Fatalf("Event.Cookie = %v, want cookie-1", ev.Cookie)
	}
}

func TestNotifierIsOneShot(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Watch(int(r.Fd()), Readable, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, ok, err := n.Wait(1000); err != nil || !ok {
		t.Fatalf("first Wait: ok=%v err=%v", ok, err)
	}

	// Watch an unrelated idle pipe so the gate is open and the second
	// Wait really blocks in the backend; r still holds unread data, so a
	// registration left behind for it would fire here.
	idleR, idleW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer idleR.Close()
	defer idleW.Close()
	if err := n.Watch(int(idleR.Fd()), Readable, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	start := time.Now()
	_, ok, err := n.Wait(200)
	if err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if ok {
		t.Fatal("fd fired again without being re-Watched")
	}
	if time.Since(start) < 150*time.Millisecond {
		t.Fatal("second Wait returned suspiciously fast for a real timeout")
	}
}

func TestNotifierGateSkipsWaitWhenNothingWatched(t *testing.T) {
	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	start := time.Now()
	_, ok, err := n.Wait(5000)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ok {
		t.Fatal("Wait reported an event with nothing watched")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("Wait blocked instead of returning immediately on a closed gate")
	}
}

func TestNotifierRemoveCancelsPendingWatch(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	n, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer n.Close()

	if err := n.Watch(int(r.Fd()), Readable, nil); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := n.Remove(int(r.Fd())); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, ok, err := n.Wait(200)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if ok {
		t.Fatal("removed fd still delivered an event")
	}
}
