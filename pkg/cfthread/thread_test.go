package cfthread

import (
	"testing"
	"time"
)

func TestCurrentInsideEntryMatchesSelf(t *testing.T) {
	th := New("worker-0")
	seen := make(chan *Thread, 1)
	th.Start(func(self *Thread) {
		seen <- Current()
	})
	select {
	case got := <-seen:
		if got != th {
			t.Fatalf("Current() = %v, want %v", got, th)
		}
	case <-time.After(time.Second):
		t.Fatal("entry never ran")
	}
	th.StopAndJoin()
}

func TestCurrentOnMainGoroutineIsNil(t *testing.T) {
	if got := Current(); got != nil {
		t.Fatalf("Current() on test goroutine = %v, want nil", got)
	}
}

func TestStopAndJoinWaitsForEntryReturn(t *testing.T) {
	th := New("worker-1")
	finished := make(chan struct{})
	th.Start(func(self *Thread) {
		for !self.StopRequested() {
			time.Sleep(time.Millisecond)
		}
		close(finished)
	})
	th.StopAndJoin()
	select {
	case <-finished:
	default:
		t.Fatal("StopAndJoin returned before entry finished")
	}
}

func TestMainData(t *testing.T) {
	if MainData() != nil {
		t.Fatalf("MainData() before SetMainData = %v, want nil", MainData())
	}
	SetMainData(42)
	if got := MainData(); got != 42 {
		t.Fatalf("MainData() = %v, want 42", got)
	}
}
