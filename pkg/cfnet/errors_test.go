package cfnet

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestClassifyMapsEPIPEToConnectionReset(t *testing.T) {
	err := classify("write", unix.EPIPE)
	if got := KindOf(err); got != ConnectionReset {
		t.Fatalf("KindOf(EPIPE) = %s, want %s", got, ConnectionReset)
	}
}

func TestClassifyMapsECONNRESETToConnectionReset(t *testing.T) {
	err := classify("read", unix.ECONNRESET)
	if got := KindOf(err); got != ConnectionReset {
		t.Fatalf("KindOf(ECONNRESET) = %s, want %s", got, ConnectionReset)
	}
}

func TestClassifyMapsUnknownErrnoToUnexpected(t *testing.T) {
	err := classify("read", unix.ENOSYS)
	if got := KindOf(err); got != Unexpected {
		t.Fatalf("KindOf(ENOSYS) = %s, want %s", got, Unexpected)
	}
}
