package channel

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func pipeFDs(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestToFDServiceWritesBufferedBytes(t *testing.T) {
	r, w := pipeFDs(t)

	ch := New(5, ToFD, int(w.Fd()), 64, 0)
	if err := ch.SetNonblock(); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	ch.RB.Write([]byte("hello"))

	if got := ch.WantEvents(); got != unix.POLLOUT {
		t.Fatalf("WantEvents = %d, want POLLOUT", got)
	}
	if err := ch.Service(unix.POLLOUT); err != nil {
		t.Fatalf("Service: %v", err)
	}
	if ch.RB.Size() != 0 {
		t.Fatalf("RB.Size() = %d after service, want 0", ch.RB.Size())
	}
	if ch.BytesWritten != 5 {
		t.Fatalf("BytesWritten = %d, want 5", ch.BytesWritten)
	}

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("pipe read = %q, %d, %v", buf, n, err)
	}
}

func TestFromFDServiceReadsIntoRing(t *testing.T) {
	r, w := pipeFDs(t)

	ch := New(6, FromFD, int(r.Fd()), 64, 1000)
	if err := ch.SetNonblock(); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}

	if _, err := w.Write([]byte("data")); err != nil {
		t.Fatalf("pipe write: %v", err)
	}

	if got := ch.WantEvents(); got != unix.POLLIN {
		t.Fatalf("WantEvents = %d, want POLLIN", got)
	}
	if err := ch.Service(unix.POLLIN); err != nil {
		t.Fatalf("Service: %v", err)
	}
	if ch.RB.Size() != 4 {
		t.Fatalf("RB.Size() = %d, want 4", ch.RB.Size())
	}
	out := make([]byte, 4)
	ch.RB.Read(out)
	if string(out) != "data" {
		t.Fatalf("read %q, want data", out)
	}
}

func TestFromFDServiceEOFClosesChannel(t *testing.T) {
	r, w := pipeFDs(t)
	w.Close() // immediate EOF on r

	ch := New(7, FromFD, int(r.Fd()), 64, 1000)
	ch.SetNonblock()

	if err := ch.Service(unix.POLLIN); err != nil {
		t.Fatalf("Service: %v", err)
	}
	if !ch.Closed() {
		t.Fatalf("channel should be closed after EOF read")
	}
}

func TestClosedChannelWantsNothing(t *testing.T) {
	ch := New(1, ToFD, -1, 16, 0)
	if got := ch.WantEvents(); got != 0 {
		t.Fatalf("WantEvents on closed channel = %d, want 0", got)
	}
	if err := ch.Service(unix.POLLOUT); err != nil {
		t.Fatalf("Service on closed channel: %v", err)
	}
}

func TestCloseFDIdempotent(t *testing.T) {
	r, _ := pipeFDs(t)
	ch := New(2, FromFD, int(r.Fd()), 16, 0)
	if err := ch.CloseFD(); err != nil {
		t.Fatalf("first CloseFD: %v", err)
	}
	if !ch.Closed() {
		t.Fatalf("channel should report closed")
	}
	if err := ch.CloseFD(); err != nil {
		t.Fatalf("second CloseFD should be a no-op, got: %v", err)
	}
}
