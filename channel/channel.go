// Package channel implements the Channel primitive: a named endpoint
// binding one ring buffer and optionally one non-blocking file
// descriptor, with a direction, flow-control state, and close flags.
//
// The non-blocking read/write discipline (try the syscall, treat EAGAIN
// as "nothing to do", treat a zero-byte read as EOF) is grounded on
// generic/rawcopy_unix.go's raw syscall.Read loop in the teacher repo,
// generalized here to golang.org/x/sys/unix so the engine's poll loop
// (pmux) can run fds non-blocking and use vectored writes.
package channel

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/xtaci/pmux/ring"
)

// Direction is a channel's fixed data direction relative to its fd.
type Direction int

const (
	// ToFD sinks bytes from the ring buffer to the fd.
	ToFD Direction = iota
	// FromFD sources bytes from the fd into the ring buffer.
	FromFD
)

func (d Direction) String() string {
	if d == ToFD {
		return "TO_FD"
	}
	return "FROM_FD"
}

// ErrClosed is returned by operations attempted against a channel whose
// fd has already been cleared.
var ErrClosed = errors.New("channel: fd already closed")

// Channel is a logical stream identified by a small integer, bound to at
// most one local, non-blocking file descriptor.
type Channel struct {
	No  uint32
	Dir Direction
	FD  int // -1 once locally closed

	RB *ring.Buffer

	Window       uint32 // FROM_FD only: bytes the peer has authorized us to send
	BytesWritten uint32 // TO_FD only: bytes delivered to fd since last CHANNEL_WINDOW we emitted

	SentEOF      bool // we've emitted (or been told of) CHANNEL_CLOSE for this channel
	PendingClose bool // upper layer asked for a graceful close once rb drains
}

// New constructs a Channel. fd may be -1 for a channel that starts out
// already locally closed (e.g. a half-duplex special channel).
func New(no uint32, dir Direction, fd int, capacity int, initialWindow uint32) *Channel {
	return &Channel{
		No:     no,
		Dir:    dir,
		FD:     fd,
		RB:     ring.New(capacity),
		Window: initialWindow,
	}
}

// Closed reports whether the channel's local fd has been cleared.
func (c *Channel) Closed() bool { return c.FD < 0 }

// RequestClose marks the channel for graceful close: the engine will
// close its fd once RB has drained to the fd.
func (c *Channel) RequestClose() { c.PendingClose = true }

// CloseFD releases the channel's fd, idempotently. Per spec.md's
// idempotence requirement (receiving CHANNEL_CLOSE twice is benign),
// closing an already-closed channel is a silent no-op rather than an
// error.
func (c *Channel) CloseFD() error {
	if c.Closed() {
		return nil
	}
	fd := c.FD
	c.FD = -1
	return unix.Close(fd)
}

// WantEvents returns the poll event bitmask this channel currently wants
// serviced: POLLOUT when a TO_FD channel has bytes buffered to deliver,
// POLLIN when a FROM_FD channel has room to read more into. A closed
// channel wants nothing.
func (c *Channel) WantEvents() int16 {
	if c.Closed() {
		return 0
	}
	switch c.Dir {
	case ToFD:
		if c.RB.Size() > 0 {
			return unix.POLLOUT
		}
	case FromFD:
		if c.RB.Room() > 0 {
			return unix.POLLIN
		}
	}
	return 0
}

// Service performs the non-blocking I/O this channel's ready events call
// for: for a TO_FD channel, vectored-writes as much of RB as the fd will
// currently accept; for a FROM_FD channel, reads as much as currently
// fits into RB. A zero-byte read is treated as benign EOF (the fd is
// closed, not an error); EAGAIN/EWOULDBLOCK is treated as "nothing
// happened this turn"; any other error is returned to the caller, which
// treats it as fatal per spec.md §7 (SystemError).
func (c *Channel) Service(revents int16) error {
	if c.Closed() {
		return nil
	}
	switch c.Dir {
	case ToFD:
		if revents&(unix.POLLOUT) != 0 {
			return c.serviceWrite()
		}
	case FromFD:
		if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			return c.serviceRead()
		}
	}
	return nil
}

func (c *Channel) serviceWrite() error {
	sz := c.RB.Size()
	if sz == 0 {
		return nil
	}
	first, second := c.RB.ReadableSegments(sz)

	var iovs [2]unix.Iovec
	n := 0
	if len(first) > 0 {
		iovs[n].Base = &first[0]
		iovs[n].SetLen(len(first))
		n++
	}
	if len(second) > 0 {
		iovs[n].Base = &second[0]
		iovs[n].SetLen(len(second))
		n++
	}
	if n == 0 {
		return nil
	}

	written, err := unix.Writev(c.FD, iovs[:n])
	if written > 0 {
		c.RB.NoteRemoved(int(written))
		c.BytesWritten += uint32(written)
	}
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Channel) serviceRead() error {
	span := c.RB.WritableSpan()
	if len(span) == 0 {
		return nil
	}
	n, err := unix.Read(c.FD, span)
	if n > 0 {
		c.RB.NoteAdded(n)
	}
	if n == 0 && err == nil {
		// Benign EOF: the peer/process at the other end of this fd is done.
		return c.CloseFD()
	}
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		return err
	}
	return nil
}

func isWouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// SetNonblock places the channel's fd into non-blocking mode, a no-op on
// an already-closed channel.
func (c *Channel) SetNonblock() error {
	if c.Closed() {
		return nil
	}
	return unix.SetNonblock(c.FD, true)
}
