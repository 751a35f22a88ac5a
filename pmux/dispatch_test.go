package pmux

import (
	"testing"

	"github.com/xtaci/pmux/channel"
	"github.com/xtaci/pmux/wire"
)

func TestProcessChannelDataHappyPath(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.ToFD, FD: -1, Capacity: 64})
	chno := uint32(FirstUserCH)

	payload := []byte("hello")
	var msg [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(msg[:], chno, len(payload))
	e.Ch[FromPeer].RB.Write(msg[:])
	e.Ch[FromPeer].RB.Write(payload)

	if err := e.IOLoopPump(); err != nil {
		t.Fatalf("IOLoopPump: %v", err)
	}

	target := e.Ch[chno]
	if target.RB.Size() != len(payload) {
		t.Fatalf("expected %d bytes delivered to channel %d, got %d", len(payload), chno, target.RB.Size())
	}
	got := make([]byte, len(payload))
	target.RB.CopyOut(got, len(payload))
	if string(got) != "hello" {
		t.Fatalf("expected payload %q, got %q", "hello", got)
	}
	if e.Stats().BytesIn != uint64(len(payload)) {
		t.Fatalf("expected BytesIn=%d, got %d", len(payload), e.Stats().BytesIn)
	}
}

func TestProcessChannelDataWindowDesync(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.ToFD, FD: -1, Capacity: 4})
	chno := uint32(FirstUserCH)

	payload := make([]byte, 16) // exceeds the channel's 4-byte ring
	var msg [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(msg[:], chno, len(payload))
	e.Ch[FromPeer].RB.Write(msg[:])
	e.Ch[FromPeer].RB.Write(payload)

	err := e.IOLoopPump()
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError for window desync, got %v", err)
	}
}

func TestProcessChannelDataDiscardsLateAfterClose(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.ToFD, FD: -1, Capacity: 64})
	chno := uint32(FirstUserCH)
	e.Ch[chno].FD = -1 // already closed before the message arrives

	payload := []byte("late")
	var msg [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(msg[:], chno, len(payload))
	e.Ch[FromPeer].RB.Write(msg[:])
	e.Ch[FromPeer].RB.Write(payload)

	if err := e.IOLoopPump(); err != nil {
		t.Fatalf("expected late data after close to be silently discarded, got %v", err)
	}
	if e.Stats().DiscardedLateData != 1 {
		t.Fatalf("expected DiscardedLateData=1, got %d", e.Stats().DiscardedLateData)
	}
	if e.Ch[chno].RB.Size() != 0 {
		t.Fatalf("expected nothing delivered to the closed channel, got %d bytes", e.Ch[chno].RB.Size())
	}
}

func TestProcessChannelDataBadChannel(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.ToFD, FD: -1, Capacity: 64})

	var msg [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(msg[:], 99, 0)
	e.Ch[FromPeer].RB.Write(msg[:])

	err := e.IOLoopPump()
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError for out-of-range channel, got %v", err)
	}
}

func TestProcessChannelDataWrongDirection(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.FromFD, FD: -1, Capacity: 64})
	chno := uint32(FirstUserCH)

	var msg [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(msg[:], chno, 0)
	e.Ch[FromPeer].RB.Write(msg[:])

	err := e.IOLoopPump()
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError for wrong-direction CHANNEL_DATA target, got %v", err)
	}
}

func TestProcessChannelWindowCredits(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.FromFD, FD: -1, Capacity: 64, InitialWindow: 10})
	chno := uint32(FirstUserCH)

	var msg [wire.ChannelWindowSize]byte
	wire.PutChannelWindow(msg[:], chno, 90)
	e.Ch[FromPeer].RB.Write(msg[:])

	if err := e.IOLoopPump(); err != nil {
		t.Fatalf("IOLoopPump: %v", err)
	}
	if e.Ch[chno].Window != 100 {
		t.Fatalf("expected window 100, got %d", e.Ch[chno].Window)
	}
}

func TestProcessChannelWindowOverflow(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.FromFD, FD: -1, Capacity: 64, InitialWindow: 1})
	chno := uint32(FirstUserCH)

	var msg [wire.ChannelWindowSize]byte
	wire.PutChannelWindow(msg[:], chno, ^uint32(0)) // MaxUint32, would overflow
	e.Ch[FromPeer].RB.Write(msg[:])

	err := e.IOLoopPump()
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError for window overflow, got %v", err)
	}
}

func TestProcessChannelCloseTolerantOutOfRange(t *testing.T) {
	e := newTestEngine(t)

	var msg [wire.ChannelCloseSize]byte
	wire.PutChannelClose(msg[:], 99)
	e.Ch[FromPeer].RB.Write(msg[:])

	if err := e.IOLoopPump(); err != nil {
		t.Fatalf("expected out-of-range CHANNEL_CLOSE to be tolerated, got %v", err)
	}
}

func TestProcessChannelCloseMarksSentEOF(t *testing.T) {
	e := newTestEngine(t, ChannelSpec{Dir: channel.ToFD, FD: -1, Capacity: 64})
	chno := uint32(FirstUserCH)

	var msg [wire.ChannelCloseSize]byte
	wire.PutChannelClose(msg[:], chno)
	e.Ch[FromPeer].RB.Write(msg[:])

	if err := e.IOLoopPump(); err != nil {
		t.Fatalf("IOLoopPump: %v", err)
	}
	if !e.Ch[chno].SentEOF {
		t.Fatalf("expected SentEOF to be set after CHANNEL_CLOSE")
	}
	if !e.Ch[chno].Closed() {
		t.Fatalf("expected channel fd to be released after CHANNEL_CLOSE")
	}
	if e.Stats().CloseMsgsRecv != 1 {
		t.Fatalf("expected CloseMsgsRecv=1, got %d", e.Stats().CloseMsgsRecv)
	}
	if e.Stats().CloseMsgsSent != 0 {
		t.Fatalf("a received close must not also count as a sent close, got %d", e.Stats().CloseMsgsSent)
	}
}

func TestDefaultProcessMsgRejectsUnknownType(t *testing.T) {
	e := newTestEngine(t)
	var buf [wire.HeaderSize + 1]byte
	wire.PutHeader(buf[:], 7, wire.HeaderSize+1)
	e.Ch[FromPeer].RB.Write(buf[:])

	err := e.IOLoopPump()
	if !IsProtocolError(err) {
		t.Fatalf("expected ProtocolError for unknown message type, got %v", err)
	}
}
