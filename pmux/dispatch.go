package pmux

import (
	"math"

	"github.com/xtaci/pmux/channel"
	"github.com/xtaci/pmux/ring"
	"github.com/xtaci/pmux/wire"
)

// DefaultProcessMsg is the core's inbound dispatcher. A side-specific
// engine may set Engine.ProcessMsg to a function that recognizes
// additional message kinds and calls DefaultProcessMsg for the three it
// doesn't, per the polymorphic-dispatcher design grounded on
// vendor/github.com/xtaci/smux/session.go's recvLoop switch.
//
// hdr must already have been validated by DetectMsg against the
// FROM_PEER ring; DefaultProcessMsg consumes exactly hdr.Size bytes from
// that ring whenever it returns nil. An error return may leave the
// message in the ring: a rejected CHANNEL_DATA is not consumed at all.
func DefaultProcessMsg(e *Engine, hdr wire.Header) error {
	inbound := e.Ch[FromPeer].RB

	switch hdr.Type {
	case wire.MsgChannelData:
		return e.processChannelData(inbound, hdr)
	case wire.MsgChannelWindow:
		return e.processChannelWindow(inbound, hdr)
	case wire.MsgChannelClose:
		return e.processChannelClose(inbound, hdr)
	default:
		inbound.NoteRemoved(int(hdr.Size))
		return protoErrf("%s: type=%d size=%d", ErrUnknownMsgType, hdr.Type, hdr.Size)
	}
}

func (e *Engine) dispatch(hdr wire.Header) error {
	if e.ProcessMsg != nil {
		return e.ProcessMsg(e, hdr)
	}
	return DefaultProcessMsg(e, hdr)
}

// validChannel reports whether chno names a user channel: strictly
// greater than NRSpecialCH and within the engine's fixed channel array.
func (e *Engine) validChannel(chno uint32) bool {
	return chno > NRSpecialCH && int(chno) < len(e.Ch)
}

func (e *Engine) processChannelData(inbound *ring.Buffer, hdr wire.Header) error {
	var chbuf [wire.ChannelFieldSize]byte
	if err := inbound.CopyOutAt(wire.HeaderSize, chbuf[:]); err != nil {
		return sysErr(err)
	}
	chno := wire.DecodeChannelClose(chbuf[:]) // same 4-byte channel-field layout
	payloadsz := int(hdr.Size) - wire.ChannelDataPrefixSize

	if !e.validChannel(chno) {
		return protoErr(ErrBadChannel)
	}
	target := e.Ch[chno]
	if target.Dir != channel.ToFD {
		return protoErr(ErrBadDirection)
	}

	if target.Closed() {
		// The close may have raced in flight; discard without complaint.
		inbound.NoteRemoved(int(hdr.Size))
		e.stats.DiscardedLateData++
		return nil
	}

	if target.RB.Room() < payloadsz {
		return protoErr(ErrWindowDesync)
	}

	first, second := inbound.ReadableSegmentsAt(wire.ChannelDataPrefixSize, payloadsz)
	if err := target.RB.WriteSegments(first, second); err != nil {
		return sysErr(err)
	}
	inbound.NoteRemoved(int(hdr.Size))
	e.stats.BytesIn += uint64(payloadsz)
	return nil
}

func (e *Engine) processChannelWindow(inbound *ring.Buffer, hdr wire.Header) error {
	var body [wire.ChannelFieldSize * 2]byte
	if err := inbound.CopyOutAt(wire.HeaderSize, body[:]); err != nil {
		return sysErr(err)
	}
	chno, delta := wire.DecodeChannelWindow(body[:])
	inbound.NoteRemoved(int(hdr.Size))

	if !e.validChannel(chno) {
		return protoErr(ErrBadChannel)
	}
	target := e.Ch[chno]
	if target.Dir != channel.FromFD {
		return protoErr(ErrBadDirection)
	}
	if target.Closed() {
		return nil
	}

	if math.MaxUint32-target.Window < delta {
		return protoErr(ErrWindowOverflow)
	}
	target.Window += delta
	return nil
}

func (e *Engine) processChannelClose(inbound *ring.Buffer, hdr wire.Header) error {
	var chbuf [wire.ChannelFieldSize]byte
	if err := inbound.CopyOutAt(wire.HeaderSize, chbuf[:]); err != nil {
		return sysErr(err)
	}
	chno := wire.DecodeChannelClose(chbuf[:])
	inbound.NoteRemoved(int(hdr.Size))

	if !e.validChannel(chno) {
		// Tolerate out-of-range closes; they may be stale.
		return nil
	}
	target := e.Ch[chno]
	target.SentEOF = true
	e.stats.CloseMsgsRecv++
	return target.CloseFD()
}
