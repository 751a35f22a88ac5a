package pmux

import (
	"github.com/xtaci/pmux/channel"
	"github.com/xtaci/pmux/wire"
)

// emitTurn runs the outbound scheduler for one pump turn, per the
// Composition paragraph in §4.5: first every channel's acks, then every
// channel's data/pending-close/eof. Splitting into two phases (rather
// than interleaving acks with data per channel) keeps a global guarantee
// that credit returns for channel N+1 are never starved by channel N's
// own send filling the outbound ring first.
func (e *Engine) emitTurn() error {
	for chno := FirstUserCH; chno < len(e.Ch); chno++ {
		if err := e.xmitAcks(e.Ch[chno]); err != nil {
			return err
		}
	}
	for chno := FirstUserCH; chno < len(e.Ch); chno++ {
		ch := e.Ch[chno]
		if err := e.xmitData(ch); err != nil {
			return err
		}
		e.doPendingClose(ch)
		if err := e.xmitEOF(ch); err != nil {
			return err
		}
	}
	return nil
}

// xmitAcks emits a CHANNEL_WINDOW crediting back bytes_written, if any
// have accumulated and room allows a full ack message.
func (e *Engine) xmitAcks(ch *channel.Channel) error {
	if ch.BytesWritten == 0 {
		return nil
	}
	if e.maxEmit() < wire.ChannelWindowSize {
		return nil
	}
	var buf [wire.ChannelWindowSize]byte
	wire.PutChannelWindow(buf[:], ch.No, ch.BytesWritten)
	if err := e.Ch[ToPeer].RB.Write(buf[:]); err != nil {
		return sysErr(err)
	}
	ch.BytesWritten = 0
	e.stats.WindowMsgsSent++
	e.stats.BytesOut += wire.ChannelWindowSize
	return nil
}

// xmitData emits at most one CHANNEL_DATA message carrying as much of
// ch's buffered bytes as max_emit and the channel's remaining window
// allow. This is where a FROM_FD channel's window is debited, right after
// the payload is copied into the TO_PEER ring and consumed from ch's ring.
func (e *Engine) xmitData(ch *channel.Channel) error {
	if ch.Dir != channel.FromFD {
		return nil
	}
	room := e.maxEmit() - wire.ChannelDataPrefixSize
	if room <= 0 {
		return nil
	}
	payloadsz := ch.RB.Size()
	if payloadsz > room {
		payloadsz = room
	}
	if payloadsz > int(ch.Window) {
		payloadsz = int(ch.Window)
	}
	if payloadsz <= 0 {
		return nil
	}

	var prefix [wire.ChannelDataPrefixSize]byte
	wire.PutChannelDataPrefix(prefix[:], ch.No, payloadsz)

	first, second := ch.RB.ReadableSegments(payloadsz)
	out := e.Ch[ToPeer].RB
	if err := out.Write(prefix[:]); err != nil {
		return sysErr(err)
	}
	if err := out.WriteSegments(first, second); err != nil {
		return sysErr(err)
	}
	ch.RB.NoteRemoved(payloadsz)
	ch.Window -= uint32(payloadsz)

	e.stats.BytesOut += uint64(wire.ChannelDataPrefixSize + payloadsz)
	return nil
}

// doPendingClose fires the graceful-close trigger: once a TO_FD
// channel's ring has drained and a close was requested, its fd is
// released. The CHANNEL_CLOSE message itself follows later via xmitEOF,
// once the closed state is visible.
func (e *Engine) doPendingClose(ch *channel.Channel) {
	if ch.Dir != channel.ToFD {
		return
	}
	if ch.Closed() || ch.RB.Size() != 0 || !ch.PendingClose {
		return
	}
	ch.CloseFD()
}

// xmitEOF emits CHANNEL_CLOSE for a channel that is locally closed,
// drained, and hasn't already told the peer so.
func (e *Engine) xmitEOF(ch *channel.Channel) error {
	if !ch.Closed() || ch.SentEOF || ch.RB.Size() != 0 {
		return nil
	}
	if e.maxEmit() < wire.ChannelCloseSize {
		return nil
	}
	var buf [wire.ChannelCloseSize]byte
	wire.PutChannelClose(buf[:], ch.No)
	if err := e.Ch[ToPeer].RB.Write(buf[:]); err != nil {
		return sysErr(err)
	}
	ch.SentEOF = true
	e.stats.CloseMsgsSent++
	e.stats.BytesOut += wire.ChannelCloseSize
	return nil
}
