package pmux

import (
	"errors"

	"github.com/xtaci/pmux/wire"
)

// QueueMessageSynch pumps the engine until the outbound ring has room for
// the whole of raw (a fully pre-encoded message, header included), then
// writes it in one shot. Used by the upper layer for control messages
// that must not be split and must not interleave with ordinary outbound
// scheduling (spec.md §4.6).
func (e *Engine) QueueMessageSynch(raw []byte) error {
	for e.maxEmit() < len(raw) {
		if err := e.IOLoopDoIO(); err != nil {
			return err
		}
		if err := e.IOLoopPump(); err != nil {
			return err
		}
	}
	if err := e.Ch[ToPeer].RB.Write(raw); err != nil {
		return sysErr(err)
	}
	e.stats.BytesOut += uint64(len(raw))
	return nil
}

// ReadFunc is the injected reader functor ReadMsg performs its two
// blocking reads through, so callers can supply unix.Read against a raw
// fd, or a fake for tests, without ReadMsg depending on either.
type ReadFunc func(buf []byte) (int, error)

// ReadMsg performs two blocking reads through read: one for the fixed
// header, one for the declared body. It is used during engine setup,
// before the pump is live, to exchange whatever handshake the upper
// layer needs ahead of channel assignment (spec.md §4.7).
func ReadMsg(read ReadFunc) (wire.Message, error) {
	var hbuf [wire.HeaderSize]byte
	if err := readFull(read, hbuf[:]); err != nil {
		if err == errShortRead {
			return wire.Message{}, protoErr(ErrPeerDisconnected)
		}
		return wire.Message{}, sysErr(err)
	}
	hdr := wire.DecodeHeader(hbuf[:])
	if int(hdr.Size) < wire.HeaderSize {
		return wire.Message{}, protoErr(ErrImpossibleMessage)
	}

	body := make([]byte, int(hdr.Size)-wire.HeaderSize)
	if err := readFull(read, body); err != nil {
		if err == errShortRead {
			return wire.Message{}, protoErr(ErrTruncated)
		}
		return wire.Message{}, sysErr(err)
	}
	return wire.Message{Header: hdr, Body: body}, nil
}

// errShortRead is internal to readFull/ReadMsg: it marks "read returned
// 0, nil before buf filled", which the two ReadMsg call sites translate
// into the protocol error appropriate to which phase they were in.
var errShortRead = errors.New("pmux: short read")

// readFull calls read repeatedly until buf is full, a genuine error
// occurs, or read reports 0 bytes with no error (a closed peer), which
// readFull reports as errShortRead regardless of how much of buf had
// already been filled.
func readFull(read ReadFunc, buf []byte) error {
	for n := 0; n < len(buf); {
		m, err := read(buf[n:])
		if m == 0 && err == nil {
			return errShortRead
		}
		n += m
		if err != nil {
			return err
		}
	}
	return nil
}
