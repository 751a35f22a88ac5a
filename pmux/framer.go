package pmux

import "github.com/xtaci/pmux/wire"

// DetectMsg inspects the peer-inbound ring without consuming anything,
// grounded on generic/rawcopy_unix.go's style of a pure, allocation-free
// check-then-act step repeated every pump turn.
//
// It returns (header, true, nil) once a complete message is sitting at
// the front of rb; (zero, false, nil) when rb doesn't yet hold a whole
// header or a whole body; and a non-nil error only for a header whose
// declared size is smaller than the header itself or a message that can
// never fit, both of which are unrecoverable.
func DetectMsg(rb ringBuffer) (wire.Header, bool, error) {
	if rb.Size() < wire.HeaderSize {
		return wire.Header{}, false, nil
	}

	var hbuf [wire.HeaderSize]byte
	if err := rb.CopyOut(hbuf[:], wire.HeaderSize); err != nil {
		return wire.Header{}, false, err
	}
	hdr := wire.DecodeHeader(hbuf[:])

	if int(hdr.Size) < wire.HeaderSize {
		return wire.Header{}, false, protoErr(ErrImpossibleMessage)
	}

	// header.size - size(rb) > room(rb): even once rb is fully drained,
	// the declared message still wouldn't fit.
	if int(hdr.Size)-rb.Size() > rb.Room() {
		return wire.Header{}, false, protoErr(ErrTooLarge)
	}

	if rb.Size() < int(hdr.Size) {
		return wire.Header{}, false, nil
	}

	return hdr, true, nil
}

// ringBuffer is the minimal surface DetectMsg needs from a *ring.Buffer;
// declared locally so framer.go and its tests can use a fake ring for
// exercising the two failure arms without constructing a full-sized
// *ring.Buffer.
type ringBuffer interface {
	Size() int
	Room() int
	CopyOut(dst []byte, n int) error
}
