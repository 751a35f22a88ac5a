// Package wire defines the on-the-wire message header and the three
// message kinds pmux's core processes: CHANNEL_DATA, CHANNEL_WINDOW and
// CHANNEL_CLOSE.
//
// Layout is fixed and byte-exact: both peers must agree on it. This
// mirrors vendor/github.com/xtaci/smux's frame.go (rawHeader, the
// sizeOf* const block, little-endian field order) generalized from
// smux's stream-multiplexing frame to this engine's channel/window/close
// triple.
package wire

import "encoding/binary"

// MsgType identifies a message kind in the header's type field.
type MsgType uint8

const (
	MsgChannelData MsgType = iota
	MsgChannelWindow
	MsgChannelClose
)

func (t MsgType) String() string {
	switch t {
	case MsgChannelData:
		return "CHANNEL_DATA"
	case MsgChannelWindow:
		return "CHANNEL_WINDOW"
	case MsgChannelClose:
		return "CHANNEL_CLOSE"
	default:
		return "UNKNOWN"
	}
}

const (
	sizeOfType = 1
	sizeOfSize = 2
	// HeaderSize is the fixed size of the message header: type(1) + size(2).
	HeaderSize = sizeOfType + sizeOfSize

	// ChannelFieldSize is the width of the channel number field that
	// follows the header in all three message kinds.
	ChannelFieldSize = 4

	// ChannelDataPrefixSize is HeaderSize plus the channel field, i.e.
	// everything in a CHANNEL_DATA message before the opaque payload.
	ChannelDataPrefixSize = HeaderSize + ChannelFieldSize

	// ChannelWindowSize is the fixed total size of a CHANNEL_WINDOW message.
	ChannelWindowSize = HeaderSize + ChannelFieldSize*2

	// ChannelCloseSize is the fixed total size of a CHANNEL_CLOSE message.
	ChannelCloseSize = HeaderSize + ChannelFieldSize
)

// Header is the fixed 3-byte message header: type, then total message
// size (including the header itself).
type Header struct {
	Type MsgType
	Size uint16
}

// Message is a fully-read message: header plus whatever followed it.
// Used by the synchronous pre-pump reader (ReadMsg); the live pump never
// materializes one of these for CHANNEL_DATA, since payload bytes move
// ring-to-ring without ever landing in a []byte owned by the core.
type Message struct {
	Header Header
	Body   []byte
}

// PutHeader encodes a header into buf[:HeaderSize].
func PutHeader(buf []byte, t MsgType, size uint16) {
	buf[0] = byte(t)
	binary.LittleEndian.PutUint16(buf[1:3], size)
}

// DecodeHeader decodes a header from buf[:HeaderSize].
func DecodeHeader(buf []byte) Header {
	return Header{
		Type: MsgType(buf[0]),
		Size: binary.LittleEndian.Uint16(buf[1:3]),
	}
}

// PutChannelDataPrefix encodes a CHANNEL_DATA header+channel prefix (not
// including the payload) into buf[:ChannelDataPrefixSize], declaring a
// total message size of ChannelDataPrefixSize+payloadLen.
func PutChannelDataPrefix(buf []byte, channel uint32, payloadLen int) {
	PutHeader(buf, MsgChannelData, uint16(ChannelDataPrefixSize+payloadLen))
	binary.LittleEndian.PutUint32(buf[HeaderSize:], channel)
}

// DecodeChannelDataPrefix decodes the channel number out of a
// CHANNEL_DATA prefix (buf must be at least ChannelDataPrefixSize, with
// the channel field starting at HeaderSize).
func DecodeChannelDataPrefix(buf []byte) (channel uint32) {
	return binary.LittleEndian.Uint32(buf[HeaderSize:])
}

// PutChannelWindow encodes a full CHANNEL_WINDOW message into
// buf[:ChannelWindowSize].
func PutChannelWindow(buf []byte, channel, delta uint32) {
	PutHeader(buf, MsgChannelWindow, ChannelWindowSize)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], channel)
	binary.LittleEndian.PutUint32(buf[HeaderSize+ChannelFieldSize:], delta)
}

// DecodeChannelWindow decodes the channel and window_delta fields out of
// a CHANNEL_WINDOW message body (buf must be at least
// ChannelWindowSize-HeaderSize bytes, starting right after the header).
func DecodeChannelWindow(body []byte) (channel, delta uint32) {
	return binary.LittleEndian.Uint32(body[0:4]), binary.LittleEndian.Uint32(body[4:8])
}

// PutChannelClose encodes a full CHANNEL_CLOSE message into
// buf[:ChannelCloseSize].
func PutChannelClose(buf []byte, channel uint32) {
	PutHeader(buf, MsgChannelClose, ChannelCloseSize)
	binary.LittleEndian.PutUint32(buf[HeaderSize:], channel)
}

// DecodeChannelClose decodes the channel field out of a CHANNEL_CLOSE
// message body.
func DecodeChannelClose(body []byte) (channel uint32) {
	return binary.LittleEndian.Uint32(body[0:4])
}
