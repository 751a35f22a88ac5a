package wire

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	var buf [HeaderSize]byte
	PutHeader(buf[:], MsgChannelClose, 1234)
	hdr := DecodeHeader(buf[:])
	if hdr.Type != MsgChannelClose || hdr.Size != 1234 {
		t.Fatalf("got %+v, want {MsgChannelClose 1234}", hdr)
	}
}

func TestChannelDataPrefix(t *testing.T) {
	buf := make([]byte, ChannelDataPrefixSize)
	PutChannelDataPrefix(buf, 42, 100)
	hdr := DecodeHeader(buf)
	if hdr.Type != MsgChannelData {
		t.Fatalf("Type = %v, want MsgChannelData", hdr.Type)
	}
	if int(hdr.Size) != ChannelDataPrefixSize+100 {
		t.Fatalf("Size = %d, want %d", hdr.Size, ChannelDataPrefixSize+100)
	}
	if ch := DecodeChannelDataPrefix(buf); ch != 42 {
		t.Fatalf("channel = %d, want 42", ch)
	}
}

func TestChannelWindowRoundTrip(t *testing.T) {
	buf := make([]byte, ChannelWindowSize)
	PutChannelWindow(buf, 7, 65536)
	hdr := DecodeHeader(buf)
	if hdr.Type != MsgChannelWindow || int(hdr.Size) != ChannelWindowSize {
		t.Fatalf("got %+v, want window msg of size %d", hdr, ChannelWindowSize)
	}
	ch, delta := DecodeChannelWindow(buf[HeaderSize:])
	if ch != 7 || delta != 65536 {
		t.Fatalf("got channel=%d delta=%d, want 7/65536", ch, delta)
	}
}

func TestChannelCloseRoundTrip(t *testing.T) {
	buf := make([]byte, ChannelCloseSize)
	PutChannelClose(buf, 9)
	hdr := DecodeHeader(buf)
	if hdr.Type != MsgChannelClose || int(hdr.Size) != ChannelCloseSize {
		t.Fatalf("got %+v, want close msg of size %d", hdr, ChannelCloseSize)
	}
	if ch := DecodeChannelClose(buf[HeaderSize:]); ch != 9 {
		t.Fatalf("channel = %d, want 9", ch)
	}
}

func TestMsgTypeString(t *testing.T) {
	cases := map[MsgType]string{
		MsgChannelData:   "CHANNEL_DATA",
		MsgChannelWindow: "CHANNEL_WINDOW",
		MsgChannelClose:  "CHANNEL_CLOSE",
		MsgType(99):      "UNKNOWN",
	}
	for in, want := range cases {
		if got := in.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", in, got, want)
		}
	}
}
