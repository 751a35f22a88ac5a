package main

import (
	"bytes"
	"io"
	"net"
	"testing"
)

func TestWrapCompressionRoundTrip(t *testing.T) {
	left, right := net.Pipe()
	writer := wrapCompression(left)
	reader := wrapCompression(right)
	t.Cleanup(func() {
		writer.Close()
		reader.Close()
	})

	payload := bytes.Repeat([]byte("compressed payload"), 64)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, len(payload))
		if _, err := io.ReadFull(reader, buf); err != nil {
			readErr <- err
			return
		}
		if !bytes.Equal(buf, payload) {
			readErr <- errNotEqual
			return
		}
		readErr <- nil
	}()

	if n, err := writer.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	} else if n != len(payload) {
		t.Fatalf("Write returned %d, want %d", n, len(payload))
	}

	if err := <-readErr; err != nil {
		t.Fatalf("reader: %v", err)
	}

	_, wireOut := writer.wireBytes()
	if wireOut == 0 {
		t.Fatalf("expected wrapCompression to report nonzero wire bytes written")
	}
	wireIn, _ := reader.wireBytes()
	if wireIn == 0 {
		t.Fatalf("expected wrapCompression to report nonzero wire bytes read")
	}
	// The repeated payload compresses well; the wire form should be
	// smaller than the plaintext it carries.
	if wireOut >= uint64(len(payload)) {
		t.Fatalf("expected compressed wire_out < plaintext %d, got %d", len(payload), wireOut)
	}
}

var errNotEqual = bytesNotEqualError("payload mismatch after round trip")

type bytesNotEqualError string

func (e bytesNotEqualError) Error() string { return string(e) }
