// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package main

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// countingConn wraps a net.Conn and tallies bytes actually crossing the
// wire, i.e. after snappy has done its work in both directions. Reading
// these counters alongside engine.Stats().BytesIn/BytesOut (uncompressed
// pmux bytes: BytesOut counts every framed byte queued for the peer,
// BytesIn only the CHANNEL_DATA payload bytes received) is what lets
// run() report compression figures instead of just toggling a codec
// silently.
type countingConn struct {
	net.Conn
	wireIn  uint64
	wireOut uint64
}

func (c *countingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	atomic.AddUint64(&c.wireIn, uint64(n))
	return n, err
}

func (c *countingConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	atomic.AddUint64(&c.wireOut, uint64(n))
	return n, err
}

// wireBytes returns the raw (compressed) bytes seen on the underlying
// conn so far.
func (c *countingConn) wireBytes() (in, out uint64) {
	return atomic.LoadUint64(&c.wireIn), atomic.LoadUint64(&c.wireOut)
}

// compConn layers snappy compression over a countingConn, transparent to
// whatever bridges it to the engine's FROM_PEER/TO_PEER channel fds:
// callers never know the bytes they Read/Write were compressed in
// flight.
type compConn struct {
	*countingConn
	w *snappy.Writer
	r *snappy.Reader
}

func wrapCompression(conn net.Conn) *compConn {
	cc := &countingConn{Conn: conn}
	return &compConn{
		countingConn: cc,
		w:            snappy.NewBufferedWriter(cc),
		r:            snappy.NewReader(cc),
	}
}

func (c *compConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *compConn) Write(p []byte) (int, error) {
	if _, err := c.w.Write(p); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := c.w.Flush(); err != nil {
		return 0, errors.WithStack(err)
	}
	return len(p), nil
}

func (c *compConn) SetDeadline(t time.Time) error      { return c.countingConn.Conn.SetDeadline(t) }
func (c *compConn) SetReadDeadline(t time.Time) error  { return c.countingConn.Conn.SetReadDeadline(t) }
func (c *compConn) SetWriteDeadline(t time.Time) error { return c.countingConn.Conn.SetWriteDeadline(t) }
