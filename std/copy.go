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

package std

import (
	"io"
	"sync"
	"time"
)

const bufSize = 4096

// Copy is a memory-optimized io.Copy: it prefers the source's WriteTo or
// the destination's ReadFrom over an allocated intermediate buffer before
// falling back to io.CopyBuffer.
func Copy(dst io.Writer, src io.Reader) (written int64, err error) {
	if wt, ok := src.(io.WriterTo); ok {
		return wt.WriteTo(dst)
	}
	if rt, ok := dst.(io.ReaderFrom); ok {
		return rt.ReadFrom(src)
	}

	buf := make([]byte, bufSize)
	return io.CopyBuffer(dst, src, buf)
}

// deadliner is implemented by net.Conn and similarly capable streams; used
// by Pipe to arm an idle timeout when the caller asks for one.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Pipe drives a general bidirectional copy between two streams. cmd/pumpd
// does not call it: it bridges its transport connection to the two
// special pmux channels' fds with two one-way Copy calls instead.
//
// idleTimeout, if non-zero, arms a single absolute deadline on each side
// that implements deadliner (net.Conn does) before copying begins. It is
// never renewed: once it passes, every further Read or Write on that
// stream fails with a deadline-exceeded error, whether or not traffic has
// flowed in the meantime.
func Pipe(alice, bob io.ReadWriteCloser, idleTimeout time.Duration) (errA, errB error) {
	if idleTimeout > 0 {
		deadline := time.Now().Add(idleTimeout)
		if d, ok := alice.(deadliner); ok {
			d.SetDeadline(deadline)
		}
		if d, ok := bob.(deadliner); ok {
			d.SetDeadline(deadline)
		}
	}

	var closed sync.Once
	var wg sync.WaitGroup
	wg.Add(2)

	streamCopy := func(dst io.Writer, src io.ReadCloser, err *error) {
		_, *err = Copy(dst, src)
		wg.Done()

		closed.Do(func() {
			alice.Close()
			bob.Close()
		})
	}

	go streamCopy(alice, bob, &errA)
	go streamCopy(bob, alice, &errB)

	wg.Wait()
	return
}
