// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package pmux

import "golang.org/x/sys/unix"

// pollOnce builds one unix.PollFd per channel, asking each what events it
// currently wants (0 means "don't bother polling this fd"), then blocks
// in Ppoll with the engine's signal mask until at least one fd is ready;
// a poll interrupted by a signal (EINTR) is retried rather than
// returned. Swallowing EINTR and using Ppoll rather than Poll
// is how cancellation is delivered safely per spec.md §5: signals are
// only unblocked for the duration of this syscall.
//
// The returned slice is indexed identically to e.Ch; entries for fds that
// weren't polled (closed channels, or channels wanting nothing) are 0.
//
// fds/ready are Engine-owned scratch arrays sized once at NewEngine and
// overwritten in place here rather than allocated fresh every turn, per
// spec.md §1's "never allocate per I/O" constraint.
func (e *Engine) pollOnce() ([]int16, error) {
	fds := e.pollFDs
	ready := e.pollReady
	anyWanted := false
	for i, ch := range e.Ch {
		events := ch.WantEvents()
		fd := int32(-1)
		if events != 0 {
			fd = int32(ch.FD)
			anyWanted = true
		}
		fds[i] = unix.PollFd{Fd: fd, Events: events}
		ready[i] = 0
	}

	if !anyWanted {
		return ready, nil
	}

	for {
		_, err := unix.Ppoll(fds, nil, e.Cfg.PollSignalMask)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, sysErr(err)
		}
		break
	}

	for i, pfd := range fds {
		ready[i] = pfd.Revents
	}
	return ready, nil
}
