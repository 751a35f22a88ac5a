package pmux

// IOLoopInit places every channel's fd into non-blocking mode. Per
// spec.md §5, this runs once before the pump begins; the poll loop never
// touches blocking fds.
func (e *Engine) IOLoopInit() error {
	for _, ch := range e.Ch {
		if err := ch.SetNonblock(); err != nil {
			return sysErr(err)
		}
	}
	return nil
}

// IOLoopDoIO is one suspension: poll every channel's wanted events, then
// service whichever fds came back ready. Swallowing EINTR and the actual
// poll syscall are platform-specific; see pollOnce in pump_poll_unix.go.
func (e *Engine) IOLoopDoIO() error {
	ready, err := e.pollOnce()
	if err != nil {
		return err
	}
	for i, revents := range ready {
		if revents == 0 {
			continue
		}
		if err := e.Ch[i].Service(revents); err != nil {
			return sysErr(err)
		}
	}
	return nil
}

// IOLoopPump drains every complete message waiting on the FROM_PEER ring,
// then runs the outbound scheduler once. Per §4.5/§5, inbound dispatch
// for the whole turn completes before any outbound scheduling begins, so
// credit received this turn can be spent this turn.
func (e *Engine) IOLoopPump() error {
	inbound := e.Ch[FromPeer].RB
	for {
		hdr, ok, err := DetectMsg(inbound)
		if err != nil {
			e.stats.ProtocolErrorCount++
			return err
		}
		if !ok {
			break
		}
		if err := e.dispatch(hdr); err != nil {
			e.stats.ProtocolErrorCount++
			return err
		}
	}
	return e.emitTurn()
}
