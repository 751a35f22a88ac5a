package pmux

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/xtaci/pmux/channel"
	"github.com/xtaci/pmux/wire"
)

// Special channel indices, per spec.md §6: indices 0..NRSpecialCH are
// reserved for the transport itself; user channels start at
// NRSpecialCH+1.
const (
	FromPeer    = 0 // peer-inbound ring: bytes read from the peer transport
	ToPeer      = 1 // peer-outbound ring: bytes about to be written to the peer transport
	NRSpecialCH = ToPeer
	FirstUserCH = NRSpecialCH + 1
)

// Config holds the engine-wide tunables named in spec.md §6.
type Config struct {
	// MaxOutgoingMsg caps any single message we emit, header included.
	MaxOutgoingMsg uint32
	// NRCh is the total channel count, including the two special
	// channels; valid channel indices are [0, NRCh).
	NRCh int
	// PollSignalMask, if non-nil, is atomically swapped in for the
	// duration of each poll call so cancellation signals are only
	// deliverable while the engine is suspended. Nil means "don't touch
	// the process signal mask".
	PollSignalMask *unix.Sigset_t
}

// VerifyConfig checks cfg for internal consistency.
func VerifyConfig(cfg Config) error {
	if cfg.NRCh < FirstUserCH {
		return pkgerrors.Errorf("pmux: nrch must be >= %d, got %d", FirstUserCH, cfg.NRCh)
	}
	if cfg.MaxOutgoingMsg < wire.ChannelCloseSize {
		return pkgerrors.Errorf("pmux: max_outgoing_msg too small to carry even a CHANNEL_CLOSE: %d", cfg.MaxOutgoingMsg)
	}
	return nil
}

// ChannelSpec describes one channel slot at construction time.
type ChannelSpec struct {
	Dir           channel.Direction
	FD            int // -1 for a channel with no fd yet
	Capacity      int
	InitialWindow uint32 // meaningful for FromFD channels only
}

// ProcessMsgFunc is the polymorphic dispatch hook (spec.md §4.3/§9): a
// side-specific engine can set Engine.ProcessMsg to recognize additional
// message kinds, delegating the three core kinds to DefaultProcessMsg.
type ProcessMsgFunc func(e *Engine, hdr wire.Header) error

// Engine is "sh": the fixed channel array plus the configuration that
// drives the pump.
type Engine struct {
	Ch  []*channel.Channel
	Cfg Config

	// ProcessMsg, if set, replaces DefaultProcessMsg as the inbound
	// dispatcher. It must delegate message kinds it doesn't recognize to
	// DefaultProcessMsg.
	ProcessMsg ProcessMsgFunc

	stats Stats

	// pollFDs/pollReady are pollOnce's scratch arrays, sized once here
	// and reused turn over turn so the poll-driven pump never allocates
	// per I/O (spec.md §1).
	pollFDs   []unix.PollFd
	pollReady []int16
}

// NewEngine validates cfg and specs and constructs an Engine. Channels
// are created before the engine begins pumping and destroyed with the
// engine (spec.md §3 Lifecycles); there is no API to add a channel
// afterwards (spec.md §1 Non-goals: no dynamic channel creation).
func NewEngine(cfg Config, specs []ChannelSpec) (*Engine, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	if len(specs) != cfg.NRCh {
		return nil, pkgerrors.Errorf("pmux: %d channel specs for nrch=%d", len(specs), cfg.NRCh)
	}
	if specs[FromPeer].Dir != channel.FromFD {
		return nil, pkgerrors.New("pmux: FROM_PEER channel must be FromFD")
	}
	if specs[ToPeer].Dir != channel.ToFD {
		return nil, pkgerrors.New("pmux: TO_PEER channel must be ToFD")
	}
	if specs[FromPeer].Capacity < int(cfg.MaxOutgoingMsg) {
		return nil, pkgerrors.Errorf("pmux: FROM_PEER ring capacity %d must be >= max_outgoing_msg %d, else framing can deadlock", specs[FromPeer].Capacity, cfg.MaxOutgoingMsg)
	}

	e := &Engine{
		Cfg:       cfg,
		Ch:        make([]*channel.Channel, cfg.NRCh),
		pollFDs:   make([]unix.PollFd, cfg.NRCh),
		pollReady: make([]int16, cfg.NRCh),
	}
	for i, s := range specs {
		e.Ch[i] = channel.New(uint32(i), s.Dir, s.FD, s.Capacity, s.InitialWindow)
	}
	return e, nil
}

// Stats is a read-only snapshot of engine counters. It exists so an
// external collaborator can build logging/metrics on top of the core
// without the core itself taking a dependency on a logging library
// (spec.md §1: logging/debug tracing is out of scope for the core).
type Stats struct {
	BytesIn            uint64
	BytesOut           uint64
	WindowMsgsSent     uint64
	CloseMsgsSent      uint64 // CHANNEL_CLOSE messages we emitted
	CloseMsgsRecv      uint64 // CHANNEL_CLOSE messages the peer sent us
	DiscardedLateData  uint64
	ProtocolErrorCount uint64
}

// Stats returns a copy of the engine's current counters. Safe to call
// between pump turns; the engine has no internal locking (spec.md §5:
// single-threaded, no locks), so it must not be called concurrently with
// a pump turn in progress.
func (e *Engine) Stats() Stats { return e.stats }

// Done reports whether the termination condition in spec.md §4.5 holds:
// every user channel has emitted CHANNEL_CLOSE, the outbound ring is
// drained, and the inbound ring holds no partial message.
func (e *Engine) Done() bool {
	for chno := FirstUserCH; chno < len(e.Ch); chno++ {
		if !e.Ch[chno].SentEOF {
			return false
		}
	}
	return e.Ch[ToPeer].RB.Size() == 0 && e.Ch[FromPeer].RB.Size() == 0
}

// maxEmit is min(max_outgoing_msg, room(ch[TO_PEER].rb)), recomputed
// fresh before every emission per spec.md §4.4 (earlier emissions in the
// same turn consume room).
func (e *Engine) maxEmit() int {
	room := e.Ch[ToPeer].RB.Room()
	if int(e.Cfg.MaxOutgoingMsg) < room {
		return int(e.Cfg.MaxOutgoingMsg)
	}
	return room
}

// Run alternates IOLoopDoIO and IOLoopPump, per spec.md §4.5's
// Composition paragraph, until Done() holds or ctx is cancelled. The
// termination condition is explicitly assigned to "the surrounding
// driver, not the core" by spec.md; Run is that driver, offered as a
// convenience on top of the two primitives, which remain independently
// callable.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.IOLoopInit(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.IOLoopDoIO(); err != nil {
			return err
		}
		if err := e.IOLoopPump(); err != nil {
			return err
		}
		if e.Done() {
			return nil
		}
	}
}
