package pmux

import (
	"testing"

	"github.com/xtaci/pmux/channel"
)

const testMaxOutgoingMsg = 4096
const testRingCap = 4096

// newTestEngine builds an Engine whose FROM_PEER/TO_PEER special channels
// have no real fd (tests drive their rings directly), followed by
// whatever user channel specs the caller supplies starting at
// FirstUserCH.
func newTestEngine(t *testing.T, userSpecs ...ChannelSpec) *Engine {
	t.Helper()
	specs := []ChannelSpec{
		{Dir: channel.FromFD, FD: -1, Capacity: testRingCap},
		{Dir: channel.ToFD, FD: -1, Capacity: testRingCap},
	}
	specs = append(specs, userSpecs...)

	e, err := NewEngine(Config{MaxOutgoingMsg: testMaxOutgoingMsg, NRCh: len(specs)}, specs)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}
