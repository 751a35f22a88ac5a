// Package pmux implements the windowed, multi-channel, single-threaded
// fd-multiplexing pump: a message-framed, credit-based-flow-controlled
// engine that carries bidirectional byte streams between two peers over
// one underlying bidirectional transport.
//
// It plays the role vendor/github.com/xtaci/smux's Session/Stream pair
// plays in the teacher repo, but is poll-driven and single-threaded
// rather than goroutine-driven: one cooperative turn
// (IOLoopDoIO+IOLoopPump) services every channel's fd and then drains
// and fills the wire-level rings, with exactly one suspension point
// (the poll call) per spec.md §5.
//
// Transport setup, channel assignment, and logging are left to callers;
// see cmd/pumpd for a reference driver.
package pmux
