package pmux

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel causes, grounded on the `var (... = errors.New(...))` sentinel
// block in vendor/github.com/xtaci/smux/session.go.
var (
	ErrImpossibleMessage = errors.New("pmux: impossible message (size smaller than header)")
	ErrTooLarge          = errors.New("pmux: impossibly large message")
	ErrWindowDesync      = errors.New("pmux: window desync")
	ErrWindowOverflow    = errors.New("pmux: window overflow")
	ErrBadChannel        = errors.New("pmux: invalid channel index")
	ErrBadDirection      = errors.New("pmux: wrong channel direction")
	ErrUnknownMsgType    = errors.New("pmux: unknown message type")
	ErrPeerDisconnected  = errors.New("pmux: peer disconnected")
	ErrTruncated         = errors.New("pmux: truncated message")
)

// ProtocolError wraps a violation of the wire protocol. Per spec.md §7,
// every ProtocolError is fatal: the engine unwinds to its driver rather
// than attempting local recovery, since a protocol violation implies
// divergent peer state.
type ProtocolError struct{ cause error }

func (e *ProtocolError) Error() string { return e.cause.Error() }
func (e *ProtocolError) Unwrap() error { return e.cause }

func protoErr(cause error) error {
	return &ProtocolError{cause: cause}
}

func protoErrf(format string, args ...interface{}) error {
	return &ProtocolError{cause: pkgerrors.Errorf(format, args...)}
}

// SystemError wraps a poll/read/write failure not interpretable as EOF.
// Also fatal per spec.md §7.
type SystemError struct{ cause error }

func (e *SystemError) Error() string { return e.cause.Error() }
func (e *SystemError) Unwrap() error { return e.cause }

func sysErr(cause error) error {
	return &SystemError{cause: pkgerrors.WithStack(cause)}
}

// IsProtocolError reports whether err is (or wraps) a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsSystemError reports whether err is (or wraps) a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}
