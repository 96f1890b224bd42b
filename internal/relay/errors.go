package relay

import (
	"fmt"
)

// 中继层错误定义
var (
	ErrListenerClosed = newRelayError(2001, "Listener closed", "")
	ErrRelayClosed    = newRelayError(2002, "Relay closed", "")
	ErrPeerClosed     = newRelayError(2003, "Peer closed", "")
)

type relayError struct {
	code    int
	msg     string
	context string
}

func (e *relayError) Error() string {
	if e.context != "" {
		return fmt.Sprintf("Error %d: %s (context: %s)", e.code, e.msg, e.context)
	}
	return fmt.Sprintf("Error %d: %s", e.code, e.msg)
}

func newRelayError(code int, message string, context string) *relayError {
	return &relayError{
		code:    code,
		msg:     message,
		context: context,
	}
}

const (
	OpReceive = "receive"
	OpSend    = "send"
)

// PeerError is scoped to exactly one peer. It is logged and used to remove
// that peer; it never reaches other sessions or the accept loop.
type PeerError struct {
	Op     string
	PeerID string
	Err    error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer %s %s: %v", e.PeerID, e.Op, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

// AcceptError describes one failed Accept call. Temporary errors are retried
// by the accept loop; anything else means the listener is unusable.
type AcceptError struct {
	Err       error
	Temporary bool
}

func (e *AcceptError) Error() string {
	kind := "fatal"
	if e.Temporary {
		kind = "transient"
	}
	return fmt.Sprintf("%s accept error: %v", kind, e.Err)
}

func (e *AcceptError) Unwrap() error { return e.Err }
