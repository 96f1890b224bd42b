package relay

import (
	"errors"
	"io"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/observe"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

// State 会话状态
type State int32

const (
	StateConnected State = iota
	StateReceiving
	StateClosing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReceiving:
		return "receiving"
	case StateClosing:
		return "closing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session owns the receive loop of one registered peer. Frames are fanned out
// in the order they were read. Any terminal read ends the session, which then
// removes its peer and closes the endpoint; it never retries.
type Session struct {
	peer    *Peer
	reg     *Registry
	bc      *Broadcaster
	events  *Events
	bufSize int
	log     *zap.Logger
	state   atomic.Int32
}

func NewSession(p *Peer, reg *Registry, bc *Broadcaster, events *Events, bufSize int, log *zap.Logger) *Session {
	if bufSize <= 0 {
		bufSize = DefaultReadBuffer
	}
	if log == nil {
		log = logger.OrDefault(nil)
	}
	if events == nil {
		events = NewEvents()
	}
	return &Session{peer: p, reg: reg, bc: bc, events: events, bufSize: bufSize, log: log}
}

func (s *Session) Peer() *Peer  { return s.peer }
func (s *Session) State() State { return State(s.state.Load()) }

// Run blocks until the peer goes away. It returns nil for a clean close and a
// *PeerError when the receive failed.
func (s *Session) Run() error {
	s.state.Store(int32(StateReceiving))
	buf := make([]byte, s.bufSize)
	for {
		f, err := s.peer.Receive(buf)
		if len(f) > 0 {
			observe.IncFrame("local", len(f))
			s.bc.Fanout(s.peer, f)
		}
		switch {
		case err == nil && len(f) == 0:
			return s.finish(StateClosing, nil)
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			return s.finish(StateClosing, nil)
		default:
			return s.finish(StateFailed, &PeerError{Op: OpReceive, PeerID: s.peer.id, Err: err})
		}
	}
}

func (s *Session) finish(st State, cause error) error {
	s.state.Store(int32(st))
	removed := s.reg.Remove(s.peer)
	_ = s.peer.Close()

	fields := []zap.Field{zap.String("peer", s.peer.id), zap.String("addr", s.peer.addr), zap.Stringer("state", st)}
	switch {
	case cause == nil:
		s.log.Info("peer_closed", fields...)
	case errors.Is(cause, net.ErrClosed):
		// 被广播剔除或关停时关闭，属于预期
		s.log.Debug("peer_closed", append(fields, zap.Error(cause))...)
	default:
		s.log.Warn("peer_receive_error", append(fields, zap.Error(cause))...)
	}

	if removed {
		s.events.Emit(Event{Type: EventPeerLeft, Peer: s.peer, Cause: cause})
	}
	return cause
}
