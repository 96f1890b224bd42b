package relay

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	tec "github.com/jbenet/go-temp-err-catcher"
	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/observe"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

// Listener is the accept loop. Each accepted connection is handed to attach,
// which must register the peer and start its session without blocking.
type Listener struct {
	ln        net.Listener
	transport string
	attach    func(conn Conn, transport string)
	catcher   tec.TempErrCatcher
	log       *zap.Logger
}

func NewListener(ln net.Listener, transport string, attach func(Conn, string), log *zap.Logger) *Listener {
	if log == nil {
		log = logger.OrDefault(nil)
	}
	return &Listener{
		ln:        ln,
		transport: transport,
		attach:    attach,
		catcher:   tec.TempErrCatcher{IsTemp: isTemporaryAccept},
		log:       log,
	}
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts until the listener dies. The returned error always wraps
// ErrListenerClosed; running sessions are left alone.
func (l *Listener) Serve() error {
	l.log.Info("tcp_listen", zap.String("addr", l.ln.Addr().String()))
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && l.catcher.IsTemporary(err) {
				observe.IncAcceptError("transient")
				l.log.Warn("tcp_accept_error", zap.Error(&AcceptError{Err: err, Temporary: true}))
				continue
			}
			aerr := &AcceptError{Err: err}
			if errors.Is(err, net.ErrClosed) {
				observe.IncAcceptError("closed")
				l.log.Info("tcp_listener_closed", zap.String("addr", l.ln.Addr().String()))
			} else {
				observe.IncAcceptError("fatal")
				l.log.Error("tcp_accept_fatal", zap.Error(aerr))
				_ = l.ln.Close()
			}
			return fmt.Errorf("%w: %w", ErrListenerClosed, aerr)
		}
		l.attach(conn, l.transport)
	}
}

func isTemporaryAccept(err error) bool {
	if tec.ErrIsTemporary(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.EINTR)
}
