package relay

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Frame is one complete application message. Whatever a single receive call
// returned is treated as a frame; no length prefix is added or expected.
type Frame []byte

// Conn is the endpoint a Peer owns. net.Conn satisfies it. Read and Write may
// be called concurrently from different goroutines.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Peer 一个已接入的客户端连接，是否在 Registry 中即代表是否存活
type Peer struct {
	id        string
	addr      string
	transport string
	conn      Conn

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func NewPeer(conn Conn, transport string) *Peer {
	addr := ""
	if ra := conn.RemoteAddr(); ra != nil {
		addr = ra.String()
	}
	return &Peer{
		id:        uuid.New().String(),
		addr:      addr,
		transport: transport,
		conn:      conn,
		closed:    make(chan struct{}),
	}
}

func (p *Peer) ID() string         { return p.id }
func (p *Peer) RemoteAddr() string { return p.addr }
func (p *Peer) Transport() string  { return p.transport }

// Send writes the frame in one Write call. A positive timeout sets a write
// deadline first when the endpoint supports one.
func (p *Peer) Send(f Frame, timeout time.Duration) error {
	if p.IsClosed() {
		return &PeerError{Op: OpSend, PeerID: p.id, Err: ErrPeerClosed}
	}
	if timeout > 0 {
		if d, ok := p.conn.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(timeout))
		}
	}
	if _, err := p.conn.Write(f); err != nil {
		return &PeerError{Op: OpSend, PeerID: p.id, Err: err}
	}
	return nil
}

// Receive blocks for the next read into buf and returns a copy of what was
// read. A non-empty frame may come back together with a terminal error.
func (p *Peer) Receive(buf []byte) (Frame, error) {
	n, err := p.conn.Read(buf)
	var f Frame
	if n > 0 {
		f = make(Frame, n)
		copy(f, buf[:n])
	}
	return f, err
}

func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

// IsClosed 非阻塞判断是否已关闭
func (p *Peer) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}
