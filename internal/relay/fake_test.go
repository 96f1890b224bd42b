package relay

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeConn records writes and serves reads from a channel. Writes can be made
// to fail or to block until release is closed.
type fakeConn struct {
	addr fakeAddr

	mu       sync.Mutex
	writes   [][]byte
	writeErr error

	writing chan struct{} // receives once per Write entry when non-nil
	release chan struct{} // Write blocks until release or Close when non-nil

	reads     chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn(addr string) *fakeConn {
	return &fakeConn{
		addr:   fakeAddr(addr),
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case b, ok := <-c.reads:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, b), nil
	case <-c.closed:
		return 0, net.ErrClosed
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.writing != nil {
		c.writing <- struct{}{}
	}
	if c.release != nil {
		select {
		case <-c.release:
		case <-c.closed:
			return 0, net.ErrClosed
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() net.Addr { return c.addr }

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

var errBrokenPipe = errors.New("broken pipe")

// recordingDisplay counts Show calls.
type recordingDisplay struct {
	mu     sync.Mutex
	frames []string
}

func (d *recordingDisplay) Show(f Frame) {
	d.mu.Lock()
	d.frames = append(d.frames, string(f))
	d.mu.Unlock()
}

func (d *recordingDisplay) shown() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.frames...)
}

type recordingForwarder struct {
	mu     sync.Mutex
	frames []string
	err    error
}

func (f *recordingForwarder) Forward(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, string(fr))
	return f.err
}

func (f *recordingForwarder) forwarded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

// scriptedListener returns the scripted results from Accept in order, then
// blocks until closed.
type scriptedListener struct {
	mu      sync.Mutex
	script  []acceptResult
	closed  chan struct{}
	closeMu sync.Once
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func newScriptedListener(script ...acceptResult) *scriptedListener {
	return &scriptedListener{script: script, closed: make(chan struct{})}
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if len(l.script) > 0 {
		next := l.script[0]
		l.script = l.script[1:]
		l.mu.Unlock()
		return next.conn, next.err
	}
	l.mu.Unlock()
	<-l.closed
	return nil, &net.OpError{Op: "accept", Net: "tcp", Err: net.ErrClosed}
}

func (l *scriptedListener) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *scriptedListener) Close() error {
	l.closeMu.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr { return fakeAddr("scripted:0") }

type temporaryError struct{}

func (temporaryError) Error() string   { return "resource temporarily unavailable" }
func (temporaryError) Temporary() bool { return true }
func (temporaryError) Timeout() bool   { return false }

const waitFor = 2 * time.Second
