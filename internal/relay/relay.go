package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/observe"
)

// Relay ties the registry, the broadcaster and any number of accept loops
// together. Shutdown closes the listeners and every peer; sessions then end
// through their own failed-receive path.
type Relay struct {
	opts   Options
	log    *zap.Logger
	reg    *Registry
	events *Events
	bc     *Broadcaster

	mu        sync.Mutex
	closed    bool
	listeners map[*Listener]struct{}
	sessions  sync.WaitGroup
}

func New(opts Options) *Relay {
	opts.normalize()
	reg := NewRegistry()
	events := NewEvents()
	return &Relay{
		opts:      opts,
		log:       opts.Logger,
		reg:       reg,
		events:    events,
		bc:        NewBroadcaster(reg, events, opts),
		listeners: make(map[*Listener]struct{}),
	}
}

func (r *Relay) Registry() *Registry       { return r.reg }
func (r *Relay) Events() *Events           { return r.events }
func (r *Relay) Broadcaster() *Broadcaster { return r.bc }

// ListenAndServe binds a TCP address and serves it until Shutdown.
func (r *Relay) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve runs an accept loop on ln. After Shutdown it returns ErrRelayClosed;
// if the listener dies on its own it returns an error wrapping
// ErrListenerClosed.
func (r *Relay) Serve(ln net.Listener) error {
	l := NewListener(ln, TransportTCP, r.attach, r.log)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ln.Close()
		return ErrRelayClosed
	}
	r.listeners[l] = struct{}{}
	r.mu.Unlock()

	err := l.Serve()

	r.mu.Lock()
	delete(r.listeners, l)
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRelayClosed
	}
	return err
}

// attach registers the peer, then starts its session. Registration happens
// before the first read so a concurrent fan-out can't miss the new peer.
func (r *Relay) attach(conn Conn, transport string) {
	s, err := r.register(conn, transport)
	if err != nil {
		return
	}
	go r.run(s)
}

// ServeConn registers conn and runs its session on the calling goroutine.
// Used by transports that already own a goroutine per connection.
func (r *Relay) ServeConn(conn Conn, transport string) error {
	s, err := r.register(conn, transport)
	if err != nil {
		return err
	}
	return r.run(s)
}

func (r *Relay) register(conn Conn, transport string) (*Session, error) {
	p := NewPeer(conn, transport)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.Close()
		return nil, ErrRelayClosed
	}
	r.reg.Insert(p)
	r.sessions.Add(1)
	r.mu.Unlock()

	r.log.Info("peer_joined", zap.String("peer", p.id), zap.String("addr", p.addr), zap.String("transport", transport))
	r.events.Emit(Event{Type: EventPeerJoined, Peer: p})
	return NewSession(p, r.reg, r.bc, r.events, r.opts.ReadBuffer, r.log), nil
}

func (r *Relay) run(s *Session) error {
	defer r.sessions.Done()
	return s.Run()
}

// Inject fans out a frame that came from another relay node.
func (r *Relay) Inject(f Frame) Result {
	observe.IncFrame("remote", len(f))
	return r.bc.Fanout(nil, f)
}

// Healthy reports ErrRelayClosed once Shutdown has started.
func (r *Relay) Healthy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	return nil
}

// Shutdown stops accepting, says farewell to every peer, closes them and waits
// for their sessions to exit or ctx to end.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRelayClosed
	}
	r.closed = true
	listeners := make([]*Listener, 0, len(r.listeners))
	for l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()

	var err error
	for _, l := range listeners {
		if cerr := l.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}

	peers := r.reg.Drain()
	r.log.Info("relay_shutdown", zap.Int("peers", len(peers)))
	for _, p := range peers {
		r.events.Emit(Event{Type: EventPeerLeft, Peer: p, Cause: ErrRelayClosed})
	}

	// 每个 peer 独立告别并关闭，慢 peer 不拖住其他 peer
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		left = make(chan struct{})
	)
	timeout := farewellTimeout(ctx, r.opts.WriteTimeout)
	for _, p := range peers {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()
			if len(r.opts.Farewell) > 0 && timeout >= 0 {
				_ = p.Send(r.opts.Farewell, timeout)
			}
			if cerr := p.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				mu.Lock()
				err = multierr.Append(err, &PeerError{Op: "close", PeerID: p.id, Err: cerr})
				mu.Unlock()
			}
		}(p)
	}
	go func() {
		wg.Wait()
		close(left)
	}()
	select {
	case <-left:
	case <-ctx.Done():
		// blocked farewells return once their endpoint is closed
		for _, p := range peers {
			_ = p.Close()
		}
		mu.Lock()
		defer mu.Unlock()
		return multierr.Append(err, ctx.Err())
	}

	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, ctx.Err())
	}
	return err
}

// farewellTimeout caps the write timeout at the context deadline. A negative
// result means the deadline has already passed and no farewell is sent.
func farewellTimeout(ctx context.Context, timeout time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return timeout
	}
	rem := time.Until(dl)
	if rem <= 0 {
		return -1
	}
	if timeout <= 0 || rem < timeout {
		return rem
	}
	return timeout
}
