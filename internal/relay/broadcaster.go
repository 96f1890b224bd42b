package relay

import (
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/chat-relay/internal/observe"
	"github.com/hongjun500/chat-relay/pkg/logger"
)

// Forwarder hands locally received frames to other relay nodes.
type Forwarder interface {
	Forward(f Frame) error
}

// Result 一次 fan-out 的统计
type Result struct {
	Attempted int
	Delivered int
	Evicted   []*Peer
}

// Broadcaster sends a frame to every registered peer. It iterates a snapshot
// so the registry lock is never held across a Write; a failed send does not
// stop the sweep, and failed peers are removed after it.
type Broadcaster struct {
	reg          *Registry
	events       *Events
	display      Display
	forward      Forwarder
	echo         bool
	writeTimeout time.Duration
	log          *zap.Logger
}

func NewBroadcaster(reg *Registry, events *Events, opts Options) *Broadcaster {
	b := &Broadcaster{
		reg:          reg,
		events:       events,
		display:      opts.Display,
		forward:      opts.Forwarder,
		echo:         opts.Echo,
		writeTimeout: opts.WriteTimeout,
		log:          opts.Logger,
	}
	if b.display == nil {
		b.display = NopDisplay{}
	}
	if b.log == nil {
		b.log = logger.OrDefault(nil)
	}
	if b.events == nil {
		b.events = NewEvents()
	}
	return b
}

// Fanout relays f to the registry. from is the originating peer, or nil for
// a frame that arrived from another node; only local frames are forwarded.
func (b *Broadcaster) Fanout(from *Peer, f Frame) Result {
	start := time.Now()
	var res Result
	var failed []*Peer

	for _, p := range b.reg.Snapshot() {
		if p == from && !b.echo {
			continue
		}
		res.Attempted++
		if err := p.Send(f, b.writeTimeout); err != nil {
			observe.IncSend(false)
			b.log.Debug("peer_send_error", zap.String("peer", p.id), zap.Error(err))
			failed = append(failed, p)
			continue
		}
		observe.IncSend(true)
		res.Delivered++
	}

	for _, p := range failed {
		if b.evict(p) {
			res.Evicted = append(res.Evicted, p)
		}
	}

	b.display.Show(f)
	if from != nil && b.forward != nil {
		if err := b.forward.Forward(f); err != nil {
			b.log.Warn("frame_forward_error", zap.Error(err))
		}
	}
	observe.ObserveFanout(time.Since(start).Seconds())
	b.events.Emit(Event{Type: EventFrameRelayed, Peer: from, Frame: f, Result: &res})
	return res
}

// evict reports whether this call was the one that removed p.
func (b *Broadcaster) evict(p *Peer) bool {
	removed := b.reg.Remove(p)
	_ = p.Close()
	if !removed {
		return false
	}
	observe.IncEviction()
	b.log.Info("peer_evicted", zap.String("peer", p.id), zap.String("addr", p.addr))
	b.events.Emit(Event{Type: EventPeerEvicted, Peer: p})
	return true
}
