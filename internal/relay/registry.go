package relay

import (
	"sync"

	"github.com/hongjun500/chat-relay/internal/observe"
)

// Registry is the set of live peers. Every operation runs inside one mutex;
// Snapshot holds it only while copying, never while the caller does I/O.
type Registry struct {
	mu    sync.Mutex
	byID  map[string]*Peer
	order []*Peer // insertion order, used for deterministic fan-out
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Peer)}
}

// Insert 注册 peer，重复注册同一 peer 不产生副作用
func (r *Registry) Insert(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.id]; ok {
		return
	}
	r.byID[p.id] = p
	r.order = append(r.order, p)
	observe.AddOnline(p.transport, 1)
}

// Remove 幂等移除，返回本次调用是否真正移除了该 peer
func (r *Registry) Remove(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[p.id]; !ok {
		return false
	}
	delete(r.byID, p.id)
	for i, q := range r.order {
		if q == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	observe.AddOnline(p.transport, -1)
	return true
}

func (r *Registry) Snapshot() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Peer, len(r.order))
	copy(out, r.order)
	return out
}

// Drain removes every peer and returns them. Used on shutdown.
func (r *Registry) Drain() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.order
	for _, p := range out {
		observe.AddOnline(p.transport, -1)
	}
	r.byID = make(map[string]*Peer)
	r.order = nil
	return out
}

func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) Contains(p *Peer) bool {
	_, ok := r.Get(p.id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}
