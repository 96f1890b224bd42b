package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster(reg *Registry, opts Options) *Broadcaster {
	opts.normalize()
	return NewBroadcaster(reg, NewEvents(), opts)
}

func TestFanoutCompleteness(t *testing.T) {
	reg := NewRegistry()
	conns := []*fakeConn{newFakeConn("a"), newFakeConn("b"), newFakeConn("c")}
	peers := make([]*Peer, len(conns))
	for i, c := range conns {
		peers[i] = NewPeer(c, TransportTCP)
		reg.Insert(peers[i])
	}
	display := &recordingDisplay{}
	b := newTestBroadcaster(reg, Options{Echo: true, Display: display})

	res := b.Fanout(peers[0], Frame("hello"))

	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Delivered)
	assert.Empty(t, res.Evicted)
	for _, c := range conns {
		assert.Equal(t, []string{"hello"}, c.written(), "peer %s", c.addr)
	}
	assert.Equal(t, []string{"hello"}, display.shown())
}

func TestFanoutWithoutEchoSkipsSender(t *testing.T) {
	reg := NewRegistry()
	ca, cb := newFakeConn("a"), newFakeConn("b")
	a, bp := NewPeer(ca, TransportTCP), NewPeer(cb, TransportTCP)
	reg.Insert(a)
	reg.Insert(bp)
	b := newTestBroadcaster(reg, Options{Echo: false})

	res := b.Fanout(a, Frame("hi"))

	assert.Equal(t, 1, res.Delivered)
	assert.Empty(t, ca.written())
	assert.Equal(t, []string{"hi"}, cb.written())
}

func TestFanoutEvictsFailedPeer(t *testing.T) {
	reg := NewRegistry()
	good, bad := newFakeConn("good"), newFakeConn("bad")
	bad.writeErr = errBrokenPipe
	after := newFakeConn("after")
	gp, bp, ap := NewPeer(good, TransportTCP), NewPeer(bad, TransportTCP), NewPeer(after, TransportTCP)
	reg.Insert(gp)
	reg.Insert(bp)
	reg.Insert(ap)

	display := &recordingDisplay{}
	b := newTestBroadcaster(reg, Options{Echo: true, Display: display})

	var evicted []*Peer
	b.events.Subscribe(EventPeerEvicted, func(e Event) { evicted = append(evicted, e.Peer) })

	res := b.Fanout(nil, Frame("one"))
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 2, res.Delivered)
	require.Equal(t, []*Peer{bp}, res.Evicted)
	assert.Equal(t, []*Peer{bp}, evicted)
	assert.False(t, reg.Contains(bp))
	assert.True(t, bad.isClosed())
	assert.Equal(t, []string{"one"}, after.written(), "a failure must not abort the sweep")

	bad.mu.Lock()
	bad.writeErr = nil
	bad.mu.Unlock()

	res = b.Fanout(nil, Frame("two"))
	assert.Equal(t, 2, res.Attempted)
	assert.Empty(t, bad.written(), "evicted peer is never written to again")
	assert.Equal(t, []string{"one", "two"}, good.written())
	assert.Equal(t, []string{"one", "two"}, display.shown(), "display once per fan-out")
}

func TestFanoutRacingRemoveCountsOnce(t *testing.T) {
	reg := NewRegistry()
	bad := newFakeConn("bad")
	bad.writeErr = errBrokenPipe
	p := NewPeer(bad, TransportTCP)
	reg.Insert(p)
	b := newTestBroadcaster(reg, Options{Echo: true})

	// the session removes its peer while the send is still in flight
	bad.writing = make(chan struct{}, 1)
	bad.release = make(chan struct{})
	done := make(chan Result)
	go func() { done <- b.Fanout(nil, Frame("x")) }()
	<-bad.writing
	require.True(t, reg.Remove(p))
	close(bad.release)

	res := <-done
	assert.Empty(t, res.Evicted)
	assert.Equal(t, 0, reg.Len())
}

func TestFanoutEmptyRegistryStillDisplays(t *testing.T) {
	display := &recordingDisplay{}
	b := newTestBroadcaster(NewRegistry(), Options{Display: display})
	res := b.Fanout(nil, Frame("alone"))
	assert.Equal(t, 0, res.Attempted)
	assert.Equal(t, []string{"alone"}, display.shown())
}

func TestFanoutForwardsLocalFramesOnly(t *testing.T) {
	fwd := &recordingForwarder{err: errBrokenPipe}
	reg := NewRegistry()
	p := NewPeer(newFakeConn("p"), TransportTCP)
	reg.Insert(p)
	b := newTestBroadcaster(reg, Options{Echo: true, Forwarder: fwd})

	b.Fanout(p, Frame("local"))
	b.Fanout(nil, Frame("remote"))

	assert.Equal(t, []string{"local"}, fwd.forwarded(), "forward errors are logged, not fatal")
}

func TestStalledPeerDoesNotBlockRegistry(t *testing.T) {
	reg := NewRegistry()
	stalled := newFakeConn("stalled")
	stalled.writing = make(chan struct{}, 1)
	stalled.release = make(chan struct{})
	reg.Insert(NewPeer(stalled, TransportTCP))
	b := newTestBroadcaster(reg, Options{Echo: true})

	done := make(chan struct{})
	go func() {
		b.Fanout(nil, Frame("stuck"))
		close(done)
	}()
	<-stalled.writing

	ops := make(chan struct{})
	go func() {
		p := NewPeer(newFakeConn("late"), TransportTCP)
		reg.Insert(p)
		_ = reg.Snapshot()
		reg.Remove(p)
		close(ops)
	}()
	select {
	case <-ops:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("registry operations blocked behind a stalled send")
	}

	close(stalled.release)
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("fan-out did not finish after the stall was released")
	}
}

type deadlineConn struct {
	*fakeConn
	deadlines []time.Time
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	c.deadlines = append(c.deadlines, t)
	return nil
}

func TestSendSetsWriteDeadline(t *testing.T) {
	c := &deadlineConn{fakeConn: newFakeConn("d")}
	p := NewPeer(c, TransportTCP)

	require.NoError(t, p.Send(Frame("x"), time.Second))
	require.Len(t, c.deadlines, 1)
	assert.WithinDuration(t, time.Now().Add(time.Second), c.deadlines[0], 500*time.Millisecond)

	require.NoError(t, p.Send(Frame("y"), 0))
	assert.Len(t, c.deadlines, 1, "zero timeout leaves the deadline alone")
}

func TestSendAfterCloseFails(t *testing.T) {
	p := NewPeer(newFakeConn("p"), TransportTCP)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	err := p.Send(Frame("late"), 0)
	var perr *PeerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, OpSend, perr.Op)
	assert.ErrorIs(t, err, ErrPeerClosed)
}
