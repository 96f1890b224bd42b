package relay

import (
	"sync"
	"time"
)

// EventType 事件类型标识
type EventType string

const (
	EventPeerJoined   EventType = "peer.joined"
	EventPeerLeft     EventType = "peer.left"    // 自身读失败或正常关闭
	EventPeerEvicted  EventType = "peer.evicted" // 广播写失败被剔除
	EventFrameRelayed EventType = "frame.relayed"
)

type Event struct {
	Type   EventType
	When   time.Time
	Peer   *Peer // nil for frames that came from another relay node
	Frame  Frame
	Result *Result // set for EventFrameRelayed
	Cause  error
}

type EventHandler func(Event)

type handlerEntry struct {
	id uint64
	fn EventHandler
}

// Events 按 EventType 分发的同步事件总线
// handler 在触发事件的 goroutine 上执行，应当尽快返回
type Events struct {
	mu       sync.RWMutex
	handlers map[EventType][]handlerEntry
	nextHID  uint64
}

func NewEvents() *Events {
	return &Events{handlers: make(map[EventType][]handlerEntry)}
}

// Subscribe 注册并返回一个取消函数，用于移除该处理器
func (e *Events) Subscribe(t EventType, fn EventHandler) (cancel func()) {
	e.mu.Lock()
	e.nextHID++
	id := e.nextHID
	e.handlers[t] = append(e.handlers[t], handlerEntry{id: id, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		entries := e.handlers[t]
		filtered := make([]handlerEntry, 0, len(entries))
		for _, h := range entries {
			if h.id != id {
				filtered = append(filtered, h)
			}
		}
		if len(filtered) == 0 {
			delete(e.handlers, t)
			return
		}
		e.handlers[t] = filtered
	}
}

func (e *Events) Emit(ev Event) {
	if ev.When.IsZero() {
		ev.When = time.Now()
	}
	e.mu.RLock()
	// 拷贝切片以避免并发修改影响
	copied := append([]handlerEntry(nil), e.handlers[ev.Type]...)
	e.mu.RUnlock()
	for _, h := range copied {
		func() {
			defer func() { _ = recover() }()
			h.fn(ev)
		}()
	}
}
