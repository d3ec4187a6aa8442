// Package live 把实时行情 / P&L 消息扇出给所有已连接的观察者。
package live

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"tradedesk/internal/logger"
)

// Message is the frame pushed to observers: {"type": ..., "data": ...}.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Observer receives encoded frames on C until it is detached.
type Observer struct {
	id   uint64
	ch   chan []byte
	once sync.Once
}

func (o *Observer) ID() uint64 { return o.id }

// C is closed once the observer is detached.
func (o *Observer) C() <-chan []byte { return o.ch }

// Hub 持有观察者集合；一次广播对每个观察者做非阻塞发送，缓冲区满即视为慢消费者并摘除。
type Hub struct {
	buffer int

	mu        sync.RWMutex
	observers map[uint64]*Observer
	nextID    uint64

	dropped atomic.Int64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{buffer: buffer, observers: make(map[uint64]*Observer)}
}

// Attach registers a new observer. It never blocks on delivery.
func (h *Hub) Attach() *Observer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	o := &Observer{id: h.nextID, ch: make(chan []byte, h.buffer)}
	h.observers[o.id] = o
	return o
}

// Detach removes o and closes its channel. Calling it again is a no-op.
func (h *Hub) Detach(o *Observer) {
	if o == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, o.id)
	o.once.Do(func() { close(o.ch) })
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Dropped counts observers detached for being too slow.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Broadcast encodes msg once and delivers it to every attached observer. It returns the
// number of observers that received the frame.
func (h *Hub) Broadcast(msg Message) int {
	frame, err := json.Marshal(msg)
	if err != nil {
		logger.Warnf("live: encode %s frame: %v", msg.Type, err)
		return 0
	}
	return h.BroadcastRaw(frame)
}

func (h *Hub) BroadcastRaw(frame []byte) int {
	var slow []*Observer
	delivered := 0
	h.mu.RLock()
	for _, o := range h.observers {
		select {
		case o.ch <- frame:
			delivered++
		default:
			slow = append(slow, o)
		}
	}
	h.mu.RUnlock()

	for _, o := range slow {
		h.Detach(o)
		h.dropped.Add(1)
		logger.With("observer", o.id).Warnf("live: observer too slow, dropped")
	}
	return delivered
}

// Run broadcasts every message from in until ctx ends or in is closed, then detaches all
// observers.
func (h *Hub) Run(ctx context.Context, in <-chan Message) error {
	defer h.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			h.Broadcast(msg)
		}
	}
}

// Close detaches every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	observers := h.observers
	h.observers = make(map[uint64]*Observer)
	h.mu.Unlock()
	for _, o := range observers {
		o.once.Do(func() { close(o.ch) })
	}
}
