package api

import (
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 10

// Hub fans event messages out to SSE and websocket clients. A subscriber
// whose buffer is full misses the message; the sender never blocks.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan string]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan string]struct{})}
}

// Subscribe registers a client. The returned cancel func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
}

func (h *Hub) Broadcast(msg string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts messages lost to full subscriber buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
