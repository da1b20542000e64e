// Package events fans engine notifications out to subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/thisislance98/claudia/pkg/models"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 256

// Hub is a thread-safe pub/sub hub. Publish never blocks: events for a
// subscriber whose buffer is full are dropped and counted.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan models.Event]struct{}
	buffer      int
	dropped     atomic.Int64
}

// New creates a Hub with the default buffer size.
func New() *Hub {
	return NewWithBuffer(DefaultBuffer)
}

// NewWithBuffer creates a Hub whose subscriber channels hold n events.
func NewWithBuffer(n int) *Hub {
	if n <= 0 {
		n = DefaultBuffer
	}
	return &Hub{
		subscribers: make(map[chan models.Event]struct{}),
		buffer:      n,
	}
}

// Publish delivers e to every subscriber.
func (h *Hub) Publish(e models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			// Slow clients must not stall the engine.
			h.dropped.Add(1)
		}
	}
}

// Subscribe creates a new subscription channel.
func (h *Hub) Subscribe() chan models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan models.Event, h.buffer)
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription and closes its channel. It is safe to
// call more than once.
func (h *Hub) Unsubscribe(ch chan models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
