package notifyhub

import (
	"sync"
	"sync/atomic"

	"github.com/moyoez/bill2sheet/types"
)

// DefaultCapacity is the number of pending events buffered per subscriber.
const DefaultCapacity = 1000

// Hub fans the events of one upload session out to its subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	capacity int
	closed   bool
	dropped  atomic.Int64
}

type subscriber struct {
	ch   chan types.ProcessingEvent
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// New creates a hub whose subscribers buffer up to capacity events.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		subs:     make(map[*subscriber]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a subscriber that sees events published from now on.
// The returned channel is closed by Close or by calling unsubscribe.
func (h *Hub) Subscribe() (<-chan types.ProcessingEvent, func()) {
	sub := &subscriber{ch: make(chan types.ProcessingEvent, h.capacity)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		sub.close()
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (h *Hub) Publish(ev types.ProcessingEvent) {
	if ev == nil {
		return
	}
	// the read lock is held while sending so Close cannot close a channel mid-send
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Close closes every subscriber channel. Pending buffered events remain readable.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.close()
		delete(h.subs, sub)
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Closed reports whether Close has been called.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}
