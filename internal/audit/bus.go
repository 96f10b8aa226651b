package audit

import "sync"

// recentSize is how many events Recent can return.
const recentSize = 256

// Bus fans out events to SSE subscribers in real time and keeps the most
// recent ones for the admin API.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan *Event]chan *Event

	ringMu sync.Mutex
	ring   []*Event
	next   int
	full   bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[<-chan *Event]chan *Event),
		ring: make([]*Event, recentSize),
	}
}

// Subscribe registers a new listener and returns a receive-only channel.
// The caller must call Unsubscribe when done.
func (b *Bus) Subscribe() <-chan *Event {
	ch := make(chan *Event, 64)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan *Event) {
	b.mu.Lock()
	if send, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(send)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live listeners.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish sends an event to all subscribers without blocking.
// Slow consumers that can't keep up will miss events.
func (b *Bus) Publish(ev *Event) {
	b.ringMu.Lock()
	b.ring[b.next] = ev
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
	b.ringMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns up to limit events, newest first. limit <= 0 means all
// retained events.
func (b *Bus) Recent(limit int) []*Event {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()

	n := b.next
	if b.full {
		n = len(b.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Event, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (b.next - i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}
	return out
}
