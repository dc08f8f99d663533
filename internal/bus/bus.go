// Package bus implements best-effort in-process fan-out of activity events
// (api_request, data_changed, webhook_sent) to live observers. There is no
// replay: an observer that subscribes after a publish misses it.
package bus

import (
	"sync"
	"time"
)

const (
	KindAPIRequest  = "api_request"
	KindDataChanged = "data_changed"
	KindWebhookSent = "webhook_sent"
)

type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

type Bus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]Handler
	order    []int // subscription order; compacted lazily after unsubscribes
}

func New() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns its id. O(1).
func (b *Bus) Subscribe(h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = h
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a handler. O(1); the order slice is compacted lazily.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	if len(b.order) > 2*len(b.handlers)+8 {
		b.compactLocked()
	}
}

// Publish delivers the event to all current subscribers in registration order.
func (b *Bus) Publish(kind string, data any) {
	event := Event{
		Type:      kind,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, id := range b.order {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func (b *Bus) compactLocked() {
	live := b.order[:0]
	for _, id := range b.order {
		if _, ok := b.handlers[id]; ok {
			live = append(live, id)
		}
	}
	b.order = live
}
