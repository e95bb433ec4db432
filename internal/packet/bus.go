package packet

import (
	"sync"
	"time"
)

// RawMessage is one intercepted transport message.
type RawMessage struct {
	URL        string
	Payload    []byte
	ReceivedAt time.Time
}

// Source delivers raw transport messages. Subscribe registers a handler and
// returns the function that removes it; the unsubscribe function must be safe
// to call more than once.
type Source interface {
	Subscribe(handler func(RawMessage)) (unsubscribe func())
}

// Bus fans domain events out to every subscriber. A Bus lives for exactly one
// battle session. Handlers must be idempotent: the transport delivers at least
// once.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]func(Event))}
}

func (b *Bus) Subscribe(handler func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}
}
