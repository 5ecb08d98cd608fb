package memory

import (
	"sync"

	"github.com/bnema/meetlink/internal/ports"
)

// Bus is an in-process EventBus. Handlers run synchronously on the
// publisher's goroutine in subscription order, which preserves per-publisher
// ordering. Handlers may publish further events but must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]func(event any)
	nextID   int
}

var _ ports.EventBus = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{handlers: map[int]func(event any){}}
}

func (b *Bus) Publish(event any) {
	b.mu.RLock()
	handlers := make([]func(event any), 0, len(b.handlers))
	for id := 0; id < b.nextID; id++ {
		if handler, ok := b.handlers[id]; ok {
			handlers = append(handlers, handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (b *Bus) Subscribe(handler func(event any)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}
