package events

import (
	"context"
	"sync"
)

// Emission is one recorded bus publication.
type Emission struct {
	Room    string
	Event   string
	Payload any
}

// MemoryBus records emissions in order. Intended for unit tests.
type MemoryBus struct {
	mu        sync.Mutex
	emissions []Emission
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Emit(_ context.Context, room, event string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.emissions = append(b.emissions, Emission{Room: room, Event: event, Payload: payload})
	return nil
}

// Emissions returns a snapshot of everything emitted so far.
func (b *MemoryBus) Emissions() []Emission {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Emission, len(b.emissions))
	copy(out, b.emissions)
	return out
}

// ByEvent filters the snapshot by event name.
func (b *MemoryBus) ByEvent(event string) []Emission {
	var out []Emission
	for _, e := range b.Emissions() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

var _ Bus = (*MemoryBus)(nil)
