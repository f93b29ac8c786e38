package events

import "sync"

// Memory captures events in memory and exposes snapshots. It is used where a
// durable log is not wanted, chiefly in tests.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

var _ Emitter = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{events: make([]Event, 0)}
}

func (m *Memory) Emit(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType returns the captured events of one kind, in emission order.
func (m *Memory) OfType(t Type) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, evt := range m.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// Types lists the kinds of all captured events, in emission order.
func (m *Memory) Types() []Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Type, len(m.events))
	for i, evt := range m.events {
		out[i] = evt.Type
	}
	return out
}
