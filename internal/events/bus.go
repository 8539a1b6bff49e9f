package events

import (
	"sync"
	"time"
)

// Event types published on the bus.
const (
	TypeSession   = "session"
	TypeTask      = "task"
	TypeRecording = "recording"
)

// Event is a state-change notification from one of the agent's components.
type Event struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Bus provides pub-sub distribution of component state changes.
// Publish never blocks the mutating caller: sends are non-blocking and
// slow subscribers are dropped. Components publish only after leaving
// their own critical sections, so subscribers never observe state mid-mutation.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]chan Event
	nextID      uint64
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[uint64]chan Event)}
}

// Subscribe registers a new subscriber and returns its channel and a cancel function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 64)
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends an event to all subscribers. The timestamp is filled in
// when zero.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Drop if subscriber is slow
		}
	}
	b.mu.RUnlock()
}
