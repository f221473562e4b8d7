// Package events carries lifecycle notifications out of the engine to
// external collaborators (experiment manager, notifications, reporting)
// without coupling the core to any of them. Publishing never blocks the
// core: a subscriber that falls behind loses events rather than
// stalling assignment or tracking.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	ExperimentCreated   Type = "experiment.created"
	ExperimentStarted   Type = "experiment.started"
	ExperimentStopped   Type = "experiment.stopped"
	ExperimentCompleted Type = "experiment.completed"
	UserAssigned        Type = "user.assigned"
	EventTracked        Type = "event.tracked"
	ResultsUpdated      Type = "results.updated"
)

// Event is a notification payload. Only the ids and values relevant to
// the event type are set.
type Event struct {
	Type         Type      `json:"type"`
	ExperimentID string    `json:"experiment_id"`
	UserID       string    `json:"user_id,omitempty"`
	VariationID  string    `json:"variation_id,omitempty"`
	EventType    string    `json:"event_type,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

type subscriber struct {
	ch chan Event
}

// Bus is a fan-out publish/subscribe channel.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a listener with the given channel buffer and
// returns the channel plus an unsubscribe function. Unsubscribing
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buffer <= 0 {
		buffer = 16
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber whose buffer has
// room. Slow subscribers drop events.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
