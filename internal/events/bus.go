// Package events provides the in-process notification bus: routing
// decisions, queue snapshots, and task lifecycle events are published here
// and fanned out to subscribers. This is the only way external collaborators
// learn of queue progress; no polling contract is offered.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies the kind of an event.
type Type string

const (
	TypeRoutingDecision Type = "routing_decision"
	TypeRoutingFailure  Type = "routing_failure"
	TypeQueueSnapshot   Type = "queue_snapshot"
	TypeTaskStarted     Type = "task_started"
	TypeTaskCompleted   Type = "task_completed"
	TypeTaskFailed      Type = "task_failed"
	TypeIngestProgress  Type = "ingest_progress"
)

// Event is a single notification. Payload is one of the typed payload
// structs published by the routing, task, and ingest packages.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// TaskEvent is the payload for task lifecycle events, keyed by task id.
type TaskEvent struct {
	TaskID string `json:"task_id"`
	Model  string `json:"model,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Bus fans events out to subscriber channels. A slow subscriber never blocks
// a publisher: events that don't fit in a subscriber's buffer are dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: slog.Default(),
	}
}

// Subscribe registers a new subscriber with the given channel buffer size
// (minimum 1). The returned cancel function unsubscribes and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(typ Type, payload any) {
	e := Event{Type: typ, Time: time.Now().UTC(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Debug("dropping event for slow subscriber", "type", typ)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
