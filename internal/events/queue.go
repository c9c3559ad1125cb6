// Package events provides the bounded telemetry queue fed by the simulation
// and drained by an external consumer (the HTTP API poller).
package events

import (
	"sync"
	"time"
)

// Type classifies a telemetry event.
type Type string

const (
	TypeUtterance     Type = "utterance"
	TypeTrade         Type = "trade"
	TypeReflection    Type = "reflection"
	TypeNetworkUpdate Type = "network_update"
)

// Event is one telemetry record, timestamped and tagged with the simulation
// step it was produced at.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Step      int       `json:"step"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
}

// DefaultCapacity matches the queue length the simulation uses when none is
// configured.
const DefaultCapacity = 1000

// Queue is a fixed-capacity FIFO with ring-buffer overflow semantics:
// emitting past capacity silently discards the oldest event. The simulation
// loop is the single producer; the HTTP API drains from a second goroutine,
// hence the mutex.
type Queue struct {
	mu  sync.Mutex
	buf []Event
	max int
}

// NewQueue creates a queue holding at most capacity events. A non-positive
// capacity falls back to DefaultCapacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{max: capacity}
}

// Emit appends an event, evicting the oldest entry when the queue is full.
func (q *Queue) Emit(typ Type, step int, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) >= q.max {
		q.buf = q.buf[1:]
	}
	q.buf = append(q.buf, Event{
		Timestamp: time.Now(),
		Step:      step,
		Type:      typ,
		Payload:   payload,
	})
}

// Drain removes and returns at most n events from the head, in arrival order.
func (q *Queue) Drain(n int) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.buf) == 0 {
		return nil
	}
	if n > len(q.buf) {
		n = len(q.buf)
	}
	out := make([]Event, n)
	copy(out, q.buf[:n])
	q.buf = q.buf[n:]
	return out
}

// DrainAll removes and returns every queued event in arrival order.
func (q *Queue) DrainAll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Cap returns the configured maximum queue length.
func (q *Queue) Cap() int {
	return q.max
}
