// Package events provides the broadcast bus feeding the SSE stream.
// Publishing never blocks: each subscriber has a bounded buffer and loses
// its oldest events on overflow. Subscribers reconcile by re-querying the
// store after a lag.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bybrooklyn/alchemist/internal/models"
)

// Type identifies the kind of event.
type Type string

// Event types delivered over the SSE stream.
const (
	// TypeLog is an application log line.
	TypeLog Type = "log"
	// TypeStatus is a job state change.
	TypeStatus Type = "status"
	// TypeDecision is an analyzer/gate decision.
	TypeDecision Type = "decision"
	// TypeProgress is an encode progress update.
	TypeProgress Type = "progress"
)

// Event is one bus message.
type Event struct {
	Type      Type              `json:"type"`
	JobID     *models.ULID      `json:"job_id,omitempty"`
	Timestamp time.Time         `json:"ts"`
	Status    models.JobStatus  `json:"status,omitempty"`
	Action    string            `json:"action,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Progress  float64           `json:"progress,omitempty"`
	Level     string            `json:"level,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// DefaultBufferSize is the per-subscriber ring capacity.
const DefaultBufferSize = 256

// Subscriber receives events from the bus. Dropped counts events lost to
// overflow since the last read of Dropped.
type Subscriber struct {
	id string
	ch chan Event

	mu      sync.Mutex
	dropped uint64
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Dropped returns and resets the overflow counter.
func (s *Subscriber) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.dropped
	s.dropped = 0
	return n
}

// Bus is a bounded broadcast channel.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	bufferSize  int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Bus{
		subscribers: make(map[string]*Subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan Event, b.bufferSize),
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub.id]; !ok {
		return
	}
	delete(b.subscribers, sub.id)
	close(sub.ch)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish broadcasts an event. A full subscriber loses its oldest buffered
// event to make room; the publisher never blocks.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Buffer full: evict the oldest, then retry once. A concurrent
		// reader may have drained in between, so the retry can still fail
		// harmlessly.
		select {
		case <-sub.ch:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
		default:
		}
		select {
		case sub.ch <- event:
		default:
			sub.mu.Lock()
			sub.dropped++
			sub.mu.Unlock()
		}
	}
}

// PublishStatus publishes a job state change.
func (b *Bus) PublishStatus(jobID models.ULID, status models.JobStatus) {
	b.Publish(Event{Type: TypeStatus, JobID: &jobID, Status: status})
}

// PublishDecision publishes an analyzer/gate decision.
func (b *Bus) PublishDecision(jobID models.ULID, action, reason string) {
	b.Publish(Event{Type: TypeDecision, JobID: &jobID, Action: action, Reason: reason})
}

// PublishProgress publishes an encode progress update.
func (b *Bus) PublishProgress(jobID models.ULID, pct float64) {
	b.Publish(Event{Type: TypeProgress, JobID: &jobID, Progress: pct})
}

// PublishLog publishes a log line.
func (b *Bus) PublishLog(level, message string, jobID *models.ULID) {
	b.Publish(Event{Type: TypeLog, JobID: jobID, Level: level, Message: message})
}
