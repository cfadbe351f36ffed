package blobs

import (
	"sync"
	"time"
)

// Event types published on the store event stream.
const (
	EventBlobStored  = "blob_stored"
	EventBlobDeleted = "blob_deleted"
)

// Event records a state change of one digest.
type Event struct {
	Type   string    `json:"type"`
	Digest Digest    `json:"sha1"`
	Length uint64    `json:"length,omitempty"`
	Time   time.Time `json:"time"`
}

// EventStream fans store/delete events out to subscribers. Delivery is
// best-effort: a subscriber that cannot keep up misses events rather than
// blocking writers.
type EventStream struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber channel.
func (s *EventStream) Subscribe() chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes ch and closes it.
func (s *EventStream) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

// Publish delivers event to all current subscribers without blocking.
func (s *EventStream) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
