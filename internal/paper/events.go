package paper

import (
	"fmt"
	"sync"
	"time"
)

// Event is one pipeline progress notification. Events mirror ledger writes
// and paper transitions; they are advisory and never block processing.
type Event struct {
	PaperID   string         `json:"paper_id"`
	Number    string         `json:"number,omitempty"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EventSink receives pipeline events.
type EventSink interface {
	Publish(event Event) error
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) error {
	return nil
}

// MemorySink stores events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{
		events: []Event{},
	}
}

func (s *MemorySink) Publish(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// BroadcastSink fans events out to live subscribers. Slow subscribers drop
// events rather than stalling the pipeline.
type BroadcastSink struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcastSink() *BroadcastSink {
	return &BroadcastSink{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called to release the channel.
func (s *BroadcastSink) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *BroadcastSink) Publish(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}
