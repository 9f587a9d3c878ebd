// Package broadcast fans out the latest kiosk events to any number of
// observers. Each subscriber first receives the latest event of every
// topic it follows, then live events. Nothing older than the latest
// event per topic is ever queued.
package broadcast

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Topic names a stream of events.
type Topic string

// Topics published by the kiosk.
const (
	TopicResult     Topic = "result"
	TopicStatus     Topic = "status"
	TopicCountdown  Topic = "countdown"
	TopicEnrollment Topic = "enrollment"
	TopicAttendance Topic = "attendance"
)

// Event is a published value with its envelope.
type Event struct {
	ID    string    `json:"id"`
	Topic Topic     `json:"topic"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// ErrClosed is returned by Next after the subscription was closed.
var ErrClosed = errors.New("subscription closed")

// Broadcaster keeps the latest event per topic and delivers events to
// subscribers.
type Broadcaster struct {
	now func() time.Time

	mu     sync.Mutex
	latest map[Topic]Event
	order  []Topic
	subs   map[string]*Subscription
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return NewWithClock(time.Now)
}

// NewWithClock creates a broadcaster that timestamps events with now.
func NewWithClock(now func() time.Time) *Broadcaster {
	return &Broadcaster{
		now:    now,
		latest: make(map[Topic]Event),
		subs:   make(map[string]*Subscription),
	}
}

// Publish records data as the latest value of topic and delivers it to
// every subscriber following the topic.
func (b *Broadcaster) Publish(topic Topic, data any) Event {
	e := Event{ID: uuid.NewString(), Topic: topic, Data: data, At: b.now()}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.latest[topic]; !ok {
		b.order = append(b.order, topic)
	}
	b.latest[topic] = e
	for _, s := range b.subs {
		s.deliver(e)
	}
	return e
}

// Latest returns the last event published on topic.
func (b *Broadcaster) Latest(topic Topic) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.latest[topic]
	return e, ok
}

// Subscribe registers a subscriber for the given topics, or all topics
// when none are given. The latest event of each followed topic is queued
// immediately.
func (b *Broadcaster) Subscribe(topics ...Topic) *Subscription {
	s := &Subscription{
		ID:     uuid.NewString(),
		topics: topics,
		b:      b,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, topic := range b.order {
		s.deliver(b.latest[topic])
	}
	b.subs[s.ID] = s
	return s
}

// Unsubscribe removes a subscriber. Other subscribers are unaffected.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.ID)
	b.mu.Unlock()
	s.close()
}

// Subscribers returns the number of active subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is a single observer's mailbox. It holds at most one
// pending event per topic; a newer event replaces the pending one.
type Subscription struct {
	ID string

	topics []Topic
	b      *Broadcaster
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending []Event
	closed  bool
}

func (s *Subscription) follows(topic Topic) bool {
	return len(s.topics) == 0 || slices.Contains(s.topics, topic)
}

func (s *Subscription) deliver(e Event) {
	if !s.follows(e.Topic) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = slices.DeleteFunc(s.pending, func(p Event) bool { return p.Topic == e.Topic })
	s.pending = append(s.pending, e)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, the context is done, or the
// subscription is closed.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			e := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return e, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		case <-s.done:
		}
	}
}

// Pending returns the number of queued events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.b.Unsubscribe(s)
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.pending = nil
	close(s.done)
}
