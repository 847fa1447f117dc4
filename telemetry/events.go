package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity classifies an Event for filtering/alerting.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// EventType names the kind of event, e.g. "cache.evicted", "lock.expired".
// The event bus fans out by exact type match against each subscriber's
// registered type-set.
type EventType string

// Event is the typed record fanned out by the bus: type, timestamp, labels,
// data, severity.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Labels    map[string]string
	Data      map[string]interface{}
	Severity  Severity
}

// subscription is one subscriber's bounded, drop-oldest event queue: when
// full, the oldest event is dropped and a loss counter increments.
type subscription struct {
	mu      sync.Mutex
	types   map[EventType]bool
	events  []Event
	cap     int
	lost    int64
	notify  chan struct{}
	closed  bool
}

func (s *subscription) interested(t EventType) bool {
	if len(s.types) == 0 {
		return true // no type-set registered means "all events"
	}
	return s.types[t]
}

func (s *subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.events) >= s.cap {
		s.events = s.events[1:]
		s.lost++
	}
	s.events = append(s.events, e)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every currently queued event, oldest first.
func (s *subscription) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.events
	s.events = nil
	return out
}

// LostEvents reports how many events this subscriber has dropped to
// backpressure since Subscribe.
func (s *subscription) LostEvents() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// Notify returns a channel that receives a value whenever a new event is
// queued, for callers that want to block-and-drain rather than poll.
func (s *subscription) Notify() <-chan struct{} {
	return s.notify
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Bus is a single-producer-multi-consumer event fan-out: delivery is
// asynchronous and best-effort, preserves order per subscriber, and is
// unordered across subscribers. It uses the same bounded-queue shape as
// pattern.Monitor's subscriberQueue, generalized from pattern lifecycle
// events to arbitrary typed Events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscription
	queueDepth  int

	statsMu  sync.Mutex
	counts   map[EventType]int64
	lastSeen map[EventType]time.Time
}

// NewBus builds a Bus whose subscriber queues each hold up to queueDepth
// events before dropping the oldest.
func NewBus(queueDepth int) *Bus {
	if queueDepth <= 0 {
		queueDepth = 256
	}
	return &Bus{
		subscribers: make(map[string]*subscription),
		queueDepth:  queueDepth,
		counts:      make(map[EventType]int64),
		lastSeen:    make(map[EventType]time.Time),
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id  string
	sub *subscription
}

// Drain returns and clears every event queued for this subscriber.
func (s *Subscription) Drain() []Event { return s.sub.Drain() }

// LostEvents reports this subscriber's dropped-event count.
func (s *Subscription) LostEvents() int64 { return s.sub.LostEvents() }

// Notify signals when a new event has been queued.
func (s *Subscription) Notify() <-chan struct{} { return s.sub.Notify() }

// Subscribe registers interest in the given type-set (empty means "every
// event") and returns a handle to drain delivered events.
func (b *Bus) Subscribe(types ...EventType) *Subscription {
	set := make(map[EventType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	sub := &subscription{types: set, cap: b.queueDepth, notify: make(chan struct{}, 1)}
	id := uuid.New().String()[:8]

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{id: id, sub: sub}
}

// Unsubscribe removes a subscription; its queued events are discarded.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subscribers, s.id)
	b.mu.Unlock()
	s.sub.close()
}

// Publish stamps e.Timestamp if unset and fans it out to every interested
// subscriber's bounded queue. Delivery never blocks the publisher.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.statsMu.Lock()
	b.counts[e.Type]++
	b.lastSeen[e.Type] = e.Timestamp
	b.statsMu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.interested(e.Type) {
			sub.push(e)
		}
	}
}

// TypeCounts returns how many events of each type have been published,
// regardless of subscriber delivery/loss.
func (b *Bus) TypeCounts() map[EventType]int64 {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	out := make(map[EventType]int64, len(b.counts))
	for t, c := range b.counts {
		out[t] = c
	}
	return out
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// LastSeen returns the timestamp of the most recently published event of
// type t, if any has been published.
func (b *Bus) LastSeen(t EventType) (time.Time, bool) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	at, ok := b.lastSeen[t]
	return at, ok
}

// TotalLost sums dropped-event counts across every active subscriber.
func (b *Bus) TotalLost() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total int64
	for _, sub := range b.subscribers {
		total += sub.LostEvents()
	}
	return total
}
