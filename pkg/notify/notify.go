// Package notify fans progress and status events out to subscribers: one
// goroutine per subscription draining a bounded channel, so a slow handler
// never blocks the publisher. Delivery is in-process; transports wrap a
// subscription rather than living here.
package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType is the kind of event published on the notifier.
type EventType int

const (
	EventProgressUpdate EventType = iota
	EventStatusChange
	EventSegmentCompleted
	EventSegmentFailed
	EventBatchCompleted
	EventBatchFailed
	EventError
	EventCancellationRequested
	EventPartialResultSaved
)

func (e EventType) String() string {
	switch e {
	case EventProgressUpdate:
		return "ProgressUpdate"
	case EventStatusChange:
		return "StatusChange"
	case EventSegmentCompleted:
		return "SegmentCompleted"
	case EventSegmentFailed:
		return "SegmentFailed"
	case EventBatchCompleted:
		return "BatchCompleted"
	case EventBatchFailed:
		return "BatchFailed"
	case EventError:
		return "Error"
	case EventCancellationRequested:
		return "CancellationRequested"
	case EventPartialResultSaved:
		return "PartialResultSaved"
	default:
		return "Unknown"
	}
}

// isTerminal reports whether this event type represents a batch's final
// word — terminal events are never dropped, even for a slow subscriber.
func (e EventType) isTerminal() bool {
	return e == EventBatchCompleted || e == EventBatchFailed
}

// Event is one published notification.
type Event struct {
	BatchID   uuid.UUID
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// Handler processes a delivered event. A returned error is recorded but
// does not unsubscribe the handler.
type Handler func(Event) error

// subscription buffers events for one handler on a dedicated goroutine, so
// one slow handler never blocks Publish or other subscribers.
type subscription struct {
	id        uuid.UUID
	handler   Handler
	queue     chan Event
	errors    int64
	done      chan struct{}
}

// Notifier publishes events keyed by batchId, FIFO per (batchId, eventType);
// delivery across different event types is
// unordered, and non-terminal events may be dropped for a backed-up
// subscriber rather than blocking the publisher.
type Notifier struct {
	mu            sync.RWMutex
	subs          map[uuid.UUID]*subscription
	queueCapacity int
	published     int64
	dropped       int64
}

// New builds a Notifier. queueCapacity bounds each subscriber's buffer;
// non-terminal events are dropped once it's full rather than blocking
// Publish.
func New(queueCapacity int) *Notifier {
	if queueCapacity <= 0 {
		queueCapacity = 256
	}
	return &Notifier{
		subs:          make(map[uuid.UUID]*subscription),
		queueCapacity: queueCapacity,
	}
}

// Subscribe registers handler for every event published and returns an id
// to pass to Unsubscribe.
func (n *Notifier) Subscribe(handler Handler) uuid.UUID {
	sub := &subscription{
		id:      uuid.New(),
		handler: handler,
		queue:   make(chan Event, n.queueCapacity),
		done:    make(chan struct{}),
	}

	n.mu.Lock()
	n.subs[sub.id] = sub
	n.mu.Unlock()

	go sub.run()
	return sub.id
}

func (s *subscription) run() {
	for {
		select {
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			if err := s.handler(event); err != nil {
				atomic.AddInt64(&s.errors, 1)
			}
		case <-s.done:
			return
		}
	}
}

// Unsubscribe stops delivery to a previously subscribed handler.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	sub, ok := n.subs[id]
	if ok {
		delete(n.subs, id)
	}
	n.mu.Unlock()

	if ok {
		close(sub.done)
	}
}

// Publish delivers event to every current subscriber. Terminal events
// (BatchCompleted/BatchFailed) always enqueue, blocking briefly if a
// subscriber's queue is full; all other event types are dropped for a
// subscriber whose queue is already full.
func (n *Notifier) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	atomic.AddInt64(&n.published, 1)

	n.mu.RLock()
	subs := make([]*subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.RUnlock()

	for _, sub := range subs {
		if event.Type.isTerminal() {
			select {
			case sub.queue <- event:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.queue <- event:
		default:
			atomic.AddInt64(&n.dropped, 1)
		}
	}
}

// Metrics summarizes publish volume for health reporting.
type Metrics struct {
	Published       int64
	Dropped         int64
	ActiveSubscribers int
}

// GetMetrics returns current publish/drop counters.
func (n *Notifier) GetMetrics() Metrics {
	n.mu.RLock()
	active := len(n.subs)
	n.mu.RUnlock()
	return Metrics{
		Published:         atomic.LoadInt64(&n.published),
		Dropped:           atomic.LoadInt64(&n.dropped),
		ActiveSubscribers: active,
	}
}

// Stop unsubscribes every subscriber and stops their goroutines.
func (n *Notifier) Stop() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[uuid.UUID]*subscription)
	n.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
}
