package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signaltap/logging"
	"signaltap/metrics"
)

// Handler is called for every delivered event.
type Handler func(Event)

type subscription struct {
	fn    Handler
	types map[Type]bool // nil means all
}

// Bus delivers events to subscribers on a single goroutine. Emit never
// blocks: when the queue is full the event is dropped and counted.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]subscription
	nextID int
	queue  chan Event
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
}

// NewBus starts a bus with the given queue size.
func NewBus(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = 256
	}
	b := &Bus{
		subs:  make(map[int]subscription),
		queue: make(chan Event, queueSize),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers fn for all events and returns its id.
func (b *Bus) Subscribe(fn Handler) int {
	return b.SubscribeTypes(fn)
}

// SubscribeTypes registers fn for the given event types only. No types
// means all.
func (b *Bus) SubscribeTypes(fn Handler, types ...Type) int {
	var filter map[Type]bool
	if len(types) > 0 {
		filter = make(map[Type]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[b.nextID] = subscription{fn: fn, types: filter}
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// AddSink subscribes a sink. Publish errors are logged and otherwise ignored.
func (b *Bus) AddSink(s Sink) int {
	return b.Subscribe(func(e Event) {
		if err := s.Publish(e); err != nil {
			metrics.EventsPublished.WithLabelValues(s.Name(), "error").Inc()
			logging.DebugLog("events", "sink %s: %s %s: %v", s.Name(), e.Type, e.Tag, err)
			return
		}
		metrics.EventsPublished.WithLabelValues(s.Name(), "ok").Inc()
	})
}

// Emit queues an event, filling in ID and Timestamp when empty. It reports
// false when the event was dropped.
func (b *Bus) Emit(e Event) bool {
	if b == nil {
		return false
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.dropped.Add(1)
		return false
	}
	select {
	case b.queue <- e:
		return true
	default:
		b.dropped.Add(1)
		logging.DebugLog("events", "queue full, dropped %s %s", e.Type, e.Tag)
		return false
	}
}

// Dropped returns the number of events dropped so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Close stops accepting events, delivers what is queued and returns.
// Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for e := range b.queue {
		b.deliver(e)
	}
}

func (b *Bus) deliver(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.types == nil || s.types[e.Type] {
			handlers = append(handlers, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		call(fn, e)
	}
}

func call(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.DebugLog("events", "handler panic on %s: %v", e.Type, r)
		}
	}()
	fn(e)
}
