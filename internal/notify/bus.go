package notify

import (
	"sort"
	"sync"

	"github.com/habitflow/habitflow/internal/platform/logger"
	"github.com/habitflow/habitflow/internal/platform/metrics"
)

// Listener receives every event published on the bus. Listeners filter by
// recipient themselves; the bus does not route.
type Listener func(*Event)

// Bus routes published events to every registered listener. It holds no
// state beyond the listener set: no replay, no backlog.
type Bus struct {
	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64

	log     logger.Logger
	metrics *metrics.Metrics
}

// BusOption configures a Bus
type BusOption func(*Bus)

// WithLogger sets the bus logger
func WithLogger(log logger.Logger) BusOption {
	return func(b *Bus) { b.log = log }
}

// WithMetrics enables bus metrics
func WithMetrics(m *metrics.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates an empty bus
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		listeners: make(map[uint64]Listener),
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing twice is a safe no-op.
func (b *Bus) Subscribe(fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}

// Publish invokes every currently registered listener with the event, in
// registration order. The listener set is snapshotted first, so listeners
// added or removed during dispatch do not affect this call. A panicking
// listener is recovered and logged; it never blocks delivery to the rest
// or escapes to the publisher.
func (b *Bus) Publish(event *Event) {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snapshot := make([]Listener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	}

	for _, fn := range snapshot {
		b.invoke(fn, event)
	}
}

func (b *Bus) invoke(fn Listener, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("notification listener panicked", "event_id", event.ID, "panic", r)
			if b.metrics != nil {
				b.metrics.ListenerPanics.Inc()
			}
		}
	}()
	fn(event)
}

// Len reports the number of registered listeners
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
