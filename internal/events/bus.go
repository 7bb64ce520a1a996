// Package events provides the in-process publish/subscribe bus that connects
// the order ingestion path, the live metrics tracker, the report builder and
// the websocket hub without direct coupling.
package events

import (
	"sync"
	"time"

	"pos-analytics/internal/logging"
)

// EventType identifies the kind of event flowing through the bus.
type EventType string

const (
	// OrderCompleted fires when an order is paid and closed at the till.
	OrderCompleted EventType = "ORDER_COMPLETED"
	// OrderRefunded fires when a completed order is partially or fully refunded.
	OrderRefunded EventType = "ORDER_REFUNDED"
	// PaymentCaptured fires when a payment settles against an order.
	PaymentCaptured EventType = "PAYMENT_CAPTURED"
	// ShiftClosed fires when a register shift is closed and counted.
	ShiftClosed EventType = "SHIFT_CLOSED"
	// EODCompleted fires when an end-of-day report reaches a terminal build state.
	EODCompleted EventType = "EOD_REPORT_COMPLETED"
	// MetricsUpdate carries refreshed live counters for dashboard push.
	MetricsUpdate EventType = "METRICS_UPDATE"
	// CacheInvalidated fires when a tenant's cached metrics were dropped.
	CacheInvalidated EventType = "CACHE_INVALIDATED"
)

// Event is the envelope every publication travels in. Payload is typed by
// the publisher; subscribers assert the concrete type they expect.
type Event struct {
	Type       EventType   `json:"type"`
	BusinessID string      `json:"business_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// Handler processes a single event. Handlers run on their own goroutine and
// must not block indefinitely.
type Handler func(Event)

// Bus is a minimal in-process pub/sub fanout.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	allHandlers []Handler
	log         *logging.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Handler),
		log:         logging.WithComponent("events"),
	}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, h)
}

// Publish delivers the event to all matching handlers asynchronously.
// A panicking handler is recovered and logged so one bad subscriber cannot
// take the publisher down.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subscribers[evt.Type])+len(b.allHandlers))
	handlers = append(handlers, b.subscribers[evt.Type]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event handler panicked", "type", string(evt.Type), "panic", r)
				}
			}()
			h(evt)
		}(h)
	}
}

// PublishOrderCompleted is a typed convenience for the hot ingestion path.
func (b *Bus) PublishOrderCompleted(businessID string, payload interface{}) {
	b.Publish(Event{Type: OrderCompleted, BusinessID: businessID, Payload: payload})
}

// PublishEODCompleted announces a finished end-of-day report build.
func (b *Bus) PublishEODCompleted(businessID string, payload interface{}) {
	b.Publish(Event{Type: EODCompleted, BusinessID: businessID, Payload: payload})
}
