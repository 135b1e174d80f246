package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ovenbook/internal/model"
)

// Topics published on the bus.
const (
	TopicCreated         = "booking.created"
	TopicEdited          = "booking.edited"
	TopicCancelled       = "booking.cancelled"
	TopicAutoCancelled   = "booking.auto_cancelled"
	TopicCompleted       = "booking.completed"
	TopicRemoved         = "booking.removed"
	TopicOvenMaintenance = "oven.maintenance"
	TopicOvenAvailable   = "oven.available"
	TopicOvenChanged     = "oven.changed"
)

// TopicFor maps a lifecycle event type to its bus topic.
func TopicFor(et model.EventType) string {
	return "booking." + strings.ToLower(string(et))
}

// Event is a committed lifecycle change. Booking and Record are snapshots
// taken at commit time; handlers must not mutate them.
type Event struct {
	Type       string
	Booking    *model.Booking
	Record     *model.BookingEvent
	Oven       *model.Oven
	OccurredAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for committed lifecycle events.
type EventBus struct {
	subscribers map[string][]EventHandler
	wildcard    []EventHandler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]EventHandler),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged
// and never reach the publisher.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
	b.mu.RUnlock()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().Err(err).Str("type", event.Type).Msg("event handler failed")
		}
	}
}
