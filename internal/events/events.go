package events

import (
	"encoding/json"
	"sync"
	"time"

	"cabbot/internal/models"
)

const (
	EventRideRequested    = "ride_requested"
	EventRideTransition   = "ride_transition"
	EventRideFinished     = "ride_finished"
	EventActionDispatched = "ride_action_dispatched"
	EventAccountLinked    = "account_linked"
	EventAccountUnlinked  = "account_unlinked"
)

// RideEventPayload describes the ride snapshot carried by ride events.
type RideEventPayload struct {
	RideID     string            `json:"ride_id"`
	TelegramID int64             `json:"telegram_id"`
	Role       models.Role       `json:"role"`
	FromStatus models.RideStatus `json:"from_status,omitempty"`
	ToStatus   models.RideStatus `json:"to_status"`
	Pickup     string            `json:"pickup,omitempty"`
	Dropoff    string            `json:"dropoff,omitempty"`
	Fare       *float64          `json:"fare,omitempty"`
	Action     string            `json:"action,omitempty"`
}

// AccountEventPayload accompanies link and unlink events.
type AccountEventPayload struct {
	TelegramID int64       `json:"telegram_id"`
	Role       models.Role `json:"role,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
