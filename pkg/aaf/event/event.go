// Package event carries workflow lifecycle events from the executor to
// interested subscribers.
//
// The executor publishes one event when a run starts, one per executed
// node and one when the run halts. LocalBus fans them out in-process to
// subscribers, each served by its own goroutine.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable notification.
type Event interface {
	ID() string
	Type() string
	Source() string

	// CorrelationID groups related events; the executor uses the run id.
	CorrelationID() string

	Timestamp() time.Time
	Data() any
}

// Metadata holds the envelope fields shared by every event.
type Metadata struct {
	EventID       string    `json:"id"`
	EventType     string    `json:"type"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// BaseEvent is the generic Event implementation with a typed payload.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

func (e *BaseEvent[T]) ID() string            { return e.Meta.EventID }
func (e *BaseEvent[T]) Type() string          { return e.Meta.EventType }
func (e *BaseEvent[T]) Source() string        { return e.Meta.EventSource }
func (e *BaseEvent[T]) CorrelationID() string { return e.Meta.CorrelationID }
func (e *BaseEvent[T]) Timestamp() time.Time  { return e.Meta.Timestamp }
func (e *BaseEvent[T]) Data() any             { return e.Payload }

// TypedData returns the payload with its static type.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// MarshalJSON implements json.Marshaler.
func (e *BaseEvent[T]) MarshalJSON() ([]byte, error) {
	type alias BaseEvent[T]
	return json.Marshal((*alias)(e))
}

// Option configures event creation.
type Option func(*Metadata)

// WithEventID sets the event id (default: a new UUID).
func WithEventID(id string) Option {
	return func(m *Metadata) { m.EventID = id }
}

// WithCorrelationID sets the correlation id (default: the event id).
func WithCorrelationID(id string) Option {
	return func(m *Metadata) { m.CorrelationID = id }
}

// WithTimestamp sets the timestamp (default: now).
func WithTimestamp(t time.Time) Option {
	return func(m *Metadata) { m.Timestamp = t }
}

// New creates an event.
func New[T any](eventType, source string, payload T, opts ...Option) *BaseEvent[T] {
	meta := Metadata{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		EventSource: source,
		Timestamp:   time.Now(),
	}
	for _, opt := range opts {
		opt(&meta)
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.EventID
	}
	return &BaseEvent[T]{Meta: meta, Payload: payload}
}

// Handler processes delivered events.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}
