package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventKill    EventType = "kill"
	EventExit    EventType = "exit"
	EventRestart EventType = "restart"
)

// Event is one instance lifecycle transition. Worker output is never recorded.
type Event struct {
	Type       EventType `json:"type"`
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Querier is implemented by sinks that can read events back.
type Querier interface {
	Recent(ctx context.Context, instanceID string, limit int) ([]Event, error)
}
