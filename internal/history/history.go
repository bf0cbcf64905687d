package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch         EventType = "launch"
	EventLaunchFailed   EventType = "launch_failed"
	EventHealthPass     EventType = "health_pass"
	EventHealthDegraded EventType = "health_degraded"
	EventStop           EventType = "stop"
	EventKill           EventType = "kill"
)

// Record carries the process fields persisted alongside each event.
type Record struct {
	Name   string `json:"name"`
	Tier   string `json:"tier"`
	PID    int    `json:"pid"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (audit/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
