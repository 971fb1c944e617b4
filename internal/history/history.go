package history

import (
	"context"
	"time"
)

// EventType defines the kind of capture lifecycle event.
type EventType string

const (
	// EventTrigger: a window opened and a capture was dispatched.
	EventTrigger EventType = "trigger"
	// EventAttempt: one capture attempt finished (any classification).
	EventAttempt EventType = "attempt"
	// EventOutcome: the trigger reached its terminal outcome.
	EventOutcome EventType = "outcome"
)

// Record is the unit of capture state persisted per event. Timestamps
// should be in UTC when written by sinks.
type Record struct {
	Source      string    `json:"source"`
	Output      string    `json:"output"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Outcome     string    `json:"outcome"` // empty for EventTrigger
	ExitCode    int       `json:"exit_code"`
	Attempt     int       `json:"attempt"`
	Error       string    `json:"error,omitempty"`
}

// Event represents a capture lifecycle event to be exported to external
// systems (analytics/audit).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
