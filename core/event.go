package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the progress events published on a run's stream.
type EventType string

const (
	// EventRunStarted is published once, after the initial checkpoint.
	EventRunStarted EventType = "run_started"

	// EventProgress carries a human-readable progress message from a node.
	EventProgress EventType = "progress"

	// EventToolResult carries the structured output of the extraction
	// capability.
	EventToolResult EventType = "tool_result"

	// EventStateUpdated is published after every checkpoint append.
	EventStateUpdated EventType = "state_updated"

	// EventReviewRequired signals that the run is suspended for human review.
	EventReviewRequired EventType = "review_required"

	// EventRunFinished is the last event of a finalized run.
	EventRunFinished EventType = "run_finished"

	// EventRunError is the last event of a failed or rejected run.
	EventRunError EventType = "run_error"
)

// Event is a single entry on a run's ordered event stream.
type Event struct {
	ID string `json:"id"`

	RunID string `json:"run_id"`

	Type EventType `json:"type"`

	// Node is the name of the emitting node, empty for engine-level events.
	Node string `json:"node,omitempty"`

	Payload map[string]any `json:"payload,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(eventType EventType, payload map[string]any) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Payload: payload,
	}
}
