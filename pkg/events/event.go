package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "PIPELINE_COMPLETED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent helps embed common logic if needed,
// strictly creating valid implementations is preferred though.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Pipeline lifecycle event codes.
const (
	TypePipelineStarted   = "PIPELINE_STARTED"
	TypePipelineStep      = "PIPELINE_STEP"
	TypePipelineCompleted = "PIPELINE_COMPLETED"
	TypePipelineFailed    = "PIPELINE_FAILED"
)

// NewPipelineEvent builds a lifecycle event for one pipeline session.
func NewPipelineEvent(eventType, sessionID string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["session_id"] = sessionID
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}
