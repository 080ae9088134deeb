package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a lifecycle event published to frontends.
type EventType string

const (
	EventCycleStarted       EventType = "cycle_started"
	EventThoughtProduced    EventType = "thought_produced"
	EventToolExecuted       EventType = "tool_executed"
	EventReflectionOccurred EventType = "reflection_occurred"
	EventPlanUpdated        EventType = "plan_updated"
	EventAwaitingReply      EventType = "awaiting_reply"
	EventReplyEnded         EventType = "reply_ended"
	EventStateChanged       EventType = "state_changed"
	EventPositionChanged    EventType = "position_changed"
	EventFileDropped        EventType = "file_dropped"
	EventError              EventType = "error"
)

// Event is one message on an agent's event stream.
type Event struct {
	ID      string         `json:"id"`
	AgentID string         `json:"agent_id"`
	Type    EventType      `json:"type"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewEvent stamps a new event with a time-ordered id.
func NewEvent(agentID string, typ EventType, now time.Time, data map[string]any) Event {
	return Event{
		ID:      uuid.Must(uuid.NewV7()).String(),
		AgentID: agentID,
		Type:    typ,
		Time:    now,
		Data:    data,
	}
}
