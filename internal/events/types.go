package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the kind of lifecycle notification an event carries
// (spec §4.3 Subscription Hub).
type EventType string

// Event type constants
const (
	EventWorkItemCreated    EventType = "work_item.created"
	EventWorkItemTransition EventType = "work_item.transition"
	EventWorkerSpawned      EventType = "worker.spawned"
	EventWorkerStatus       EventType = "worker.status"
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionFinished  EventType = "execution.finished"
	EventProgress           EventType = "progress"
	EventError              EventType = "error"
	EventEscalation         EventType = "escalation"
)

// Priority constants, carried through from the source event though the bus
// does not reorder delivery by priority.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 4
)

// ChannelAll is the canonical target that receives every event regardless
// of its own target.
const ChannelAll = "all"

// AgentChannel builds the canonical subscription target for a single
// worker's events.
func AgentChannel(workerID string) string {
	return "agent:" + workerID
}

// WorkItemChannel builds the canonical subscription target for a single
// work item's events.
func WorkItemChannel(workItemID string) string {
	return "workItem:" + workItemID
}

// Event represents a system event that can be published and subscribed to
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Target    string                 `json:"target"`
	Priority  int                    `json:"priority"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewEvent creates a new event with auto-generated ID and timestamp
func NewEvent(eventType EventType, source, target string, priority int, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Target:    target,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// AllEventTypes returns all defined event types
func AllEventTypes() []EventType {
	return []EventType{
		EventWorkItemCreated,
		EventWorkItemTransition,
		EventWorkerSpawned,
		EventWorkerStatus,
		EventExecutionStarted,
		EventExecutionFinished,
		EventProgress,
		EventError,
		EventEscalation,
	}
}
