package core

import (
	"time"

	"github.com/google/uuid"
)

type EventType uint

const (
	_ EventType = iota

	EventType_InstanceStarted
	EventType_InstancePaused
	EventType_InstanceResumed
	EventType_InstanceCompleted
	EventType_InstanceCancelled
	EventType_InstanceFailed

	EventType_StageAssigned
	EventType_StageEntered
	EventType_StageCompleted

	EventType_EscalationTriggered
	EventType_EscalationOverdue
	EventType_EscalationResolved
	EventType_AssigneeChanged

	EventType_BatchCompleted
	EventType_BatchFailed
	EventType_BatchRetryScheduled
)

func (et EventType) String() string {
	switch et {
	case EventType_InstanceStarted:
		return "InstanceStarted"
	case EventType_InstancePaused:
		return "InstancePaused"
	case EventType_InstanceResumed:
		return "InstanceResumed"
	case EventType_InstanceCompleted:
		return "InstanceCompleted"
	case EventType_InstanceCancelled:
		return "InstanceCancelled"
	case EventType_InstanceFailed:
		return "InstanceFailed"

	case EventType_StageAssigned:
		return "StageAssigned"
	case EventType_StageEntered:
		return "StageEntered"
	case EventType_StageCompleted:
		return "StageCompleted"

	case EventType_EscalationTriggered:
		return "EscalationTriggered"
	case EventType_EscalationOverdue:
		return "EscalationOverdue"
	case EventType_EscalationResolved:
		return "EscalationResolved"
	case EventType_AssigneeChanged:
		return "AssigneeChanged"

	case EventType_BatchCompleted:
		return "BatchCompleted"
	case EventType_BatchFailed:
		return "BatchFailed"
	case EventType_BatchRetryScheduled:
		return "BatchRetryScheduled"
	default:
		return "Unknown"
	}
}

// Event is emitted by engine, coordinator, and batch operations alongside
// the mutated entity. The caller (or a dispatcher) performs side effects;
// the core itself never delivers notifications.
type Event struct {
	// ID is a unique identifier for this event
	ID string

	Type EventType

	// InstanceID is the subject instance, or the batch id for batch events.
	InstanceID string

	Timestamp time.Time

	// Attributes are event type specific attributes
	Attributes any
}

func NewEvent(timestamp time.Time, eventType EventType, instanceID string, attributes any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		InstanceID: instanceID,
		Timestamp:  timestamp,
		Attributes: attributes,
	}
}
