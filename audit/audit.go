// Package audit defines the append-only audit sink the orchestration core
// writes to. The core never reads audit history back; entries exist for
// compliance, not for decision-making.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionInstanceStarted     Action = "instance_started"
	ActionInstancePaused      Action = "instance_paused"
	ActionInstanceResumed     Action = "instance_resumed"
	ActionInstanceCompleted   Action = "instance_completed"
	ActionInstanceCancelled   Action = "instance_cancelled"
	ActionInstanceFailed      Action = "instance_failed"
	ActionStageAssigned       Action = "stage_assigned"
	ActionStageTransition     Action = "stage_transition"
	ActionEscalated           Action = "escalated"
	ActionEscalationRequested Action = "escalation_requested"
	ActionReassigned          Action = "reassigned"
	ActionEscalationResolved  Action = "escalation_resolved"
	ActionBatchProcessed      Action = "batch_processed"
	ActionBatchRetry          Action = "batch_retry"
	ActionClockAnomaly        Action = "clock_anomaly"
)

// FieldChange is one before/after pair captured for an entry.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Entry is one append-only audit record.
type Entry struct {
	ID         string        `json:"id"`
	Action     Action        `json:"action"`
	EntityID   string        `json:"entity_id"`
	ActorID    string        `json:"actor_id,omitempty"`
	Changes    []FieldChange `json:"changes,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	Warning    bool          `json:"warning,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}

func NewEntry(recordedAt time.Time, action Action, entityID, actorID string, changes []FieldChange) Entry {
	return Entry{
		ID:         uuid.NewString(),
		Action:     action,
		EntityID:   entityID,
		ActorID:    actorID,
		Changes:    changes,
		RecordedAt: recordedAt,
	}
}

// Sink receives audit entries. Implementations must be append-only and
// must not block on slow downstreams longer than the context allows.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

type noopSink struct{}

func NewNoopSink() Sink {
	return noopSink{}
}

func (noopSink) Record(ctx context.Context, entry Entry) error {
	return nil
}

// slogSink writes audit entries to a structured logger. Useful as a default
// in development and as a template for real sink implementations.
type slogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) Sink {
	return &slogSink{logger: logger}
}

func (s *slogSink) Record(ctx context.Context, entry Entry) error {
	level := slog.LevelInfo
	if entry.Warning {
		level = slog.LevelWarn
	}

	s.logger.Log(ctx, level, "audit",
		"audit.id", entry.ID,
		"audit.action", string(entry.Action),
		"audit.entity_id", entry.EntityID,
		"audit.actor_id", entry.ActorID,
		"audit.detail", entry.Detail,
		"audit.changes", len(entry.Changes),
	)

	return nil
}
