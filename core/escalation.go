package core

import "time"

// EscalationRecord is one entry in the level history of an instance.
// Records are append-only.
type EscalationRecord struct {
	// Level is the escalation level after this record was applied. Reassign
	// records keep the previous level.
	Level int `json:"level"`

	From string `json:"from,omitempty"`
	To   string `json:"to"`

	TriggeredAt time.Time        `json:"triggered_at"`
	Method      AssignmentMethod `json:"method"`
	Reason      string           `json:"reason,omitempty"`

	// Trigger identifies the condition that fired, for audit.
	Trigger string `json:"trigger,omitempty"`
}

// ResolutionType classifies how an escalation episode ended.
type ResolutionType string

const (
	ResolutionTypeResolved  ResolutionType = "resolved"
	ResolutionTypeDismissed ResolutionType = "dismissed"
	ResolutionTypeExpired   ResolutionType = "expired"
)

// EscalationResolution records the terminal outcome of an escalation
// episode.
type EscalationResolution struct {
	ResolvedBy  string         `json:"resolved_by"`
	Description string         `json:"description,omitempty"`
	Type        ResolutionType `json:"type"`
	ResolvedAt  time.Time      `json:"resolved_at"`
}

// EscalationState is embedded 1:1 in a workflow instance and tracks where
// the instance sits in the escalation matrix.
type EscalationState struct {
	// Active is true while an escalation episode is open. Resolving the
	// episode clears it independently of the instance's own status.
	Active bool `json:"active"`

	// Escalated is set when the instance first moves past level zero.
	Escalated bool `json:"escalated"`

	// Overdue is recomputed on every evaluation, not latched.
	Overdue bool `json:"overdue"`

	// NeedsAttention is raised when the matrix is exhausted and a human has
	// to intervene.
	NeedsAttention bool `json:"needs_attention"`

	// ManualRequested flags an escalation requested explicitly by a caller,
	// picked up and cleared by the next evaluation pass.
	ManualRequested bool `json:"manual_requested,omitempty"`

	// CurrentLevel is monotonically non-decreasing within one episode and
	// never exceeds MaxLevel.
	CurrentLevel int `json:"current_level"`
	MaxLevel     int `json:"max_level"`

	CurrentAssignee string `json:"current_assignee,omitempty"`

	LastEscalatedAt *time.Time `json:"last_escalated_at,omitempty"`

	LevelHistory []EscalationRecord `json:"level_history,omitempty"`

	Resolution *EscalationResolution `json:"resolution,omitempty"`
}
