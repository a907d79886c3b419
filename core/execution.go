package core

import "time"

// ExecutionStatus is the lifecycle status of a single stage execution.
// Transitions move forward only; a completed execution never reopens.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusSkipped    ExecutionStatus = "skipped"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// Closed reports whether the execution has reached a final status.
func (s ExecutionStatus) Closed() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusSkipped, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// AssignmentMethod records how an assignee was chosen for a stage or an
// escalation level.
type AssignmentMethod string

const (
	AssignmentMethodManual     AssignmentMethod = "manual"
	AssignmentMethodAutomatic  AssignmentMethod = "automatic"
	AssignmentMethodRoundRobin AssignmentMethod = "round_robin"
	AssignmentMethodEscalation AssignmentMethod = "escalation"
)

// SLAStatus classifies a stage execution against its SLA clock.
type SLAStatus string

const (
	SLAStatusOnTrack  SLAStatus = "on_track"
	SLAStatusWarning  SLAStatus = "warning"
	SLAStatusBreached SLAStatus = "breached"
)

// SLAInfo carries the timing contract of a stage execution.
type SLAInfo struct {
	// ExpectedDuration is how long the stage should take. Zero means no SLA
	// is defined for the stage.
	ExpectedDuration time.Duration `json:"expected_duration,omitempty"`

	// ExpectedCompletion is entry time plus expected duration. Nil when no
	// SLA is defined.
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`

	// ActualDuration is computed once when the execution closes.
	ActualDuration *time.Duration `json:"actual_duration,omitempty"`

	Status SLAStatus `json:"status"`

	// Breached is a one-way latch: once set it never reverts for this
	// execution, regardless of later reassignment.
	Breached bool `json:"breached"`
}

// StageExecution is one visit to one stage by one instance.
type StageExecution struct {
	ID        string `json:"id"`
	StageID   string `json:"stage_id"`
	StageName string `json:"stage_name"`

	AssigneeID       string           `json:"assignee_id,omitempty"`
	AssignedAt       *time.Time       `json:"assigned_at,omitempty"`
	AssignmentMethod AssignmentMethod `json:"assignment_method,omitempty"`

	Status ExecutionStatus `json:"status"`

	EnteredAt   time.Time  `json:"entered_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	SLA SLAInfo `json:"sla"`
}
