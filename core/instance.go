package core

import (
	"time"
)

// InstanceStatus is the lifecycle status of a workflow instance. It is the
// single source of truth for which operations are legal on the instance.
type InstanceStatus string

const (
	InstanceStatusDraft     InstanceStatus = "draft"
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
	InstanceStatusFailed    InstanceStatus = "failed"
)

// Terminal reports whether the status permits no further mutation.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceStatusCompleted, InstanceStatusCancelled, InstanceStatusFailed:
		return true
	default:
		return false
	}
}

// Priority of an instance, used for urgency scoring and worklist ordering.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Severity classifies the business impact of an instance or batch error.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// StageRef identifies the stage an instance is currently in.
type StageRef struct {
	StageID    string `json:"stage_id"`
	StageName  string `json:"stage_name"`
	AssigneeID string `json:"assignee_id,omitempty"`
}

// StageTransition records one movement between stages.
type StageTransition struct {
	FromStageID string    `json:"from_stage_id"`
	ToStageID   string    `json:"to_stage_id"`
	TriggeredBy string    `json:"triggered_by"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// WorkflowInstance is one execution of a workflow template. Instances are
// value structs; the only mutation path is through the engine and the
// escalation coordinator, which persist a new version on every change.
type WorkflowInstance struct {
	// ID is the unique, immutable identifier of this instance.
	ID string `json:"id"`

	TemplateID  string `json:"template_id"`
	CompanyID   string `json:"company_id"`
	InitiatedBy string `json:"initiated_by"`

	Status InstanceStatus `json:"status"`

	// CurrentStage is nil until the instance is started.
	CurrentStage *StageRef `json:"current_stage,omitempty"`

	TotalStages     int `json:"total_stages"`
	CompletedStages int `json:"completed_stages"`

	// StageExecutions is append-only; one record is added per stage entered.
	StageExecutions []StageExecution  `json:"stage_executions,omitempty"`
	Transitions     []StageTransition `json:"transitions,omitempty"`

	Escalation EscalationState `json:"escalation"`

	Priority Priority `json:"priority,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Metadata Bag      `json:"metadata,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`

	// TotalDuration is set once when the instance reaches a terminal status.
	TotalDuration *time.Duration `json:"total_duration,omitempty"`

	// Version supports optimistic concurrency on save. Zero means the
	// instance has never been persisted.
	Version int64 `json:"version"`
}

// ProgressPercentage returns completed stages over total stages as a
// percentage. Instances without stages report zero progress.
func (wi *WorkflowInstance) ProgressPercentage() float64 {
	if wi.TotalStages == 0 {
		return 0
	}

	return float64(wi.CompletedStages) / float64(wi.TotalStages) * 100
}

// ActiveExecution returns the single in-progress stage execution, or nil if
// the instance has none.
func (wi *WorkflowInstance) ActiveExecution() *StageExecution {
	for i := range wi.StageExecutions {
		if wi.StageExecutions[i].Status == ExecutionStatusInProgress {
			return &wi.StageExecutions[i]
		}
	}

	return nil
}

// ExecutionForStage returns the most recent execution record for the given
// stage, or nil if the stage was never visited.
func (wi *WorkflowInstance) ExecutionForStage(stageID string) *StageExecution {
	for i := len(wi.StageExecutions) - 1; i >= 0; i-- {
		if wi.StageExecutions[i].StageID == stageID {
			return &wi.StageExecutions[i]
		}
	}

	return nil
}

// Age returns how long the instance has been running relative to now. Zero
// if the instance was never started.
func (wi *WorkflowInstance) Age(now time.Time) time.Duration {
	if wi.StartedAt == nil {
		return 0
	}

	age := now.Sub(*wi.StartedAt)
	if age < 0 {
		return 0
	}

	return age
}
