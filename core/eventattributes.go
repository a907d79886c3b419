package core

import "time"

// Attribute payloads for the event types in event.go. One struct per event
// type; all fields are value copies taken at emission time.

type InstanceStartedAttributes struct {
	TemplateID   string `json:"template_id"`
	FirstStageID string `json:"first_stage_id"`
	StartedBy    string `json:"started_by"`
}

type InstancePausedAttributes struct {
	PausedBy string `json:"paused_by"`
	Reason   string `json:"reason,omitempty"`
}

type InstanceResumedAttributes struct {
	ResumedBy string `json:"resumed_by"`
}

type InstanceCompletedAttributes struct {
	CompletedBy   string        `json:"completed_by"`
	TotalDuration time.Duration `json:"total_duration"`
}

type InstanceCancelledAttributes struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

type InstanceFailedAttributes struct {
	Reason string `json:"reason"`
}

type StageAssignedAttributes struct {
	StageID    string           `json:"stage_id"`
	AssigneeID string           `json:"assignee_id"`
	Method     AssignmentMethod `json:"method"`
}

type StageEnteredAttributes struct {
	StageID     string `json:"stage_id"`
	StageName   string `json:"stage_name"`
	FromStageID string `json:"from_stage_id,omitempty"`
	TriggeredBy string `json:"triggered_by,omitempty"`
}

type StageCompletedAttributes struct {
	StageID  string        `json:"stage_id"`
	Duration time.Duration `json:"duration"`
	Breached bool          `json:"breached"`
}

type EscalationTriggeredAttributes struct {
	Level    int    `json:"level"`
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Trigger  string `json:"trigger"`
	Reason   string `json:"reason,omitempty"`
}

type EscalationOverdueAttributes struct {
	Level   int           `json:"level"`
	Overdue time.Duration `json:"overdue"`
}

type EscalationResolvedAttributes struct {
	ResolvedBy string         `json:"resolved_by"`
	Type       ResolutionType `json:"type"`
}

type AssigneeChangedAttributes struct {
	StageID      string `json:"stage_id,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to"`
	ReassignedBy string `json:"reassigned_by"`
	Reason       string `json:"reason,omitempty"`
}

type BatchCompletedAttributes struct {
	Operation string `json:"operation"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
}

type BatchFailedAttributes struct {
	Operation string `json:"operation"`
	Failed    int    `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

type BatchRetryScheduledAttributes struct {
	Attempt   int           `json:"attempt"`
	Delay     time.Duration `json:"delay"`
	NotBefore time.Time     `json:"not_before"`
}
