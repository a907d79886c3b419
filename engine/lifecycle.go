package engine

import (
	"context"
	"fmt"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	"github.com/caseflow-io/caseflow/metrics"
	"github.com/google/uuid"
)

// CreateInstanceOptions configures a new draft instance.
type CreateInstanceOptions struct {
	// InstanceID is optional; a random id is generated when empty.
	InstanceID string

	TemplateID  string
	CompanyID   string
	InitiatedBy string

	Priority core.Priority
	Severity core.Severity
	Metadata core.Bag

	// MaxEscalationLevel caps the escalation matrix walk for this instance.
	MaxEscalationLevel int
}

// CreateInstance creates a draft instance for the given template. The
// instance holds no stage executions until it is started.
func (e *Engine) CreateInstance(ctx context.Context, options CreateInstanceOptions) (*core.WorkflowInstance, error) {
	ctx, span := e.startSpan(ctx, "CreateInstance", options.InstanceID)
	defer span.End()

	template, err := e.options.Templates.Template(ctx, options.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("resolving template %s: %w", options.TemplateID, err)
	}

	instanceID := options.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	now := e.options.Clock.Now()

	instance := &core.WorkflowInstance{
		ID:          instanceID,
		TemplateID:  template.ID,
		CompanyID:   options.CompanyID,
		InitiatedBy: options.InitiatedBy,
		Status:      core.InstanceStatusDraft,
		TotalStages: len(template.Stages),
		Priority:    options.Priority,
		Severity:    options.Severity,
		Metadata:    options.Metadata.Clone(),
		Escalation: core.EscalationState{
			MaxLevel: options.MaxEscalationLevel,
		},
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if err := e.store.SaveInstance(ctx, instance); err != nil {
		return nil, fmt.Errorf("creating instance: %w", err)
	}

	e.options.Logger.DebugContext(ctx, "created workflow instance",
		log.InstanceIDKey, instance.ID,
		log.TemplateIDKey, instance.TemplateID,
		log.CompanyIDKey, instance.CompanyID,
	)

	return instance, nil
}

// Start activates a draft instance: opens the first stage execution, starts
// its SLA clock, and assigns the stage's default assignee when configured.
func (e *Engine) Start(ctx context.Context, instanceID, startedBy string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Start", instanceID)
	defer span.End()

	instance, events, err := e.Mutate(ctx, instanceID, audit.ActionInstanceStarted, startedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status != core.InstanceStatusDraft {
			return nil, &core.InvalidTransitionError{Op: "start", Status: string(instance.Status)}
		}

		template, err := e.options.Templates.Template(ctx, instance.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("resolving template %s: %w", instance.TemplateID, err)
		}

		first, ok := template.First()
		if !ok {
			return nil, &core.InvalidTransitionError{Op: "start", Status: "template has no stages"}
		}

		now := e.options.Clock.Now()

		instance.Status = core.InstanceStatusActive
		instance.StartedAt = &now
		instance.LastActivityAt = now

		events := []core.Event{
			core.NewEvent(now, core.EventType_InstanceStarted, instance.ID, &core.InstanceStartedAttributes{
				TemplateID:   instance.TemplateID,
				FirstStageID: first.ID,
				StartedBy:    startedBy,
			}),
		}

		events = append(events, e.openStage(instance, first, now)...)

		return events, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.options.Metrics.Counter(metrickeys.InstanceStarted, metrics.Tags{}, 1)

	return instance, events, nil
}

// Complete closes the current stage execution and moves the instance to its
// terminal completed status.
func (e *Engine) Complete(ctx context.Context, instanceID, completedBy string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Complete", instanceID)
	defer span.End()

	instance, events, err := e.Mutate(ctx, instanceID, audit.ActionInstanceCompleted, completedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		if instance.Status != core.InstanceStatusActive {
			return nil, &core.InvalidTransitionError{Op: "complete", Status: string(instance.Status)}
		}

		now := e.options.Clock.Now()

		var events []core.Event
		if active := instance.ActiveExecution(); active != nil {
			events = append(events, e.closeStage(ctx, instance, active, core.ExecutionStatusCompleted, now)...)
			instance.CompletedStages++
		}

		instance.Status = core.InstanceStatusCompleted
		instance.CompletedAt = &now
		instance.LastActivityAt = now
		instance.CurrentStage = nil

		if instance.StartedAt != nil {
			total := now.Sub(*instance.StartedAt)
			if total < 0 {
				total = 0
			}
			instance.TotalDuration = &total
		}

		attrs := &core.InstanceCompletedAttributes{CompletedBy: completedBy}
		if instance.TotalDuration != nil {
			attrs.TotalDuration = *instance.TotalDuration
		}

		events = append(events, core.NewEvent(now, core.EventType_InstanceCompleted, instance.ID, attrs))

		return events, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.options.Metrics.Counter(metrickeys.InstanceCompleted, metrics.Tags{}, 1)

	return instance, events, nil
}

// Cancel terminates the instance as a deliberate business decision. Allowed
// from any non-terminal status; the current execution closes as cancelled,
// not completed.
func (e *Engine) Cancel(ctx context.Context, instanceID, cancelledBy, reason string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Cancel", instanceID)
	defer span.End()

	instance, events, err := e.Mutate(ctx, instanceID, audit.ActionInstanceCancelled, cancelledBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		now := e.options.Clock.Now()

		var events []core.Event
		if active := instance.ActiveExecution(); active != nil {
			events = append(events, e.closeStage(ctx, instance, active, core.ExecutionStatusCancelled, now)...)
		}

		instance.Status = core.InstanceStatusCancelled
		instance.CompletedAt = &now
		instance.LastActivityAt = now
		instance.CurrentStage = nil

		events = append(events, core.NewEvent(now, core.EventType_InstanceCancelled, instance.ID, &core.InstanceCancelledAttributes{
			CancelledBy: cancelledBy,
			Reason:      reason,
		}))

		return events, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.options.Metrics.Counter(metrickeys.InstanceCancelled, metrics.Tags{}, 1)

	return instance, events, nil
}

// Pause suspends an active instance. The SLA clock of the current stage
// keeps running: an SLA is a business deadline, not an execution-time meter.
func (e *Engine) Pause(ctx context.Context, instanceID, pausedBy, reason string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Pause", instanceID)
	defer span.End()

	return e.Mutate(ctx, instanceID, audit.ActionInstancePaused, pausedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status != core.InstanceStatusActive {
			return nil, &core.InvalidTransitionError{Op: "pause", Status: string(instance.Status)}
		}

		now := e.options.Clock.Now()
		instance.Status = core.InstanceStatusPaused
		instance.LastActivityAt = now

		return []core.Event{
			core.NewEvent(now, core.EventType_InstancePaused, instance.ID, &core.InstancePausedAttributes{
				PausedBy: pausedBy,
				Reason:   reason,
			}),
		}, nil
	})
}

// Resume reactivates a paused instance.
func (e *Engine) Resume(ctx context.Context, instanceID, resumedBy string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Resume", instanceID)
	defer span.End()

	return e.Mutate(ctx, instanceID, audit.ActionInstanceResumed, resumedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status != core.InstanceStatusPaused {
			return nil, &core.InvalidTransitionError{Op: "resume", Status: string(instance.Status)}
		}

		now := e.options.Clock.Now()
		instance.Status = core.InstanceStatusActive
		instance.LastActivityAt = now

		return []core.Event{
			core.NewEvent(now, core.EventType_InstanceResumed, instance.ID, &core.InstanceResumedAttributes{
				ResumedBy: resumedBy,
			}),
		}, nil
	})
}

// Fail marks the instance as failed by an engine fault. Distinct from
// cancellation, which is a deliberate business decision.
func (e *Engine) Fail(ctx context.Context, instanceID, reason string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "Fail", instanceID)
	defer span.End()

	instance, events, err := e.Mutate(ctx, instanceID, audit.ActionInstanceFailed, "", func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		now := e.options.Clock.Now()

		var events []core.Event
		if active := instance.ActiveExecution(); active != nil {
			events = append(events, e.closeStage(ctx, instance, active, core.ExecutionStatusFailed, now)...)
		}

		instance.Status = core.InstanceStatusFailed
		instance.CompletedAt = &now
		instance.LastActivityAt = now
		instance.CurrentStage = nil

		events = append(events, core.NewEvent(now, core.EventType_InstanceFailed, instance.ID, &core.InstanceFailedAttributes{
			Reason: reason,
		}))

		return events, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.options.Metrics.Counter(metrickeys.InstanceFailed, metrics.Tags{}, 1)

	return instance, events, nil
}
