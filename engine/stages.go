package engine

import (
	"context"
	"time"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	"github.com/caseflow-io/caseflow/metrics"
	"github.com/google/uuid"
)

// AssignStage sets the assignee on the execution for the given stage,
// creating a pending execution if the stage was never visited. Reassigning
// the same assignee is idempotent: only the assignment timestamp moves.
func (e *Engine) AssignStage(ctx context.Context, instanceID, stageID, assigneeID string, method core.AssignmentMethod) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "AssignStage", instanceID)
	defer span.End()

	return e.Mutate(ctx, instanceID, audit.ActionStageAssigned, assigneeID, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		now := e.options.Clock.Now()

		execution := instance.ExecutionForStage(stageID)
		if execution == nil {
			instance.StageExecutions = append(instance.StageExecutions, core.StageExecution{
				ID:      uuid.NewString(),
				StageID: stageID,
				Status:  core.ExecutionStatusPending,
			})
			execution = &instance.StageExecutions[len(instance.StageExecutions)-1]
		}

		previous := execution.AssigneeID
		execution.AssigneeID = assigneeID
		execution.AssignedAt = &now
		execution.AssignmentMethod = method
		instance.LastActivityAt = now

		if instance.CurrentStage != nil && instance.CurrentStage.StageID == stageID {
			instance.CurrentStage.AssigneeID = assigneeID
		}

		// Same assignee again: timestamp updated, nothing to notify.
		if previous == assigneeID {
			return nil, nil
		}

		return []core.Event{
			core.NewEvent(now, core.EventType_StageAssigned, instance.ID, &core.StageAssignedAttributes{
				StageID:    stageID,
				AssigneeID: assigneeID,
				Method:     method,
			}),
		}, nil
	})
}

// MoveToStage closes the current in-progress execution as completed and
// opens an execution for the target stage, advancing progress.
func (e *Engine) MoveToStage(ctx context.Context, instanceID, toStageID, toStageName, triggeredBy, reason string) (*core.WorkflowInstance, []core.Event, error) {
	ctx, span := e.startSpan(ctx, "MoveToStage", instanceID)
	defer span.End()

	instance, events, err := e.Mutate(ctx, instanceID, audit.ActionStageTransition, triggeredBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status != core.InstanceStatusActive {
			return nil, &core.InvalidTransitionError{Op: "move to stage", Status: string(instance.Status)}
		}

		active := instance.ActiveExecution()
		if active == nil {
			return nil, core.ErrNoActiveStage
		}

		now := e.options.Clock.Now()
		fromStageID := active.StageID

		events := e.closeStage(ctx, instance, active, core.ExecutionStatusCompleted, now)
		instance.CompletedStages++

		instance.Transitions = append(instance.Transitions, core.StageTransition{
			FromStageID: fromStageID,
			ToStageID:   toStageID,
			TriggeredBy: triggeredBy,
			Reason:      reason,
			At:          now,
		})

		def := e.stageDefinition(ctx, instance, toStageID, toStageName)
		events = append(events, e.openStage(instance, def, now)...)

		events[len(events)-1].Attributes.(*core.StageEnteredAttributes).FromStageID = fromStageID
		events[len(events)-1].Attributes.(*core.StageEnteredAttributes).TriggeredBy = triggeredBy

		return events, nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.options.Metrics.Counter(metrickeys.StageCompleted, metrics.Tags{}, 1)

	return instance, events, nil
}

// stageDefinition resolves the target stage from the instance's template.
// Stages missing from the template get the supplied name and no SLA.
func (e *Engine) stageDefinition(ctx context.Context, instance *core.WorkflowInstance, stageID, stageName string) StageDefinition {
	template, err := e.options.Templates.Template(ctx, instance.TemplateID)
	if err == nil {
		if def, ok := template.Stage(stageID); ok {
			if stageName != "" {
				def.Name = stageName
			}
			return def
		}
	}

	e.options.Logger.WarnContext(ctx, "stage not found in template, entering without SLA",
		log.InstanceIDKey, instance.ID,
		log.TemplateIDKey, instance.TemplateID,
		log.StageIDKey, stageID,
	)

	return StageDefinition{ID: stageID, Name: stageName}
}

// openStage appends a fresh in-progress execution for the stage, starts its
// SLA clock, and applies the stage's default assignee. The StageEntered
// event is always the last event returned.
func (e *Engine) openStage(instance *core.WorkflowInstance, def StageDefinition, now time.Time) []core.Event {
	execution := core.StageExecution{
		ID:        uuid.NewString(),
		StageID:   def.ID,
		StageName: def.Name,
		Status:    core.ExecutionStatusInProgress,
		EnteredAt: now,
	}

	e.options.Evaluator.Start(&execution, def.ExpectedDuration)

	var events []core.Event

	if def.DefaultAssignee != "" {
		execution.AssigneeID = def.DefaultAssignee
		execution.AssignedAt = &now
		execution.AssignmentMethod = core.AssignmentMethodAutomatic

		events = append(events, core.NewEvent(now, core.EventType_StageAssigned, instance.ID, &core.StageAssignedAttributes{
			StageID:    def.ID,
			AssigneeID: def.DefaultAssignee,
			Method:     core.AssignmentMethodAutomatic,
		}))
	}

	instance.StageExecutions = append(instance.StageExecutions, execution)
	instance.CurrentStage = &core.StageRef{
		StageID:    def.ID,
		StageName:  def.Name,
		AssigneeID: execution.AssigneeID,
	}

	e.options.Metrics.Counter(metrickeys.StageEntered, metrics.Tags{}, 1)

	events = append(events, core.NewEvent(now, core.EventType_StageEntered, instance.ID, &core.StageEnteredAttributes{
		StageID:   def.ID,
		StageName: def.Name,
	}))

	return events
}

// closeStage finalizes the execution with the given status and computes its
// actual duration once. Clock anomalies surface to the audit trail only.
func (e *Engine) closeStage(ctx context.Context, instance *core.WorkflowInstance, execution *core.StageExecution, status core.ExecutionStatus, now time.Time) []core.Event {
	execution.Status = status
	execution.CompletedAt = &now

	anomaly := e.options.Evaluator.Close(execution, now)
	e.recordAnomaly(ctx, instance.ID, anomaly)

	var duration time.Duration
	if execution.SLA.ActualDuration != nil {
		duration = *execution.SLA.ActualDuration
	}

	e.options.Metrics.Distribution(metrickeys.StageDuration, metrics.Tags{}, float64(duration/time.Millisecond))

	if execution.SLA.Breached {
		e.options.Metrics.Counter(metrickeys.SLABreached, metrics.Tags{}, 1)
	}

	if status != core.ExecutionStatusCompleted {
		return nil
	}

	return []core.Event{
		core.NewEvent(now, core.EventType_StageCompleted, instance.ID, &core.StageCompletedAttributes{
			StageID:  execution.StageID,
			Duration: duration,
			Breached: execution.SLA.Breached,
		}),
	}
}
