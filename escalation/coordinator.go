// Package escalation decides whether a workflow instance must climb to the
// next level of its routing matrix and performs the move: resolve the new
// assignee, reassign the current stage, and append to the level history.
package escalation

import (
	"context"
	"time"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/engine"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	"github.com/caseflow-io/caseflow/metrics"
)

type Coordinator struct {
	engine     *engine.Engine
	matrix     Matrix
	conditions []Condition
	resolver   TargetResolver
	cache      *exprCache
}

type Option func(*Coordinator)

// WithConditions configures the trigger conditions evaluated on each tick,
// in order. Defaults to the SLA breach, level timeout, and manual request
// triggers.
func WithConditions(conditions ...Condition) Option {
	return func(c *Coordinator) {
		c.conditions = conditions
	}
}

// WithResolver overrides how matrix level targets resolve to assignees.
func WithResolver(r TargetResolver) Option {
	return func(c *Coordinator) {
		c.resolver = r
	}
}

func NewCoordinator(eng *engine.Engine, matrix Matrix, opts ...Option) *Coordinator {
	c := &Coordinator{
		engine: eng,
		matrix: matrix,
		conditions: []Condition{
			{Type: TriggerSLABreach},
			{Type: TriggerLevelTimeout},
			{Type: TriggerManual},
		},
		resolver: &StaticDirectory{},
		cache:    newExprCache(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EvaluateTriggers reports whether any configured trigger condition is met
// for the instance at the given time, and which one. Conditions are
// OR-combined; the first hit wins. Evaluating the SLA condition advances
// the breach latch on the active execution.
func (c *Coordinator) EvaluateTriggers(ctx context.Context, instance *core.WorkflowInstance, now time.Time) (bool, TriggerType) {
	for _, condition := range c.conditions {
		switch condition.Type {
		case TriggerSLABreach:
			if c.breachTriggered(instance, now) {
				return true, TriggerSLABreach
			}

		case TriggerLevelTimeout:
			if c.timeoutTriggered(instance, now) {
				return true, TriggerLevelTimeout
			}

		case TriggerManual:
			if instance.Escalation.ManualRequested {
				return true, TriggerManual
			}

		case TriggerExpression:
			fired, err := c.cache.eval(condition.Expression, triggerEnv(instance, now))
			if err != nil {
				c.engine.Logger().WarnContext(ctx, "trigger expression failed",
					log.InstanceIDKey, instance.ID,
					"error", err,
				)
				continue
			}
			if fired {
				return true, TriggerExpression
			}
		}
	}

	return false, ""
}

// breachTriggered fires once per stage visit: a breached active execution
// triggers the first escalation; subsequent level advances are driven by
// level timeouts, not by the breach re-signaling.
func (c *Coordinator) breachTriggered(instance *core.WorkflowInstance, now time.Time) bool {
	active := instance.ActiveExecution()
	if active == nil {
		return false
	}

	if c.engine.Evaluator().Evaluate(active, now) != core.SLAStatusBreached {
		return false
	}

	if instance.Escalation.LastEscalatedAt == nil {
		return true
	}

	return instance.Escalation.LastEscalatedAt.Before(active.EnteredAt)
}

// timeoutTriggered fires when the current level has a timeout configured
// and the escalation has sat unresolved past it.
func (c *Coordinator) timeoutTriggered(instance *core.WorkflowInstance, now time.Time) bool {
	es := instance.Escalation
	if !es.Active || es.LastEscalatedAt == nil {
		return false
	}

	level, ok := c.matrix.Level(es.CurrentLevel)
	if !ok || level.Timeout == 0 {
		return false
	}

	return !now.Before(es.LastEscalatedAt.Add(level.Timeout))
}

// Escalate walks the instance one level up the matrix and reassigns the
// current stage to the resolved target. At the top of the matrix it raises
// the needs-attention flag and fails with EscalationExhausted; the instance
// itself is left untouched for human intervention.
func (c *Coordinator) Escalate(ctx context.Context, instanceID, reason string, trigger TriggerType) (*core.WorkflowInstance, []core.Event, error) {
	var exhausted *core.EscalationExhaustedError

	instance, events, err := c.engine.Mutate(ctx, instanceID, audit.ActionEscalated, "", func(instance *core.WorkflowInstance) ([]core.Event, error) {
		now := c.engine.Clock().Now()

		if instance.Escalation.CurrentLevel >= c.maxLevel(instance) {
			instance.Escalation.NeedsAttention = true
			exhausted = &core.EscalationExhaustedError{InstanceID: instance.ID, Level: instance.Escalation.CurrentLevel}
			return nil, nil
		}

		return c.escalateLocked(ctx, instance, reason, trigger, now)
	})
	if err != nil {
		return nil, nil, err
	}

	if exhausted != nil {
		c.engine.Metrics().Counter(metrickeys.EscalationExhausted, metrics.Tags{}, 1)
		return instance, events, exhausted
	}

	c.engine.Metrics().Counter(metrickeys.EscalationTriggered, metrics.Tags{metrickeys.Trigger: string(trigger)}, 1)

	return instance, events, nil
}

// escalateLocked performs the level move on an already-locked instance.
func (c *Coordinator) escalateLocked(ctx context.Context, instance *core.WorkflowInstance, reason string, trigger TriggerType, now time.Time) ([]core.Event, error) {
	nextLevel := instance.Escalation.CurrentLevel + 1

	level, ok := c.matrix.Level(nextLevel)
	if !ok {
		instance.Escalation.NeedsAttention = true
		return nil, &core.EscalationExhaustedError{InstanceID: instance.ID, Level: instance.Escalation.CurrentLevel}
	}

	target, err := c.resolver.ResolveTarget(ctx, level, instance)
	if err != nil {
		return nil, err
	}

	previous := instance.Escalation.CurrentAssignee

	instance.Escalation.LevelHistory = append(instance.Escalation.LevelHistory, core.EscalationRecord{
		Level:       nextLevel,
		From:        previous,
		To:          target,
		TriggeredAt: now,
		Method:      core.AssignmentMethodEscalation,
		Reason:      reason,
		Trigger:     string(trigger),
	})

	instance.Escalation.CurrentLevel = nextLevel
	instance.Escalation.CurrentAssignee = target
	instance.Escalation.Escalated = true
	instance.Escalation.Active = true
	instance.Escalation.ManualRequested = false
	instance.Escalation.LastEscalatedAt = &now
	instance.LastActivityAt = now

	if active := instance.ActiveExecution(); active != nil {
		active.AssigneeID = target
		active.AssignedAt = &now
		active.AssignmentMethod = core.AssignmentMethodEscalation

		if instance.CurrentStage != nil && instance.CurrentStage.StageID == active.StageID {
			instance.CurrentStage.AssigneeID = target
		}
	}

	return []core.Event{
		core.NewEvent(now, core.EventType_EscalationTriggered, instance.ID, &core.EscalationTriggeredAttributes{
			Level:   nextLevel,
			From:    previous,
			To:      target,
			Trigger: string(trigger),
			Reason:  reason,
		}),
	}, nil
}

// RequestEscalation flags the instance for escalation on the next
// evaluation pass. The manual trigger condition picks the request up and
// clears the flag once the level advances.
func (c *Coordinator) RequestEscalation(ctx context.Context, instanceID, requestedBy, reason string) (*core.WorkflowInstance, error) {
	instance, _, err := c.engine.Mutate(ctx, instanceID, audit.ActionEscalationRequested, requestedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		instance.Escalation.ManualRequested = true
		instance.LastActivityAt = c.engine.Clock().Now()

		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	c.engine.Logger().DebugContext(ctx, "escalation requested",
		log.InstanceIDKey, instanceID,
		log.ActorIDKey, requestedBy,
		"reason", reason,
	)

	return instance, nil
}

// Reassign is a manual override of the current assignee. The escalation
// level does not change; a non-level-advancing history entry is appended.
func (c *Coordinator) Reassign(ctx context.Context, instanceID, newAssignee, reassignedBy, reason string) (*core.WorkflowInstance, []core.Event, error) {
	return c.engine.Mutate(ctx, instanceID, audit.ActionReassigned, reassignedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status.Terminal() {
			return nil, core.ErrTerminalInstance
		}

		now := c.engine.Clock().Now()
		previous := instance.Escalation.CurrentAssignee

		instance.Escalation.LevelHistory = append(instance.Escalation.LevelHistory, core.EscalationRecord{
			Level:       instance.Escalation.CurrentLevel,
			From:        previous,
			To:          newAssignee,
			TriggeredAt: now,
			Method:      core.AssignmentMethodManual,
			Reason:      reason,
		})

		instance.Escalation.CurrentAssignee = newAssignee
		instance.LastActivityAt = now

		var stageID string
		if active := instance.ActiveExecution(); active != nil {
			stageID = active.StageID
			active.AssigneeID = newAssignee
			active.AssignedAt = &now
			active.AssignmentMethod = core.AssignmentMethodManual

			if instance.CurrentStage != nil && instance.CurrentStage.StageID == active.StageID {
				instance.CurrentStage.AssigneeID = newAssignee
			}
		}

		return []core.Event{
			core.NewEvent(now, core.EventType_AssigneeChanged, instance.ID, &core.AssigneeChangedAttributes{
				StageID:      stageID,
				From:         previous,
				To:           newAssignee,
				ReassignedBy: reassignedBy,
				Reason:       reason,
			}),
		}, nil
	})
}

// Resolve closes the escalation episode. The instance itself is untouched;
// it may well continue through its workflow after the escalation ends.
func (c *Coordinator) Resolve(ctx context.Context, instanceID, resolvedBy, description string, resolutionType core.ResolutionType) (*core.WorkflowInstance, []core.Event, error) {
	instance, events, err := c.engine.Mutate(ctx, instanceID, audit.ActionEscalationResolved, resolvedBy, func(instance *core.WorkflowInstance) ([]core.Event, error) {
		now := c.engine.Clock().Now()

		instance.Escalation.Active = false
		instance.Escalation.NeedsAttention = false
		instance.Escalation.Overdue = false
		instance.Escalation.Resolution = &core.EscalationResolution{
			ResolvedBy:  resolvedBy,
			Description: description,
			Type:        resolutionType,
			ResolvedAt:  now,
		}

		return []core.Event{
			core.NewEvent(now, core.EventType_EscalationResolved, instance.ID, &core.EscalationResolvedAttributes{
				ResolvedBy: resolvedBy,
				Type:       resolutionType,
			}),
		}, nil
	})
	if err != nil {
		return nil, nil, err
	}

	c.engine.Metrics().Counter(metrickeys.EscalationResolved, metrics.Tags{}, 1)

	return instance, events, nil
}

// EvaluateAndEscalate is the per-instance body of the periodic tick:
// refresh the SLA latch and overdue flag, check triggers, and escalate if
// one fired. Running it twice in quick succession must not double-escalate;
// the breach latch and the level-timeout clocks guarantee that.
func (c *Coordinator) EvaluateAndEscalate(ctx context.Context, instanceID string) (*core.WorkflowInstance, []core.Event, error) {
	var exhausted *core.EscalationExhaustedError
	var escalatedBy TriggerType

	instance, events, err := c.engine.Mutate(ctx, instanceID, audit.ActionEscalated, "", func(instance *core.WorkflowInstance) ([]core.Event, error) {
		if instance.Status != core.InstanceStatusActive {
			return nil, nil
		}

		now := c.engine.Clock().Now()

		overdue := false
		if active := instance.ActiveExecution(); active != nil {
			overdue = c.engine.Evaluator().Evaluate(active, now) == core.SLAStatusBreached
		}
		instance.Escalation.Overdue = overdue

		fired, trigger := c.EvaluateTriggers(ctx, instance, now)
		if !fired {
			return nil, nil
		}

		if instance.Escalation.CurrentLevel >= c.maxLevel(instance) {
			if !instance.Escalation.NeedsAttention {
				instance.Escalation.NeedsAttention = true
				exhausted = &core.EscalationExhaustedError{InstanceID: instance.ID, Level: instance.Escalation.CurrentLevel}

				var overdueBy time.Duration
				if active := instance.ActiveExecution(); active != nil && active.SLA.ExpectedCompletion != nil {
					overdueBy = now.Sub(*active.SLA.ExpectedCompletion)
				}

				return []core.Event{
					core.NewEvent(now, core.EventType_EscalationOverdue, instance.ID, &core.EscalationOverdueAttributes{
						Level:   instance.Escalation.CurrentLevel,
						Overdue: overdueBy,
					}),
				}, nil
			}

			return nil, nil
		}

		escalatedBy = trigger

		return c.escalateLocked(ctx, instance, "automatic escalation", trigger, now)
	})
	if err != nil {
		return nil, nil, err
	}

	if exhausted != nil {
		c.engine.Metrics().Counter(metrickeys.EscalationExhausted, metrics.Tags{}, 1)
		return instance, events, exhausted
	}

	if escalatedBy != "" {
		c.engine.Metrics().Counter(metrickeys.EscalationTriggered, metrics.Tags{metrickeys.Trigger: string(escalatedBy)}, 1)
	}

	return instance, events, nil
}

// maxLevel is the effective level cap for an instance: its own configured
// cap when set, otherwise the top of the matrix.
func (c *Coordinator) maxLevel(instance *core.WorkflowInstance) int {
	if instance.Escalation.MaxLevel > 0 {
		return instance.Escalation.MaxLevel
	}

	return c.matrix.MaxLevel()
}
