// Package sla evaluates stage executions against their service-level
// clocks. Evaluation is a pure function of the execution's timing fields and
// the supplied time; the only state it touches is the execution's own SLA
// info.
package sla

import (
	"time"

	"github.com/caseflow-io/caseflow/core"
)

// DefaultWarningThreshold is the fraction of the expected duration that, once
// remaining time falls below it, flips the status from on-track to warning.
const DefaultWarningThreshold = 0.2

// Anomaly reports a clock inconsistency found during evaluation. Anomalies
// are surfaced to the audit recorder as warnings; they never fail the
// surrounding operation.
type Anomaly struct {
	ExecutionID string
	StageID     string
	Message     string
	ObservedAt  time.Time
}

type Evaluator struct {
	warningThreshold float64
}

type EvaluatorOption func(*Evaluator)

// WithWarningThreshold overrides the fraction of remaining time below which
// an execution is classified as warning. Must be in (0, 1).
func WithWarningThreshold(fraction float64) EvaluatorOption {
	return func(e *Evaluator) {
		e.warningThreshold = fraction
	}
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		warningThreshold: DefaultWarningThreshold,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Start stamps the SLA deadline onto a freshly opened execution. A zero
// expected duration means the stage has no SLA.
func (e *Evaluator) Start(execution *core.StageExecution, expectedDuration time.Duration) {
	execution.SLA = core.SLAInfo{
		ExpectedDuration: expectedDuration,
		Status:           core.SLAStatusOnTrack,
	}

	if expectedDuration > 0 {
		deadline := execution.EnteredAt.Add(expectedDuration)
		execution.SLA.ExpectedCompletion = &deadline
	}
}

// Evaluate classifies the execution against its deadline at the given time
// and updates the execution's SLA status. Breach is a one-way latch: once an
// execution has breached, later evaluations keep it breached.
func (e *Evaluator) Evaluate(execution *core.StageExecution, now time.Time) core.SLAStatus {
	// No deadline configured means no SLA is defined for this stage.
	if execution.SLA.ExpectedCompletion == nil {
		execution.SLA.Status = core.SLAStatusOnTrack
		return execution.SLA.Status
	}

	if execution.SLA.Breached {
		execution.SLA.Status = core.SLAStatusBreached
		return execution.SLA.Status
	}

	deadline := *execution.SLA.ExpectedCompletion

	if !now.Before(deadline) {
		execution.SLA.Breached = true
		execution.SLA.Status = core.SLAStatusBreached
		return execution.SLA.Status
	}

	remaining := deadline.Sub(now)
	if float64(remaining) <= e.warningThreshold*float64(execution.SLA.ExpectedDuration) {
		execution.SLA.Status = core.SLAStatusWarning
		return execution.SLA.Status
	}

	execution.SLA.Status = core.SLAStatusOnTrack
	return execution.SLA.Status
}

// Remaining returns time left until the deadline, negative once past it.
// The second return is false when the execution has no SLA.
func (e *Evaluator) Remaining(execution *core.StageExecution, now time.Time) (time.Duration, bool) {
	if execution.SLA.ExpectedCompletion == nil {
		return 0, false
	}

	return execution.SLA.ExpectedCompletion.Sub(now), true
}

// Close computes the actual duration of the execution exactly once. A
// completion time before entry clamps the duration to zero and reports an
// anomaly for the audit trail.
func (e *Evaluator) Close(execution *core.StageExecution, completedAt time.Time) *Anomaly {
	if execution.SLA.ActualDuration != nil {
		return nil
	}

	duration := completedAt.Sub(execution.EnteredAt)

	var anomaly *Anomaly
	if duration < 0 {
		duration = 0
		anomaly = &Anomaly{
			ExecutionID: execution.ID,
			StageID:     execution.StageID,
			Message:     "stage completion time precedes entry time, clamping duration to zero",
			ObservedAt:  completedAt,
		}
	}

	execution.SLA.ActualDuration = &duration

	return anomaly
}
