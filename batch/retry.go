package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	m "github.com/caseflow-io/caseflow/metrics"
	"github.com/cenkalti/backoff/v4"
)

// CanRetry reports whether the batch is eligible for another whole-batch
// run: it must have ended failed or partially completed, have retry budget
// left, and at least one of its recorded failures must be of a transient
// class. Validation and business-rule failures would just fail again.
func (p *Processor) CanRetry(batch *core.BatchJob) bool {
	if batch.Status != core.BatchStatusFailed && batch.Status != core.BatchStatusPartiallyCompleted {
		return false
	}

	if batch.RetryCount >= batch.MaxRetries {
		return false
	}

	for _, e := range batch.Errors {
		if e.Class.Retryable() {
			return true
		}
	}

	return false
}

// RetryDelay computes the backoff delay for the given attempt:
// baseDelay * multiplier^(attempt-1), capped at the configured maximum.
// No randomization, so a fixed input state always yields the same delay.
func (p *Processor) RetryDelay(attempt int) time.Duration {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.options.BaseDelay
	policy.Multiplier = p.options.BackoffMultiplier
	policy.RandomizationFactor = 0
	policy.MaxInterval = p.options.MaxDelay
	policy.MaxElapsedTime = 0
	policy.Reset()

	delay := policy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = policy.NextBackOff()
	}

	return delay
}

// ScheduleRetry requeues a failed or partially completed batch for another
// full run after an exponential backoff delay. The retry budget is a hard
// bound: once spent, scheduling fails without mutating the batch.
func (p *Processor) ScheduleRetry(ctx context.Context, batchID, reason string) (*core.BatchJob, []core.Event, error) {
	batch, err := p.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	if batch.Status != core.BatchStatusFailed && batch.Status != core.BatchStatusPartiallyCompleted {
		return nil, nil, &core.InvalidTransitionError{Op: "schedule retry", Status: string(batch.Status)}
	}

	if batch.RetryCount >= batch.MaxRetries {
		return nil, nil, core.ErrRetriesExhausted
	}

	now := p.options.Clock.Now()

	batch.RetryCount++
	delay := p.RetryDelay(batch.RetryCount)

	batch.RetryHistory = append(batch.RetryHistory, core.RetryAttempt{
		Attempt:     batch.RetryCount,
		Reason:      reason,
		Delay:       delay,
		ScheduledAt: now,
		NotBefore:   now.Add(delay),
		Status:      "pending",
	})

	batch.Status = core.BatchStatusQueued

	if err := p.store.SaveBatch(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("scheduling retry: %w", err)
	}

	entry := audit.NewEntry(now, audit.ActionBatchRetry, batch.ID, "", nil)
	entry.Detail = fmt.Sprintf("retry %d/%d in %s: %s", batch.RetryCount, batch.MaxRetries, delay, reason)
	if err := p.options.Audit.Record(ctx, entry); err != nil {
		p.options.Logger.ErrorContext(ctx, "recording retry audit entry",
			log.BatchIDKey, batch.ID,
			"error", err,
		)
	}

	p.options.Metrics.Counter(metrickeys.BatchRetry, m.Tags{}, 1)

	p.options.Logger.DebugContext(ctx, "scheduled batch retry",
		log.BatchIDKey, batch.ID,
		log.AttemptKey, batch.RetryCount,
		"delay", delay,
	)

	events := []core.Event{
		core.NewEvent(now, core.EventType_BatchRetryScheduled, batch.ID, &core.BatchRetryScheduledAttributes{
			Attempt:   batch.RetryCount,
			Delay:     delay,
			NotBefore: now.Add(delay),
		}),
	}

	return batch, events, nil
}
