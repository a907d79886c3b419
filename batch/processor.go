// Package batch applies one engine or escalation operation across a bounded
// set of instances as a single retryable unit. Per-item failures never
// abort the batch; they are classified and counted, and the aggregate
// decides the terminal status.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/internal/metrics"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	m "github.com/caseflow-io/caseflow/metrics"
	"github.com/caseflow-io/caseflow/notify"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrItemSkipped marks an item the operation chose not to process. Skipped
// items count separately from failures and do not affect retry eligibility.
var ErrItemSkipped = errors.New("batch item skipped")

// Operation is applied to one target instance. Operations must be
// idempotent: a whole-batch retry re-runs items that already succeeded.
type Operation func(ctx context.Context, instanceID string) error

type Processor struct {
	store   backend.Store
	options Options
	tracer  trace.Tracer
}

func NewProcessor(store backend.Store, opts ...Option) *Processor {
	options := ApplyOptions(opts...)

	return &Processor{
		store:   store,
		options: options,
		tracer:  options.TracerProvider.Tracer(backend.TracerName),
	}
}

// CreateBatchOptions configures a new batch job.
type CreateBatchOptions struct {
	// BatchID is optional; a random id is generated when empty.
	BatchID string

	Operation string
	TargetIDs []string

	CompanyID string
	CreatedBy string

	// MaxRetries overrides the processor's retry budget when non-zero.
	MaxRetries int
}

// CreateBatch validates and persists a new batch in created status. The
// batch holds there until Enqueue releases it for processing. An empty
// target set is a validation error, never a runtime state.
func (p *Processor) CreateBatch(ctx context.Context, options CreateBatchOptions) (*core.BatchJob, error) {
	if len(options.TargetIDs) == 0 {
		return nil, core.WithClass(core.ErrorClassValidation, core.ErrEmptyBatch)
	}

	batchID := options.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	maxRetries := options.MaxRetries
	if maxRetries == 0 {
		maxRetries = p.options.MaxRetries
	}

	now := p.options.Clock.Now()

	batch := &core.BatchJob{
		ID:         batchID,
		Operation:  options.Operation,
		CompanyID:  options.CompanyID,
		CreatedBy:  options.CreatedBy,
		TargetIDs:  options.TargetIDs,
		TotalItems: len(options.TargetIDs),
		Status:     core.BatchStatusCreated,
		MaxRetries: maxRetries,
		CreatedAt:  now,
	}

	if err := p.store.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	p.options.Logger.DebugContext(ctx, "created batch",
		log.BatchIDKey, batch.ID,
		log.BatchOperationKey, batch.Operation,
		"targets", batch.TotalItems,
	)

	return batch, nil
}

// Enqueue releases a created batch for processing.
func (p *Processor) Enqueue(ctx context.Context, batchID string) (*core.BatchJob, error) {
	batch, err := p.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if batch.Status != core.BatchStatusCreated {
		return nil, &core.InvalidTransitionError{Op: "enqueue batch", Status: string(batch.Status)}
	}

	batch.Status = core.BatchStatusQueued

	if err := p.store.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("enqueueing batch: %w", err)
	}

	p.options.Logger.DebugContext(ctx, "enqueued batch", log.BatchIDKey, batch.ID)

	return batch, nil
}

type itemResult struct {
	targetID string
	err      error
}

// Process runs the operation across all targets of a queued batch. Items
// run concurrently up to the configured limit; a single aggregator keeps
// the counters consistent. Cancellation is cooperative: in-flight items
// finish, no new items start. A deadline hit marks the batch failed with a
// system-class error instead of hanging.
func (p *Processor) Process(ctx context.Context, batchID string, operation Operation) (*core.BatchJob, []core.Event, error) {
	ctx, span := p.tracer.Start(ctx, "ProcessBatch", trace.WithAttributes(
		attribute.String(log.BatchIDKey, batchID),
	))
	defer span.End()

	timer := m.Timer(p.options.Metrics, metrickeys.BatchDuration, m.Tags{})
	defer timer.Stop()

	batch, err := p.store.LoadBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}

	if batch.Status != core.BatchStatusQueued {
		return nil, nil, &core.InvalidTransitionError{Op: "process batch", Status: string(batch.Status)}
	}

	now := p.options.Clock.Now()
	batch.Status = core.BatchStatusProcessing
	batch.StartedAt = &now
	batch.CompletedAt = nil
	batch.Processed, batch.Succeeded, batch.Failed, batch.Skipped = 0, 0, 0, 0
	batch.Errors = nil

	if len(batch.RetryHistory) > 0 {
		batch.RetryHistory[len(batch.RetryHistory)-1].Status = "running"
	}

	if err := p.store.SaveBatch(ctx, batch); err != nil {
		return nil, nil, fmt.Errorf("marking batch processing: %w", err)
	}

	p.run(ctx, batch, operation)

	events := p.finalize(ctx, batch)

	// The terminal status must land even when the request context has
	// already expired; losing it would wedge the batch in processing with
	// no path to retry.
	finalCtx := context.WithoutCancel(ctx)

	if err := p.store.SaveBatch(finalCtx, batch); err != nil {
		return nil, nil, fmt.Errorf("saving batch result: %w", err)
	}

	p.emit(finalCtx, events)
	p.record(finalCtx, batch)

	return batch, events, nil
}

// run dispatches items to a bounded worker pool and aggregates results.
// All workers are joined before returning.
func (p *Processor) run(ctx context.Context, batch *core.BatchJob, operation Operation) {
	sem := make(chan struct{}, p.options.MaxParallelItems)
	results := make(chan itemResult)

	var wg sync.WaitGroup

	aggregatorDone := make(chan struct{})

	go func() {
		defer close(aggregatorDone)

		for r := range results {
			batch.Processed++

			switch {
			case r.err == nil:
				batch.Succeeded++
			case errors.Is(r.err, ErrItemSkipped):
				batch.Skipped++
			default:
				batch.Failed++
				class := core.ClassOf(r.err)
				batch.RecordError(core.BatchError{
					TargetID:   r.targetID,
					Class:      class,
					Message:    r.err.Error(),
					Severity:   core.SeverityMedium,
					OccurredAt: p.options.Clock.Now(),
				})

				p.options.Metrics.Counter(metrickeys.BatchItemProcessed, m.Tags{
					metrickeys.Outcome:    "failed",
					metrickeys.ErrorClass: string(class),
				}, 1)
				continue
			}

			p.options.Metrics.Counter(metrickeys.BatchItemProcessed, m.Tags{metrickeys.Outcome: "ok"}, 1)
		}
	}()

	for _, targetID := range batch.TargetIDs {
		// Cooperative cancellation: dispatched items finish, nothing new
		// starts once the context is done.
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)

		targetID := targetID
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			timer := metrics.NewTimer(p.options.Metrics, metrickeys.BatchItemDuration, m.Tags{})
			defer timer.Stop()

			results <- itemResult{targetID: targetID, err: operation(ctx, targetID)}
		}()
	}

	wg.Wait()
	close(results)
	<-aggregatorDone
}

// finalize sets the terminal status from the aggregated counters and builds
// the completion events.
func (p *Processor) finalize(ctx context.Context, batch *core.BatchJob) []core.Event {
	now := p.options.Clock.Now()
	batch.CompletedAt = &now

	interrupted := ctx.Err()

	switch {
	case errors.Is(interrupted, context.DeadlineExceeded):
		batch.Status = core.BatchStatusFailed
		batch.RecordError(core.BatchError{
			Class:      core.ErrorClassSystem,
			Message:    "batch deadline exceeded",
			Severity:   core.SeverityHigh,
			OccurredAt: now,
		})
	case interrupted != nil:
		batch.Status = core.BatchStatusCancelled
	case batch.Failed == 0:
		batch.Status = core.BatchStatusCompleted
	case batch.Failed < batch.TotalItems:
		batch.Status = core.BatchStatusPartiallyCompleted
	default:
		batch.Status = core.BatchStatusFailed
	}

	if len(batch.RetryHistory) > 0 {
		batch.RetryHistory[len(batch.RetryHistory)-1].Status = string(batch.Status)
	}

	if batch.Status == core.BatchStatusCompleted {
		return []core.Event{
			core.NewEvent(now, core.EventType_BatchCompleted, batch.ID, &core.BatchCompletedAttributes{
				Operation: batch.Operation,
				Succeeded: batch.Succeeded,
				Failed:    batch.Failed,
				Skipped:   batch.Skipped,
			}),
		}
	}

	reason := ""
	if interrupted != nil {
		reason = interrupted.Error()
	}

	return []core.Event{
		core.NewEvent(now, core.EventType_BatchFailed, batch.ID, &core.BatchFailedAttributes{
			Operation: batch.Operation,
			Failed:    batch.Failed,
			Reason:    reason,
		}),
	}
}

func (p *Processor) emit(ctx context.Context, events []core.Event) {
	for _, event := range events {
		if !notify.Notifiable(event.Type) {
			continue
		}

		if err := p.options.Notifier.Notify(ctx, event); err != nil {
			p.options.Logger.ErrorContext(ctx, "emitting batch notification",
				log.EventTypeKey, event.Type.String(),
				"error", err,
			)
		}
	}
}

func (p *Processor) record(ctx context.Context, batch *core.BatchJob) {
	entry := audit.NewEntry(p.options.Clock.Now(), audit.ActionBatchProcessed, batch.ID, batch.CreatedBy, nil)
	entry.Detail = fmt.Sprintf("%s: %d/%d succeeded, %d failed, %d skipped",
		batch.Operation, batch.Succeeded, batch.TotalItems, batch.Failed, batch.Skipped)

	if err := p.options.Audit.Record(ctx, entry); err != nil {
		p.options.Logger.ErrorContext(ctx, "recording batch audit entry",
			log.BatchIDKey, batch.ID,
			"error", err,
		)
	}

	p.options.Metrics.Counter(metrickeys.BatchProcessed, m.Tags{
		metrickeys.Operation: batch.Operation,
		metrickeys.Outcome:   string(batch.Status),
	}, 1)
}
