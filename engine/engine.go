// Package engine owns the per-instance state machine of the claims
// workflow: stage entry, assignment, transition, completion. Every mutation
// runs under a per-instance lock, is persisted with an optimistic version
// check, and returns the events it produced alongside the updated instance.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/internal/diff"
	"github.com/caseflow-io/caseflow/internal/locker"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	"github.com/caseflow-io/caseflow/metrics"
	"github.com/caseflow-io/caseflow/notify"
	"github.com/caseflow-io/caseflow/sla"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Engine struct {
	store   backend.Store
	locks   *locker.Locker
	options Options
	tracer  trace.Tracer
}

func New(store backend.Store, opts ...Option) *Engine {
	options := ApplyOptions(opts...)

	return &Engine{
		store:   store,
		locks:   locker.New(options.LockTTL),
		options: options,
		tracer:  options.TracerProvider.Tracer(backend.TracerName),
	}
}

// Close releases the engine's lock registry.
func (e *Engine) Close() {
	e.locks.Close()
}

// Store returns the persistence collaborator the engine writes through.
func (e *Engine) Store() backend.Store {
	return e.store
}

// Evaluator returns the SLA evaluator shared with the escalation
// coordinator and the scheduler.
func (e *Engine) Evaluator() *sla.Evaluator {
	return e.options.Evaluator
}

// Clock returns the engine's time source.
func (e *Engine) Clock() clock.Clock {
	return e.options.Clock
}

// Logger returns the engine's structured logger.
func (e *Engine) Logger() *slog.Logger {
	return e.options.Logger
}

// Metrics returns the engine's metrics client.
func (e *Engine) Metrics() metrics.Client {
	return e.options.Metrics
}

// MutateFunc applies one logical operation to a loaded instance and returns
// the events it produced. It must not retain the instance past the call.
type MutateFunc func(instance *core.WorkflowInstance) ([]core.Event, error)

// Mutate serializes one operation against the instance: acquire the
// per-instance lock, load, apply, save with version check, record audit
// changes, and emit notifications. A conflicting write (a concurrent writer
// outside this process) is reloaded and retried exactly once.
func (e *Engine) Mutate(ctx context.Context, instanceID string, action audit.Action, actorID string, fn MutateFunc) (*core.WorkflowInstance, []core.Event, error) {
	release, err := e.locks.Acquire(ctx, instanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring instance lock: %w", err)
	}
	defer release()

	e.options.Metrics.Distribution(metrickeys.LockRegistrySize, metrics.Tags{}, float64(e.locks.Len()))

	instance, events, err := e.apply(ctx, instanceID, action, actorID, fn)

	var conflict *core.ConflictError
	if errors.As(err, &conflict) {
		e.options.Logger.WarnContext(ctx, "conflicting write, retrying once",
			log.InstanceIDKey, instanceID,
			log.VersionKey, conflict.Version,
		)

		instance, events, err = e.apply(ctx, instanceID, action, actorID, fn)
	}

	if err != nil {
		return nil, nil, err
	}

	e.emit(ctx, events)

	return instance, events, nil
}

func (e *Engine) apply(ctx context.Context, instanceID string, action audit.Action, actorID string, fn MutateFunc) (*core.WorkflowInstance, []core.Event, error) {
	instance, err := e.store.LoadInstance(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}

	before, beforeRaw, err := snapshot(instance)
	if err != nil {
		return nil, nil, err
	}

	events, err := fn(instance)
	if err != nil {
		return nil, nil, err
	}

	afterRaw, err := json.Marshal(instance)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshotting instance: %w", err)
	}

	// A mutation that changed nothing and produced no events has nothing to
	// persist or audit. Saving anyway would bump the version and append an
	// empty audit entry on every evaluation pass.
	if len(events) == 0 && bytes.Equal(beforeRaw, afterRaw) {
		return instance, nil, nil
	}

	if err := e.store.SaveInstance(ctx, instance); err != nil {
		return nil, nil, err
	}

	entry := audit.NewEntry(e.options.Clock.Now(), action, instance.ID, actorID, diff.Instances(before, instance))
	if err := e.options.Audit.Record(ctx, entry); err != nil {
		e.options.Logger.ErrorContext(ctx, "recording audit entry",
			log.InstanceIDKey, instance.ID,
			"error", err,
		)
	}

	return instance, events, nil
}

// emit forwards notification-worthy events. Delivery is fire-and-forget;
// failures are logged and never fail the operation that produced them.
func (e *Engine) emit(ctx context.Context, events []core.Event) {
	for _, event := range events {
		if !notify.Notifiable(event.Type) {
			continue
		}

		if err := e.options.Notifier.Notify(ctx, event); err != nil {
			e.options.Logger.ErrorContext(ctx, "emitting notification",
				log.EventTypeKey, event.Type.String(),
				log.EventIDKey, event.ID,
				"error", err,
			)
		}
	}
}

// recordAnomaly surfaces a clock inconsistency to the audit trail as a
// warning without failing the surrounding operation.
func (e *Engine) recordAnomaly(ctx context.Context, instanceID string, anomaly *sla.Anomaly) {
	if anomaly == nil {
		return
	}

	entry := audit.NewEntry(e.options.Clock.Now(), audit.ActionClockAnomaly, instanceID, "", nil)
	entry.Warning = true
	entry.Detail = anomaly.Message

	if err := e.options.Audit.Record(ctx, entry); err != nil {
		e.options.Logger.ErrorContext(ctx, "recording clock anomaly",
			log.InstanceIDKey, instanceID,
			"error", err,
		)
	}
}

func (e *Engine) startSpan(ctx context.Context, name, instanceID string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String(log.InstanceIDKey, instanceID),
	))
}

func snapshot(instance *core.WorkflowInstance) (*core.WorkflowInstance, []byte, error) {
	data, err := json.Marshal(instance)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshotting instance: %w", err)
	}

	var clone core.WorkflowInstance
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, nil, fmt.Errorf("snapshotting instance: %w", err)
	}

	return &clone, data, nil
}
