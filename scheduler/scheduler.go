// Package scheduler drives the periodic SLA and escalation evaluation
// across all active instances. Ticks are idempotent: running two in quick
// succession never double-escalates, because breach is a one-way latch and
// level timeouts are real clocks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/engine"
	"github.com/caseflow-io/caseflow/escalation"
	"github.com/caseflow-io/caseflow/internal/metrics"
	"github.com/caseflow-io/caseflow/internal/metrickeys"
	"github.com/caseflow-io/caseflow/log"
	m "github.com/caseflow-io/caseflow/metrics"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule evaluates every two minutes.
	DefaultSchedule = "@every 2m"

	DefaultTickTimeout = time.Minute
)

type Scheduler struct {
	engine      *engine.Engine
	coordinator *escalation.Coordinator
	options     backend.Options

	schedule    string
	tickTimeout time.Duration

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

type Option func(*Scheduler)

// WithSchedule overrides the tick cadence; any cron/v3 spec is accepted,
// including "@every" intervals.
func WithSchedule(spec string) Option {
	return func(s *Scheduler) {
		s.schedule = spec
	}
}

// WithTickTimeout bounds one full evaluation pass.
func WithTickTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		s.tickTimeout = timeout
	}
}

func WithBackendOptions(opts ...backend.Option) Option {
	return func(s *Scheduler) {
		for _, opt := range opts {
			opt(&s.options)
		}
	}
}

func New(eng *engine.Engine, coordinator *escalation.Coordinator, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine:      eng,
		coordinator: coordinator,
		options:     backend.DefaultOptions(),
		schedule:    DefaultSchedule,
		tickTimeout: DefaultTickTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start begins periodic ticking. Stop must be called to release the cron
// runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
		defer cancel()

		if err := s.Tick(ctx); err != nil {
			s.options.Logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.running = true

	return nil
}

// Stop halts ticking and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	<-s.cron.Stop().Done()
	s.running = false
}

// Tick runs one full evaluation pass: every active instance gets its SLA
// latch refreshed and its escalation triggers checked. Per-instance
// failures are isolated; one bad instance never stops the sweep.
func (s *Scheduler) Tick(ctx context.Context) error {
	timer := metrics.NewTimer(s.options.Metrics, metrickeys.SchedulerTickDuration, m.Tags{})
	defer timer.Stop()

	s.options.Metrics.Counter(metrickeys.SchedulerTick, m.Tags{}, 1)

	ids, err := s.engine.Store().ListActiveInstances(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		_, _, err := s.coordinator.EvaluateAndEscalate(ctx, id)

		var exhausted *core.EscalationExhaustedError
		switch {
		case err == nil:
		case errors.As(err, &exhausted):
			// Expected once an instance tops out the matrix; it carries the
			// needs-attention flag from here on.
			s.options.Logger.DebugContext(ctx, "instance needs attention",
				log.InstanceIDKey, id,
				log.EscalationLevelKey, exhausted.Level,
			)
		default:
			s.options.Logger.WarnContext(ctx, "evaluating instance failed",
				log.InstanceIDKey, id,
				"error", err,
			)
		}
	}

	return nil
}
