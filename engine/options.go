package engine

import (
	"time"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/notify"
	"github.com/caseflow-io/caseflow/sla"
)

type Options struct {
	backend.Options

	Audit    audit.Sink
	Notifier notify.Notifier

	Evaluator *sla.Evaluator

	Templates TemplateResolver

	// LockTTL is how long an idle per-instance lock entry is kept before it
	// counts as abandoned.
	LockTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		Options:   backend.DefaultOptions(),
		Audit:     audit.NewNoopSink(),
		Notifier:  notify.NewNoopNotifier(),
		Evaluator: sla.NewEvaluator(),
		Templates: StaticTemplates{},
		LockTTL:   10 * time.Minute,
	}
}

type Option func(*Options)

func WithBackendOptions(opts ...backend.Option) Option {
	return func(o *Options) {
		for _, opt := range opts {
			opt(&o.Options)
		}
	}
}

func WithAuditSink(sink audit.Sink) Option {
	return func(o *Options) {
		o.Audit = sink
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(o *Options) {
		o.Notifier = n
	}
}

func WithEvaluator(e *sla.Evaluator) Option {
	return func(o *Options) {
		o.Evaluator = e
	}
}

func WithTemplates(t TemplateResolver) Option {
	return func(o *Options) {
		o.Templates = t
	}
}

func WithLockTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.LockTTL = ttl
	}
}

func ApplyOptions(opts ...Option) Options {
	options := DefaultOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return options
}
