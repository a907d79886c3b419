package batch

import (
	"time"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/notify"
)

type Options struct {
	backend.Options

	Audit    audit.Sink
	Notifier notify.Notifier

	// MaxParallelItems bounds how many items of one batch are in flight at
	// once.
	MaxParallelItems int

	// Retry policy for whole-batch retries.
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

func DefaultOptions() Options {
	return Options{
		Options:           backend.DefaultOptions(),
		Audit:             audit.NewNoopSink(),
		Notifier:          notify.NewNoopNotifier(),
		MaxParallelItems:  8,
		MaxRetries:        3,
		BaseDelay:         time.Minute,
		BackoffMultiplier: 2,
		MaxDelay:          time.Hour,
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

func WithMaxParallelItems(n int) Option {
	return func(o *Options) {
		o.MaxParallelItems = n
	}
}

func WithRetryPolicy(maxRetries int, baseDelay time.Duration, multiplier float64) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.BaseDelay = baseDelay
		o.BackoffMultiplier = multiplier
	}
}

func ApplyOptions(opts ...Option) Options {
	options := DefaultOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return options
}
