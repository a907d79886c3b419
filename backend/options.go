package backend

import (
	"log/slog"

	"github.com/benbjohnson/clock"
	mi "github.com/caseflow-io/caseflow/internal/metrics"
	"github.com/caseflow-io/caseflow/metrics"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type Options struct {
	Logger *slog.Logger

	Metrics metrics.Client

	TracerProvider trace.TracerProvider

	// Clock is the time source for all SLA and escalation decisions. Tests
	// inject a mock clock here.
	Clock clock.Clock
}

func DefaultOptions() Options {
	return Options{
		Logger:         slog.Default(),
		Metrics:        mi.NewNoopMetricsClient(),
		TracerProvider: noop.NewTracerProvider(),
		Clock:          clock.New(),
	}
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(client metrics.Client) Option {
	return func(o *Options) {
		o.Metrics = client
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

func WithClock(c clock.Clock) Option {
	return func(o *Options) {
		o.Clock = c
	}
}

func ApplyOptions(opts ...Option) Options {
	options := DefaultOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return options
}
