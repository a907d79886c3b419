// Package metrics defines the metrics client the orchestration core emits
// through. Embedders plug in their own implementation; the default is a
// no-op.
package metrics

import "time"

type Tags map[string]string

// Client is implemented by the embedding service's metrics backend.
type Client interface {
	// Counter records value occurrences of a countable event.
	Counter(name string, tags Tags, value float64)

	// Distribution tracks value as one sample of a statistical
	// distribution.
	Distribution(name string, tags Tags, value float64)

	// Timing reports an elapsed duration.
	Timing(name string, tags Tags, duration time.Duration)

	// WithTags returns a client that adds the given tags to every metric
	// it emits.
	WithTags(tags Tags) Client
}
