// Package redisnotify publishes notification events to a Redis channel.
// Subscribers (mailers, SMS gateways, dashboards) consume from there;
// publishing is best-effort from the core's perspective.
package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caseflow-io/caseflow/core"
	"github.com/caseflow-io/caseflow/notify"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "caseflow:notifications"

type redisNotifier struct {
	client  redis.UniversalClient
	channel string
}

var _ notify.Notifier = (*redisNotifier)(nil)

type Option func(*redisNotifier)

func WithChannel(channel string) Option {
	return func(n *redisNotifier) {
		n.channel = channel
	}
}

func NewRedisNotifier(client redis.UniversalClient, opts ...Option) notify.Notifier {
	n := &redisNotifier{
		client:  client,
		channel: DefaultChannel,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

type envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
	Attributes any       `json:"attributes,omitempty"`
}

func (n *redisNotifier) Notify(ctx context.Context, event core.Event) error {
	payload, err := json.Marshal(envelope{
		ID:         event.ID,
		Type:       event.Type.String(),
		InstanceID: event.InstanceID,
		Timestamp:  event.Timestamp,
		Attributes: event.Attributes,
	})
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	return nil
}
