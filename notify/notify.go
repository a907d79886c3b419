// Package notify defines the fire-and-forget notification boundary. The
// core decides that a notification is warranted and builds the payload;
// delivery transport belongs to the embedding service.
package notify

import (
	"context"

	"github.com/caseflow-io/caseflow/core"
)

// Notifier receives notification-worthy events. Implementations must not
// block the calling operation; queue or drop instead.
type Notifier interface {
	Notify(ctx context.Context, event core.Event) error
}

// Notifiable reports whether an event type warrants a notification to the
// outside world. Internal transition events stay internal.
func Notifiable(t core.EventType) bool {
	switch t {
	case core.EventType_StageAssigned,
		core.EventType_EscalationTriggered,
		core.EventType_EscalationOverdue,
		core.EventType_BatchCompleted,
		core.EventType_BatchFailed:
		return true
	default:
		return false
	}
}

type noopNotifier struct{}

func NewNoopNotifier() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(ctx context.Context, event core.Event) error {
	return nil
}
