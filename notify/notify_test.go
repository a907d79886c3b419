package notify

import (
	"testing"

	"github.com/caseflow-io/caseflow/core"
	"github.com/stretchr/testify/require"
)

func Test_Notifiable(t *testing.T) {
	notifiable := []core.EventType{
		core.EventType_StageAssigned,
		core.EventType_EscalationTriggered,
		core.EventType_EscalationOverdue,
		core.EventType_BatchCompleted,
		core.EventType_BatchFailed,
	}

	for _, et := range notifiable {
		require.True(t, Notifiable(et), et.String())
	}

	internal := []core.EventType{
		core.EventType_InstanceStarted,
		core.EventType_InstanceCompleted,
		core.EventType_StageEntered,
		core.EventType_StageCompleted,
		core.EventType_EscalationResolved,
		core.EventType_BatchRetryScheduled,
	}

	for _, et := range internal {
		require.False(t, Notifiable(et), et.String())
	}
}
