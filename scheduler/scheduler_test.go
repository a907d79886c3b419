package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/backend/memory"
	"github.com/caseflow-io/caseflow/engine"
	"github.com/caseflow-io/caseflow/escalation"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var testTemplates = engine.StaticTemplates{
	"claims-standard": {
		ID: "claims-standard",
		Stages: []engine.StageDefinition{
			{ID: "intake", Name: "Intake", ExpectedDuration: 30 * time.Minute},
		},
	},
}

func testScheduler(t *testing.T) (*Scheduler, *engine.Engine, *clock.Mock) {
	t.Helper()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))

	eng := engine.New(memory.NewMemoryStore(),
		engine.WithTemplates(testTemplates),
		engine.WithBackendOptions(backend.WithClock(mc)),
	)
	t.Cleanup(eng.Close)

	matrix := escalation.Matrix{
		Levels: []escalation.Level{
			{Level: 1, TargetEmployees: []string{"supervisor-1"}, Timeout: time.Hour},
			{Level: 2, TargetEmployees: []string{"manager-1"}, Timeout: 2 * time.Hour},
		},
	}

	coordinator := escalation.NewCoordinator(eng, matrix)

	return New(eng, coordinator), eng, mc
}

func startInstance(t *testing.T, eng *engine.Engine, id string) {
	t.Helper()

	ctx := context.Background()

	_, err := eng.CreateInstance(ctx, engine.CreateInstanceOptions{
		InstanceID: id,
		TemplateID: "claims-standard",
	})
	require.NoError(t, err)

	_, _, err = eng.Start(ctx, id, "emp-1")
	require.NoError(t, err)
}

func Test_Tick_EscalatesBreachedInstances(t *testing.T) {
	s, eng, mc := testScheduler(t)
	ctx := context.Background()

	startInstance(t, eng, "i1")
	startInstance(t, eng, "i2")

	mc.Add(31 * time.Minute)

	require.NoError(t, s.Tick(ctx))

	for _, id := range []string{"i1", "i2"} {
		instance, err := eng.Store().LoadInstance(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 1, instance.Escalation.CurrentLevel, id)
		require.Equal(t, "supervisor-1", instance.Escalation.CurrentAssignee, id)
	}
}

func Test_Tick_IsIdempotent(t *testing.T) {
	s, eng, mc := testScheduler(t)
	ctx := context.Background()

	startInstance(t, eng, "i1")
	mc.Add(31 * time.Minute)

	require.NoError(t, s.Tick(ctx))
	require.NoError(t, s.Tick(ctx))

	instance, err := eng.Store().LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, 1, instance.Escalation.CurrentLevel)
	require.Len(t, instance.Escalation.LevelHistory, 1)
}

func Test_Tick_ExhaustedInstanceDoesNotFailSweep(t *testing.T) {
	s, eng, mc := testScheduler(t)
	ctx := context.Background()

	startInstance(t, eng, "i1")
	startInstance(t, eng, "i2")

	// Walk i1 to the top of the matrix.
	mc.Add(31 * time.Minute)
	require.NoError(t, s.Tick(ctx))
	mc.Add(time.Hour)
	require.NoError(t, s.Tick(ctx))

	instance, err := eng.Store().LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, 2, instance.Escalation.CurrentLevel)

	// The level-2 timeout elapses with nowhere left to go. The sweep flags
	// the instance and still finishes without error.
	mc.Add(3 * time.Hour)
	require.NoError(t, s.Tick(ctx))

	instance, err = eng.Store().LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.True(t, instance.Escalation.NeedsAttention)
	require.Equal(t, 2, instance.Escalation.CurrentLevel)

	// i2 walked the same path; the sweep kept serving it throughout.
	other, err := eng.Store().LoadInstance(ctx, "i2")
	require.NoError(t, err)
	require.Equal(t, 2, other.Escalation.CurrentLevel)
}

func Test_Tick_OnlyTouchesActiveInstances(t *testing.T) {
	s, eng, mc := testScheduler(t)
	ctx := context.Background()

	startInstance(t, eng, "i1")

	_, _, err := eng.Pause(ctx, "i1", "emp-1", "on hold")
	require.NoError(t, err)

	mc.Add(2 * time.Hour)

	require.NoError(t, s.Tick(ctx))

	instance, err := eng.Store().LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, 0, instance.Escalation.CurrentLevel)
}

func Test_StartStop(t *testing.T) {
	s, _, _ := testScheduler(t)

	// The engine's lock registry outlives this test body; only goroutines
	// started by the cron runner itself are checked.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	require.NoError(t, s.Start())
	require.Error(t, s.Start())

	s.Stop()

	// Stopping twice is safe.
	s.Stop()

	require.NoError(t, s.Start())
	s.Stop()
}
