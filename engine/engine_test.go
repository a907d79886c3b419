package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/backend/memory"
	"github.com/caseflow-io/caseflow/core"
	"github.com/stretchr/testify/require"
)

var testTemplates = StaticTemplates{
	"claims-standard": {
		ID:   "claims-standard",
		Name: "Standard claim",
		Stages: []StageDefinition{
			{ID: "intake", Name: "Intake", ExpectedDuration: 30 * time.Minute, DefaultAssignee: "emp-intake"},
			{ID: "review", Name: "Review", ExpectedDuration: 2 * time.Hour},
			{ID: "payout", Name: "Payout", ExpectedDuration: time.Hour},
		},
	},
}

func testEngine(t *testing.T) (*Engine, *clock.Mock) {
	t.Helper()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))

	e := New(memory.NewMemoryStore(),
		WithTemplates(testTemplates),
		WithBackendOptions(backend.WithClock(mc)),
	)
	t.Cleanup(e.Close)

	return e, mc
}

func createStarted(t *testing.T, e *Engine) *core.WorkflowInstance {
	t.Helper()

	ctx := context.Background()

	instance, err := e.CreateInstance(ctx, CreateInstanceOptions{
		InstanceID:  "i1",
		TemplateID:  "claims-standard",
		CompanyID:   "acme",
		InitiatedBy: "emp-1",
		Priority:    core.PriorityMedium,
	})
	require.NoError(t, err)

	instance, _, err = e.Start(ctx, instance.ID, "emp-1")
	require.NoError(t, err)

	return instance
}

func Test_CreateInstance(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	instance, err := e.CreateInstance(ctx, CreateInstanceOptions{
		TemplateID:  "claims-standard",
		CompanyID:   "acme",
		InitiatedBy: "emp-1",
	})
	require.NoError(t, err)

	require.NotEmpty(t, instance.ID)
	require.Equal(t, core.InstanceStatusDraft, instance.Status)
	require.Equal(t, 3, instance.TotalStages)
	require.Empty(t, instance.StageExecutions)
	require.Nil(t, instance.CurrentStage)
	require.Equal(t, int64(1), instance.Version)
}

func Test_CreateInstance_UnknownTemplate(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.CreateInstance(context.Background(), CreateInstanceOptions{TemplateID: "nope"})
	require.ErrorIs(t, err, ErrTemplateNotFound)
}

func Test_Start_OpensFirstStage(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	require.Equal(t, core.InstanceStatusActive, instance.Status)
	require.NotNil(t, instance.StartedAt)
	require.Len(t, instance.StageExecutions, 1)

	active := instance.ActiveExecution()
	require.NotNil(t, active)
	require.Equal(t, "intake", active.StageID)
	require.Equal(t, core.ExecutionStatusInProgress, active.Status)

	// Default assignee applies automatically on entry.
	require.Equal(t, "emp-intake", active.AssigneeID)
	require.Equal(t, core.AssignmentMethodAutomatic, active.AssignmentMethod)

	// SLA clock started from the template's expected duration.
	require.NotNil(t, active.SLA.ExpectedCompletion)
	require.Equal(t, active.EnteredAt.Add(30*time.Minute), *active.SLA.ExpectedCompletion)

	require.NotNil(t, instance.CurrentStage)
	require.Equal(t, "intake", instance.CurrentStage.StageID)
	require.Equal(t, "emp-intake", instance.CurrentStage.AssigneeID)
}

func Test_Start_Events(t *testing.T) {
	e, _ := testEngine(t)
	ctx := context.Background()

	instance, err := e.CreateInstance(ctx, CreateInstanceOptions{InstanceID: "i1", TemplateID: "claims-standard"})
	require.NoError(t, err)

	_, events, err := e.Start(ctx, instance.ID, "emp-1")
	require.NoError(t, err)

	require.Len(t, events, 3)
	require.Equal(t, core.EventType_InstanceStarted, events[0].Type)
	require.Equal(t, core.EventType_StageAssigned, events[1].Type)
	require.Equal(t, core.EventType_StageEntered, events[2].Type)
}

func Test_Start_RequiresDraft(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	_, _, err := e.Start(context.Background(), instance.ID, "emp-1")

	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func Test_MoveToStage(t *testing.T) {
	e, mc := testEngine(t)
	instance := createStarted(t, e)

	mc.Add(20 * time.Minute)

	instance, events, err := e.MoveToStage(context.Background(), instance.ID, "review", "", "emp-1", "intake done")
	require.NoError(t, err)

	require.Equal(t, 1, instance.CompletedStages)
	require.Len(t, instance.StageExecutions, 2)

	// Exactly one in-progress execution at any time.
	inProgress := 0
	for _, ex := range instance.StageExecutions {
		if ex.Status == core.ExecutionStatusInProgress {
			inProgress++
		}
	}
	require.Equal(t, 1, inProgress)

	closed := instance.ExecutionForStage("intake")
	require.Equal(t, core.ExecutionStatusCompleted, closed.Status)
	require.NotNil(t, closed.SLA.ActualDuration)
	require.Equal(t, 20*time.Minute, *closed.SLA.ActualDuration)

	active := instance.ActiveExecution()
	require.Equal(t, "review", active.StageID)
	require.Equal(t, "Review", active.StageName)

	require.Len(t, instance.Transitions, 1)
	require.Equal(t, "intake", instance.Transitions[0].FromStageID)
	require.Equal(t, "review", instance.Transitions[0].ToStageID)

	require.Len(t, events, 2)
	require.Equal(t, core.EventType_StageCompleted, events[0].Type)
	require.Equal(t, core.EventType_StageEntered, events[1].Type)

	entered := events[1].Attributes.(*core.StageEnteredAttributes)
	require.Equal(t, "intake", entered.FromStageID)
	require.Equal(t, "emp-1", entered.TriggeredBy)
}

func Test_MoveToStage_UnknownStageGetsNoSLA(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	instance, _, err := e.MoveToStage(context.Background(), instance.ID, "ad-hoc", "Ad hoc", "emp-1", "")
	require.NoError(t, err)

	active := instance.ActiveExecution()
	require.Equal(t, "ad-hoc", active.StageID)
	require.Nil(t, active.SLA.ExpectedCompletion)
}

func Test_MoveToStage_RequiresActive(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	_, _, err := e.Pause(ctx, instance.ID, "emp-1", "waiting on documents")
	require.NoError(t, err)

	_, _, err = e.MoveToStage(ctx, instance.ID, "review", "", "emp-1", "")

	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func Test_Complete(t *testing.T) {
	e, mc := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	mc.Add(time.Hour)

	instance, events, err := e.Complete(ctx, instance.ID, "emp-2")
	require.NoError(t, err)

	require.Equal(t, core.InstanceStatusCompleted, instance.Status)
	require.NotNil(t, instance.CompletedAt)
	require.Nil(t, instance.CurrentStage)
	require.Nil(t, instance.ActiveExecution())
	require.Equal(t, 1, instance.CompletedStages)

	require.NotNil(t, instance.TotalDuration)
	require.Equal(t, time.Hour, *instance.TotalDuration)

	require.Equal(t, core.EventType_InstanceCompleted, events[len(events)-1].Type)

	// Terminal means terminal.
	_, _, err = e.Complete(ctx, instance.ID, "emp-2")
	require.ErrorIs(t, err, core.ErrTerminalInstance)

	_, _, err = e.Cancel(ctx, instance.ID, "emp-2", "")
	require.ErrorIs(t, err, core.ErrTerminalInstance)
}

func Test_Cancel_ClosesStageAsCancelled(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	instance, events, err := e.Cancel(context.Background(), instance.ID, "emp-1", "duplicate claim")
	require.NoError(t, err)

	require.Equal(t, core.InstanceStatusCancelled, instance.Status)
	require.Equal(t, 0, instance.CompletedStages)

	execution := instance.ExecutionForStage("intake")
	require.Equal(t, core.ExecutionStatusCancelled, execution.Status)

	// Cancelled stage closes without a stage-completed event.
	require.Len(t, events, 1)
	require.Equal(t, core.EventType_InstanceCancelled, events[0].Type)
}

func Test_PauseResume(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	instance, _, err := e.Pause(ctx, instance.ID, "emp-1", "waiting on insurer")
	require.NoError(t, err)
	require.Equal(t, core.InstanceStatusPaused, instance.Status)

	// Pausing twice is not legal.
	_, _, err = e.Pause(ctx, instance.ID, "emp-1", "")
	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)

	instance, _, err = e.Resume(ctx, instance.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, core.InstanceStatusActive, instance.Status)

	// The stage stayed in progress across the pause.
	require.NotNil(t, instance.ActiveExecution())
}

func Test_Pause_KeepsSLARunning(t *testing.T) {
	e, mc := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	_, _, err := e.Pause(ctx, instance.ID, "emp-1", "")
	require.NoError(t, err)

	mc.Add(time.Hour)

	instance, _, err = e.Resume(ctx, instance.ID, "emp-1")
	require.NoError(t, err)

	active := instance.ActiveExecution()
	status := e.Evaluator().Evaluate(active, mc.Now())
	require.Equal(t, core.SLAStatusBreached, status)
}

func Test_Fail(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	instance, events, err := e.Fail(context.Background(), instance.ID, "template misconfigured")
	require.NoError(t, err)

	require.Equal(t, core.InstanceStatusFailed, instance.Status)
	require.Equal(t, core.ExecutionStatusFailed, instance.ExecutionForStage("intake").Status)
	require.Equal(t, core.EventType_InstanceFailed, events[len(events)-1].Type)
}

func Test_AssignStage_Idempotent(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	instance, events, err := e.AssignStage(ctx, instance.ID, "intake", "emp-7", core.AssignmentMethodManual)
	require.NoError(t, err)

	require.Equal(t, "emp-7", instance.ActiveExecution().AssigneeID)
	require.Equal(t, "emp-7", instance.CurrentStage.AssigneeID)
	require.Len(t, events, 1)
	require.Equal(t, core.EventType_StageAssigned, events[0].Type)

	// Same assignee again: state unchanged except the timestamp, no event.
	instance, events, err = e.AssignStage(ctx, instance.ID, "intake", "emp-7", core.AssignmentMethodManual)
	require.NoError(t, err)
	require.Empty(t, events)
	require.Equal(t, "emp-7", instance.ActiveExecution().AssigneeID)
}

func Test_AssignStage_UnvisitedStageCreatesPendingExecution(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)

	instance, _, err := e.AssignStage(context.Background(), instance.ID, "payout", "emp-9", core.AssignmentMethodManual)
	require.NoError(t, err)

	execution := instance.ExecutionForStage("payout")
	require.NotNil(t, execution)
	require.Equal(t, core.ExecutionStatusPending, execution.Status)
	require.Equal(t, "emp-9", execution.AssigneeID)

	// Pre-assignment never disturbs the active stage.
	require.Equal(t, "intake", instance.ActiveExecution().StageID)
}

func Test_AssignStage_TerminalInstance(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	_, _, err := e.Cancel(ctx, instance.ID, "emp-1", "")
	require.NoError(t, err)

	_, _, err = e.AssignStage(ctx, instance.ID, "intake", "emp-7", core.AssignmentMethodManual)
	require.ErrorIs(t, err, core.ErrTerminalInstance)
}

func Test_Mutate_ConcurrentAssignsSerialize(t *testing.T) {
	e, _ := testEngine(t)
	instance := createStarted(t, e)
	ctx := context.Background()

	assignees := []string{"emp-a", "emp-b", "emp-c", "emp-d", "emp-e"}

	var wg sync.WaitGroup
	for _, assignee := range assignees {
		wg.Add(1)
		go func(assignee string) {
			defer wg.Done()

			_, _, err := e.AssignStage(ctx, instance.ID, "intake", assignee, core.AssignmentMethodManual)
			require.NoError(t, err)
		}(assignee)
	}
	wg.Wait()

	final, err := e.Store().LoadInstance(ctx, instance.ID)
	require.NoError(t, err)

	// All writes landed; the final assignee is one of the contenders.
	require.Contains(t, assignees, final.ActiveExecution().AssigneeID)
	require.Len(t, final.StageExecutions, 1)
}

// recordingSink captures audit entries for assertions.
type recordingSink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *recordingSink) Record(ctx context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, entry)

	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func Test_Mutate_NoopSkipsSaveAndAudit(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))

	sink := &recordingSink{}

	e := New(memory.NewMemoryStore(),
		WithTemplates(testTemplates),
		WithAuditSink(sink),
		WithBackendOptions(backend.WithClock(mc)),
	)
	t.Cleanup(e.Close)

	instance := createStarted(t, e)
	ctx := context.Background()

	version := instance.Version
	recorded := sink.len()

	// A mutation that touches nothing leaves no trace: no version bump, no
	// audit entry, no events.
	for i := 0; i < 3; i++ {
		result, events, err := e.Mutate(ctx, instance.ID, audit.ActionEscalated, "", func(instance *core.WorkflowInstance) ([]core.Event, error) {
			return nil, nil
		})
		require.NoError(t, err)
		require.Empty(t, events)
		require.Equal(t, version, result.Version)
	}

	stored, err := e.Store().LoadInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.Equal(t, version, stored.Version)
	require.Equal(t, recorded, sink.len())
}

// conflictingStore injects one stale-write conflict on the first save to
// exercise the reload-and-retry path.
type conflictingStore struct {
	backend.Store

	mu        sync.Mutex
	conflicts int
	injected  bool
}

func (cs *conflictingStore) SaveInstance(ctx context.Context, instance *core.WorkflowInstance) error {
	cs.mu.Lock()
	inject := !cs.injected && instance.Version > 0
	if inject {
		cs.injected = true
		cs.conflicts++
	}
	cs.mu.Unlock()

	if inject {
		return &core.ConflictError{ID: instance.ID, Version: instance.Version}
	}

	return cs.Store.SaveInstance(ctx, instance)
}

func Test_Mutate_RetriesConflictOnce(t *testing.T) {
	mc := clock.NewMock()
	mc.Set(time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC))

	cs := &conflictingStore{Store: memory.NewMemoryStore()}

	e := New(cs,
		WithTemplates(testTemplates),
		WithBackendOptions(backend.WithClock(mc)),
	)
	t.Cleanup(e.Close)

	ctx := context.Background()

	instance, err := e.CreateInstance(ctx, CreateInstanceOptions{InstanceID: "i1", TemplateID: "claims-standard"})
	require.NoError(t, err)

	// The injected conflict is absorbed by the single retry.
	instance, _, err = e.Start(ctx, instance.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, core.InstanceStatusActive, instance.Status)
	require.Equal(t, 1, cs.conflicts)
}
