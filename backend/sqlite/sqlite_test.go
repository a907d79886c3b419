package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/caseflow-io/caseflow/core"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *sqliteStore {
	t.Helper()

	s := NewInMemoryStore()
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func Test_Instance_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	started := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	instance := &core.WorkflowInstance{
		ID:         "i1",
		TemplateID: "claims-standard",
		CompanyID:  "acme",
		Status:     core.InstanceStatusActive,
		StartedAt:  &started,
		StageExecutions: []core.StageExecution{
			{ID: "e1", StageID: "intake", Status: core.ExecutionStatusInProgress, EnteredAt: started},
		},
		Metadata: core.Bag{"claim_type": core.String("auto")},
	}

	require.NoError(t, s.SaveInstance(ctx, instance))
	require.Equal(t, int64(1), instance.Version)

	loaded, err := s.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Version)
	require.Equal(t, core.InstanceStatusActive, loaded.Status)
	require.Len(t, loaded.StageExecutions, 1)
	require.Equal(t, "auto", loaded.Metadata["claim_type"].Str)
}

func Test_Instance_NotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.LoadInstance(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrInstanceNotFound)
}

func Test_SaveInstance_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1", Status: core.InstanceStatusDraft}))

	a, err := s.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	b, err := s.LoadInstance(ctx, "i1")
	require.NoError(t, err)

	a.Status = core.InstanceStatusActive
	require.NoError(t, s.SaveInstance(ctx, a))
	require.Equal(t, int64(2), a.Version)

	b.Status = core.InstanceStatusCancelled
	err = s.SaveInstance(ctx, b)

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)

	// The failed save left the caller's version untouched for a reload.
	require.Equal(t, int64(1), b.Version)
}

func Test_SaveInstance_DuplicateInsertConflicts(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1"}))

	err := s.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1"})

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func Test_ListActiveInstances(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, tc := range []struct {
		id     string
		status core.InstanceStatus
	}{
		{"a", core.InstanceStatusActive},
		{"b", core.InstanceStatusPaused},
		{"c", core.InstanceStatusActive},
		{"d", core.InstanceStatusCompleted},
	} {
		require.NoError(t, s.SaveInstance(ctx, &core.WorkflowInstance{ID: tc.id, Status: tc.status}))
	}

	ids, err := s.ListActiveInstances(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "c"}, ids)
}

func Test_Batch_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	batch := &core.BatchJob{
		ID:         "b1",
		Operation:  "bulk_cancel",
		TargetIDs:  []string{"i1", "i2"},
		TotalItems: 2,
		Status:     core.BatchStatusQueued,
		MaxRetries: 3,
	}

	require.NoError(t, s.SaveBatch(ctx, batch))

	batch.Status = core.BatchStatusCompleted
	batch.Processed = 2
	batch.Succeeded = 2
	require.NoError(t, s.SaveBatch(ctx, batch))

	loaded, err := s.LoadBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, int64(2), loaded.Version)
	require.Equal(t, core.BatchStatusCompleted, loaded.Status)
	require.Equal(t, 2, loaded.Succeeded)

	_, err = s.LoadBatch(ctx, "missing")
	require.ErrorIs(t, err, core.ErrBatchNotFound)
}
