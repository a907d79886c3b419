package memory

import (
	"context"
	"testing"

	"github.com/caseflow-io/caseflow/core"
	"github.com/stretchr/testify/require"
)

func Test_SaveInstance_AssignsVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	instance := &core.WorkflowInstance{ID: "i1", Status: core.InstanceStatusDraft}

	require.NoError(t, store.SaveInstance(ctx, instance))
	require.Equal(t, int64(1), instance.Version)

	instance.Status = core.InstanceStatusActive
	require.NoError(t, store.SaveInstance(ctx, instance))
	require.Equal(t, int64(2), instance.Version)

	loaded, err := store.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, core.InstanceStatusActive, loaded.Status)
	require.Equal(t, int64(2), loaded.Version)
}

func Test_SaveInstance_ConflictOnStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1"}))

	stale := &core.WorkflowInstance{ID: "i1", Version: 0}
	err := store.SaveInstance(ctx, stale)

	var conflict *core.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "i1", conflict.ID)
}

func Test_SaveInstance_ConflictOnConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1"}))

	a, err := store.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	b, err := store.LoadInstance(ctx, "i1")
	require.NoError(t, err)

	require.NoError(t, store.SaveInstance(ctx, a))

	var conflict *core.ConflictError
	require.ErrorAs(t, store.SaveInstance(ctx, b), &conflict)
}

func Test_LoadInstance_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.LoadInstance(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrInstanceNotFound)
}

func Test_LoadInstance_ReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "i1", Status: core.InstanceStatusActive}))

	a, err := store.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	a.Status = core.InstanceStatusFailed

	b, err := store.LoadInstance(ctx, "i1")
	require.NoError(t, err)
	require.Equal(t, core.InstanceStatusActive, b.Status)
}

func Test_ListActiveInstances(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "a", Status: core.InstanceStatusActive}))
	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "b", Status: core.InstanceStatusDraft}))
	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "c", Status: core.InstanceStatusActive}))
	require.NoError(t, store.SaveInstance(ctx, &core.WorkflowInstance{ID: "d", Status: core.InstanceStatusCompleted}))

	ids, err := store.ListActiveInstances(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "c"}, ids)
}

func Test_SaveBatch_Versioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	batch := &core.BatchJob{ID: "b1", Status: core.BatchStatusQueued, TargetIDs: []string{"i1"}}
	require.NoError(t, store.SaveBatch(ctx, batch))
	require.Equal(t, int64(1), batch.Version)

	batch.Status = core.BatchStatusProcessing
	require.NoError(t, store.SaveBatch(ctx, batch))

	loaded, err := store.LoadBatch(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, core.BatchStatusProcessing, loaded.Status)

	_, err = store.LoadBatch(ctx, "missing")
	require.ErrorIs(t, err, core.ErrBatchNotFound)
}
