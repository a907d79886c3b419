package backend

import (
	"context"

	"github.com/caseflow-io/caseflow/core"
)

const TracerName = "caseflow"

// Store is the persistence collaborator of the orchestration core. Saves
// enforce optimistic concurrency: a write against a stale version fails with
// *core.ConflictError and the caller must reload and retry that operation.
type Store interface {
	// LoadInstance returns the instance with the given id, or
	// core.ErrInstanceNotFound.
	LoadInstance(ctx context.Context, id string) (*core.WorkflowInstance, error)

	// SaveInstance persists the instance. A version of zero inserts; any
	// other version must match the stored one. On success the instance's
	// version is advanced in place.
	SaveInstance(ctx context.Context, instance *core.WorkflowInstance) error

	// ListActiveInstances returns the ids of all instances in active status,
	// for the periodic SLA/escalation tick.
	ListActiveInstances(ctx context.Context) ([]string, error)

	// LoadBatch returns the batch job with the given id, or
	// core.ErrBatchNotFound.
	LoadBatch(ctx context.Context, id string) (*core.BatchJob, error)

	// SaveBatch persists the batch job with the same versioning discipline
	// as SaveInstance.
	SaveBatch(ctx context.Context, batch *core.BatchJob) error
}
