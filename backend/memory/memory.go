// Package memory provides an in-process Store, used by tests and by
// embedders that do not need durability.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/caseflow-io/caseflow/backend"
	"github.com/caseflow-io/caseflow/core"
)

type memoryStore struct {
	mu sync.Mutex

	// Entities are kept serialized so callers never share memory with the
	// store; every load is an independent copy.
	instances map[string]record
	batches   map[string]record
}

type record struct {
	version int64
	data    []byte
}

var _ backend.Store = (*memoryStore)(nil)

func NewMemoryStore() *memoryStore {
	return &memoryStore{
		instances: map[string]record{},
		batches:   map[string]record{},
	}
}

func (ms *memoryStore) LoadInstance(ctx context.Context, id string) (*core.WorkflowInstance, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	r, ok := ms.instances[id]
	if !ok {
		return nil, core.ErrInstanceNotFound
	}

	var instance core.WorkflowInstance
	if err := json.Unmarshal(r.data, &instance); err != nil {
		return nil, fmt.Errorf("unmarshaling instance: %w", err)
	}

	return &instance, nil
}

func (ms *memoryStore) SaveInstance(ctx context.Context, instance *core.WorkflowInstance) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, exists := ms.instances[instance.ID]

	switch {
	case instance.Version == 0 && exists:
		return &core.ConflictError{ID: instance.ID, Version: instance.Version}
	case instance.Version != 0 && (!exists || stored.version != instance.Version):
		return &core.ConflictError{ID: instance.ID, Version: instance.Version}
	}

	next := instance.Version + 1
	instance.Version = next

	data, err := json.Marshal(instance)
	if err != nil {
		return fmt.Errorf("marshaling instance: %w", err)
	}

	ms.instances[instance.ID] = record{version: next, data: data}

	return nil
}

func (ms *memoryStore) ListActiveInstances(ctx context.Context) ([]string, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var ids []string
	for id, r := range ms.instances {
		var instance core.WorkflowInstance
		if err := json.Unmarshal(r.data, &instance); err != nil {
			return nil, fmt.Errorf("unmarshaling instance %s: %w", id, err)
		}

		if instance.Status == core.InstanceStatusActive {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

func (ms *memoryStore) LoadBatch(ctx context.Context, id string) (*core.BatchJob, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	r, ok := ms.batches[id]
	if !ok {
		return nil, core.ErrBatchNotFound
	}

	var batch core.BatchJob
	if err := json.Unmarshal(r.data, &batch); err != nil {
		return nil, fmt.Errorf("unmarshaling batch: %w", err)
	}

	return &batch, nil
}

func (ms *memoryStore) SaveBatch(ctx context.Context, batch *core.BatchJob) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored, exists := ms.batches[batch.ID]

	switch {
	case batch.Version == 0 && exists:
		return &core.ConflictError{ID: batch.ID, Version: batch.Version}
	case batch.Version != 0 && (!exists || stored.version != batch.Version):
		return &core.ConflictError{ID: batch.ID, Version: batch.Version}
	}

	next := batch.Version + 1
	batch.Version = next

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshaling batch: %w", err)
	}

	ms.batches[batch.ID] = record{version: next, data: data}

	return nil
}
