package inmemory

import (
	"context"
	"time"

	"github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
)

// SaveCheckpoint persists checkpoint data, overwriting any existing data for the same key.
func (r *PersistenceService) SaveCheckpoint(ctx context.Context, cp *model.CheckpointRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := repository.CloneCheckpoint(cp)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	r.checkpoints[checkpointKey{cp.StepExecutionID, cp.Name}] = stored
	return nil
}

// LoadCheckpoint returns the checkpoint stored for the step execution under name.
func (r *PersistenceService) LoadCheckpoint(ctx context.Context, stepExecutionID, name string) (*model.CheckpointRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp, ok := r.checkpoints[checkpointKey{stepExecutionID, name}]
	if !ok {
		return nil, repository.ErrCheckpointNotFound
	}
	return repository.CloneCheckpoint(cp), nil
}
