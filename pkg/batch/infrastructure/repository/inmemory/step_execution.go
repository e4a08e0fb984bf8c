package inmemory

import (
	"context"
	"sort"

	"github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
)

// SaveStepExecution inserts or replaces the record with rec.ID.
func (r *PersistenceService) SaveStepExecution(ctx context.Context, rec *model.StepExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Copy to prevent external modification of internal state.
	r.stepExecutions[rec.ID] = repository.CloneStepExecution(rec)
	return nil
}

// FindStepExecution finds a record by id.
func (r *PersistenceService) FindStepExecution(ctx context.Context, id string) (*model.StepExecutionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return repository.CloneStepExecution(rec), nil
}

// FindStepExecutionsByJob returns the records of one job execution ordered by
// start time, then partition index.
func (r *PersistenceService) FindStepExecutionsByJob(ctx context.Context, jobExecutionID string) ([]*model.StepExecutionRecord, error) {
	r.mu.RLock()
	var out []*model.StepExecutionRecord
	for _, rec := range r.stepExecutions {
		if rec.JobExecutionID == jobExecutionID {
			out = append(out, repository.CloneStepExecution(rec))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].PartitionIndex < out[j].PartitionIndex
	})
	return out, nil
}
