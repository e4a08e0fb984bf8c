// Package inmemory provides an in-memory implementation of the
// PersistenceManagerService capability. It stores step execution records and
// checkpoints in maps, suitable for testing and for runs that need no durable
// state.
package inmemory

import (
	"context"
	"sync"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// PersistenceService is an in-memory PersistenceManagerService.
type PersistenceService struct {
	stepExecutions map[string]*model.StepExecutionRecord
	checkpoints    map[checkpointKey]*model.CheckpointRecord
	mu             sync.RWMutex
}

type checkpointKey struct {
	stepExecutionID string
	name            string
}

// NewPersistenceService creates an empty PersistenceService.
func NewPersistenceService() *PersistenceService {
	return &PersistenceService{
		stepExecutions: make(map[string]*model.StepExecutionRecord),
		checkpoints:    make(map[checkpointKey]*model.CheckpointRecord),
	}
}

// Init implements port.BatchService. Nothing is configurable.
func (r *PersistenceService) Init(config.Properties) error {
	return nil
}

// Shutdown drops all stored data.
func (r *PersistenceService) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepExecutions = make(map[string]*model.StepExecutionRecord)
	r.checkpoints = make(map[checkpointKey]*model.CheckpointRecord)
	return nil
}

var (
	_ port.PersistenceManagerService = (*PersistenceService)(nil)
	_ port.Shutdowner                = (*PersistenceService)(nil)
)
