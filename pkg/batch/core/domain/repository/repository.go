// Package repository holds the sentinel errors shared by the persistence
// implementations of the step execution core.
package repository

import (
	"errors"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// ErrStepExecutionNotFound is returned when no step execution record has the requested id.
var ErrStepExecutionNotFound = errors.New("step execution not found")

// ErrCheckpointNotFound is returned when no checkpoint is stored under the requested key.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// CloneStepExecution returns a copy of rec that shares no mutable state with it.
func CloneStepExecution(rec *model.StepExecutionRecord) *model.StepExecutionRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	out.ExecutionContext = rec.ExecutionContext.Copy()
	if rec.EndTime != nil {
		end := *rec.EndTime
		out.EndTime = &end
	}
	return &out
}

// CloneCheckpoint returns a copy of cp that shares no mutable state with it.
func CloneCheckpoint(cp *model.CheckpointRecord) *model.CheckpointRecord {
	if cp == nil {
		return nil
	}
	out := *cp
	if cp.Data != nil {
		out.Data = append([]byte(nil), cp.Data...)
	}
	return &out
}
