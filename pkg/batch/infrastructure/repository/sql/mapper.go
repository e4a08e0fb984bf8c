package sql

import (
	"time"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/domain/repository"
)

func toStepExecutionEntity(rec *model.StepExecutionRecord) *StepExecutionEntity {
	r := repository.CloneStepExecution(rec)
	return &StepExecutionEntity{
		ID:               r.ID,
		JobExecutionID:   r.JobExecutionID,
		StepName:         r.StepName,
		PartitionIndex:   r.PartitionIndex,
		BatchStatus:      string(r.BatchStatus),
		ExitStatus:       string(r.ExitStatus),
		Failure:          r.Failure,
		ExecutionContext: r.ExecutionContext,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		LastUpdated:      time.Now(),
	}
}

func fromStepExecutionEntity(e *StepExecutionEntity) *model.StepExecutionRecord {
	ec := e.ExecutionContext
	if ec == nil {
		ec = model.NewExecutionContext()
	}
	return &model.StepExecutionRecord{
		ID:               e.ID,
		JobExecutionID:   e.JobExecutionID,
		StepName:         e.StepName,
		PartitionIndex:   e.PartitionIndex,
		BatchStatus:      model.BatchStatus(e.BatchStatus),
		ExitStatus:       model.ExitStatus(e.ExitStatus),
		Failure:          e.Failure,
		ExecutionContext: ec,
		StartTime:        e.StartTime,
		EndTime:          e.EndTime,
	}
}

func toCheckpointEntity(cp *model.CheckpointRecord) *CheckpointEntity {
	c := repository.CloneCheckpoint(cp)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	return &CheckpointEntity{StepExecutionID: c.StepExecutionID, Name: c.Name, Data: c.Data, UpdatedAt: c.UpdatedAt}
}

func fromCheckpointEntity(e *CheckpointEntity) *model.CheckpointRecord {
	return &model.CheckpointRecord{StepExecutionID: e.StepExecutionID, Name: e.Name, Data: e.Data, UpdatedAt: e.UpdatedAt}
}
