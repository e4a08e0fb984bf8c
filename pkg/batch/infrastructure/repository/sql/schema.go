package sql

import (
	"time"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// StepExecutionEntity is the schema model of a step attempt record.
type StepExecutionEntity struct {
	ID               string `gorm:"primaryKey;size:36"`
	JobExecutionID   string `gorm:"index;size:36"`
	StepName         string `gorm:"size:255"`
	PartitionIndex   int
	BatchStatus      string                 `gorm:"size:32"`
	ExitStatus       string                 `gorm:"size:255"`
	Failure          string                 `gorm:"type:text"`
	ExecutionContext model.ExecutionContext `gorm:"type:text"`
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}

// CheckpointEntity is the schema model of a reader or writer checkpoint.
type CheckpointEntity struct {
	StepExecutionID string `gorm:"primaryKey;size:36"`
	Name            string `gorm:"primaryKey;size:64"`
	Data            []byte
	UpdatedAt       time.Time
}

func (CheckpointEntity) TableName() string {
	return "batch_step_checkpoint"
}
