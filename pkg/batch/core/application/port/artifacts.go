package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// ErrNoMoreItems is returned by ItemReader.ReadItem when the input is exhausted.
// It is a control signal, not a failure, and is never wrapped.
var ErrNoMoreItems = errors.New("no more items to read")

// Role names one pluggable-artifact role.
type Role string

const (
	RoleStepListener        Role = "StepListener"
	RoleJobListener         Role = "JobListener"
	RoleDecider             Role = "Decider"
	RoleBatchlet            Role = "Batchlet"
	RoleCheckpointAlgorithm Role = "CheckpointAlgorithm"
	RoleItemReader          Role = "ItemReader"
	RoleItemProcessor       Role = "ItemProcessor"
	RoleItemWriter          Role = "ItemWriter"
	RolePartitionMapper     Role = "PartitionMapper"
	RolePartitionReducer    Role = "PartitionReducer"
	RolePartitionAnalyzer   Role = "PartitionAnalyzer"
	RolePartitionCollector  Role = "PartitionCollector"
)

// RoleDeclarer is implemented by artifacts that declare the roles they fulfil.
// Declared roles are checked against the artifact's method set when it is wrapped.
type RoleDeclarer interface {
	DeclaredRoles() []Role
}

// Releasable is a resource attached to an artifact that is released at attempt teardown.
type Releasable interface {
	Release() error
}

// StepListener receives step-level lifecycle callbacks on the top-level attempt.
type StepListener interface {
	BeforeStep(ctx context.Context) error
	AfterStep(ctx context.Context) error
}

// JobListener receives job-level lifecycle callbacks.
type JobListener interface {
	BeforeJob(ctx context.Context) error
	AfterJob(ctx context.Context) error
}

// Decider chooses the exit status of a decision element.
type Decider interface {
	Decide(ctx context.Context, executions []*model.StepContext) (string, error)
}

// Batchlet is a task-oriented step body.
type Batchlet interface {
	Process(ctx context.Context) (string, error)
	Stop(ctx context.Context) error
}

// CheckpointAlgorithm decides when a chunk checkpoint is taken.
type CheckpointAlgorithm interface {
	CheckpointTimeout(ctx context.Context) (int, error)
	BeginCheckpoint(ctx context.Context) error
	IsReadyToCheckpoint(ctx context.Context) (bool, error)
	EndCheckpoint(ctx context.Context) error
}

// StepContextAware artifacts receive the StepContext of the attempt they serve.
type StepContextAware interface {
	SetStepContext(sc *model.StepContext)
}

// ItemReader reads items one at a time. ReadItem returns ErrNoMoreItems at end of input.
type ItemReader interface {
	Open(ctx context.Context, checkpoint []byte) error
	ReadItem(ctx context.Context) (interface{}, error)
	CheckpointInfo(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// ItemProcessor transforms an item. A nil result filters the item out.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, item interface{}) (interface{}, error)
}

// ItemWriter writes a chunk of items.
type ItemWriter interface {
	Open(ctx context.Context, checkpoint []byte) error
	WriteItems(ctx context.Context, items []interface{}) error
	CheckpointInfo(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// PartitionMapper computes the partition plan of a partitioned step.
type PartitionMapper interface {
	MapPartitions(ctx context.Context) (*model.PartitionPlan, error)
}

// PartitionReducer receives callbacks around the whole partitioned step.
type PartitionReducer interface {
	BeginPartitionedStep(ctx context.Context) error
	BeforePartitionedStepCompletion(ctx context.Context) error
	RollbackPartitionedStep(ctx context.Context) error
	AfterPartitionedStepCompletion(ctx context.Context, status model.BatchStatus) error
}

// PartitionAnalyzer consumes partition messages on the coordinating attempt.
type PartitionAnalyzer interface {
	AnalyzeCollectorData(ctx context.Context, data []byte) error
	AnalyzeStatus(ctx context.Context, batchStatus model.BatchStatus, exitStatus model.ExitStatus) error
}

// PartitionCollector produces a progress snapshot on a partition attempt.
type PartitionCollector interface {
	CollectPartitionData(ctx context.Context) (interface{}, error)
}
