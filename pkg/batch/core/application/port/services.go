// Package port defines the contracts of the step execution core: the engine
// capabilities resolved through the capability registry and the roles a
// pluggable artifact can fulfil.
package port

import (
	"context"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/metrics"
)

// BatchService is implemented by every capability the registry hands out.
// Init is called exactly once with the hardened configuration, before the
// instance is published to any caller.
type BatchService interface {
	Init(props config.Properties) error
}

// Shutdowner is implemented by capabilities holding resources that must be
// released when the registry is closed.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ArtifactInstance is the result of an artifact lookup.
type ArtifactInstance struct {
	// Value is the artifact. It may be nil when the lookup legitimately found nothing.
	Value interface{}
	// Releasable, when set, is released when the owning attempt is torn down.
	Releasable Releasable
}

// ArtifactFactory creates artifact instances by reference id.
type ArtifactFactory interface {
	BatchService
	// Load returns the artifact registered under id. An empty id, or an id the
	// factory does not know, yields (nil, nil) or an instance with a nil Value.
	Load(ctx context.Context, id string) (*ArtifactInstance, error)
}

// ThreadPoolService executes units of work such as partition attempts.
type ThreadPoolService interface {
	BatchService
	// ExecuteTask schedules task. It may block until capacity is available and
	// returns an error when ctx is done first or the pool is shut down.
	ExecuteTask(ctx context.Context, task func(ctx context.Context)) error
	// Shutdown stops accepting tasks and waits for running tasks to finish.
	Shutdown(ctx context.Context) error
}

// PersistenceManagerService stores step attempt records and checkpoints.
type PersistenceManagerService interface {
	BatchService
	SaveStepExecution(ctx context.Context, rec *model.StepExecutionRecord) error
	FindStepExecution(ctx context.Context, id string) (*model.StepExecutionRecord, error)
	FindStepExecutionsByJob(ctx context.Context, jobExecutionID string) ([]*model.StepExecutionRecord, error)
	SaveCheckpoint(ctx context.Context, cp *model.CheckpointRecord) error
	LoadCheckpoint(ctx context.Context, stepExecutionID, name string) (*model.CheckpointRecord, error)
}

// SecurityService answers authorization questions for job operations.
type SecurityService interface {
	BatchService
	IsAuthorized(ctx context.Context, jobName string) bool
	CurrentUser(ctx context.Context) string
}

// Transaction is a unit of work started by TransactionManagementService.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManagementService starts transactions around step work.
type TransactionManagementService interface {
	BatchService
	Begin(ctx context.Context) (Transaction, error)
}

// DataRepresentationService converts values such as collector snapshots to and from bytes.
type DataRepresentationService interface {
	BatchService
	ToBytes(v interface{}) ([]byte, error)
	FromBytes(data []byte, out interface{}) error
}

// MetricsService is the metrics capability.
type MetricsService interface {
	BatchService
	metrics.MetricRecorder
}

// TracingService is the tracing capability.
type TracingService interface {
	BatchService
	metrics.Tracer
}
