// Package metrics defines the metric and tracing abstractions used by the step
// controller, together with no-op implementations.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// MetricRecorder records metrics about step attempts.
// Implementations must be safe for concurrent use by partition workers.
type MetricRecorder interface {
	// RecordStepStart records the start of an attempt.
	RecordStepStart(ctx context.Context, sc *model.StepContext)
	// RecordStepEnd records the terminal state of an attempt.
	RecordStepEnd(ctx context.Context, sc *model.StepContext)
	// RecordHook records one listener hook invocation. phase is "before" or "after".
	RecordHook(ctx context.Context, stepName, phase string, err error)
	// RecordPartitionMessage records a message sent to the analyzer hand-off channel.
	RecordPartitionMessage(ctx context.Context, msg model.PartitionMessage)
	// RecordDuration records an arbitrary timed operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
