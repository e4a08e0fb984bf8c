package metrics

import (
	"context"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// Tracer integrates step attempts with a distributed tracing system.
type Tracer interface {
	// StartStepSpan starts a span for an attempt. The returned function ends it
	// and should be deferred.
	StartStepSpan(ctx context.Context, sc *model.StepContext) (context.Context, func())

	// RecordError records err on the span in ctx.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records a named event on the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
