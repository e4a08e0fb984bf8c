package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing.
// It doubles as the default metrics capability of the registry.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new NoOpMetricRecorder.
func NewNoOpMetricRecorder() *NoOpMetricRecorder {
	return &NoOpMetricRecorder{}
}

// Init does nothing.
func (r *NoOpMetricRecorder) Init(config.Properties) error { return nil }

func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepContext)            {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepContext)              {}
func (r *NoOpMetricRecorder) RecordHook(context.Context, string, string, error)              {}
func (r *NoOpMetricRecorder) RecordPartitionMessage(context.Context, model.PartitionMessage) {}
func (r *NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new NoOpTracer.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

// Init does nothing.
func (t *NoOpTracer) Init(config.Properties) error { return nil }

// StartStepSpan returns ctx unchanged.
func (t *NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepContext) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error)                  {}
func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)
