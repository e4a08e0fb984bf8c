package metrics_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/metrics"
)

func finishedAttempt(index int, err error) *model.StepContext {
	job := model.NewJobContext("payroll", nil, nil)
	sc := model.NewPartitionStepContext(job, &model.Step{ID: "split"}, index)
	sc.MarkStarted()
	if err != nil {
		sc.MarkFailed(err)
	}
	sc.MarkCompleted()
	return sc
}

func TestPrometheusMetricsService_RecordsStepLifecycle(t *testing.T) {
	m := metrics.NewPrometheusMetricsService()
	require.NoError(t, m.Init(config.Properties{}))
	ctx := context.Background()

	ok := finishedAttempt(0, nil)
	failed := finishedAttempt(1, errors.New("boom"))
	m.RecordStepEnd(ctx, ok)
	m.RecordStepEnd(ctx, failed)
	m.RecordHook(ctx, "split", "before", nil)
	m.RecordHook(ctx, "split", "after", errors.New("listener failed"))
	m.RecordPartitionMessage(ctx, model.NewDataMessage("split", 0, []byte("x")))
	m.RecordPartitionMessage(ctx, model.NewStatusMessage("split", 0, model.BatchStatusCompleted, model.ExitStatusCompleted))
	m.RecordDuration(ctx, "plan", 10*time.Millisecond, nil)

	statusCounter := `
# HELP batch_step_status_total Total number of step attempts by status.
# TYPE batch_step_status_total counter
batch_step_status_total{attempt="partition",job_name="payroll",status="COMPLETED",step_name="split"} 1
batch_step_status_total{attempt="partition",job_name="payroll",status="FAILED",step_name="split"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(statusCounter), "batch_step_status_total"))

	hooks := `
# HELP batch_step_hook_total Total listener hook invocations by phase and outcome.
# TYPE batch_step_hook_total counter
batch_step_hook_total{outcome="failure",phase="after",step_name="split"} 1
batch_step_hook_total{outcome="success",phase="before",step_name="split"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(hooks), "batch_step_hook_total"))

	count, err := testutil.GatherAndCount(m.Registry(), "batch_partition_message_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = testutil.GatherAndCount(m.Registry(), "batch_step_duration_seconds", "batch_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPrometheusMetricsService_Handler(t *testing.T) {
	m := metrics.NewPrometheusMetricsService()
	m.RecordHook(context.Background(), "load", "before", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch_step_hook_total")
}

func TestOTelTracingService_StepSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tr := metrics.NewOTelTracingService(metrics.WithSpanProcessor(recorder))
	require.NoError(t, tr.Init(config.Properties{config.KeyTracingExporter: "none"}))
	t.Cleanup(func() { _ = tr.Shutdown(context.Background()) })

	sc := finishedAttempt(2, nil)
	ctx, end := tr.StartStepSpan(context.Background(), sc)
	tr.RecordEvent(ctx, "collector.sent", map[string]interface{}{"bytes": 12, "step": "split"})
	tr.RecordError(ctx, "controller", errors.New("boom"))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "step split", span.Name())
	assert.Equal(t, otelcodes.Error, span.Status().Code)

	var names []string
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "collector.sent")
	assert.Contains(t, names, "exception")

	attrs := map[string]string{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "payroll", attrs["batch.job.name"])
	assert.Equal(t, "2", attrs["batch.step.partition"])
	assert.Equal(t, "COMPLETED", attrs["batch.step.status"])
}

func TestOTelTracingService_UninitializedIsNoOp(t *testing.T) {
	tr := metrics.NewOTelTracingService()
	ctx := context.Background()
	got, end := tr.StartStepSpan(ctx, finishedAttempt(0, nil))
	end()
	assert.Equal(t, ctx, got)
	assert.NoError(t, tr.Shutdown(ctx))
}

func TestOTelExporters_UnknownKindIsRejected(t *testing.T) {
	err := metrics.NewOTelTracingService().Init(config.Properties{config.KeyTracingExporter: "zipkin"})
	assert.ErrorContains(t, err, "zipkin")

	err = metrics.NewOTelMetricsService().Init(config.Properties{config.KeyMetricsExporter: "statsd"})
	assert.ErrorContains(t, err, "statsd")
}

func TestOTelMetricsService_CollectsMeasurements(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m := metrics.NewOTelMetricsService(metrics.WithReader(reader))
	require.NoError(t, m.Init(config.Properties{}))
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	ctx := context.Background()

	m.RecordStepStart(ctx, finishedAttempt(0, nil))
	m.RecordStepEnd(ctx, finishedAttempt(0, nil))
	m.RecordHook(ctx, "split", "before", nil)
	m.RecordPartitionMessage(ctx, model.NewDataMessage("split", 0, nil))
	m.RecordDuration(ctx, "plan", time.Second, map[string]string{"step": "split"})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	found := map[string]bool{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		found[md.Name] = true
	}
	for _, name := range []string{"batch.step.status", "batch.step.duration", "batch.step.hooks", "batch.partition.messages", "batch.operation.duration"} {
		assert.True(t, found[name], name)
	}
}
