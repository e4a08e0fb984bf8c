// Package metrics provides the Prometheus and OpenTelemetry implementations of
// the metrics and tracing capabilities.
package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// PrometheusMetricsService is a Prometheus implementation of port.MetricsService.
// Every instance owns its registry so several can coexist in one process.
type PrometheusMetricsService struct {
	registry *prometheus.Registry

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	hookCounter         *prometheus.CounterVec
	partitionMessages   *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
}

// NewPrometheusMetricsService creates a PrometheusMetricsService with Go runtime
// and process collectors registered.
func NewPrometheusMetricsService() *PrometheusMetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusMetricsService{
		registry: registry,
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of step attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "attempt", "status", "exit_status"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_status_total",
			Help: "Total number of step attempts by status.",
		}, []string{"job_name", "step_name", "attempt", "status"}),
		hookCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_step_hook_total",
			Help: "Total listener hook invocations by phase and outcome.",
		}, []string{"step_name", "phase", "outcome"}),
		partitionMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_partition_message_total",
			Help: "Total messages handed off to the partition analyzer.",
		}, []string{"step_name", "event_type"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named engine operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}

	registry.MustRegister(r.stepDurationSeconds)
	registry.MustRegister(r.stepStatusCounter)
	registry.MustRegister(r.hookCounter)
	registry.MustRegister(r.partitionMessages)
	registry.MustRegister(r.operationDuration)

	return r
}

// Init implements port.BatchService.
func (r *PrometheusMetricsService) Init(config.Properties) error {
	return nil
}

// Registry returns the Prometheus registry.
func (r *PrometheusMetricsService) Registry() *prometheus.Registry {
	return r.registry
}

// Handler exposes the registry in the Prometheus text format.
func (r *PrometheusMetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordStepStart records the start of an attempt.
func (r *PrometheusMetricsService) RecordStepStart(ctx context.Context, sc *model.StepContext) {
	r.stepStatusCounter.WithLabelValues(jobName(sc), sc.StepName, attemptKind(sc), sc.BatchStatus().String()).Inc()
	logger.Debugf("Metrics: Step '%s' started.", sc.StepName)
}

// RecordStepEnd records the terminal state and duration of an attempt.
func (r *PrometheusMetricsService) RecordStepEnd(ctx context.Context, sc *model.StepContext) {
	status := sc.BatchStatus().String()
	r.stepStatusCounter.WithLabelValues(jobName(sc), sc.StepName, attemptKind(sc), status).Inc()

	end := sc.EndTime()
	if end == nil || sc.StartTime().IsZero() {
		return
	}
	duration := end.Sub(sc.StartTime()).Seconds()
	r.stepDurationSeconds.WithLabelValues(
		jobName(sc),
		sc.StepName,
		attemptKind(sc),
		status,
		sc.ExitStatus().String(),
	).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", sc.StepName, duration)
}

// RecordHook records one listener hook invocation.
func (r *PrometheusMetricsService) RecordHook(ctx context.Context, stepName, phase string, err error) {
	r.hookCounter.WithLabelValues(stepName, phase, outcome(err)).Inc()
}

// RecordPartitionMessage records a message sent to the analyzer.
func (r *PrometheusMetricsService) RecordPartitionMessage(ctx context.Context, msg model.PartitionMessage) {
	r.partitionMessages.WithLabelValues(msg.StepName, strings.ToLower(string(msg.EventType))).Inc()
}

// RecordDuration records the execution time of a named operation. Tags are not
// used as labels.
func (r *PrometheusMetricsService) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func jobName(sc *model.StepContext) string {
	if sc.Job == nil {
		return ""
	}
	return sc.Job.JobName
}

func attemptKind(sc *model.StepContext) string {
	if sc.IsPartition() {
		return "partition"
	}
	return "top-level"
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

var _ port.MetricsService = (*PrometheusMetricsService)(nil)
