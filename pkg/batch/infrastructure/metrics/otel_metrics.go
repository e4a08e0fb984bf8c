package metrics

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// OTelMetricsService is an OpenTelemetry implementation of port.MetricsService.
// Measurements are pushed through a periodic OTLP reader when an exporter is
// configured; extra readers can be attached with WithReader.
type OTelMetricsService struct {
	provider *sdkmetric.MeterProvider
	readers  []sdkmetric.Reader

	stepStatus        metric.Int64Counter
	stepDuration      metric.Float64Histogram
	hooks             metric.Int64Counter
	partitionMessages metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// MetricsOption configures an OTelMetricsService.
type MetricsOption func(*OTelMetricsService)

// WithReader registers an additional metric reader, e.g. sdkmetric.NewManualReader().
func WithReader(r sdkmetric.Reader) MetricsOption {
	return func(s *OTelMetricsService) {
		s.readers = append(s.readers, r)
	}
}

// NewOTelMetricsService creates an uninitialized metrics service.
func NewOTelMetricsService(opts ...MetricsOption) *OTelMetricsService {
	s := &OTelMetricsService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init builds the meter provider and its instruments from the engine settings.
func (s *OTelMetricsService) Init(props config.Properties) error {
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	exporter, err := newMetricExporter(settings.MetricsExporter, settings.MetricsEndpoint)
	if err != nil {
		return err
	}
	if exporter != nil {
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}
	for _, r := range s.readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	s.provider = sdkmetric.NewMeterProvider(opts...)
	if err := s.createInstruments(s.provider.Meter(instrumentationName)); err != nil {
		return exception.NewBatchError(moduleName, "failed to create metric instruments", err, false, false)
	}
	logger.Debugf("OpenTelemetry metrics initialized with exporter '%s'.", settings.MetricsExporter)
	return nil
}

func (s *OTelMetricsService) createInstruments(meter metric.Meter) error {
	var err error
	if s.stepStatus, err = meter.Int64Counter("batch.step.status",
		metric.WithDescription("Step attempts by status.")); err != nil {
		return err
	}
	if s.stepDuration, err = meter.Float64Histogram("batch.step.duration",
		metric.WithDescription("Duration of step attempts."), metric.WithUnit("s")); err != nil {
		return err
	}
	if s.hooks, err = meter.Int64Counter("batch.step.hooks",
		metric.WithDescription("Listener hook invocations by phase and outcome.")); err != nil {
		return err
	}
	if s.partitionMessages, err = meter.Int64Counter("batch.partition.messages",
		metric.WithDescription("Messages handed off to the partition analyzer.")); err != nil {
		return err
	}
	s.operationDuration, err = meter.Float64Histogram("batch.operation.duration",
		metric.WithDescription("Duration of named engine operations."), metric.WithUnit("s"))
	return err
}

func newMetricExporter(kind, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch kind {
	case "", exporterNone:
		return nil, nil
	case exporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to create OTLP gRPC metric exporter", err, false, false)
		}
		return exp, nil
	case exporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to create OTLP HTTP metric exporter", err, false, false)
		}
		return exp, nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unknown metrics exporter '%s'", kind)
	}
}

func (s *OTelMetricsService) ready() bool {
	return s.provider != nil
}

func stepAttributes(sc *model.StepContext) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("job_name", jobName(sc)),
		attribute.String("step_name", sc.StepName),
		attribute.String("attempt", attemptKind(sc)),
		attribute.String("status", sc.BatchStatus().String()),
	}
}

// RecordStepStart records the start of an attempt.
func (s *OTelMetricsService) RecordStepStart(ctx context.Context, sc *model.StepContext) {
	if !s.ready() {
		return
	}
	s.stepStatus.Add(ctx, 1, metric.WithAttributes(stepAttributes(sc)...))
}

// RecordStepEnd records the terminal state and duration of an attempt.
func (s *OTelMetricsService) RecordStepEnd(ctx context.Context, sc *model.StepContext) {
	if !s.ready() {
		return
	}
	attrs := stepAttributes(sc)
	s.stepStatus.Add(ctx, 1, metric.WithAttributes(attrs...))
	if end := sc.EndTime(); end != nil && !sc.StartTime().IsZero() {
		attrs = append(attrs, attribute.String("exit_status", sc.ExitStatus().String()))
		s.stepDuration.Record(ctx, end.Sub(sc.StartTime()).Seconds(), metric.WithAttributes(attrs...))
	}
}

// RecordHook records one listener hook invocation.
func (s *OTelMetricsService) RecordHook(ctx context.Context, stepName, phase string, err error) {
	if !s.ready() {
		return
	}
	s.hooks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step_name", stepName),
		attribute.String("phase", phase),
		attribute.String("outcome", outcome(err)),
	))
}

// RecordPartitionMessage records a message sent to the analyzer.
func (s *OTelMetricsService) RecordPartitionMessage(ctx context.Context, msg model.PartitionMessage) {
	if !s.ready() {
		return
	}
	s.partitionMessages.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step_name", msg.StepName),
		attribute.String("event_type", strings.ToLower(string(msg.EventType))),
	))
}

// RecordDuration records the execution time of a named operation with tags as attributes.
func (s *OTelMetricsService) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	if !s.ready() {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("name", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	s.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// Shutdown flushes pending measurements and stops the provider.
func (s *OTelMetricsService) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}

var (
	_ port.MetricsService = (*OTelMetricsService)(nil)
	_ port.Shutdowner     = (*OTelMetricsService)(nil)
)
