package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const (
	moduleName          = "metrics"
	instrumentationName = "github.com/tigerroll/stepcore"
	serviceName         = "stepcore"

	exporterNone     = "none"
	exporterOTLPGRPC = "otlp-grpc"
	exporterOTLPHTTP = "otlp-http"
)

// OTelTracingService is an implementation of port.TracingService using the
// OpenTelemetry SDK. Spans are exported through OTLP when an exporter is configured.
type OTelTracingService struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	processors []sdktrace.SpanProcessor
}

// TracingOption configures an OTelTracingService.
type TracingOption func(*OTelTracingService)

// WithSpanProcessor registers an additional span processor, e.g. a tracetest.SpanRecorder.
func WithSpanProcessor(p sdktrace.SpanProcessor) TracingOption {
	return func(s *OTelTracingService) {
		s.processors = append(s.processors, p)
	}
}

// NewOTelTracingService creates an uninitialized tracing service.
func NewOTelTracingService(opts ...TracingOption) *OTelTracingService {
	s := &OTelTracingService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init builds the tracer provider from the engine settings.
func (s *OTelTracingService) Init(props config.Properties) error {
	settings, err := config.BindSettings(props)
	if err != nil {
		return err
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	exporter, err := newSpanExporter(settings.TracingExporter, settings.TracingEndpoint)
	if err != nil {
		return err
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	for _, p := range s.processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	s.provider = sdktrace.NewTracerProvider(opts...)
	s.tracer = s.provider.Tracer(instrumentationName)
	logger.Debugf("Tracing initialized with exporter '%s'.", settings.TracingExporter)
	return nil
}

func newSpanExporter(kind, endpoint string) (sdktrace.SpanExporter, error) {
	ctx := context.Background()
	switch kind {
	case "", exporterNone:
		return nil, nil
	case exporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to create OTLP gRPC span exporter", err, false, false)
		}
		return exp, nil
	case exporterOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		exp, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to create OTLP HTTP span exporter", err, false, false)
		}
		return exp, nil
	default:
		return nil, exception.NewBatchErrorf(moduleName, "unknown tracing exporter '%s'", kind)
	}
}

// StartStepSpan starts a span for an attempt.
func (s *OTelTracingService) StartStepSpan(ctx context.Context, sc *model.StepContext) (context.Context, func()) {
	if s.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("step %s", sc.StepName),
		trace.WithAttributes(
			attribute.String("batch.job.name", jobName(sc)),
			attribute.String("batch.step.name", sc.StepName),
			attribute.String("batch.step.execution_id", sc.ID),
			attribute.Int("batch.step.partition", sc.PartitionIndex),
		))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.step.status", sc.BatchStatus().String()),
			attribute.String("batch.step.exit_status", sc.ExitStatus().String()),
		)
		span.End()
	}
}

// RecordError records err on the span in ctx and marks it failed.
func (s *OTelTracingService) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records a named event on the span in ctx.
func (s *OTelTracingService) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		attrs = append(attrs, toAttribute(k, v))
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func toAttribute(k string, v interface{}) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case int:
		return attribute.Int(k, val)
	case int64:
		return attribute.Int64(k, val)
	case bool:
		return attribute.Bool(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, fmt.Sprint(val))
	}
}

// Shutdown flushes pending spans and stops the provider.
func (s *OTelTracingService) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}

var (
	_ port.TracingService = (*OTelTracingService)(nil)
	_ port.Shutdowner     = (*OTelTracingService)(nil)
)
