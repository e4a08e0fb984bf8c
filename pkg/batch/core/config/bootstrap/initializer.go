// Package bootstrap assembles a capability registry with every built-in
// provider registered and the default implementations bound.
package bootstrap

import (
	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/metrics"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/core/tx"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/artifact"
	infraMetrics "github.com/tigerroll/stepcore/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/repository/inmemory"
	sqlrepo "github.com/tigerroll/stepcore/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/security"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/threadpool"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/serialization"
)

// Implementation ids of the built-in providers. Any of them can be selected
// in configuration, e.g. "PersistenceManagerService: persistence.gorm".
const (
	ArtifactFactoryBuilders = "artifact.builders"
	ThreadPoolSemaphore     = "threadpool.semaphore"
	PersistenceInMemory     = "persistence.inmemory"
	PersistenceGorm         = "persistence.gorm"
	SecurityAllowAll        = "security.allow-all"
	TransactionNoOp         = "tx.noop"
	TransactionGorm         = "tx.gorm"
	DataRepresentationCodec = "representation.codec"
	MetricsNoOp             = "metrics.noop"
	MetricsPrometheus       = "metrics.prometheus"
	MetricsOTel             = "metrics.otel"
	TracingNoOp             = "tracing.noop"
	TracingOTel             = "tracing.otel"
)

// NewDefaultRegistry creates a registry serving the artifacts registered on
// artifacts. Configuration is loaded on first use.
func NewDefaultRegistry(artifacts *artifact.Factory, opts ...services.Option) *services.Registry {
	if artifacts == nil {
		artifacts = artifact.NewFactory()
	}
	r := services.NewRegistry(opts...)

	r.Provide(ArtifactFactoryBuilders, services.NoArgProvider(func() port.BatchService { return artifacts }))
	r.Provide(ThreadPoolSemaphore, services.NoArgProvider(func() port.BatchService { return threadpool.NewPool(0) }))
	r.Provide(PersistenceInMemory, services.NoArgProvider(func() port.BatchService { return inmemory.NewPersistenceService() }))
	r.Provide(PersistenceGorm, services.NoArgProvider(func() port.BatchService { return sqlrepo.NewGormPersistenceService() }))
	r.Provide(SecurityAllowAll, services.NoArgProvider(func() port.BatchService { return security.NewAllowAll() }))
	r.Provide(TransactionNoOp, services.NoArgProvider(func() port.BatchService { return tx.NewNoOpTransactionManager() }))
	r.Provide(TransactionGorm, services.RegistryProvider(func(reg *services.Registry) port.BatchService {
		return sqlrepo.NewGormTransactionService(reg)
	}))
	r.Provide(DataRepresentationCodec, services.NoArgProvider(func() port.BatchService { return serialization.NewService("") }))
	r.Provide(MetricsNoOp, services.NoArgProvider(func() port.BatchService { return metrics.NewNoOpMetricRecorder() }))
	r.Provide(MetricsPrometheus, services.NoArgProvider(func() port.BatchService { return infraMetrics.NewPrometheusMetricsService() }))
	r.Provide(MetricsOTel, services.NoArgProvider(func() port.BatchService { return infraMetrics.NewOTelMetricsService() }))
	r.Provide(TracingNoOp, services.NoArgProvider(func() port.BatchService { return metrics.NewNoOpTracer() }))
	r.Provide(TracingOTel, services.NoArgProvider(func() port.BatchService { return infraMetrics.NewOTelTracingService() }))

	services.Bind[port.ArtifactFactory](r, ArtifactFactoryBuilders)
	services.Bind[port.ThreadPoolService](r, ThreadPoolSemaphore)
	services.Bind[port.PersistenceManagerService](r, PersistenceInMemory)
	services.Bind[port.SecurityService](r, SecurityAllowAll)
	services.Bind[port.TransactionManagementService](r, TransactionNoOp)
	services.Bind[port.DataRepresentationService](r, DataRepresentationCodec)
	services.Bind[port.MetricsService](r, MetricsNoOp)
	services.Bind[port.TracingService](r, TracingNoOp)
	return r
}
