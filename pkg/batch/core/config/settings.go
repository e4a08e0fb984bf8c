package config

import (
	"github.com/tigerroll/stepcore/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
)

// EngineSettings is the typed view of the engine-wide configuration keys.
type EngineSettings struct {
	// LogLevel is applied to the global logger when the registry initializes.
	LogLevel string `yaml:"batchcore.log.level"`
	// ServiceManagerLog enables a log line for every capability the registry loads.
	ServiceManagerLog bool `yaml:"batchcore.service-manager.log"`
	// ThreadPoolMaxSize bounds concurrently running partition attempts.
	ThreadPoolMaxSize int `yaml:"batchcore.threadpool.max-size"`
	// PartitionQueueCapacity is the buffer size of the analyzer hand-off channel.
	PartitionQueueCapacity int `yaml:"batchcore.partition.queue-capacity"`
	// PersistenceDialect selects the gorm dialector ("sqlite", "mysql", "postgres").
	PersistenceDialect string `yaml:"batchcore.persistence.dialect"`
	// PersistenceDSN is the data source name for PersistenceDialect.
	PersistenceDSN string `yaml:"batchcore.persistence.dsn"`
	// TracingExporter is one of "none", "otlp-grpc" or "otlp-http".
	TracingExporter string `yaml:"batchcore.tracing.exporter"`
	// TracingEndpoint is the collector endpoint for the OTLP exporters.
	TracingEndpoint string `yaml:"batchcore.tracing.endpoint"`
	// DataRepresentation is "json" or "yaml".
	DataRepresentation string `yaml:"batchcore.data-representation.format"`
	// MetricsExporter is one of "none", "otlp-grpc" or "otlp-http" and is used
	// by the OpenTelemetry metrics service only.
	MetricsExporter string `yaml:"batchcore.metrics.exporter"`
	// MetricsEndpoint is the collector endpoint for the OTLP metric exporters.
	MetricsEndpoint string `yaml:"batchcore.metrics.endpoint"`
}

// DefaultSettings returns the built-in values of the engine setting keys.
func DefaultSettings() Properties {
	return Properties{
		KeyLogLevel:               "INFO",
		KeyServiceManagerLog:      "false",
		KeyThreadPoolMaxSize:      "8",
		KeyPartitionQueueCapacity: "64",
		KeyPersistenceDialect:     "sqlite",
		KeyPersistenceDSN:         "file::memory:?cache=shared",
		KeyTracingExporter:        "none",
		KeyTracingEndpoint:        "",
		KeyDataRepresentation:     "json",
		KeyMetricsExporter:        "none",
		KeyMetricsEndpoint:        "",
	}
}

// BindSettings binds props onto EngineSettings, starting from the defaults.
func BindSettings(props Properties) (*EngineSettings, error) {
	merged := DefaultSettings()
	merged.Merge(props)
	s := &EngineSettings{}
	if err := configbinder.BindProperties(merged, s); err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to bind engine settings", err, false, false)
	}
	return s, nil
}
