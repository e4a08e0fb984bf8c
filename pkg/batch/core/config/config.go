// Package config provides the flat, string-keyed configuration consulted by the
// capability registry, the layered loader that builds it, and the typed engine
// settings bound from it.
package config

import (
	"sort"
	"strconv"
	"strings"
)

// Well-known configuration keys.
const (
	KeyLogLevel               = "batchcore.log.level"
	KeyServiceManagerLog      = "batchcore.service-manager.log"
	KeyThreadPoolMaxSize      = "batchcore.threadpool.max-size"
	KeyPartitionQueueCapacity = "batchcore.partition.queue-capacity"
	KeyPersistenceDialect     = "batchcore.persistence.dialect"
	KeyPersistenceDSN         = "batchcore.persistence.dsn"
	KeyTracingExporter        = "batchcore.tracing.exporter"
	KeyTracingEndpoint        = "batchcore.tracing.endpoint"
	KeyDataRepresentation     = "batchcore.data-representation.format"
	KeyMetricsExporter        = "batchcore.metrics.exporter"
	KeyMetricsEndpoint        = "batchcore.metrics.endpoint"
)

// Properties is a flat string-keyed configuration mapping.
// Keys are capability names (fully qualified, then short form) or engine
// setting keys; values are implementation identifiers or setting values.
type Properties map[string]string

// Get returns the value for key, or def when the key is absent.
func (p Properties) Get(key, def string) string {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// GetBool returns the boolean value for key, or def when absent or unparsable.
func (p Properties) GetBool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// GetInt returns the integer value for key, or def when absent or unparsable.
func (p Properties) GetInt(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of src into p, overwriting existing keys.
func (p Properties) Merge(src map[string]string) {
	for k, v := range src {
		p[k] = v
	}
}

// Keys returns the sorted keys of p.
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
