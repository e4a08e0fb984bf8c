// Package artifact provides the default ArtifactFactory: a table of builder
// functions keyed by artifact reference.
package artifact

import (
	"context"
	"sort"
	"sync"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// Builder constructs one artifact instance. ic is the injection context of the
// load and may be nil when the caller published none.
type Builder func(ctx context.Context, ic *proxy.InjectionContext) (interface{}, error)

// Factory is a port.ArtifactFactory backed by registered builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewFactory creates an empty Factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[string]Builder)}
}

// Register registers builder under ref, replacing any previous registration.
func (f *Factory) Register(ref string, builder Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.builders[ref]; exists {
		logger.Warnf("Artifact builder for '%s' already registered. Overwriting.", ref)
	}
	f.builders[ref] = builder
}

// Registered returns the sorted registered references.
func (f *Factory) Registered() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	refs := make([]string, 0, len(f.builders))
	for ref := range f.builders {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Init implements port.BatchService.
func (f *Factory) Init(config.Properties) error {
	return nil
}

// Load builds the artifact registered under id. An unknown id is not an error:
// it yields (nil, nil) so optional artifacts can be left out.
func (f *Factory) Load(ctx context.Context, id string) (*port.ArtifactInstance, error) {
	if id == "" {
		return nil, nil
	}
	f.mu.RLock()
	builder, ok := f.builders[id]
	f.mu.RUnlock()
	if !ok {
		logger.Debugf("No artifact builder registered for '%s'.", id)
		return nil, nil
	}

	ic, _ := proxy.InjectionContextFrom(ctx)
	v, err := builder(ctx, ic)
	if err != nil {
		return nil, err
	}
	inst := &port.ArtifactInstance{Value: v}
	if r, ok := v.(port.Releasable); ok {
		inst.Releasable = r
	}
	return inst, nil
}

var _ port.ArtifactFactory = (*Factory)(nil)
