package proxy

import (
	"context"
	"fmt"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// RefID returns the artifact id of ref, or "" when ref is nil.
func RefID(ref *model.RefElement) string {
	if ref == nil {
		return ""
	}
	return ref.Ref
}

// LoadArtifact loads id and wraps it. An empty id or a missing artifact yields nil, nil.
func LoadArtifact(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar, unwrapped ...string) (*Artifact, error) {
	if id == "" {
		return nil, nil
	}
	raw, err := Load(ctx, factory, id, ic, handle)
	if err != nil || raw == nil {
		return nil, err
	}
	a, err := Wrap(raw, ic, unwrapped...)
	if err != nil {
		return nil, exception.NewFatalError(moduleName, fmt.Sprintf("artifact '%s' cannot be wrapped", id), err)
	}
	return a, nil
}

func create[T any](ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar,
	role port.Role, view func(*Artifact) (T, bool), unwrapped ...string) (T, *Artifact, error) {
	var zero T
	a, err := LoadArtifact(ctx, factory, id, ic, handle, unwrapped...)
	if err != nil || a == nil {
		return zero, nil, err
	}
	v, ok := view(a)
	if !ok {
		return zero, nil, exception.NewFatalErrorf(moduleName, "artifact '%s' (%s) is not a %s", id, a.name, role)
	}
	return v, a, nil
}

// NewDecider loads and wraps a Decider.
func NewDecider(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.Decider, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RoleDecider, (*Artifact).AsDecider)
	return v, err
}

// NewBatchlet loads and wraps a Batchlet.
func NewBatchlet(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.Batchlet, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RoleBatchlet, (*Artifact).AsBatchlet)
	return v, err
}

// NewCheckpointAlgorithm loads and wraps a CheckpointAlgorithm and hands it the
// StepContext of ic when it is StepContextAware.
func NewCheckpointAlgorithm(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.CheckpointAlgorithm, error) {
	v, a, err := create(ctx, factory, id, ic, handle, port.RoleCheckpointAlgorithm, (*Artifact).AsCheckpointAlgorithm)
	if err != nil || a == nil {
		return v, err
	}
	bindStepContext(a, ic)
	return v, nil
}

// bindStepContext hands the StepContext of ic to a StepContextAware artifact.
func bindStepContext(a *Artifact, ic *InjectionContext) {
	if ic == nil || ic.StepContext == nil {
		return
	}
	if aware, ok := a.Raw().(port.StepContextAware); ok {
		aware.SetStepContext(ic.StepContext)
	}
}

// NewItemReader loads and wraps an ItemReader. ReadItem errors, including
// ErrNoMoreItems, are returned as the reader produced them.
func NewItemReader(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.ItemReader, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RoleItemReader, (*Artifact).AsItemReader, "ReadItem")
	return v, err
}

// NewItemProcessor loads and wraps an ItemProcessor. ProcessItem errors are not wrapped.
func NewItemProcessor(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.ItemProcessor, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RoleItemProcessor, (*Artifact).AsItemProcessor, "ProcessItem")
	return v, err
}

// NewItemWriter loads and wraps an ItemWriter. WriteItems errors are not wrapped.
func NewItemWriter(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.ItemWriter, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RoleItemWriter, (*Artifact).AsItemWriter, "WriteItems")
	return v, err
}

// NewPartitionMapper loads and wraps a PartitionMapper.
func NewPartitionMapper(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.PartitionMapper, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RolePartitionMapper, (*Artifact).AsPartitionMapper)
	return v, err
}

// NewPartitionReducer loads and wraps a PartitionReducer.
func NewPartitionReducer(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.PartitionReducer, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RolePartitionReducer, (*Artifact).AsPartitionReducer)
	return v, err
}

// NewPartitionAnalyzer loads and wraps a PartitionAnalyzer.
func NewPartitionAnalyzer(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.PartitionAnalyzer, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RolePartitionAnalyzer, (*Artifact).AsPartitionAnalyzer)
	return v, err
}

// NewPartitionCollector loads and wraps a PartitionCollector.
func NewPartitionCollector(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (port.PartitionCollector, error) {
	v, _, err := create(ctx, factory, id, ic, handle, port.RolePartitionCollector, (*Artifact).AsPartitionCollector)
	return v, err
}

// NewStepListeners loads every listener reference, each with its own properties.
// References the factory cannot find are skipped. StepContextAware listeners
// receive the StepContext of base.
func NewStepListeners(ctx context.Context, factory port.ArtifactFactory, refs []*model.RefElement, base *InjectionContext, handle ReleasableRegistrar) ([]port.StepListener, error) {
	return listeners(ctx, factory, refs, base, handle, port.RoleStepListener, (*Artifact).AsStepListener)
}

// NewJobListeners loads every job listener reference.
func NewJobListeners(ctx context.Context, factory port.ArtifactFactory, refs []*model.RefElement, base *InjectionContext, handle ReleasableRegistrar) ([]port.JobListener, error) {
	return listeners(ctx, factory, refs, base, handle, port.RoleJobListener, (*Artifact).AsJobListener)
}

func listeners[T any](ctx context.Context, factory port.ArtifactFactory, refs []*model.RefElement, base *InjectionContext, handle ReleasableRegistrar,
	role port.Role, view func(*Artifact) (T, bool)) ([]T, error) {
	out := make([]T, 0, len(refs))
	for _, ref := range refs {
		id := RefID(ref)
		if id == "" {
			continue
		}
		ic := base.ForRef(ref)
		v, a, err := create(ctx, factory, id, ic, handle, role, view)
		if err != nil {
			return nil, err
		}
		if a == nil {
			logger.Warnf("Listener '%s' could not be found; it is ignored.", id)
			continue
		}
		bindStepContext(a, ic)
		out = append(out, v)
	}
	return out, nil
}
