package proxy

import (
	"context"
	"fmt"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "proxy"

// ReleasableRegistrar collects the releasable resources of one attempt so they
// can be released when the attempt is torn down.
type ReleasableRegistrar interface {
	AddReleasable(r port.Releasable)
}

// Load asks factory for artifact id while ic is published on the context. The
// factory may legitimately find nothing, in which case Load returns nil, nil.
// Every other failure is fatal.
func Load(ctx context.Context, factory port.ArtifactFactory, id string, ic *InjectionContext, handle ReleasableRegistrar) (interface{}, error) {
	if factory == nil {
		return nil, exception.NewFatalErrorf(moduleName, "no artifact factory available to load '%s'", id)
	}

	inst, err := loadSafely(WithInjectionContext(ctx, ic), factory, id)
	if err != nil {
		if exception.IsFatal(err) {
			return nil, err
		}
		return nil, exception.NewFatalError(moduleName, fmt.Sprintf("failed to load artifact '%s'", id), err)
	}
	if inst == nil {
		logger.Debugf("Artifact '%s' not found; continuing without it.", id)
		return nil, nil
	}
	if inst.Releasable != nil && handle != nil {
		handle.AddReleasable(inst.Releasable)
	}
	return inst.Value, nil
}

func loadSafely(ctx context.Context, factory port.ArtifactFactory, id string) (inst *port.ArtifactInstance, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = exception.FromPanic(moduleName, r)
		}
	}()
	return factory.Load(ctx, id)
}
