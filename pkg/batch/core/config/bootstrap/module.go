package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/stepcore/pkg/batch/core/config"
	"github.com/tigerroll/stepcore/pkg/batch/core/config/jsl"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/artifact"
	"github.com/tigerroll/stepcore/pkg/batch/listener/logging"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// RegistryParams defines the inputs of NewRegistry.
type RegistryParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Loader    *config.Loader
	Artifacts *artifact.Factory
	Overrides map[string]string `name:"configOverrides" optional:"true"`
}

// NewRegistry is an Fx provider for the capability registry. The configuration
// is hardened when the application starts and the registry is closed when it stops.
func NewRegistry(p RegistryParams) *services.Registry {
	r := NewDefaultRegistry(p.Artifacts, services.WithLoader(p.Loader))
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := r.Initialize(p.Overrides); err != nil {
				return err
			}
			logger.Infof("Capability registry ready.")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Infof("Closing capability registry.")
			return r.Close(ctx)
		},
	})
	return r
}

// Module provides the configuration loader, the artifact factory, the job
// definitions and the capability registry. The logging artifacts are
// registered on the factory.
var Module = fx.Options(
	config.Module,
	fx.Provide(
		artifact.NewFactory,
		jsl.NewDefinitions,
		NewRegistry,
	),
	logging.Module,
)
