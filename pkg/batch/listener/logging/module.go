package logging

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/infrastructure/artifact"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// Artifact references of the logging listeners.
const (
	StepListenerRef      = "loggingStepListener"
	PartitionAnalyzerRef = "loggingPartitionAnalyzer"
)

// RegisterAllListeners registers the logging artifacts with f.
func RegisterAllListeners(f *artifact.Factory) {
	f.Register(StepListenerRef, func(_ context.Context, ic *proxy.InjectionContext) (interface{}, error) {
		return NewLoggingStepListener(properties(ic)), nil
	})
	f.Register(PartitionAnalyzerRef, func(_ context.Context, ic *proxy.InjectionContext) (interface{}, error) {
		return NewLoggingPartitionAnalyzer(properties(ic)), nil
	})
	logger.Debugf("All logging listeners registered with the artifact factory.")
}

func properties(ic *proxy.InjectionContext) map[string]string {
	if ic == nil {
		return nil
	}
	return ic.Properties
}

// Module registers the logging artifacts on the application's artifact factory.
var Module = fx.Options(
	fx.Invoke(RegisterAllListeners),
)
