package controller

import (
	"context"

	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// Body is the work an attempt performs between its pre and post hooks.
type Body interface {
	Run(ctx context.Context, c *StepController) error
}

// BodyFunc adapts a function to Body.
type BodyFunc func(ctx context.Context, c *StepController) error

// Run implements Body.
func (f BodyFunc) Run(ctx context.Context, c *StepController) error {
	return f(ctx, c)
}

// BatchletBody runs the step's batchlet, if any, and then hands the collector's
// snapshot to the analyzer. A returned exit status other than "" becomes the
// attempt's exit status.
type BatchletBody struct{}

// Run implements Body.
func (BatchletBody) Run(ctx context.Context, c *StepController) error {
	step := c.Step()
	if id := proxy.RefID(step.Batchlet); id != "" {
		b, err := proxy.NewBatchlet(ctx, c.factory, id, c.injectionContext(step.Batchlet), c)
		if err != nil {
			return err
		}
		if b == nil {
			return exception.NewBatchErrorf(moduleName, "batchlet '%s' of step '%s' could not be found", id, step.ID)
		}
		exit, err := b.Process(ctx)
		if err != nil {
			return err
		}
		if exit != "" {
			c.sc.SetExitStatus(model.ExitStatus(exit))
		}
	} else {
		logger.Debugf("Step '%s' declares no batchlet; nothing to process.", step.ID)
	}
	return c.CollectIfConfigured(ctx)
}

var _ Body = BatchletBody{}
