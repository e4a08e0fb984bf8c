package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/semaphore"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/modelresolver"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

type partitionResult struct {
	index int
	sc    *model.StepContext
	err   error
}

// coordinate runs the partitions of a partitioned step on behalf of its
// top-level attempt: it builds the plan, dispatches one attempt per partition
// through the thread pool, feeds the analyzer while they run and drives the
// reducer around the whole.
func (c *StepController) coordinate(ctx context.Context) error {
	p := c.step.Partition

	plan, err := c.partitionPlan(ctx)
	if err != nil {
		return err
	}
	reducer, err := proxy.NewPartitionReducer(ctx, c.factory, proxy.RefID(p.Reducer), c.injectionContext(p.Reducer), c)
	if err != nil {
		return err
	}
	analyzer, err := proxy.NewPartitionAnalyzer(ctx, c.factory, proxy.RefID(p.Analyzer), c.injectionContext(p.Analyzer), c)
	if err != nil {
		return err
	}

	var result *multierror.Error
	if reducer != nil {
		if err := reducer.BeginPartitionedStep(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	// no partition runs once the reducer refused to begin
	if result.ErrorOrNil() == nil {
		var queue *HandoffChannel
		if analyzer != nil {
			queue = NewHandoffChannel(c.queueCapacity())
		}
		if err := c.runPartitions(ctx, plan, queue, analyzer); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if reducer != nil {
		status := model.BatchStatusCompleted
		if result.ErrorOrNil() == nil {
			if err := reducer.BeforePartitionedStepCompletion(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if result.ErrorOrNil() != nil {
			status = model.BatchStatusFailed
			if err := reducer.RollbackPartitionedStep(ctx); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := reducer.AfterPartitionedStepCompletion(ctx, status); err != nil {
			result = multierror.Append(result, err)
		}
	}

	err = result.ErrorOrNil()
	if fe, ok := exception.AsFatal(err); ok {
		return fe
	}
	if result != nil && len(result.Errors) == 1 {
		return result.Errors[0]
	}
	return err
}

// runPartitions dispatches every partition and drains the queue until each
// dispatched partition has finished. It returns an error when a partition
// failed or the analyzer rejected a message.
func (c *StepController) runPartitions(ctx context.Context, plan *model.PartitionPlan, queue *HandoffChannel, analyzer port.PartitionAnalyzer) error {
	n := plan.Partitions
	if n <= 0 {
		logger.Warnf("Step '%s': partition plan has no partitions; nothing to run.", c.step.ID)
		return nil
	}
	pool, err := services.Resolve[port.ThreadPoolService](c.registry)
	if err != nil {
		return err
	}
	logger.Infof("Step '%s': running %d partitions on %d threads.", c.step.ID, n, plan.EffectiveThreads())

	done := make(chan partitionResult, n)
	go c.dispatch(ctx, pool, plan, queue, done)

	var messages <-chan model.PartitionMessage
	if queue != nil {
		messages = queue.Messages()
	}

	var analyzerErr error
	analyze := func(msg model.PartitionMessage) {
		if analyzerErr != nil {
			return
		}
		switch msg.EventType {
		case model.PartitionEventData:
			analyzerErr = analyzer.AnalyzeCollectorData(ctx, msg.Payload)
		case model.PartitionEventStatus:
			analyzerErr = analyzer.AnalyzeStatus(ctx, msg.BatchStatus, msg.ExitStatus)
		}
		if analyzerErr != nil {
			logger.Errorf("Step '%s': analyzer failed on %s: %v", c.step.ID, msg, analyzerErr)
		}
	}

	var failures *multierror.Error
	failed := 0
	for remaining := n; remaining > 0; {
		select {
		case msg := <-messages:
			analyze(msg)
		case r := <-done:
			remaining--
			if r.err == nil && r.sc != nil && r.sc.BatchStatus() == model.BatchStatusFailed {
				r.err = r.sc.Failure()
			}
			if r.err != nil {
				failed++
				failures = multierror.Append(failures, fmt.Errorf("partition %d: %w", r.index, r.err))
			}
		}
	}
	// every STATUS message was sent before its partition reported done
	for drained := queue == nil; !drained; {
		select {
		case msg := <-messages:
			analyze(msg)
		default:
			drained = true
		}
	}

	if err := failures.ErrorOrNil(); err != nil {
		if fe, ok := exception.AsFatal(err); ok {
			return fe
		}
		return exception.NewBatchError(moduleName, fmt.Sprintf("%d of %d partitions of step '%s' failed", failed, n, c.step.ID), err, false, false)
	}
	return analyzerErr
}

// dispatch submits one attempt per partition, at most plan.EffectiveThreads at a time.
// Every partition produces exactly one result on done.
func (c *StepController) dispatch(ctx context.Context, pool port.ThreadPoolService, plan *model.PartitionPlan, queue *HandoffChannel, done chan<- partitionResult) {
	sem := semaphore.NewWeighted(int64(plan.EffectiveThreads()))
	for i := 0; i < plan.Partitions; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			done <- partitionResult{index: i, err: err}
			continue
		}
		child, err := c.newPartition(i, plan.PropertiesFor(i), queue)
		if err != nil {
			sem.Release(1)
			done <- partitionResult{index: i, err: err}
			continue
		}
		index := i
		err = pool.ExecuteTask(ctx, func(ctx context.Context) {
			defer sem.Release(1)
			sc, err := child.Execute(ctx)
			done <- partitionResult{index: index, sc: sc, err: err}
		})
		if err != nil {
			sem.Release(1)
			done <- partitionResult{index: i, err: exception.NewBatchError(moduleName, fmt.Sprintf("failed to dispatch partition %d", i), err, false, false)}
		}
	}
}

// newPartition creates the controller of partition index. The step is copied
// and its partition plan placeholders are resolved against props.
func (c *StepController) newPartition(index int, props map[string]string, queue *HandoffChannel) (*StepController, error) {
	step := c.step.Clone()
	modelresolver.NewFactory(modelresolver.WithPartitionPlan(props)).Step().Resolve(step, c.job.Parameters, c.job.Properties)
	return NewStepController(c.registry, c.job, step, WithPartition(index), WithAnalyzerQueue(queue), WithBody(c.body))
}

func (c *StepController) partitionPlan(ctx context.Context) (*model.PartitionPlan, error) {
	p := c.step.Partition
	if id := proxy.RefID(p.Mapper); id != "" {
		mapper, err := proxy.NewPartitionMapper(ctx, c.factory, id, c.injectionContext(p.Mapper), c)
		if err != nil {
			return nil, err
		}
		if mapper == nil {
			return nil, exception.NewBatchErrorf(moduleName, "partition mapper '%s' of step '%s' could not be found", id, c.step.ID)
		}
		plan, err := mapper.MapPartitions(ctx)
		if err != nil {
			return nil, err
		}
		if plan == nil {
			return nil, exception.NewBatchErrorf(moduleName, "partition mapper '%s' of step '%s' returned no plan", id, c.step.ID)
		}
		return plan, nil
	}
	if p.Plan == nil {
		return nil, exception.NewBatchErrorf(moduleName, "partitioned step '%s' declares neither a mapper nor a plan", c.step.ID)
	}
	return PlanFromDefinition(p.Plan)
}

// PlanFromDefinition converts a resolved static plan into a PartitionPlan.
func PlanFromDefinition(def *model.PartitionPlanDef) (*model.PartitionPlan, error) {
	partitions, err := strconv.Atoi(def.Partitions)
	if err != nil || partitions < 0 {
		return nil, exception.NewBatchErrorf(moduleName, "invalid partition count '%s'", def.Partitions)
	}
	plan := &model.PartitionPlan{Partitions: partitions}
	if def.Threads != "" {
		threads, err := strconv.Atoi(def.Threads)
		if err != nil || threads < 0 {
			return nil, exception.NewBatchErrorf(moduleName, "invalid partition thread count '%s'", def.Threads)
		}
		plan.Threads = threads
	}
	if len(def.Properties) > 0 {
		plan.PartitionProperties = make([]map[string]string, partitions)
		for _, pp := range def.Properties {
			if pp == nil {
				continue
			}
			i, err := strconv.Atoi(pp.Partition)
			if err != nil || i < 0 || i >= partitions {
				return nil, exception.NewBatchErrorf(moduleName, "invalid partition index '%s' for %d partitions", pp.Partition, partitions)
			}
			plan.PartitionProperties[i] = pp.Properties.ToMap()
		}
	}
	return plan, nil
}

func (c *StepController) queueCapacity() int {
	s, err := c.registry.Settings()
	if err != nil {
		return DefaultHandoffCapacity
	}
	return s.PartitionQueueCapacity
}
