// Package controller drives one step attempt: the top-level attempt of a step,
// or one partition of a partitioned step. The same state machine serves both:
//
//	CREATED -> ARTIFACTS_READY -> PRE_HOOKS_RUN -> BODY_RUN -> POST_HOOKS_RUN -> TERMINAL
//
// Step listeners run on the top-level attempt only. The top-level attempt of a
// partitioned step coordinates its partitions instead of running the body.
package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/core/metrics"
	"github.com/tigerroll/stepcore/pkg/batch/core/proxy"
	"github.com/tigerroll/stepcore/pkg/batch/core/services"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/exception"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

const moduleName = "controller"

// State is the lifecycle state of an attempt.
type State int32

const (
	StateCreated State = iota
	StateArtifactsReady
	StatePreHooksRun
	StateBodyRun
	StatePostHooksRun
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateArtifactsReady:
		return "ARTIFACTS_READY"
	case StatePreHooksRun:
		return "PRE_HOOKS_RUN"
	case StateBodyRun:
		return "BODY_RUN"
	case StatePostHooksRun:
		return "POST_HOOKS_RUN"
	case StateTerminal:
		return "TERMINAL"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Option configures a StepController.
type Option func(*StepController)

// WithPartition makes the controller run partition index of its step.
func WithPartition(index int) Option {
	return func(c *StepController) { c.partitionIndex = index }
}

// WithAnalyzerQueue sets the channel DATA and STATUS messages are sent to.
// Without one, collector snapshots are discarded and no status is reported.
func WithAnalyzerQueue(h *HandoffChannel) Option {
	return func(c *StepController) { c.handoff = h }
}

// WithBody replaces the default BatchletBody.
func WithBody(b Body) Option {
	return func(c *StepController) {
		if b != nil {
			c.body = b
		}
	}
}

// StepController owns exactly one StepContext and drives it to a terminal state.
type StepController struct {
	registry       *services.Registry
	job            *model.JobContext
	step           *model.Step
	sc             *model.StepContext
	partitionIndex int
	handoff        *HandoffChannel
	body           Body

	factory        port.ArtifactFactory
	persistence    port.PersistenceManagerService
	representation port.DataRepresentationService
	recorder       metrics.MetricRecorder
	tracer         metrics.Tracer

	state     atomic.Int32
	started   atomic.Bool
	listeners []port.StepListener
	collector port.PartitionCollector
	fatal     error

	mu          sync.Mutex
	releasables []port.Releasable
}

// NewStepController creates the controller of one attempt of step. The step
// must already be resolved. The ArtifactFactory capability is required; the
// persistence, metrics, tracing and data representation capabilities are used
// when the registry can provide them.
func NewStepController(reg *services.Registry, job *model.JobContext, step *model.Step, opts ...Option) (*StepController, error) {
	if reg == nil || job == nil || step == nil {
		return nil, exception.NewBatchErrorf(moduleName, "registry, job context and step are required")
	}
	c := &StepController{
		registry:       reg,
		job:            job,
		step:           step,
		partitionIndex: model.TopLevelPartition,
		body:           BatchletBody{},
		recorder:       metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	factory, err := services.Resolve[port.ArtifactFactory](reg)
	if err != nil {
		return nil, err
	}
	c.factory = factory
	if p, ok := optional[port.PersistenceManagerService](reg); ok {
		c.persistence = p
	}
	if d, ok := optional[port.DataRepresentationService](reg); ok {
		c.representation = d
	}
	if m, ok := optional[port.MetricsService](reg); ok {
		c.recorder = m
	}
	if t, ok := optional[port.TracingService](reg); ok {
		c.tracer = t
	}

	if c.partitionIndex == model.TopLevelPartition {
		c.sc = model.NewStepContext(job, step)
	} else {
		c.sc = model.NewPartitionStepContext(job, step, c.partitionIndex)
	}
	return c, nil
}

func optional[T port.BatchService](reg *services.Registry) (T, bool) {
	v, err := services.Resolve[T](reg)
	if err != nil {
		logger.Debugf("Optional capability unavailable: %v", err)
		return v, false
	}
	return v, true
}

// Step returns the step definition this attempt runs.
func (c *StepController) Step() *model.Step { return c.step }

// StepContext returns the attempt's context.
func (c *StepController) StepContext() *model.StepContext { return c.sc }

// JobContext returns the owning job's context.
func (c *StepController) JobContext() *model.JobContext { return c.job }

// State returns the current lifecycle state.
func (c *StepController) State() State { return State(c.state.Load()) }

// Factory returns the artifact factory used by the attempt.
func (c *StepController) Factory() port.ArtifactFactory { return c.factory }

func (c *StepController) setState(s State) {
	c.state.Store(int32(s))
	logger.Debugf("Step '%s'%s: %s", c.step.ID, c.label(), s)
}

func (c *StepController) label() string {
	if c.sc.IsPartition() {
		return fmt.Sprintf(" partition %d", c.sc.PartitionIndex)
	}
	return ""
}

// AddReleasable implements proxy.ReleasableRegistrar.
func (c *StepController) AddReleasable(r port.Releasable) {
	c.mu.Lock()
	c.releasables = append(c.releasables, r)
	c.mu.Unlock()
}

// InjectionContext returns the injection context of an artifact reference of
// this attempt: the job and step contexts plus the reference's properties.
func (c *StepController) InjectionContext(ref *model.RefElement) *proxy.InjectionContext {
	return c.injectionContext(ref)
}

func (c *StepController) injectionContext(ref *model.RefElement) *proxy.InjectionContext {
	base := &proxy.InjectionContext{JobContext: c.job, StepContext: c.sc, Properties: c.sc.Properties}
	if ref == nil {
		return base
	}
	return base.ForRef(ref)
}

// Execute runs the attempt to a terminal state and returns its context. The
// returned error is the attempt's first failure, or the fatal error that
// stopped it. Execute may be called once.
func (c *StepController) Execute(ctx context.Context) (sc *model.StepContext, err error) {
	sc = c.sc
	if c.started.Swap(true) {
		return sc, exception.NewBatchErrorf(moduleName, "attempt %s of step '%s' has already been executed", sc.ID, c.step.ID)
	}

	ctx, finishSpan := c.tracer.StartStepSpan(ctx, sc)
	defer finishSpan()
	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, exception.FromPanic(moduleName, r))
		}
		c.terminate(ctx)
		err = c.fatal
		if err == nil {
			err = sc.Failure()
		}
	}()

	logger.Infof("Step '%s'%s executing (StepExecution ID: %s).", c.step.ID, c.label(), sc.ID)
	sc.MarkStarted()
	c.persist(ctx)
	c.recorder.RecordStepStart(ctx, sc)

	if serr := c.setupArtifacts(ctx); serr != nil {
		c.fail(ctx, serr)
		return
	}
	if herr := c.runPreHooks(ctx); herr != nil {
		c.fail(ctx, herr)
		return
	}

	c.setState(StateBodyRun)
	if c.step.IsPartitioned() && !sc.IsPartition() {
		err = c.coordinate(ctx)
	} else {
		err = c.body.Run(ctx, c)
	}
	if err != nil {
		c.fail(ctx, err)
	}

	if herr := c.runPostHooks(ctx); herr != nil {
		c.fail(ctx, herr)
	}
	return
}

// setupArtifacts loads the step listeners and, on a partition attempt of a step
// declaring one, the partition collector.
func (c *StepController) setupArtifacts(ctx context.Context) error {
	listeners, err := proxy.NewStepListeners(ctx, c.factory, c.step.Listeners, c.injectionContext(nil), c)
	if err != nil {
		return err
	}
	c.listeners = listeners

	if c.step.DeclaresCollector() && c.sc.IsPartition() {
		ref := c.step.Partition.Collector
		collector, err := proxy.NewPartitionCollector(ctx, c.factory, ref.Ref, c.injectionContext(ref), c)
		if err != nil {
			return err
		}
		c.collector = collector
	}
	c.setState(StateArtifactsReady)
	return nil
}

// runPreHooks calls BeforeStep on every listener of a top-level attempt,
// stopping at the first failure.
func (c *StepController) runPreHooks(ctx context.Context) error {
	if !c.sc.IsPartition() {
		for _, l := range c.listeners {
			err := l.BeforeStep(ctx)
			c.recorder.RecordHook(ctx, c.step.ID, "before", err)
			if err != nil {
				return exception.WrapArtifactError(moduleName, fmt.Sprintf("before-step listener of step '%s' failed", c.step.ID), err)
			}
		}
	}
	c.setState(StatePreHooksRun)
	return nil
}

// runPostHooks calls AfterStep on every listener of a top-level attempt,
// stopping at the first failure.
func (c *StepController) runPostHooks(ctx context.Context) error {
	if !c.sc.IsPartition() {
		for _, l := range c.listeners {
			err := l.AfterStep(ctx)
			c.recorder.RecordHook(ctx, c.step.ID, "after", err)
			if err != nil {
				return exception.WrapArtifactError(moduleName, fmt.Sprintf("after-step listener of step '%s' failed", c.step.ID), err)
			}
		}
	}
	c.setState(StatePostHooksRun)
	return nil
}

// CollectIfConfigured asks the collector, if there is one, for a snapshot and
// sends it to the analyzer queue. Without a queue the snapshot is discarded.
func (c *StepController) CollectIfConfigured(ctx context.Context) error {
	if c.collector == nil {
		return nil
	}
	data, err := c.collector.CollectPartitionData(ctx)
	if err != nil {
		return err
	}
	if c.handoff == nil {
		logger.Debugf("Step '%s'%s: no analyzer configured, discarding collector data.", c.step.ID, c.label())
		return nil
	}
	payload, err := c.toBytes(data)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to serialize collector data", err, false, false)
	}
	msg := model.NewDataMessage(c.step.ID, c.sc.PartitionIndex, payload)
	if err := c.handoff.Send(ctx, msg); err != nil {
		return exception.NewBatchError(moduleName, "failed to hand collector data to the analyzer", err, false, false)
	}
	c.recorder.RecordPartitionMessage(ctx, msg)
	return nil
}

func (c *StepController) toBytes(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	}
	if c.representation == nil {
		return nil, fmt.Errorf("no data representation service to serialize %T", data)
	}
	return c.representation.ToBytes(data)
}

// reportTerminalStatus sends the final statuses to the analyzer queue, if any.
// A failure to send is logged only.
func (c *StepController) reportTerminalStatus(ctx context.Context) {
	if c.handoff == nil {
		return
	}
	msg := model.NewStatusMessage(c.step.ID, c.sc.PartitionIndex, c.sc.BatchStatus(), c.sc.ExitStatus())
	if err := c.handoff.Send(ctx, msg); err != nil {
		logger.Warnf("Step '%s'%s: could not report terminal status: %v", c.step.ID, c.label(), err)
		return
	}
	c.recorder.RecordPartitionMessage(ctx, msg)
}

func (c *StepController) fail(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if fe, ok := exception.AsFatal(err); ok && c.fatal == nil {
		c.fatal = fe
	}
	logger.Errorf("Step '%s'%s failed: %v", c.step.ID, c.label(), err)
	c.tracer.RecordError(ctx, c.step.ID, err)
	c.sc.MarkFailed(err)
}

func (c *StepController) terminate(ctx context.Context) {
	c.sc.MarkCompleted()
	c.setState(StateTerminal)
	c.reportTerminalStatus(ctx)
	c.persist(ctx)
	c.recorder.RecordStepEnd(ctx, c.sc)
	c.release()
	logger.Infof("Step '%s'%s finished. BatchStatus: %s, ExitStatus: %s", c.step.ID, c.label(), c.sc.BatchStatus(), c.sc.ExitStatus())
}

func (c *StepController) persist(ctx context.Context) {
	if c.persistence == nil {
		return
	}
	if err := c.persistence.SaveStepExecution(ctx, model.NewStepExecutionRecord(c.sc)); err != nil {
		logger.Warnf("Step '%s'%s: failed to persist step execution %s: %v", c.step.ID, c.label(), c.sc.ID, err)
	}
}

func (c *StepController) release() {
	c.mu.Lock()
	rs := c.releasables
	c.releasables = nil
	c.mu.Unlock()

	var result *multierror.Error
	for i := len(rs) - 1; i >= 0; i-- {
		if err := rs[i].Release(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Step '%s'%s: releasing resources failed: %v", c.step.ID, c.label(), err)
	}
}

var _ proxy.ReleasableRegistrar = (*StepController)(nil)
