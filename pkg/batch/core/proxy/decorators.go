package proxy

import (
	"context"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
)

type stepListener struct {
	a *Artifact
	d port.StepListener
}

func (p *stepListener) BeforeStep(ctx context.Context) error {
	return p.a.call(ctx, "BeforeStep", p.d.BeforeStep)
}

func (p *stepListener) AfterStep(ctx context.Context) error {
	return p.a.call(ctx, "AfterStep", p.d.AfterStep)
}

type jobListener struct {
	a *Artifact
	d port.JobListener
}

func (p *jobListener) BeforeJob(ctx context.Context) error {
	return p.a.call(ctx, "BeforeJob", p.d.BeforeJob)
}

func (p *jobListener) AfterJob(ctx context.Context) error {
	return p.a.call(ctx, "AfterJob", p.d.AfterJob)
}

type decider struct {
	a *Artifact
	d port.Decider
}

func (p *decider) Decide(ctx context.Context, executions []*model.StepContext) (exit string, err error) {
	err = p.a.call(ctx, "Decide", func(ctx context.Context) error {
		var e error
		exit, e = p.d.Decide(ctx, executions)
		return e
	})
	return exit, err
}

type batchlet struct {
	a *Artifact
	d port.Batchlet
}

func (p *batchlet) Process(ctx context.Context) (exit string, err error) {
	err = p.a.call(ctx, "Process", func(ctx context.Context) error {
		var e error
		exit, e = p.d.Process(ctx)
		return e
	})
	return exit, err
}

func (p *batchlet) Stop(ctx context.Context) error {
	return p.a.call(ctx, "Stop", p.d.Stop)
}

type checkpointAlgorithm struct {
	a *Artifact
	d port.CheckpointAlgorithm
}

func (p *checkpointAlgorithm) CheckpointTimeout(ctx context.Context) (timeout int, err error) {
	err = p.a.call(ctx, "CheckpointTimeout", func(ctx context.Context) error {
		var e error
		timeout, e = p.d.CheckpointTimeout(ctx)
		return e
	})
	return timeout, err
}

func (p *checkpointAlgorithm) BeginCheckpoint(ctx context.Context) error {
	return p.a.call(ctx, "BeginCheckpoint", p.d.BeginCheckpoint)
}

func (p *checkpointAlgorithm) IsReadyToCheckpoint(ctx context.Context) (ready bool, err error) {
	err = p.a.call(ctx, "IsReadyToCheckpoint", func(ctx context.Context) error {
		var e error
		ready, e = p.d.IsReadyToCheckpoint(ctx)
		return e
	})
	return ready, err
}

func (p *checkpointAlgorithm) EndCheckpoint(ctx context.Context) error {
	return p.a.call(ctx, "EndCheckpoint", p.d.EndCheckpoint)
}

type itemReader struct {
	a *Artifact
	d port.ItemReader
}

func (p *itemReader) Open(ctx context.Context, checkpoint []byte) error {
	return p.a.call(ctx, "Open", func(ctx context.Context) error { return p.d.Open(ctx, checkpoint) })
}

func (p *itemReader) ReadItem(ctx context.Context) (item interface{}, err error) {
	err = p.a.call(ctx, "ReadItem", func(ctx context.Context) error {
		var e error
		item, e = p.d.ReadItem(ctx)
		return e
	})
	return item, err
}

func (p *itemReader) CheckpointInfo(ctx context.Context) (info []byte, err error) {
	err = p.a.call(ctx, "CheckpointInfo", func(ctx context.Context) error {
		var e error
		info, e = p.d.CheckpointInfo(ctx)
		return e
	})
	return info, err
}

func (p *itemReader) Close(ctx context.Context) error {
	return p.a.call(ctx, "Close", p.d.Close)
}

type itemProcessor struct {
	a *Artifact
	d port.ItemProcessor
}

func (p *itemProcessor) ProcessItem(ctx context.Context, item interface{}) (out interface{}, err error) {
	err = p.a.call(ctx, "ProcessItem", func(ctx context.Context) error {
		var e error
		out, e = p.d.ProcessItem(ctx, item)
		return e
	})
	return out, err
}

type itemWriter struct {
	a *Artifact
	d port.ItemWriter
}

func (p *itemWriter) Open(ctx context.Context, checkpoint []byte) error {
	return p.a.call(ctx, "Open", func(ctx context.Context) error { return p.d.Open(ctx, checkpoint) })
}

func (p *itemWriter) WriteItems(ctx context.Context, items []interface{}) error {
	return p.a.call(ctx, "WriteItems", func(ctx context.Context) error { return p.d.WriteItems(ctx, items) })
}

func (p *itemWriter) CheckpointInfo(ctx context.Context) (info []byte, err error) {
	err = p.a.call(ctx, "CheckpointInfo", func(ctx context.Context) error {
		var e error
		info, e = p.d.CheckpointInfo(ctx)
		return e
	})
	return info, err
}

func (p *itemWriter) Close(ctx context.Context) error {
	return p.a.call(ctx, "Close", p.d.Close)
}

type partitionMapper struct {
	a *Artifact
	d port.PartitionMapper
}

func (p *partitionMapper) MapPartitions(ctx context.Context) (plan *model.PartitionPlan, err error) {
	err = p.a.call(ctx, "MapPartitions", func(ctx context.Context) error {
		var e error
		plan, e = p.d.MapPartitions(ctx)
		return e
	})
	return plan, err
}

type partitionReducer struct {
	a *Artifact
	d port.PartitionReducer
}

func (p *partitionReducer) BeginPartitionedStep(ctx context.Context) error {
	return p.a.call(ctx, "BeginPartitionedStep", p.d.BeginPartitionedStep)
}

func (p *partitionReducer) BeforePartitionedStepCompletion(ctx context.Context) error {
	return p.a.call(ctx, "BeforePartitionedStepCompletion", p.d.BeforePartitionedStepCompletion)
}

func (p *partitionReducer) RollbackPartitionedStep(ctx context.Context) error {
	return p.a.call(ctx, "RollbackPartitionedStep", p.d.RollbackPartitionedStep)
}

func (p *partitionReducer) AfterPartitionedStepCompletion(ctx context.Context, status model.BatchStatus) error {
	return p.a.call(ctx, "AfterPartitionedStepCompletion", func(ctx context.Context) error {
		return p.d.AfterPartitionedStepCompletion(ctx, status)
	})
}

type partitionAnalyzer struct {
	a *Artifact
	d port.PartitionAnalyzer
}

func (p *partitionAnalyzer) AnalyzeCollectorData(ctx context.Context, data []byte) error {
	return p.a.call(ctx, "AnalyzeCollectorData", func(ctx context.Context) error {
		return p.d.AnalyzeCollectorData(ctx, data)
	})
}

func (p *partitionAnalyzer) AnalyzeStatus(ctx context.Context, bs model.BatchStatus, es model.ExitStatus) error {
	return p.a.call(ctx, "AnalyzeStatus", func(ctx context.Context) error {
		return p.d.AnalyzeStatus(ctx, bs, es)
	})
}

type partitionCollector struct {
	a *Artifact
	d port.PartitionCollector
}

func (p *partitionCollector) CollectPartitionData(ctx context.Context) (data interface{}, err error) {
	err = p.a.call(ctx, "CollectPartitionData", func(ctx context.Context) error {
		var e error
		data, e = p.d.CollectPartitionData(ctx)
		return e
	})
	return data, err
}

var (
	_ port.StepListener        = (*stepListener)(nil)
	_ port.JobListener         = (*jobListener)(nil)
	_ port.Decider             = (*decider)(nil)
	_ port.Batchlet            = (*batchlet)(nil)
	_ port.CheckpointAlgorithm = (*checkpointAlgorithm)(nil)
	_ port.ItemReader          = (*itemReader)(nil)
	_ port.ItemProcessor       = (*itemProcessor)(nil)
	_ port.ItemWriter          = (*itemWriter)(nil)
	_ port.PartitionMapper     = (*partitionMapper)(nil)
	_ port.PartitionReducer    = (*partitionReducer)(nil)
	_ port.PartitionAnalyzer   = (*partitionAnalyzer)(nil)
	_ port.PartitionCollector  = (*partitionCollector)(nil)
)
