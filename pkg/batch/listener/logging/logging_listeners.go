package logging

import (
	"context"

	"github.com/tigerroll/stepcore/pkg/batch/core/application/port"
	model "github.com/tigerroll/stepcore/pkg/batch/core/domain/model"
	"github.com/tigerroll/stepcore/pkg/batch/support/util/logger"
)

// --- Step Listener ---

// LoggingStepListener logs the start and end of the step it is attached to.
type LoggingStepListener struct {
	properties map[string]string
	sc         *model.StepContext
}

// NewLoggingStepListener creates a LoggingStepListener with the properties of its reference.
func NewLoggingStepListener(properties map[string]string) *LoggingStepListener {
	return &LoggingStepListener{properties: properties}
}

// SetStepContext implements port.StepContextAware.
func (l *LoggingStepListener) SetStepContext(sc *model.StepContext) {
	l.sc = sc
}

// BeforeStep logs the step and job the attempt belongs to.
func (l *LoggingStepListener) BeforeStep(ctx context.Context) error {
	if l.sc == nil {
		logger.Infof("StepListener: BeforeStep")
		return nil
	}
	logger.Infof("StepListener: BeforeStep - StepName: %s, ID: %s, Job: %s", l.sc.StepName, l.sc.ID, jobName(l.sc))
	return nil
}

// AfterStep logs the statuses the attempt ended with.
func (l *LoggingStepListener) AfterStep(ctx context.Context) error {
	if l.sc == nil {
		logger.Infof("StepListener: AfterStep")
		return nil
	}
	logger.Infof("StepListener: AfterStep - StepName: %s, Status: %s, ExitStatus: %s", l.sc.StepName, l.sc.BatchStatus(), l.sc.ExitStatus())
	return nil
}

var (
	_ port.StepListener     = (*LoggingStepListener)(nil)
	_ port.StepContextAware = (*LoggingStepListener)(nil)
)

// --- Partition Analyzer ---

// LoggingPartitionAnalyzer logs every message a partition hands to the
// coordinating attempt. Collector payloads are logged at debug level.
type LoggingPartitionAnalyzer struct {
	properties map[string]string
	statuses   map[model.BatchStatus]int
}

// NewLoggingPartitionAnalyzer creates a LoggingPartitionAnalyzer with the properties of its reference.
func NewLoggingPartitionAnalyzer(properties map[string]string) *LoggingPartitionAnalyzer {
	return &LoggingPartitionAnalyzer{properties: properties, statuses: make(map[model.BatchStatus]int)}
}

// AnalyzeCollectorData logs the size and content of a collector payload.
func (a *LoggingPartitionAnalyzer) AnalyzeCollectorData(ctx context.Context, data []byte) error {
	logger.Debugf("PartitionAnalyzer: CollectorData - %d bytes: %s", len(data), string(data))
	return nil
}

// AnalyzeStatus logs a partition's terminal statuses and counts them.
func (a *LoggingPartitionAnalyzer) AnalyzeStatus(ctx context.Context, batchStatus model.BatchStatus, exitStatus model.ExitStatus) error {
	a.statuses[batchStatus]++
	logger.Infof("PartitionAnalyzer: Status - BatchStatus: %s, ExitStatus: %s (%d so far)", batchStatus, exitStatus, a.statuses[batchStatus])
	return nil
}

// Count returns how many partitions reported status so far. The analyzer is
// only called from the coordinating attempt.
func (a *LoggingPartitionAnalyzer) Count(status model.BatchStatus) int {
	return a.statuses[status]
}

var _ port.PartitionAnalyzer = (*LoggingPartitionAnalyzer)(nil)

func jobName(sc *model.StepContext) string {
	if sc.Job == nil {
		return ""
	}
	return sc.Job.JobName
}
