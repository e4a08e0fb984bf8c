package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// JobContext is the runtime view of the owning job execution.
type JobContext struct {
	ID      string
	JobName string
	// Parameters are the submitted job parameters.
	Parameters map[string]string
	// Properties are the resolved job-level properties.
	Properties map[string]string

	mu            sync.RWMutex
	batchStatus   BatchStatus
	exitStatus    ExitStatus
	transientData interface{}
}

// NewJobContext creates a JobContext in STARTING state.
func NewJobContext(jobName string, params, props map[string]string) *JobContext {
	return &JobContext{
		ID:          NewID(),
		JobName:     jobName,
		Parameters:  params,
		Properties:  props,
		batchStatus: BatchStatusStarting,
	}
}

// BatchStatus returns the current batch status.
func (c *JobContext) BatchStatus() BatchStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batchStatus
}

// SetBatchStatus sets the batch status.
func (c *JobContext) SetBatchStatus(s BatchStatus) {
	c.mu.Lock()
	c.batchStatus = s
	c.mu.Unlock()
}

// ExitStatus returns the exit status, defaulting to the batch status.
func (c *JobContext) ExitStatus() ExitStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.exitStatus == "" {
		return ExitStatus(c.batchStatus)
	}
	return c.exitStatus
}

// SetExitStatus sets the exit status.
func (c *JobContext) SetExitStatus(s ExitStatus) {
	c.mu.Lock()
	c.exitStatus = s
	c.mu.Unlock()
}

// TransientUserData returns data shared among the job's artifacts.
func (c *JobContext) TransientUserData() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transientData
}

// SetTransientUserData sets data shared among the job's artifacts.
func (c *JobContext) SetTransientUserData(v interface{}) {
	c.mu.Lock()
	c.transientData = v
	c.mu.Unlock()
}

// TopLevelPartition is the partition index of a non-partition attempt.
const TopLevelPartition = -1

// StepContext is the state of exactly one step attempt: the top-level attempt
// or one partition. It is created at attempt start and owned by one controller.
type StepContext struct {
	ID             string
	StepName       string
	PartitionIndex int
	Job            *JobContext
	Properties     map[string]string

	mu                 sync.RWMutex
	batchStatus        BatchStatus
	exitStatus         ExitStatus
	persistentUserData ExecutionContext
	transientUserData  interface{}
	failure            error
	startTime          time.Time
	endTime            *time.Time
}

// NewStepContext creates the context of a top-level attempt.
func NewStepContext(job *JobContext, step *Step) *StepContext {
	return newStepContext(job, step, TopLevelPartition)
}

// NewPartitionStepContext creates the context of partition attempt index.
func NewPartitionStepContext(job *JobContext, step *Step, index int) *StepContext {
	return newStepContext(job, step, index)
}

func newStepContext(job *JobContext, step *Step, index int) *StepContext {
	return &StepContext{
		ID:                 NewID(),
		StepName:           step.ID,
		PartitionIndex:     index,
		Job:                job,
		Properties:         step.Properties.ToMap(),
		batchStatus:        BatchStatusStarting,
		persistentUserData: NewExecutionContext(),
	}
}

// IsPartition reports whether this context belongs to a partition attempt.
func (c *StepContext) IsPartition() bool {
	return c.PartitionIndex != TopLevelPartition
}

// BatchStatus returns the current batch status.
func (c *StepContext) BatchStatus() BatchStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.batchStatus
}

// SetBatchStatus sets the batch status.
func (c *StepContext) SetBatchStatus(s BatchStatus) {
	c.mu.Lock()
	c.batchStatus = s
	c.mu.Unlock()
}

// ExitStatus returns the exit status. Until one is set it follows the batch status.
func (c *StepContext) ExitStatus() ExitStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.exitStatus == "" {
		return c.batchStatus.ToExitStatus()
	}
	return c.exitStatus
}

// SetExitStatus sets the exit status.
func (c *StepContext) SetExitStatus(s ExitStatus) {
	c.mu.Lock()
	c.exitStatus = s
	c.mu.Unlock()
}

// Failure returns the error that failed the attempt, if any.
func (c *StepContext) Failure() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failure
}

// PersistentUserData returns the checkpointed user data.
func (c *StepContext) PersistentUserData() ExecutionContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persistentUserData
}

// SetPersistentUserData replaces the checkpointed user data.
func (c *StepContext) SetPersistentUserData(ec ExecutionContext) {
	c.mu.Lock()
	c.persistentUserData = ec
	c.mu.Unlock()
}

// TransientUserData returns data shared among the attempt's artifacts.
func (c *StepContext) TransientUserData() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transientUserData
}

// SetTransientUserData sets data shared among the attempt's artifacts.
func (c *StepContext) SetTransientUserData(v interface{}) {
	c.mu.Lock()
	c.transientUserData = v
	c.mu.Unlock()
}

// MarkStarted moves the attempt to STARTED and records the start time.
func (c *StepContext) MarkStarted() {
	c.mu.Lock()
	c.batchStatus = BatchStatusStarted
	c.startTime = time.Now()
	c.mu.Unlock()
}

// MarkCompleted moves the attempt to COMPLETED unless it already failed.
func (c *StepContext) MarkCompleted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batchStatus == BatchStatusFailed {
		return
	}
	c.batchStatus = BatchStatusCompleted
	c.stampEnd()
}

// MarkFailed moves the attempt to FAILED and records err. The first failure wins.
func (c *StepContext) MarkFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchStatus = BatchStatusFailed
	if c.failure == nil {
		c.failure = err
	}
	c.stampEnd()
}

// StartTime returns when the attempt started.
func (c *StepContext) StartTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startTime
}

// EndTime returns when the attempt ended, or nil while running.
func (c *StepContext) EndTime() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endTime
}

func (c *StepContext) stampEnd() {
	now := time.Now()
	c.endTime = &now
}
