package model

import (
	"fmt"
	"time"
)

// PartitionEventType tags a PartitionMessage.
type PartitionEventType string

const (
	// PartitionEventData carries collector-produced payload bytes.
	PartitionEventData PartitionEventType = "DATA"
	// PartitionEventStatus carries the final batch and exit status of a partition.
	PartitionEventStatus PartitionEventType = "STATUS"
)

// PartitionMessage is sent by a partition attempt to the analyzer coordinator
// through the hand-off channel.
type PartitionMessage struct {
	EventType      PartitionEventType
	StepName       string
	PartitionIndex int
	// Payload is set for DATA messages.
	Payload []byte
	// BatchStatus and ExitStatus are set for STATUS messages.
	BatchStatus BatchStatus
	ExitStatus  ExitStatus
}

// NewDataMessage creates a DATA message.
func NewDataMessage(stepName string, index int, payload []byte) PartitionMessage {
	return PartitionMessage{EventType: PartitionEventData, StepName: stepName, PartitionIndex: index, Payload: payload}
}

// NewStatusMessage creates a STATUS message.
func NewStatusMessage(stepName string, index int, bs BatchStatus, es ExitStatus) PartitionMessage {
	return PartitionMessage{EventType: PartitionEventStatus, StepName: stepName, PartitionIndex: index, BatchStatus: bs, ExitStatus: es}
}

// String is used in log messages.
func (m PartitionMessage) String() string {
	if m.EventType == PartitionEventData {
		return fmt.Sprintf("%s[%s#%d, %d bytes]", m.EventType, m.StepName, m.PartitionIndex, len(m.Payload))
	}
	return fmt.Sprintf("%s[%s#%d, %s/%s]", m.EventType, m.StepName, m.PartitionIndex, m.BatchStatus, m.ExitStatus)
}

// PartitionPlan is the runtime plan of a partitioned step, produced by a
// partition mapper or derived from a static PartitionPlanDef.
type PartitionPlan struct {
	Partitions int
	Threads    int
	// PartitionProperties holds one property map per partition; it may be shorter
	// than Partitions, in which case the missing partitions have no properties.
	PartitionProperties []map[string]string
}

// PropertiesFor returns the properties of partition i, never nil.
func (p *PartitionPlan) PropertiesFor(i int) map[string]string {
	if i >= 0 && i < len(p.PartitionProperties) && p.PartitionProperties[i] != nil {
		return p.PartitionProperties[i]
	}
	return map[string]string{}
}

// EffectiveThreads returns Threads, defaulting to Partitions when unset.
func (p *PartitionPlan) EffectiveThreads() int {
	if p.Threads > 0 {
		return p.Threads
	}
	if p.Partitions > 0 {
		return p.Partitions
	}
	return 1
}

// StepExecutionRecord is the persisted summary of one step attempt.
type StepExecutionRecord struct {
	ID               string
	JobExecutionID   string
	StepName         string
	PartitionIndex   int
	BatchStatus      BatchStatus
	ExitStatus       ExitStatus
	Failure          string
	ExecutionContext ExecutionContext
	StartTime        time.Time
	EndTime          *time.Time
}

// NewStepExecutionRecord snapshots sc.
func NewStepExecutionRecord(sc *StepContext) *StepExecutionRecord {
	rec := &StepExecutionRecord{
		ID:               sc.ID,
		StepName:         sc.StepName,
		PartitionIndex:   sc.PartitionIndex,
		BatchStatus:      sc.BatchStatus(),
		ExitStatus:       sc.ExitStatus(),
		ExecutionContext: sc.PersistentUserData().Copy(),
		StartTime:        sc.StartTime(),
		EndTime:          sc.EndTime(),
	}
	if sc.Job != nil {
		rec.JobExecutionID = sc.Job.ID
	}
	if err := sc.Failure(); err != nil {
		rec.Failure = err.Error()
	}
	return rec
}

// CheckpointRecord is the persisted checkpoint of a reader or writer.
type CheckpointRecord struct {
	StepExecutionID string
	Name            string
	Data            []byte
	UpdatedAt       time.Time
}
