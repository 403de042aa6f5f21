// Package status tracks the scheduler's runtime status and its batch
// execution history in the shared state store.
package status

import "time"

// ExecutionStatus is the outcome of a scheduler batch
type ExecutionStatus string

const (
	// ExecutionRunning means the batch is still iterating repositories
	ExecutionRunning ExecutionStatus = "running"

	// ExecutionCompleted means the batch finished, possibly with per-repository failures
	ExecutionCompleted ExecutionStatus = "completed"

	// ExecutionFailed means the batch aborted before processing repositories
	ExecutionFailed ExecutionStatus = "failed"

	// ExecutionSkipped means the batch had nothing to do or this instance was not the leader
	ExecutionSkipped ExecutionStatus = "skipped"
)

// Trigger says what started a batch
type Trigger string

const (
	// TriggerScheduled is a timer tick
	TriggerScheduled Trigger = "scheduled"

	// TriggerManual is an operator request
	TriggerManual Trigger = "manual"
)

// SchedulerStatus is the singleton runtime status of the scheduler
type SchedulerStatus struct {
	// IsRunning is true while an instance runs the recurring timer
	IsRunning bool `json:"isRunning"`

	// LastRunAt is when the most recent batch started
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`

	// NextRunAt is when the next batch is due
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`

	// CurrentBatchID is set while a batch is in progress
	CurrentBatchID string `json:"currentBatchId,omitempty"`

	// TotalReposProcessed counts repositories processed across all batches
	TotalReposProcessed int64 `json:"totalReposProcessed"`

	// SuccessfulSyncs counts successful repository syncs across all batches
	SuccessfulSyncs int64 `json:"successfulSyncs"`

	// FailedSyncs counts failed repository syncs across all batches
	FailedSyncs int64 `json:"failedSyncs"`

	// LastError is the error that aborted the most recent failed batch
	LastError string `json:"lastError,omitempty"`
}

// Execution summarizes one scheduler batch
type Execution struct {
	BatchID        string          `json:"batchId"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	Trigger        Trigger         `json:"trigger"`
	Status         ExecutionStatus `json:"status"`
	ProcessedCount int             `json:"processedCount"`
	SuccessCount   int             `json:"successCount"`
	FailureCount   int             `json:"failureCount"`
	Error          string          `json:"error,omitempty"`
	Repositories   []string        `json:"repositories"`
}
