package sync

import (
	"time"
)

// JobStatus is the lifecycle state of a sync job
type JobStatus string

const (
	// JobStatusPending means the job was created but has not started calling the adapter
	JobStatusPending JobStatus = "pending"

	// JobStatusRunning means the adapter call is in progress
	JobStatusRunning JobStatus = "running"

	// JobStatusCompleted means the sync finished successfully
	JobStatusCompleted JobStatus = "completed"

	// JobStatusFailed means the sync failed or was cancelled
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal reports whether no further transition is expected
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Type selects how much history a sync pulls
type Type string

const (
	// TypeFull pulls the complete history of a repository
	TypeFull Type = "full"

	// TypeIncremental pulls only activity since the last completed sync
	TypeIncremental Type = "incremental"
)

// ParseType validates a sync type string. An empty string yields TypeIncremental.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "", TypeIncremental:
		return TypeIncremental, nil
	case TypeFull:
		return TypeFull, nil
	default:
		return "", NewError(KindConfigurationInvalid, "unknown sync type "+s, nil)
	}
}

// Job is the durable record of one sync attempt for one repository
type Job struct {
	// ID uniquely identifies the job
	ID string `json:"id"`

	// RepositoryID is the repository being synchronized
	RepositoryID string `json:"repositoryId"`

	// Status is the current lifecycle state
	Status JobStatus `json:"status"`

	// SyncType is full or incremental
	SyncType Type `json:"syncType"`

	// StartedAt is when the job record was created
	StartedAt time.Time `json:"startedAt"`

	// CompletedAt is set once the job reaches a terminal status
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Error holds the failure message of a failed job
	Error string `json:"error,omitempty"`

	// RecordsProcessed is reported by the adapter for completed jobs
	RecordsProcessed int `json:"recordsProcessed,omitempty"`

	// BatchID links the job to the scheduler batch that started it
	BatchID string `json:"batchId,omitempty"`

	// RetryCount is the number of consecutive failed attempts preceding this job
	RetryCount int `json:"retryCount"`

	// MaxRetries is the configured retry ceiling at the time the job was created
	MaxRetries int `json:"maxRetries"`
}

// Result is the outcome of a sync attempt as seen by the caller
type Result struct {
	Success          bool          `json:"success"`
	JobID            string        `json:"jobId,omitempty"`
	RepositoryID     string        `json:"repositoryId"`
	Duration         time.Duration `json:"duration"`
	RecordsProcessed int           `json:"recordsProcessed"`
	Err              *Error        `json:"error,omitempty"`
}

// RepositoryState is the sync bookkeeping kept per repository
type RepositoryState struct {
	RepositoryID        string     `json:"repositoryId"`
	LastSyncAt          *time.Time `json:"lastSyncAt,omitempty"`
	LastJobID           string     `json:"lastJobId,omitempty"`
	LastStatus          JobStatus  `json:"lastStatus,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
}
