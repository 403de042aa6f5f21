// Package state persists sync jobs and per-repository sync state in the shared state store.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/reposync/internal/sync"
)

// ErrJobNotFound is returned when a job record does not exist or has expired
var ErrJobNotFound = errors.New("sync job not found")

// JobService provides access to sync jobs and repository sync state.
//
//go:generate mockgen -destination=mocks/mock_job_service.go -package=mocks github.com/stacklok/reposync/internal/sync/state JobService
type JobService interface {
	// CreateJob stores a new job and indexes it in the repository history
	CreateJob(ctx context.Context, job *sync.Job) error
	// UpdateJob overwrites the mutable fields of an existing job
	UpdateJob(ctx context.Context, job *sync.Job) error
	// GetJob returns a job by id or ErrJobNotFound
	GetJob(ctx context.Context, jobID string) (*sync.Job, error)
	// ListRepositoryJobs returns a page of a repository's jobs, newest first,
	// together with the total number of indexed jobs
	ListRepositoryJobs(ctx context.Context, repositoryID string, offset, limit int) ([]*sync.Job, int64, error)
	// LatestActiveJob returns the newest pending or running job of a repository, or nil
	LatestActiveJob(ctx context.Context, repositoryID string) (*sync.Job, error)
	// RecordSuccess advances the repository's last sync time and resets its failure streak
	RecordSuccess(ctx context.Context, repositoryID, jobID string, at time.Time) error
	// RecordFailure adds the job to the repository failure index and extends the failure streak
	RecordFailure(ctx context.Context, repositoryID, jobID string, at time.Time) error
	// CountFailuresSince counts failed jobs of a repository since the given time
	CountFailuresSince(ctx context.Context, repositoryID string, since time.Time) (int, error)
	// GetRepositoryState returns the repository's sync bookkeeping, zero valued if unknown
	GetRepositoryState(ctx context.Context, repositoryID string) (*sync.RepositoryState, error)
}
