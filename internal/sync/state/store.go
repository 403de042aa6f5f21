package state

import (
	"context"
	"fmt"
	"math"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
)

const (
	// JobRetention is how long job records and history entries are kept
	JobRetention = 30 * 24 * time.Hour

	// FailureRetention is how long failed jobs stay in the failure index
	FailureRetention = 7 * 24 * time.Hour

	// MaxJobsPerRepository bounds the per-repository history index
	MaxJobsPerRepository = 500

	// activeJobScanDepth is how many recent jobs are inspected when looking for an active one
	activeJobScanDepth = 10
)

// job record fields
const (
	fieldID               = "id"
	fieldRepositoryID     = "repositoryId"
	fieldStatus           = "status"
	fieldSyncType         = "syncType"
	fieldStartedAt        = "startedAt"
	fieldCompletedAt      = "completedAt"
	fieldError            = "error"
	fieldRecordsProcessed = "recordsProcessed"
	fieldBatchID          = "batchId"
	fieldRetryCount       = "retryCount"
	fieldMaxRetries       = "maxRetries"
)

// repository state fields
const (
	fieldLastSyncAt          = "lastSyncAt"
	fieldLastJobID           = "lastJobId"
	fieldLastStatus          = "lastStatus"
	fieldConsecutiveFailures = "consecutiveFailures"
)

type storeJobService struct {
	store store.Store
	keys  store.Keys
	clock clock.PassiveClock
}

var _ JobService = (*storeJobService)(nil)

// Option configures the store backed job service
type Option func(*storeJobService)

// WithClock sets the clock used for retention pruning
func WithClock(c clock.PassiveClock) Option {
	return func(s *storeJobService) {
		s.clock = c
	}
}

// NewStoreJobService creates a JobService persisting to the shared state store
func NewStoreJobService(s store.Store, keys store.Keys, opts ...Option) JobService {
	svc := &storeJobService{
		store: s,
		keys:  keys,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func encodeJob(job *sync.Job) map[string]string {
	r := store.Record{}
	r.SetString(fieldID, job.ID)
	r.SetString(fieldRepositoryID, job.RepositoryID)
	r.SetString(fieldStatus, string(job.Status))
	r.SetString(fieldSyncType, string(job.SyncType))
	r.SetTime(fieldStartedAt, &job.StartedAt)
	r.SetTime(fieldCompletedAt, job.CompletedAt)
	r.SetString(fieldError, job.Error)
	r.SetInt(fieldRecordsProcessed, job.RecordsProcessed)
	r.SetString(fieldBatchID, job.BatchID)
	r.SetInt(fieldRetryCount, job.RetryCount)
	r.SetInt(fieldMaxRetries, job.MaxRetries)
	return r
}

func decodeJob(fields map[string]string) *sync.Job {
	r := store.Record(fields)
	job := &sync.Job{
		ID:               r.String(fieldID),
		RepositoryID:     r.String(fieldRepositoryID),
		Status:           sync.JobStatus(r.String(fieldStatus)),
		SyncType:         sync.Type(r.String(fieldSyncType)),
		CompletedAt:      r.Time(fieldCompletedAt),
		Error:            r.String(fieldError),
		RecordsProcessed: r.Int(fieldRecordsProcessed),
		BatchID:          r.String(fieldBatchID),
		RetryCount:       r.Int(fieldRetryCount),
		MaxRetries:       r.Int(fieldMaxRetries),
	}
	if started := r.Time(fieldStartedAt); started != nil {
		job.StartedAt = *started
	}
	return job
}

func (s *storeJobService) CreateJob(ctx context.Context, job *sync.Job) error {
	if job == nil || job.ID == "" || job.RepositoryID == "" {
		return fmt.Errorf("job id and repository id are required")
	}

	jobKey := s.keys.Job(job.ID)
	if err := s.store.WriteRecord(ctx, jobKey, encodeJob(job)); err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.ID, err)
	}
	if err := s.store.Expire(ctx, jobKey, JobRetention); err != nil {
		return fmt.Errorf("failed to set job retention: %w", err)
	}

	historyKey := s.keys.RepositoryJobs(job.RepositoryID)
	score := float64(job.StartedAt.UnixMilli())
	if err := s.store.AddToSortedSet(ctx, historyKey, score, job.ID); err != nil {
		return fmt.Errorf("failed to index job %s: %w", job.ID, err)
	}

	cutoff := float64(s.clock.Now().Add(-JobRetention).UnixMilli())
	if err := s.store.RemoveByScore(ctx, historyKey, math.Inf(-1), cutoff); err != nil {
		return fmt.Errorf("failed to prune job history: %w", err)
	}
	if err := s.store.TrimSortedSet(ctx, historyKey, MaxJobsPerRepository); err != nil {
		return fmt.Errorf("failed to trim job history: %w", err)
	}
	return s.store.Expire(ctx, historyKey, JobRetention)
}

func (s *storeJobService) UpdateJob(ctx context.Context, job *sync.Job) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	if err := s.store.WriteRecord(ctx, s.keys.Job(job.ID), encodeJob(job)); err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	return nil
}

func (s *storeJobService) GetJob(ctx context.Context, jobID string) (*sync.Job, error) {
	fields, err := s.store.ReadRecord(ctx, s.keys.Job(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	if fields == nil {
		return nil, ErrJobNotFound
	}
	return decodeJob(fields), nil
}

func (s *storeJobService) ListRepositoryJobs(
	ctx context.Context,
	repositoryID string,
	offset, limit int,
) ([]*sync.Job, int64, error) {
	historyKey := s.keys.RepositoryJobs(repositoryID)
	total, err := s.store.SortedSetSize(ctx, historyKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count job history: %w", err)
	}

	members, err := s.store.RevRange(ctx, historyKey, int64(offset), int64(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read job history: %w", err)
	}

	jobs := make([]*sync.Job, 0, len(members))
	for _, m := range members {
		fields, err := s.store.ReadRecord(ctx, s.keys.Job(m.Member))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read job %s: %w", m.Member, err)
		}
		if fields == nil {
			// expired record still indexed
			continue
		}
		jobs = append(jobs, decodeJob(fields))
	}
	return jobs, total, nil
}

func (s *storeJobService) LatestActiveJob(ctx context.Context, repositoryID string) (*sync.Job, error) {
	jobs, _, err := s.ListRepositoryJobs(ctx, repositoryID, 0, activeJobScanDepth)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if !job.Status.IsTerminal() {
			return job, nil
		}
	}
	return nil, nil
}

func (s *storeJobService) RecordSuccess(ctx context.Context, repositoryID, jobID string, at time.Time) error {
	r := store.Record{}
	r.SetTime(fieldLastSyncAt, &at)
	r.SetString(fieldLastJobID, jobID)
	r.SetString(fieldLastStatus, string(sync.JobStatusCompleted))
	r.SetInt(fieldConsecutiveFailures, 0)
	if err := s.store.WriteRecord(ctx, s.keys.RepositoryState(repositoryID), r); err != nil {
		return fmt.Errorf("failed to record success for %s: %w", repositoryID, err)
	}
	return nil
}

func (s *storeJobService) RecordFailure(ctx context.Context, repositoryID, jobID string, at time.Time) error {
	failuresKey := s.keys.RepositoryFailures(repositoryID)
	if err := s.store.AddToSortedSet(ctx, failuresKey, float64(at.UnixMilli()), jobID); err != nil {
		return fmt.Errorf("failed to index failure for %s: %w", repositoryID, err)
	}
	cutoff := float64(at.Add(-FailureRetention).UnixMilli())
	if err := s.store.RemoveByScore(ctx, failuresKey, math.Inf(-1), cutoff); err != nil {
		return fmt.Errorf("failed to prune failure index: %w", err)
	}
	if err := s.store.Expire(ctx, failuresKey, FailureRetention); err != nil {
		return fmt.Errorf("failed to set failure index retention: %w", err)
	}

	current, err := s.GetRepositoryState(ctx, repositoryID)
	if err != nil {
		return err
	}
	r := store.Record{}
	r.SetString(fieldLastJobID, jobID)
	r.SetString(fieldLastStatus, string(sync.JobStatusFailed))
	r.SetInt(fieldConsecutiveFailures, current.ConsecutiveFailures+1)
	if err := s.store.WriteRecord(ctx, s.keys.RepositoryState(repositoryID), r); err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", repositoryID, err)
	}
	return nil
}

func (s *storeJobService) CountFailuresSince(ctx context.Context, repositoryID string, since time.Time) (int, error) {
	failures, err := s.store.RangeByScore(ctx, s.keys.RepositoryFailures(repositoryID), float64(since.UnixMilli()), math.Inf(1))
	if err != nil {
		return 0, fmt.Errorf("failed to count failures for %s: %w", repositoryID, err)
	}
	return len(failures), nil
}

func (s *storeJobService) GetRepositoryState(ctx context.Context, repositoryID string) (*sync.RepositoryState, error) {
	fields, err := s.store.ReadRecord(ctx, s.keys.RepositoryState(repositoryID))
	if err != nil {
		return nil, fmt.Errorf("failed to read state for %s: %w", repositoryID, err)
	}
	r := store.Record(fields)
	return &sync.RepositoryState{
		RepositoryID:        repositoryID,
		LastSyncAt:          r.Time(fieldLastSyncAt),
		LastJobID:           r.String(fieldLastJobID),
		LastStatus:          sync.JobStatus(r.String(fieldLastStatus)),
		ConsecutiveFailures: r.Int(fieldConsecutiveFailures),
	}, nil
}
