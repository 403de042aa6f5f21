// Package orchestrator runs one sync attempt for one repository: it takes the
// repository lock, records the job, waits for a rate limit slot, calls the
// adapter and records the outcome.
package orchestrator

//go:generate mockgen -destination=mocks/mock_orchestrator.go -package=mocks -source=orchestrator.go RateLimiter,FailureNotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/adapter"
	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/events"
	"github.com/stacklok/reposync/internal/httpclient"
	"github.com/stacklok/reposync/internal/otel"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/state"
	"github.com/stacklok/reposync/internal/telemetry"
)

const (
	// LockTTL bounds how long a crashed instance can block a repository
	LockTTL = time.Hour

	// DefaultMaxRetries is copied onto jobs when no scheduler config overrides it
	DefaultMaxRetries = 3

	tracerName = "github.com/stacklok/reposync/sync/orchestrator"
)

// RateLimiter admits outbound calls per repository
type RateLimiter interface {
	WaitForSlot(ctx context.Context, repositoryID string) error
}

// FailureNotifier is told about every failed attempt
type FailureNotifier interface {
	EvaluateRepositoryFailure(ctx context.Context, repositoryID, errorMessage, batchID string)
}

// Orchestrator performs sync attempts. It is safe for concurrent use.
type Orchestrator struct {
	store     store.Store
	keys      store.Keys
	jobs      state.JobService
	directory directory.Directory
	adapter   adapter.Adapter
	limiter   RateLimiter

	notifier  FailureNotifier
	publisher events.Publisher
	clock     clock.PassiveClock
	metrics   *telemetry.SyncMetrics
	tracer    trace.Tracer

	mu         gosync.RWMutex
	maxRetries int
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNotifier sets the failure notifier
func WithNotifier(n FailureNotifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithClock sets the clock used for job timestamps
func WithClock(c clock.PassiveClock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithMetrics sets the sync metrics
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider sets the tracer provider used for sync spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMaxRetries sets the retry ceiling copied onto new jobs
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		o.maxRetries = n
	}
}

// New creates an Orchestrator
func New(
	s store.Store,
	keys store.Keys,
	jobs state.JobService,
	dir directory.Directory,
	a adapter.Adapter,
	limiter RateLimiter,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:      s,
		keys:       keys,
		jobs:       jobs,
		directory:  dir,
		adapter:    a,
		limiter:    limiter,
		publisher:  events.NopPublisher{},
		clock:      clock.RealClock{},
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetMaxRetries changes the retry ceiling copied onto new jobs
func (o *Orchestrator) SetMaxRetries(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxRetries = n
}

func (o *Orchestrator) getMaxRetries() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.maxRetries
}

// SyncRepository runs one sync attempt. Failures are reported in the result,
// never returned or panicked.
func (o *Orchestrator) SyncRepository(
	ctx context.Context,
	repositoryID string,
	syncType sync.Type,
	batchID string,
) *sync.Result {
	start := o.clock.Now()
	ctx, span := otel.StartSpan(ctx, o.tracer, "sync.repository",
		trace.WithAttributes(
			otel.AttrRepositoryID.String(repositoryID),
			otel.AttrSyncType.String(string(syncType)),
			otel.AttrBatchID.String(batchID),
		))
	defer span.End()

	result := o.syncLocked(ctx, repositoryID, syncType, batchID)
	result.RepositoryID = repositoryID
	result.Duration = o.clock.Since(start)

	reason := ""
	if result.Err != nil {
		reason = string(result.Err.Kind)
		span.SetAttributes(otel.AttrErrorKind.String(reason))
		otel.RecordError(span, result.Err)
	} else {
		span.SetAttributes(otel.AttrRecordsProcessed.Int(result.RecordsProcessed))
	}
	if result.JobID != "" {
		span.SetAttributes(otel.AttrJobID.String(result.JobID))
	}
	o.metrics.RecordSync(ctx, repositoryID, string(syncType), result.Duration, result.Success, reason)

	return result
}

// syncLocked holds the repository lock for the duration of the attempt
func (o *Orchestrator) syncLocked(ctx context.Context, repositoryID string, syncType sync.Type, batchID string) *sync.Result {
	lockKey := o.keys.RepositoryLock(repositoryID)
	owner := uuid.NewString()

	acquired, err := o.store.AcquireLock(ctx, lockKey, owner, LockTTL)
	if err != nil {
		slog.Error("Failed to acquire repository lock",
			"repository", repositoryID,
			"error", err)
		return failed(sync.NewError(sync.KindStoreUnavailable, "failed to acquire repository lock", err))
	}
	if !acquired {
		slog.Info("Sync already in progress, skipping", "repository", repositoryID)
		return failed(sync.NewError(sync.KindLockContention, "", sync.ErrAlreadyInProgress))
	}
	defer func() {
		// the caller's context may already be done
		if err := o.store.ReleaseLock(context.WithoutCancel(ctx), lockKey, owner); err != nil {
			slog.Warn("Failed to release repository lock",
				"repository", repositoryID,
				"error", err)
		}
	}()

	return o.run(ctx, repositoryID, syncType, batchID)
}

func (o *Orchestrator) run(ctx context.Context, repositoryID string, syncType sync.Type, batchID string) (result *sync.Result) {
	repoState, err := o.jobs.GetRepositoryState(ctx, repositoryID)
	if err != nil {
		return failed(sync.NewError(sync.KindStoreUnavailable, "failed to read repository state", err))
	}

	job := &sync.Job{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		Status:       sync.JobStatusPending,
		SyncType:     syncType,
		StartedAt:    o.clock.Now(),
		BatchID:      batchID,
		RetryCount:   repoState.ConsecutiveFailures,
		MaxRetries:   o.getMaxRetries(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return failed(sync.NewError(sync.KindStoreUnavailable, "failed to create sync job", err))
	}
	a := &attempt{job: job}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from panic during sync",
				"repository", repositoryID,
				"job_id", job.ID,
				"panic", r)
			if a.result != nil {
				result = a.result
				return
			}
			result = o.fail(ctx, a, sync.NewError(sync.KindInternal, fmt.Sprintf("unexpected failure: %v", r), nil))
		}
	}()

	repo, syncErr := o.resolve(ctx, repositoryID)
	if syncErr != nil {
		return o.fail(ctx, a, syncErr)
	}

	if err := o.limiter.WaitForSlot(ctx, repositoryID); err != nil {
		return o.fail(ctx, a, sync.NewError(sync.KindCancelled, "interrupted while waiting for rate limit", err))
	}

	job.Status = sync.JobStatusRunning
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return o.fail(ctx, a, sync.NewError(sync.KindStoreUnavailable, "failed to mark job running", err))
	}
	o.publish(ctx, events.SyncStarted, job, map[string]any{"syncType": string(syncType)})

	var since *time.Time
	if syncType == sync.TypeIncremental {
		since = repoState.LastSyncAt
	}

	slog.Info("Starting repository sync",
		"repository", repositoryID,
		"job_id", job.ID,
		"sync_type", syncType,
		"since", since)

	outcome, err := o.adapter.RunSync(ctx, repo, since)
	if err != nil {
		return o.fail(ctx, a, classifyAdapterError(err))
	}
	return o.complete(ctx, a, outcome)
}

// resolve looks up the repository and checks it can be synchronized
func (o *Orchestrator) resolve(ctx context.Context, repositoryID string) (*directory.Repository, *sync.Error) {
	repo, err := o.directory.GetRepository(ctx, repositoryID)
	switch {
	case errors.Is(err, directory.ErrRepositoryNotFound):
		return nil, sync.NewError(sync.KindNotFound, "repository not found", err)
	case errors.Is(err, directory.ErrInvalidRepository):
		return nil, sync.NewError(sync.KindConfigurationInvalid, "repository configuration is invalid", err)
	case err != nil:
		return nil, sync.NewError(sync.KindUpstreamUnavailable, "failed to look up repository", err)
	}
	if repo.Credentials.Token == "" {
		return nil, sync.NewError(sync.KindConfigurationInvalid, "repository has no access credentials", nil)
	}
	return repo, nil
}

func classifyAdapterError(err error) *sync.Error {
	switch code := httpclient.StatusCode(err); {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return sync.NewError(sync.KindCancelled, "sync interrupted", err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden || errors.Is(err, adapter.ErrCredentialsRejected):
		return sync.NewError(sync.KindConfigurationInvalid, "sync worker rejected repository credentials", err)
	case code == http.StatusNotFound || errors.Is(err, adapter.ErrRepositoryNotFound):
		return sync.NewError(sync.KindNotFound, "repository not found upstream", err)
	default:
		return sync.NewError(sync.KindUpstreamUnavailable, "sync failed", err)
	}
}

// attempt is one sync run. result is set as soon as its outcome is decided,
// before the outcome is recorded and announced.
type attempt struct {
	job    *sync.Job
	result *sync.Result
}

func (o *Orchestrator) complete(ctx context.Context, a *attempt, outcome *adapter.Outcome) *sync.Result {
	ctx = context.WithoutCancel(ctx)
	job := a.job
	if o.wasCancelled(ctx, job) {
		a.result = o.cancelledResult(job)
		return a.result
	}

	records := 0
	if outcome != nil {
		records = outcome.RecordsProcessed
	}
	now := o.clock.Now()
	job.Status = sync.JobStatusCompleted
	job.CompletedAt = &now
	job.RecordsProcessed = records
	a.result = &sync.Result{Success: true, JobID: job.ID, RecordsProcessed: records}

	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		slog.Error("Failed to record completed job", "job_id", job.ID, "error", err)
	}
	// activity created while the sync ran is picked up by the next incremental sync
	if err := o.jobs.RecordSuccess(ctx, job.RepositoryID, job.ID, job.StartedAt); err != nil {
		slog.Error("Failed to record repository sync success",
			"repository", job.RepositoryID,
			"error", err)
	}

	o.metrics.RecordRecordsProcessed(ctx, job.RepositoryID, records)
	o.publish(ctx, events.SyncCompleted, job, map[string]any{"recordsProcessed": records})
	slog.Info("Repository sync completed",
		"repository", job.RepositoryID,
		"job_id", job.ID,
		"records_processed", records,
		"duration", now.Sub(job.StartedAt))

	return a.result
}

func (o *Orchestrator) fail(ctx context.Context, a *attempt, syncErr *sync.Error) *sync.Result {
	ctx = context.WithoutCancel(ctx)
	job := a.job
	if o.wasCancelled(ctx, job) {
		a.result = o.cancelledResult(job)
		return a.result
	}

	now := o.clock.Now()
	job.Status = sync.JobStatusFailed
	job.CompletedAt = &now
	job.Error = syncErr.Error()
	a.result = &sync.Result{JobID: job.ID, Err: syncErr}

	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		slog.Error("Failed to record failed job", "job_id", job.ID, "error", err)
	}
	if err := o.jobs.RecordFailure(ctx, job.RepositoryID, job.ID, now); err != nil {
		slog.Error("Failed to record repository sync failure",
			"repository", job.RepositoryID,
			"error", err)
	}

	o.publish(ctx, events.SyncFailed, job, map[string]any{"kind": string(syncErr.Kind), "error": job.Error})
	slog.Error("Repository sync failed",
		"repository", job.RepositoryID,
		"job_id", job.ID,
		"kind", syncErr.Kind,
		"error", job.Error)

	if o.notifier != nil {
		o.notifier.EvaluateRepositoryFailure(ctx, job.RepositoryID, job.Error, job.BatchID)
	}

	return a.result
}

// wasCancelled reports whether CancelSync finished the job while it ran
func (o *Orchestrator) wasCancelled(ctx context.Context, job *sync.Job) bool {
	stored, err := o.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return false
	}
	return stored.Status.IsTerminal()
}

func (o *Orchestrator) cancelledResult(job *sync.Job) *sync.Result {
	slog.Info("Discarding outcome of cancelled sync",
		"repository", job.RepositoryID,
		"job_id", job.ID)
	return &sync.Result{JobID: job.ID, Err: sync.NewError(sync.KindCancelled, "sync was cancelled", sync.ErrCancelled)}
}

// CancelSync force-releases the repository lock and marks the active job as
// cancelled. It returns the cancelled job, or nil when none was active.
func (o *Orchestrator) CancelSync(ctx context.Context, repositoryID string) (*sync.Job, error) {
	if err := o.store.ReleaseLock(ctx, o.keys.RepositoryLock(repositoryID), ""); err != nil {
		return nil, sync.NewError(sync.KindStoreUnavailable, "failed to release repository lock", err)
	}

	job, err := o.jobs.LatestActiveJob(ctx, repositoryID)
	if err != nil {
		return nil, sync.NewError(sync.KindStoreUnavailable, "failed to look up active job", err)
	}
	if job == nil {
		slog.Info("No active sync to cancel", "repository", repositoryID)
		return nil, nil
	}

	now := o.clock.Now()
	job.Status = sync.JobStatusFailed
	job.CompletedAt = &now
	job.Error = sync.ErrCancelled.Error()
	if err := o.jobs.UpdateJob(ctx, job); err != nil {
		return nil, sync.NewError(sync.KindStoreUnavailable, "failed to mark job cancelled", err)
	}

	o.publish(ctx, events.SyncCancelled, job, nil)
	slog.Info("Sync cancelled", "repository", repositoryID, "job_id", job.ID)
	return job, nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, job *sync.Job, data map[string]any) {
	o.publisher.Publish(ctx, events.Event{
		Type:         eventType,
		Timestamp:    o.clock.Now(),
		RepositoryID: job.RepositoryID,
		JobID:        job.ID,
		BatchID:      job.BatchID,
		Data:         data,
	})
}

func failed(err *sync.Error) *sync.Result {
	return &sync.Result{Err: err}
}
