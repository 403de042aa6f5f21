package status

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

import (
	"context"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/store"
)

const (
	// MaxExecutions bounds the execution history index
	MaxExecutions = 100

	// ExecutionRetention is how long execution summaries are kept
	ExecutionRetention = 30 * 24 * time.Hour
)

// StatusPersistence defines the interface for scheduler status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// LoadStatus returns the scheduler status, zero valued before the first run
	LoadStatus(ctx context.Context) (*SchedulerStatus, error)

	// SaveStatus overwrites the scheduler status
	SaveStatus(ctx context.Context, status *SchedulerStatus) error

	// SaveExecution stores a batch summary and indexes it in the history
	SaveExecution(ctx context.Context, execution *Execution) error

	// ListExecutions returns up to limit batch summaries, newest first
	ListExecutions(ctx context.Context, limit int) ([]*Execution, error)
}

const (
	fieldIsRunning           = "isRunning"
	fieldLastRunAt           = "lastRunAt"
	fieldNextRunAt           = "nextRunAt"
	fieldCurrentBatchID      = "currentBatchId"
	fieldTotalReposProcessed = "totalReposProcessed"
	fieldSuccessfulSyncs     = "successfulSyncs"
	fieldFailedSyncs         = "failedSyncs"
	fieldLastError           = "lastError"

	fieldBatchID        = "batchId"
	fieldStartedAt      = "startedAt"
	fieldCompletedAt    = "completedAt"
	fieldTrigger        = "trigger"
	fieldStatus         = "status"
	fieldProcessedCount = "processedCount"
	fieldSuccessCount   = "successCount"
	fieldFailureCount   = "failureCount"
	fieldError          = "error"
	fieldRepositories   = "repositories"
)

// storeStatusPersistence implements StatusPersistence on the shared state store
type storeStatusPersistence struct {
	store store.Store
	keys  store.Keys
	clock clock.PassiveClock
}

// NewStoreStatusPersistence creates a store backed status persistence
func NewStoreStatusPersistence(s store.Store, keys store.Keys, c clock.PassiveClock) StatusPersistence {
	if c == nil {
		c = clock.RealClock{}
	}
	return &storeStatusPersistence{store: s, keys: keys, clock: c}
}

func (p *storeStatusPersistence) LoadStatus(ctx context.Context) (*SchedulerStatus, error) {
	fields, err := p.store.ReadRecord(ctx, p.keys.SchedulerStatus())
	if err != nil {
		return nil, fmt.Errorf("failed to read scheduler status: %w", err)
	}
	r := store.Record(fields)
	return &SchedulerStatus{
		IsRunning:           r.Bool(fieldIsRunning),
		LastRunAt:           r.Time(fieldLastRunAt),
		NextRunAt:           r.Time(fieldNextRunAt),
		CurrentBatchID:      r.String(fieldCurrentBatchID),
		TotalReposProcessed: r.Int64(fieldTotalReposProcessed),
		SuccessfulSyncs:     r.Int64(fieldSuccessfulSyncs),
		FailedSyncs:         r.Int64(fieldFailedSyncs),
		LastError:           r.String(fieldLastError),
	}, nil
}

func (p *storeStatusPersistence) SaveStatus(ctx context.Context, status *SchedulerStatus) error {
	r := store.Record{}
	r.SetBool(fieldIsRunning, status.IsRunning)
	r.SetTime(fieldLastRunAt, status.LastRunAt)
	r.SetTime(fieldNextRunAt, status.NextRunAt)
	r.SetString(fieldCurrentBatchID, status.CurrentBatchID)
	r.SetInt64(fieldTotalReposProcessed, status.TotalReposProcessed)
	r.SetInt64(fieldSuccessfulSyncs, status.SuccessfulSyncs)
	r.SetInt64(fieldFailedSyncs, status.FailedSyncs)
	r.SetString(fieldLastError, status.LastError)
	if err := p.store.WriteRecord(ctx, p.keys.SchedulerStatus(), r); err != nil {
		return fmt.Errorf("failed to write scheduler status: %w", err)
	}
	return nil
}

func (p *storeStatusPersistence) SaveExecution(ctx context.Context, execution *Execution) error {
	key := p.keys.Execution(execution.BatchID)

	r := store.Record{}
	r.SetString(fieldBatchID, execution.BatchID)
	r.SetTime(fieldStartedAt, &execution.StartedAt)
	r.SetTime(fieldCompletedAt, execution.CompletedAt)
	r.SetString(fieldTrigger, string(execution.Trigger))
	r.SetString(fieldStatus, string(execution.Status))
	r.SetInt(fieldProcessedCount, execution.ProcessedCount)
	r.SetInt(fieldSuccessCount, execution.SuccessCount)
	r.SetInt(fieldFailureCount, execution.FailureCount)
	r.SetString(fieldError, execution.Error)
	r.SetStrings(fieldRepositories, execution.Repositories)

	if err := p.store.WriteRecord(ctx, key, r); err != nil {
		return fmt.Errorf("failed to write execution %s: %w", execution.BatchID, err)
	}
	if err := p.store.Expire(ctx, key, ExecutionRetention); err != nil {
		return fmt.Errorf("failed to set expiry on execution %s: %w", execution.BatchID, err)
	}

	index := p.keys.Executions()
	score := float64(execution.StartedAt.UnixMilli())
	if err := p.store.AddToSortedSet(ctx, index, score, execution.BatchID); err != nil {
		return fmt.Errorf("failed to index execution %s: %w", execution.BatchID, err)
	}
	if err := p.store.TrimSortedSet(ctx, index, MaxExecutions); err != nil {
		return fmt.Errorf("failed to trim execution history: %w", err)
	}
	cutoff := p.clock.Now().Add(-ExecutionRetention).UnixMilli()
	if err := p.store.RemoveByScore(ctx, index, 0, float64(cutoff)); err != nil {
		return fmt.Errorf("failed to prune execution history: %w", err)
	}
	return p.store.Expire(ctx, index, ExecutionRetention)
}

func (p *storeStatusPersistence) ListExecutions(ctx context.Context, limit int) ([]*Execution, error) {
	if limit <= 0 || limit > MaxExecutions {
		limit = MaxExecutions
	}
	members, err := p.store.RevRange(ctx, p.keys.Executions(), 0, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	executions := make([]*Execution, 0, len(members))
	for _, m := range members {
		fields, err := p.store.ReadRecord(ctx, p.keys.Execution(m.Member))
		if err != nil {
			return nil, fmt.Errorf("failed to read execution %s: %w", m.Member, err)
		}
		if fields == nil {
			// expired between the index read and the record read
			continue
		}
		executions = append(executions, decodeExecution(fields))
	}
	return executions, nil
}

func decodeExecution(fields map[string]string) *Execution {
	r := store.Record(fields)
	e := &Execution{
		BatchID:        r.String(fieldBatchID),
		CompletedAt:    r.Time(fieldCompletedAt),
		Trigger:        Trigger(r.String(fieldTrigger)),
		Status:         ExecutionStatus(r.String(fieldStatus)),
		ProcessedCount: r.Int(fieldProcessedCount),
		SuccessCount:   r.Int(fieldSuccessCount),
		FailureCount:   r.Int(fieldFailureCount),
		Error:          r.String(fieldError),
		Repositories:   r.Strings(fieldRepositories),
	}
	if started := r.Time(fieldStartedAt); started != nil {
		e.StartedAt = *started
	}
	return e
}
