package scheduler

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks -source=scheduler.go Syncer,BatchNotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/events"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/otel"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/telemetry"
)

const (
	// LeaderTTL is how long the leader lock survives without a refresh
	LeaderTTL = 5 * time.Minute

	// keepAliveInterval refreshes the leader lock well before it expires
	keepAliveInterval = LeaderTTL / 3

	tracerName = "github.com/stacklok/reposync/sync/scheduler"
)

var (
	// ErrExecutionInProgress is returned when a batch is already running in this process
	ErrExecutionInProgress = errors.New("a scheduler execution is already in progress")

	// ErrLeaderLockHeld is returned by RunNow and RunOnce when another instance is the leader
	ErrLeaderLockHeld = errors.New("scheduler lock is held by another instance")
)

// Syncer performs one sync attempt
type Syncer interface {
	SyncRepository(ctx context.Context, repositoryID string, syncType sync.Type, batchID string) *sync.Result
}

// BatchNotifier is told about every finished batch
type BatchNotifier interface {
	EvaluateBatch(ctx context.Context, outcome notify.BatchOutcome, recipients []string)
}

// ConfigListener is called after the configuration changed
type ConfigListener func(Config)

// Service schedules sync batches
type Service struct {
	store       store.Store
	keys        store.Keys
	directory   directory.Directory
	syncer      Syncer
	persistence status.StatusPersistence
	configs     *ConfigStore

	instanceID string
	notifier   BatchNotifier
	publisher  events.Publisher
	clock      clock.WithTicker
	metrics    *telemetry.SchedulerMetrics
	tracer     trace.Tracer
	listeners  []ConfigListener

	// mu guards the lifecycle fields below
	mu       gosync.Mutex
	config   Config
	running  bool
	schedule cron.Schedule
	cancel   context.CancelFunc
	loops    gosync.WaitGroup

	// reschedule wakes the timer loop after the schedule changed underneath it
	reschedule chan struct{}

	// statusMu serializes read-modify-write cycles of the status record
	statusMu gosync.Mutex

	executing atomic.Bool

	// batches started by the timer and RunNow; Stop leaves them running
	runCtx    context.Context
	runCancel context.CancelFunc
	runs      gosync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithInstanceID sets the owner token written into the leader lock
func WithInstanceID(id string) Option {
	return func(s *Service) {
		s.instanceID = id
	}
}

// WithNotifier sets the batch notifier
func WithNotifier(n BatchNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithPublisher sets the event publisher
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithClock sets the clock driving the timer and delays
func WithClock(c clock.WithTicker) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithMetrics sets the scheduler metrics
func WithMetrics(m *telemetry.SchedulerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracerProvider sets the tracer provider used for batch spans
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithConfigListener registers a callback run after every configuration change
func WithConfigListener(l ConfigListener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, l)
	}
}

// New creates a Service with the given initial configuration
func New(
	s store.Store,
	keys store.Keys,
	dir directory.Directory,
	syncer Syncer,
	persistence status.StatusPersistence,
	configs *ConfigStore,
	cfg Config,
	opts ...Option,
) *Service {
	svc := &Service{
		store:       s,
		keys:        keys,
		directory:   dir,
		syncer:      syncer,
		persistence: persistence,
		configs:     configs,
		config:      cfg,
		instanceID:  uuid.NewString(),
		publisher:   events.NopPublisher{},
		clock:       clock.RealClock{},
		reschedule:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.runCtx, svc.runCancel = context.WithCancel(context.Background())
	return svc
}

// Config returns the configuration in effect
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// IsRunning reports whether this instance runs the timer
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start acquires the leader lock and starts the timer. It is a no-op when
// the service is already running or another instance holds the lock. The
// timer outlives ctx and runs until Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	schedule, err := s.config.Schedule()
	if err != nil {
		return err
	}

	acquired, err := s.store.RefreshLock(ctx, s.keys.SchedulerLock(), s.instanceID, LeaderTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	s.metrics.RecordLeadership(ctx, acquired)
	if !acquired {
		slog.Info("Scheduler lock held by another instance, not starting", "instance", s.instanceID)
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.schedule = schedule
	s.cancel = cancel

	next := schedule.Next(s.clock.Now())
	s.updateStatus(ctx, func(st *status.SchedulerStatus) {
		st.IsRunning = true
		st.NextRunAt = &next
	})

	s.loops.Add(2)
	go s.loop(loopCtx)
	go s.keepAlive(loopCtx)

	s.publish(ctx, events.SchedulerStarted, "", map[string]any{"nextRunAt": next})
	slog.Info("Scheduler started",
		"instance", s.instanceID,
		"interval", s.config.Interval,
		"cron", s.config.Cron,
		"next_run", next)
	return nil
}

// Stop stops the timer and releases the leader lock. A batch in progress
// keeps running to completion.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.loops.Wait()

	if err := s.store.ReleaseLock(ctx, s.keys.SchedulerLock(), s.instanceID); err != nil {
		slog.Warn("Failed to release scheduler lock", "error", err)
	}
	s.metrics.RecordLeadership(ctx, false)
	s.updateStatus(ctx, func(st *status.SchedulerStatus) {
		st.IsRunning = false
		st.NextRunAt = nil
	})
	s.publish(ctx, events.SchedulerStopped, "", nil)
	slog.Info("Scheduler stopped", "instance", s.instanceID)
	return nil
}

// Close stops the service, interrupts a batch in progress between
// repositories and waits for it
func (s *Service) Close(ctx context.Context) error {
	err := s.Stop(ctx)
	s.runCancel()
	s.runs.Wait()
	return err
}

func (s *Service) loop(ctx context.Context) {
	defer s.loops.Done()
	for {
		s.mu.Lock()
		schedule := s.schedule
		s.mu.Unlock()

		now := s.clock.Now()
		timer := s.clock.NewTimer(schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.reschedule:
			timer.Stop()
			continue
		case <-timer.C():
		}
		s.tick(ctx)
	}
}

// tick starts a scheduled batch in the background so that stopping the
// timer never cuts a batch short
func (s *Service) tick(ctx context.Context) {
	if !s.refreshLeadership(ctx) {
		slog.Warn("Scheduler lost leadership, skipping batch", "instance", s.instanceID)
		return
	}
	if cfg := s.syncConfig(ctx); !cfg.Enabled {
		slog.Info("Scheduler disabled in stored configuration, skipping batch", "instance", s.instanceID)
		return
	}
	execution, err := s.begin(ctx, status.TriggerScheduled)
	if err != nil {
		slog.Warn("Scheduled batch not started", "error", err)
		return
	}
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(s.runCtx, execution)
	}()
}

func (s *Service) keepAlive(ctx context.Context) {
	defer s.loops.Done()
	ticker := s.clock.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if !s.refreshLeadership(ctx) {
				slog.Warn("Scheduler leader lock refresh failed", "instance", s.instanceID)
				continue
			}
			if cfg := s.syncConfig(ctx); !cfg.Enabled {
				slog.Info("Scheduler disabled in stored configuration, stopping", "instance", s.instanceID)
				go func() {
					if err := s.Stop(context.WithoutCancel(ctx)); err != nil {
						slog.Error("Failed to stop scheduler", "error", err)
					}
				}()
				return
			}
		}
	}
}

func (s *Service) refreshLeadership(ctx context.Context) bool {
	ok, err := s.store.RefreshLock(ctx, s.keys.SchedulerLock(), s.instanceID, LeaderTTL)
	if err != nil {
		slog.Error("Failed to refresh scheduler lock", "error", err)
		ok = false
	}
	s.metrics.RecordLeadership(ctx, ok)
	return ok
}

// RunNow starts a manual batch in the background, starting the service first
// when it is stopped. It returns the summary of the batch as it starts, or
// ErrLeaderLockHeld when another instance leads.
func (s *Service) RunNow(ctx context.Context) (*status.Execution, error) {
	if !s.IsRunning() {
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		if !s.IsRunning() {
			return nil, ErrLeaderLockHeld
		}
	}

	execution, err := s.begin(ctx, status.TriggerManual)
	if err != nil {
		return nil, err
	}
	snapshot := *execution

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		s.execute(s.runCtx, execution)
	}()
	return &snapshot, nil
}

// ExecuteScheduler runs one batch and returns its summary. Batch failures are
// reported in the summary. The only error is ErrExecutionInProgress.
func (s *Service) ExecuteScheduler(ctx context.Context, trigger status.Trigger) (*status.Execution, error) {
	execution, err := s.begin(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, execution), nil
}

// RunOnce runs a single batch while holding the leader lock, then releases
// the lock. It is meant for processes that run one batch and exit.
func (s *Service) RunOnce(ctx context.Context) (*status.Execution, error) {
	if s.IsRunning() {
		return s.ExecuteScheduler(ctx, status.TriggerManual)
	}

	acquired, err := s.store.AcquireLock(ctx, s.keys.SchedulerLock(), s.instanceID, LeaderTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire scheduler lock: %w", err)
	}
	if !acquired {
		return nil, ErrLeaderLockHeld
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), s.keys.SchedulerLock(), s.instanceID); err != nil {
			slog.Error("Failed to release scheduler lock", "instance", s.instanceID, "error", err)
		}
	}()

	return s.ExecuteScheduler(ctx, status.TriggerManual)
}

// begin claims the execution slot and records the batch as running
func (s *Service) begin(ctx context.Context, trigger status.Trigger) (*status.Execution, error) {
	if !s.executing.CompareAndSwap(false, true) {
		return nil, ErrExecutionInProgress
	}

	now := s.clock.Now()
	execution := &status.Execution{
		BatchID:      uuid.NewString(),
		StartedAt:    now,
		Trigger:      trigger,
		Status:       status.ExecutionRunning,
		Repositories: []string{},
	}

	s.mu.Lock()
	schedule := s.schedule
	running := s.running
	s.mu.Unlock()

	s.updateStatus(ctx, func(st *status.SchedulerStatus) {
		st.LastRunAt = &now
		st.CurrentBatchID = execution.BatchID
		if running && schedule != nil {
			next := schedule.Next(now)
			st.NextRunAt = &next
		}
	})
	s.saveExecution(ctx, execution)
	s.publish(ctx, events.SchedulerExecutionStarted, execution.BatchID, map[string]any{"trigger": string(trigger)})
	slog.Info("Scheduler batch started", "batch_id", execution.BatchID, "trigger", trigger)
	return execution, nil
}

// execute runs a batch claimed by begin and releases the execution slot
func (s *Service) execute(ctx context.Context, execution *status.Execution) *status.Execution {
	defer s.executing.Store(false)

	cfg := s.syncConfig(ctx)
	ctx, span := otel.StartSpan(ctx, s.tracer, "scheduler.batch",
		trace.WithAttributes(
			otel.AttrBatchID.String(execution.BatchID),
			otel.AttrTrigger.String(string(execution.Trigger)),
		))
	defer span.End()

	candidates, err := s.directory.ListSyncCandidates(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return s.abort(ctx, execution, fmt.Errorf("failed to list sync candidates: %w", err))
	}

	ids, requeue := s.plan(ctx, candidates, cfg.MaxConcurrentRepos)
	span.SetAttributes(otel.AttrCandidateCount.Int(len(ids)))
	if len(ids) == 0 {
		slog.Info("No repositories to sync", "batch_id", execution.BatchID)
		execution.Status = status.ExecutionSkipped
		return s.finish(ctx, execution)
	}

	for i, id := range ids {
		if i > 0 && cfg.DelayBetweenRepos > 0 {
			if err := s.sleep(ctx, cfg.DelayBetweenRepos); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		result := s.syncer.SyncRepository(ctx, id, cfg.SyncType, execution.BatchID)
		if result.Err != nil && result.Err.Kind == sync.KindLockContention {
			slog.Info("Repository already syncing, skipped in batch", "batch_id", execution.BatchID, "repository", id)
			continue
		}
		execution.ProcessedCount++
		execution.Repositories = append(execution.Repositories, id)
		if result.Success {
			execution.SuccessCount++
		} else {
			execution.FailureCount++
		}
	}

	// manual requests that did not fit in this batch wait for the next one
	for _, id := range requeue {
		if err := s.store.PushQueue(context.WithoutCancel(ctx), s.keys.ManualQueue(), id); err != nil {
			slog.Error("Failed to requeue manual sync request", "repository", id, "error", err)
		}
	}

	execution.Status = status.ExecutionCompleted
	if err := ctx.Err(); err != nil {
		execution.Status = status.ExecutionFailed
		execution.Error = fmt.Sprintf("batch interrupted: %v", err)
	}
	return s.finish(ctx, execution)
}

// plan builds the ordered repository list of a batch: manual requests first,
// then candidates, without duplicates and capped at limit. Manual requests
// beyond the cap are returned for requeueing.
func (s *Service) plan(ctx context.Context, candidates []directory.Candidate, limit int) (ids, requeue []string) {
	var manual []string
	for {
		id, ok, err := s.store.PopQueue(ctx, s.keys.ManualQueue())
		if err != nil {
			slog.Error("Failed to read manual sync queue", "error", err)
			break
		}
		if !ok {
			break
		}
		manual = append(manual, id)
	}

	seen := make(map[string]bool, len(manual)+len(candidates))
	for _, id := range manual {
		if seen[id] {
			continue
		}
		seen[id] = true
		if len(ids) < limit {
			ids = append(ids, id)
		} else {
			requeue = append(requeue, id)
		}
	}
	for _, c := range candidates {
		if seen[c.ID] || len(ids) >= limit {
			continue
		}
		seen[c.ID] = true
		ids = append(ids, c.ID)
	}
	return ids, requeue
}

func (s *Service) abort(ctx context.Context, execution *status.Execution, err error) *status.Execution {
	slog.Error("Scheduler batch failed", "batch_id", execution.BatchID, "error", err)
	execution.Status = status.ExecutionFailed
	execution.Error = err.Error()
	return s.finish(ctx, execution)
}

// finish persists the summary, notifies and rolls the counts into the status
func (s *Service) finish(ctx context.Context, execution *status.Execution) *status.Execution {
	ctx = context.WithoutCancel(ctx)
	now := s.clock.Now()
	execution.CompletedAt = &now
	s.saveExecution(ctx, execution)

	if execution.ProcessedCount > 0 && s.notifier != nil {
		s.notifier.EvaluateBatch(ctx, notify.BatchOutcome{
			BatchID:        execution.BatchID,
			FailureCount:   execution.FailureCount,
			TotalProcessed: execution.ProcessedCount,
		}, nil)
	}

	s.updateStatus(ctx, func(st *status.SchedulerStatus) {
		st.CurrentBatchID = ""
		st.TotalReposProcessed += int64(execution.ProcessedCount)
		st.SuccessfulSyncs += int64(execution.SuccessCount)
		st.FailedSyncs += int64(execution.FailureCount)
		if execution.Status == status.ExecutionFailed {
			st.LastError = execution.Error
		} else {
			st.LastError = ""
		}
	})

	eventType := events.SchedulerExecutionDone
	if execution.Status == status.ExecutionFailed {
		eventType = events.SchedulerExecutionFailed
	}
	s.publish(ctx, eventType, execution.BatchID, map[string]any{
		"status":         string(execution.Status),
		"processedCount": execution.ProcessedCount,
		"successCount":   execution.SuccessCount,
		"failureCount":   execution.FailureCount,
	})
	s.metrics.RecordBatch(ctx, string(execution.Trigger), string(execution.Status),
		now.Sub(execution.StartedAt), execution.SuccessCount, execution.FailureCount)

	slog.Info("Scheduler batch finished",
		"batch_id", execution.BatchID,
		"status", execution.Status,
		"processed", execution.ProcessedCount,
		"succeeded", execution.SuccessCount,
		"failed", execution.FailureCount,
		"duration", now.Sub(execution.StartedAt))
	return execution
}

// UpdateConfig validates, persists and applies a new configuration. Schedule
// changes restart the timer; enabling starts a stopped service and disabling
// stops a running one.
func (s *Service) UpdateConfig(ctx context.Context, cfg Config) error {
	if err := s.configs.Save(ctx, cfg); err != nil {
		return err
	}

	s.mu.Lock()
	previous := s.config
	s.config = cfg
	running := s.running
	s.mu.Unlock()

	s.notifyListeners(cfg)
	slog.Info("Scheduler configuration updated",
		"enabled", cfg.Enabled,
		"interval", cfg.Interval,
		"cron", cfg.Cron,
		"max_concurrent_repos", cfg.MaxConcurrentRepos)

	switch {
	case running && !cfg.Enabled:
		return s.Stop(ctx)
	case running && previous.scheduleChanged(cfg):
		if err := s.Stop(ctx); err != nil {
			return err
		}
		return s.Start(ctx)
	case !running && cfg.Enabled && !previous.Enabled:
		return s.Start(ctx)
	}
	return nil
}

// syncConfig adopts configuration another instance saved to the store and
// returns the configuration in effect. A changed schedule moves the running
// timer without a restart.
func (s *Service) syncConfig(ctx context.Context) Config {
	stored, ok, err := s.configs.Stored(ctx)
	if err != nil {
		slog.Warn("Failed to reload scheduler configuration, keeping the current one", "error", err)
		return s.Config()
	}

	s.mu.Lock()
	if !ok || stored == s.config {
		cfg := s.config
		s.mu.Unlock()
		return cfg
	}
	previous := s.config
	s.config = stored
	var next *time.Time
	if s.running && previous.scheduleChanged(stored) {
		if schedule, err := stored.Schedule(); err == nil {
			s.schedule = schedule
			n := schedule.Next(s.clock.Now())
			next = &n
			select {
			case s.reschedule <- struct{}{}:
			default:
			}
		}
	}
	s.mu.Unlock()

	if next != nil {
		s.updateStatus(ctx, func(st *status.SchedulerStatus) {
			st.NextRunAt = next
		})
	}
	s.notifyListeners(stored)
	slog.Info("Scheduler configuration reloaded",
		"instance", s.instanceID,
		"enabled", stored.Enabled,
		"interval", stored.Interval,
		"cron", stored.Cron,
		"max_concurrent_repos", stored.MaxConcurrentRepos)
	return stored
}

func (s *Service) notifyListeners(cfg Config) {
	for _, l := range s.listeners {
		l(cfg)
	}
}

// RequestSync queues a repository for the next batch
func (s *Service) RequestSync(ctx context.Context, repositoryID string) error {
	if err := s.store.PushQueue(ctx, s.keys.ManualQueue(), repositoryID); err != nil {
		return fmt.Errorf("failed to queue sync for %s: %w", repositoryID, err)
	}
	slog.Info("Manual sync queued", "repository", repositoryID)
	return nil
}

// Status returns the scheduler status
func (s *Service) Status(ctx context.Context) (*status.SchedulerStatus, error) {
	return s.persistence.LoadStatus(ctx)
}

// Executions returns the most recent batch summaries, newest first
func (s *Service) Executions(ctx context.Context, limit int) ([]*status.Execution, error) {
	return s.persistence.ListExecutions(ctx, limit)
}

// updateStatus applies fn to the stored status under statusMu
func (s *Service) updateStatus(ctx context.Context, fn func(*status.SchedulerStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	st, err := s.persistence.LoadStatus(ctx)
	if err != nil {
		slog.Error("Failed to load scheduler status", "error", err)
		return
	}
	fn(st)
	if err := s.persistence.SaveStatus(ctx, st); err != nil {
		slog.Error("Failed to save scheduler status", "error", err)
	}
}

func (s *Service) saveExecution(ctx context.Context, execution *status.Execution) {
	if err := s.persistence.SaveExecution(ctx, execution); err != nil {
		slog.Error("Failed to save execution summary", "batch_id", execution.BatchID, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, eventType, batchID string, data map[string]any) {
	s.publisher.Publish(ctx, events.Event{
		Type:      eventType,
		Timestamp: s.clock.Now(),
		BatchID:   batchID,
		Data:      data,
	})
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
