package scheduler

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/stacklok/reposync/internal/directory"
	directorymocks "github.com/stacklok/reposync/internal/directory/mocks"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler/mocks"
)

type fixture struct {
	store       store.Store
	keys        store.Keys
	clock       *testingclock.FakeClock
	persistence status.StatusPersistence
	configs     *ConfigStore
	directory   *directorymocks.MockDirectory
	syncer      *mocks.MockSyncer
	notifier    *mocks.MockBatchNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	fc := testingclock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s := store.NewMemoryStore(store.WithClock(fc))
	keys := store.NewKeys("")
	return &fixture{
		store:       s,
		keys:        keys,
		clock:       fc,
		persistence: status.NewStoreStatusPersistence(s, keys, fc),
		configs:     NewConfigStore(s, keys),
		directory:   directorymocks.NewMockDirectory(ctrl),
		syncer:      mocks.NewMockSyncer(ctrl),
		notifier:    mocks.NewMockBatchNotifier(ctrl),
	}
}

func (f *fixture) newService(t *testing.T, instanceID string, cfg Config, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithInstanceID(instanceID),
		WithClock(f.clock),
		WithNotifier(f.notifier),
	}, opts...)
	svc := New(f.store, f.keys, f.directory, f.syncer, f.persistence, f.configs, cfg, opts...)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DelayBetweenRepos = 0
	return cfg
}

func candidates(ids ...string) []directory.Candidate {
	out := make([]directory.Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, directory.Candidate{ID: id, Name: id})
	}
	return out
}

func success(id string) *sync.Result {
	return &sync.Result{Success: true, RepositoryID: id, JobID: "job-" + id}
}

func failure(id string, kind sync.Kind) *sync.Result {
	return &sync.Result{RepositoryID: id, Err: sync.NewError(kind, "failed", nil)}
}

// autoAdvance steps the fake clock whenever a goroutine is blocked on it
func autoAdvance(t *testing.T, fc *testingclock.FakeClock, step time.Duration) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			default:
			}
			if fc.HasWaiters() {
				fc.Step(step)
			} else {
				time.Sleep(50 * time.Microsecond)
			}
		}
	}()
}

func TestStart_SecondInstanceIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	leader := f.newService(t, "instance-a", testConfig())
	follower := f.newService(t, "instance-b", testConfig())

	require.NoError(t, leader.Start(ctx))
	require.True(t, leader.IsRunning())

	require.NoError(t, follower.Start(ctx))
	assert.False(t, follower.IsRunning(), "follower must not run while the leader holds the lock")

	st, err := follower.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.IsRunning, "status reflects the leader")

	require.NoError(t, leader.Stop(ctx))
	require.NoError(t, follower.Start(ctx))
	assert.True(t, follower.IsRunning(), "lock is free once the leader stops")
	require.NoError(t, follower.Stop(ctx))
}

func TestStart_TimerRunsBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("acme/api"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "acme/api", sync.TypeIncremental, gomock.Any()).Return(success("acme/api"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Cond(func(o notify.BatchOutcome) bool {
		return o.FailureCount == 0 && o.TotalProcessed == 1
	}), gomock.Nil())

	svc := f.newService(t, "instance-a", testConfig())
	require.NoError(t, svc.Start(ctx))

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.NextRunAt)
	assert.True(t, f.clock.Now().Add(DefaultInterval).Equal(*st.NextRunAt))

	// batch timer and leader keep-alive
	require.Eventually(t, func() bool { return f.clock.Waiters() >= 2 }, 5*time.Second, time.Millisecond)
	f.clock.Step(DefaultInterval)

	require.Eventually(t, func() bool {
		st, err := svc.Status(ctx)
		return err == nil && st.TotalReposProcessed == 1
	}, 5*time.Second, 5*time.Millisecond)

	executions, err := svc.Executions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, status.ExecutionCompleted, executions[0].Status)

	require.NoError(t, svc.Stop(ctx))

	st, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.IsRunning)
	assert.Nil(t, st.NextRunAt)
	assert.Equal(t, int64(1), st.TotalReposProcessed)
	assert.Equal(t, int64(1), st.SuccessfulSyncs)

	acquired, err := f.store.AcquireLock(ctx, f.keys.SchedulerLock(), "probe", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "stop releases the leader lock")
}

func TestExecuteScheduler_NoCandidates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(nil, nil)
	svc := f.newService(t, "instance-a", testConfig())

	execution, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 0, execution.ProcessedCount)
	assert.Equal(t, status.ExecutionSkipped, execution.Status)
	assert.NotNil(t, execution.CompletedAt)

	executions, err := svc.Executions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, execution.BatchID, executions[0].BatchID)
	assert.Equal(t, 0, executions[0].ProcessedCount)
}

func TestExecuteScheduler_CandidateErrorSetsLastError(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(nil, errors.New("directory unavailable"))
	svc := f.newService(t, "instance-a", testConfig())
	require.NoError(t, svc.Start(ctx))

	execution, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, status.ExecutionFailed, execution.Status)
	assert.Contains(t, execution.Error, "directory unavailable")

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Contains(t, st.LastError, "directory unavailable")
	assert.Empty(t, st.CurrentBatchID)
	assert.True(t, svc.IsRunning(), "the timer survives a failed batch")

	executions, err := svc.Executions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, status.ExecutionFailed, executions[0].Status)
}

func TestExecuteScheduler_CapAndDelay(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.MaxConcurrentRepos = 2
	cfg.DelayBetweenRepos = 5 * time.Second
	cfg.SyncType = sync.TypeFull

	var mu gosync.Mutex
	var calledAt []time.Time
	record := func(ctx context.Context, id string, _ sync.Type, _ string) {
		mu.Lock()
		defer mu.Unlock()
		calledAt = append(calledAt, f.clock.Now())
	}

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a", "b", "c"), nil)
	gomock.InOrder(
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", sync.TypeFull, gomock.Any()).
			Do(record).Return(success("a")),
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "b", sync.TypeFull, gomock.Any()).
			Do(record).Return(failure("b", sync.KindUpstreamUnavailable)),
	)
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Cond(func(o notify.BatchOutcome) bool {
		return o.FailureCount == 1 && o.TotalProcessed == 2 && o.BatchID != ""
	}), gomock.Nil())

	svc := f.newService(t, "instance-a", cfg)
	autoAdvance(t, f.clock, time.Second)

	execution, err := svc.ExecuteScheduler(ctx, status.TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, status.ExecutionCompleted, execution.Status)
	assert.Equal(t, 2, execution.ProcessedCount)
	assert.Equal(t, 1, execution.SuccessCount)
	assert.Equal(t, 1, execution.FailureCount)
	assert.Equal(t, []string{"a", "b"}, execution.Repositories)

	mu.Lock()
	require.Len(t, calledAt, 2)
	assert.GreaterOrEqual(t, calledAt[1].Sub(calledAt[0]), cfg.DelayBetweenRepos)
	mu.Unlock()

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalReposProcessed)
	assert.Equal(t, int64(1), st.SuccessfulSyncs)
	assert.Equal(t, int64(1), st.FailedSyncs)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastRunAt)
}

func TestExecuteScheduler_ManualRequestsFirst(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	svc := f.newService(t, "instance-a", testConfig())
	require.NoError(t, svc.RequestSync(ctx, "c"))
	require.NoError(t, svc.RequestSync(ctx, "a"))
	require.NoError(t, svc.RequestSync(ctx, "c"))

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a", "b"), nil)
	gomock.InOrder(
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "c", gomock.Any(), gomock.Any()).Return(success("c")),
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).Return(success("a")),
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "b", gomock.Any(), gomock.Any()).Return(success("b")),
	)
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	execution, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, execution.Repositories)
}

func TestExecuteScheduler_RequeuesManualOverflow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.MaxConcurrentRepos = 1
	svc := f.newService(t, "instance-a", cfg)
	require.NoError(t, svc.RequestSync(ctx, "x"))
	require.NoError(t, svc.RequestSync(ctx, "y"))

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("z"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "x", gomock.Any(), gomock.Any()).Return(success("x"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	_, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)

	next, ok, err := f.store.PopQueue(ctx, f.keys.ManualQueue())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "y", next)
}

func TestExecuteScheduler_LockContentionIsNotCounted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a", "b"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).Return(failure("a", sync.KindLockContention))
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "b", gomock.Any(), gomock.Any()).Return(success("b"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Cond(func(o notify.BatchOutcome) bool {
		return o.TotalProcessed == 1 && o.FailureCount == 0
	}), gomock.Any())

	svc := f.newService(t, "instance-a", testConfig())
	execution, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, execution.ProcessedCount)
	assert.Equal(t, []string{"b"}, execution.Repositories)
}

func TestExecuteScheduler_OneAtATime(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, sync.Type, string) *sync.Result {
			close(started)
			<-release
			return success("a")
		})
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	svc := f.newService(t, "instance-a", testConfig())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.ExecuteScheduler(ctx, status.TriggerScheduled)
		assert.NoError(t, err)
	}()
	<-started

	_, err := svc.ExecuteScheduler(ctx, status.TriggerManual)
	require.ErrorIs(t, err, ErrExecutionInProgress)

	close(release)
	<-done
}

func TestRunNow_StartsStoppedService(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).Return(success("a"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	svc := f.newService(t, "instance-a", testConfig())
	require.False(t, svc.IsRunning())

	execution, err := svc.RunNow(ctx)
	require.NoError(t, err)
	assert.True(t, svc.IsRunning())
	assert.Equal(t, status.TriggerManual, execution.Trigger)
	assert.Equal(t, status.ExecutionRunning, execution.Status)

	require.Eventually(t, func() bool {
		executions, err := svc.Executions(ctx, 1)
		return err == nil && len(executions) == 1 &&
			executions[0].BatchID == execution.BatchID &&
			executions[0].Status == status.ExecutionCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).Return(success("a"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	svc := f.newService(t, "instance-a", testConfig())

	execution, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, status.ExecutionCompleted, execution.Status)
	assert.Equal(t, 1, execution.SuccessCount)
	assert.False(t, svc.IsRunning(), "run once does not start the timer")

	acquired, err := f.store.AcquireLock(ctx, f.keys.SchedulerLock(), "probe", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired, "run once releases the leader lock")
}

func TestRunOnce_LeaderElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	leader := f.newService(t, "instance-a", testConfig())
	require.NoError(t, leader.Start(ctx))

	other := f.newService(t, "instance-b", testConfig())
	_, err := other.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrLeaderLockHeld)

	executions, err := other.Executions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var applied []Config
	svc := f.newService(t, "instance-a", testConfig(), WithConfigListener(func(c Config) {
		applied = append(applied, c)
	}))

	invalid := testConfig()
	invalid.MaxConcurrentRepos = 0
	require.Error(t, svc.UpdateConfig(ctx, invalid))
	assert.Empty(t, applied)

	require.NoError(t, svc.Start(ctx))

	faster := testConfig()
	faster.Interval = 10 * time.Minute
	require.NoError(t, svc.UpdateConfig(ctx, faster))
	assert.True(t, svc.IsRunning(), "schedule change restarts the timer")
	st, err := svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.NextRunAt)
	assert.True(t, f.clock.Now().Add(10*time.Minute).Equal(*st.NextRunAt))

	disabled := faster
	disabled.Enabled = false
	require.NoError(t, svc.UpdateConfig(ctx, disabled))
	assert.False(t, svc.IsRunning())

	require.NoError(t, svc.UpdateConfig(ctx, faster))
	assert.True(t, svc.IsRunning(), "enabling starts a stopped scheduler")

	stored, err := f.configs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, faster, stored)
	require.Len(t, applied, 3)
	assert.Equal(t, faster, svc.Config())
}

func TestUpdateConfig_RestartDuringBatch(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	syncErr := make(chan error, 1)
	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a", "b"), nil)
	gomock.InOrder(
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, id string, _ sync.Type, _ string) *sync.Result {
				close(started)
				<-release
				syncErr <- ctx.Err()
				return success(id)
			}),
		f.syncer.EXPECT().SyncRepository(gomock.Any(), "b", gomock.Any(), gomock.Any()).Return(success("b")),
	)
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Cond(func(o notify.BatchOutcome) bool {
		return o.TotalProcessed == 2 && o.FailureCount == 0
	}), gomock.Any())

	svc := f.newService(t, "instance-a", testConfig())
	require.NoError(t, svc.Start(ctx))
	require.Eventually(t, func() bool { return f.clock.Waiters() >= 2 }, 5*time.Second, time.Millisecond)
	f.clock.Step(DefaultInterval)
	<-started

	faster := testConfig()
	faster.Interval = 10 * time.Minute
	require.NoError(t, svc.UpdateConfig(ctx, faster))
	assert.True(t, svc.IsRunning())
	close(release)

	assert.NoError(t, <-syncErr, "restarting the timer must not cancel the sync in flight")
	require.Eventually(t, func() bool {
		st, err := svc.Status(ctx)
		return err == nil && st.TotalReposProcessed == 2
	}, 5*time.Second, 5*time.Millisecond)

	executions, err := svc.Executions(ctx, 1)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, status.ExecutionCompleted, executions[0].Status)
	assert.Equal(t, []string{"a", "b"}, executions[0].Repositories)

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.LastError)
}

func TestRunNow_LeaderElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	leader := f.newService(t, "instance-a", testConfig())
	require.NoError(t, leader.Start(ctx))

	follower := f.newService(t, "instance-b", testConfig())
	_, err := follower.RunNow(ctx)
	require.ErrorIs(t, err, ErrLeaderLockHeld)
	assert.False(t, follower.IsRunning())

	executions, err := follower.Executions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, executions)
}

func TestExecuteScheduler_AdoptsConfigSavedElsewhere(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var applied []Config
	leader := f.newService(t, "instance-a", testConfig(), WithConfigListener(func(c Config) {
		applied = append(applied, c)
	}))
	require.NoError(t, leader.Start(ctx))

	narrow := testConfig()
	narrow.MaxConcurrentRepos = 1
	other := f.newService(t, "instance-b", testConfig())
	require.NoError(t, other.UpdateConfig(ctx, narrow))

	f.directory.EXPECT().ListSyncCandidates(gomock.Any()).Return(candidates("a", "b", "c"), nil)
	f.syncer.EXPECT().SyncRepository(gomock.Any(), "a", gomock.Any(), gomock.Any()).Return(success("a"))
	f.notifier.EXPECT().EvaluateBatch(gomock.Any(), gomock.Any(), gomock.Any())

	execution, err := leader.ExecuteScheduler(ctx, status.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, execution.ProcessedCount)
	assert.Equal(t, narrow, leader.Config())
	assert.Equal(t, []Config{narrow}, applied)
}

func TestKeepAlive_AppliesStoredSchedule(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	leader := f.newService(t, "instance-a", testConfig())
	require.NoError(t, leader.Start(ctx))
	require.Eventually(t, func() bool { return f.clock.Waiters() >= 2 }, 5*time.Second, time.Millisecond)

	faster := testConfig()
	faster.Interval = 10 * time.Minute
	other := f.newService(t, "instance-b", testConfig())
	require.NoError(t, other.UpdateConfig(ctx, faster))

	f.clock.Step(keepAliveInterval)
	require.Eventually(t, func() bool {
		st, err := leader.Status(ctx)
		return err == nil && st.NextRunAt != nil && st.NextRunAt.Equal(f.clock.Now().Add(10*time.Minute))
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, leader.IsRunning())

	disabled := faster
	disabled.Enabled = false
	require.NoError(t, other.UpdateConfig(ctx, disabled))

	f.clock.Step(keepAliveInterval)
	require.Eventually(t, func() bool { return !leader.IsRunning() }, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		acquired, err := f.store.AcquireLock(ctx, f.keys.SchedulerLock(), "instance-c", time.Minute)
		return err == nil && acquired
	}, 5*time.Second, 5*time.Millisecond, "a disabled leader gives up the lock")
}
