package v1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	v1 "github.com/stacklok/reposync/internal/api/v1"
	"github.com/stacklok/reposync/internal/api/v1/mocks"
	"github.com/stacklok/reposync/internal/directory"
	directorymocks "github.com/stacklok/reposync/internal/directory/mocks"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler"
	statemocks "github.com/stacklok/reposync/internal/sync/state/mocks"
)

const encodedRepositoryID = "acme%2Fapi"

type fixture struct {
	scheduler     *mocks.MockSchedulerService
	syncs         *mocks.MockSyncCanceller
	notifications *mocks.MockNotificationConfigStore
	keys          *mocks.MockKeyStore
	jobs          *statemocks.MockJobService
	directory     *directorymocks.MockDirectory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &fixture{
		scheduler:     mocks.NewMockSchedulerService(ctrl),
		syncs:         mocks.NewMockSyncCanceller(ctrl),
		notifications: mocks.NewMockNotificationConfigStore(ctrl),
		keys:          mocks.NewMockKeyStore(ctrl),
		jobs:          statemocks.NewMockJobService(ctrl),
		directory:     directorymocks.NewMockDirectory(ctrl),
	}
}

func (f *fixture) router(limiter *rate.Limiter) http.Handler {
	return v1.Router(v1.Dependencies{
		Scheduler:     f.scheduler,
		Syncs:         f.syncs,
		Jobs:          f.jobs,
		Directory:     f.directory,
		Notifications: f.notifications,
		Keys:          f.keys,
		KeyPattern:    "reposync:*",
		RunLimiter:    limiter,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func storeDown() error {
	return &store.OpError{Op: "read record", Key: "reposync:status:scheduler", Err: errors.New("connection refused")}
}

func TestGetSchedulerStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.scheduler.EXPECT().Status(gomock.Any()).Return(&status.SchedulerStatus{
		IsRunning:           true,
		LastRunAt:           &last,
		TotalReposProcessed: 5,
		FailedSyncs:         2,
	}, nil)
	f.scheduler.EXPECT().Config().Return(scheduler.DefaultConfig())

	rr := do(t, f.router(nil), http.MethodGet, "/scheduler/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decode[map[string]any](t, rr)
	assert.Equal(t, true, got["isRunning"])
	assert.EqualValues(t, 5, got["totalReposProcessed"])
	assert.EqualValues(t, 2, got["failedSyncs"])
	assert.Contains(t, got, "config")
}

func TestGetSchedulerStatus_StoreUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.scheduler.EXPECT().Status(gomock.Any()).Return(nil, storeDown())

	rr := do(t, f.router(nil), http.MethodGet, "/scheduler/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRunScheduler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "accepted", wantCode: http.StatusAccepted},
		{name: "already running", err: scheduler.ErrExecutionInProgress, wantCode: http.StatusConflict},
		{name: "another instance leads", err: scheduler.ErrLeaderLockHeld, wantCode: http.StatusConflict},
		{name: "store down", err: storeDown(), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			var execution *status.Execution
			if tt.err == nil {
				execution = &status.Execution{BatchID: "batch-1", Trigger: status.TriggerManual, Status: status.ExecutionRunning}
			}
			f.scheduler.EXPECT().RunNow(gomock.Any()).Return(execution, tt.err)

			rr := do(t, f.router(nil), http.MethodPost, "/scheduler/run", "")
			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.err == nil {
				got := decode[status.Execution](t, rr)
				assert.Equal(t, "batch-1", got.BatchID)
				assert.Equal(t, status.ExecutionRunning, got.Status)
			}
		})
	}
}

func TestRunScheduler_Throttled(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.scheduler.EXPECT().RunNow(gomock.Any()).Return(&status.Execution{BatchID: "batch-1"}, nil).Times(1)

	router := f.router(rate.NewLimiter(rate.Every(time.Hour), 1))

	assert.Equal(t, http.StatusAccepted, do(t, router, http.MethodPost, "/scheduler/run", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodPost, "/scheduler/run", "").Code)
}

func TestStartStopScheduler(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	gomock.InOrder(
		f.scheduler.EXPECT().Start(gomock.Any()).Return(nil),
		f.scheduler.EXPECT().Status(gomock.Any()).Return(&status.SchedulerStatus{IsRunning: true}, nil),
		f.scheduler.EXPECT().Stop(gomock.Any()).Return(nil),
		f.scheduler.EXPECT().Status(gomock.Any()).Return(&status.SchedulerStatus{}, nil),
	)
	f.scheduler.EXPECT().Config().Return(scheduler.DefaultConfig()).Times(2)

	router := f.router(nil)

	rr := do(t, router, http.MethodPost, "/scheduler", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode[map[string]any](t, rr)["isRunning"])

	rr = do(t, router, http.MethodDelete, "/scheduler", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode[map[string]any](t, rr)["isRunning"])
}

func TestGetSchedulerConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.scheduler.EXPECT().Config().Return(scheduler.DefaultConfig())

	rr := do(t, f.router(nil), http.MethodGet, "/scheduler/config", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decode[v1.SchedulerConfigResponse](t, rr)
	assert.Equal(t, "30m0s", got.Interval)
	assert.Equal(t, "5s", got.DelayBetweenRepos)
	assert.Equal(t, sync.TypeIncremental, got.SyncType)
	assert.Equal(t, "1s", got.RateLimit.MinInterval)
}

func TestUpdateSchedulerConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		check    func(t *testing.T, cfg scheduler.Config)
		wantCode int
	}{
		{
			name: "partial update keeps other fields",
			body: `{"interval":"15m","maxConcurrentRepos":4,"rateLimit":{"burstLimit":3,"minInterval":"2s"}}`,
			check: func(t *testing.T, cfg scheduler.Config) {
				t.Helper()
				assert.Equal(t, 15*time.Minute, cfg.Interval)
				assert.Equal(t, 4, cfg.MaxConcurrentRepos)
				assert.Equal(t, 3, cfg.RateLimit.BurstLimit)
				assert.Equal(t, 2*time.Second, cfg.RateLimit.MinInterval)
				assert.Equal(t, scheduler.DefaultDelayBetweenRepos, cfg.DelayBetweenRepos)
				assert.True(t, cfg.Enabled)
			},
			wantCode: http.StatusOK,
		},
		{
			name: "cron schedule and disable",
			body: `{"cron":"0 */2 * * *","enabled":false,"syncType":"full"}`,
			check: func(t *testing.T, cfg scheduler.Config) {
				t.Helper()
				assert.Equal(t, "0 */2 * * *", cfg.Cron)
				assert.False(t, cfg.Enabled)
				assert.Equal(t, sync.TypeFull, cfg.SyncType)
			},
			wantCode: http.StatusOK,
		},
		{name: "interval below minimum", body: `{"interval":"10s"}`, wantCode: http.StatusBadRequest},
		{name: "unparseable duration", body: `{"delayBetweenRepos":"soon"}`, wantCode: http.StatusBadRequest},
		{name: "invalid cron", body: `{"cron":"every day"}`, wantCode: http.StatusBadRequest},
		{name: "unknown sync type", body: `{"syncType":"partial"}`, wantCode: http.StatusBadRequest},
		{name: "burst above rpm", body: `{"rateLimit":{"requestsPerMinute":5,"burstLimit":10}}`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"intervalSeconds":60}`, wantCode: http.StatusBadRequest},
		{name: "malformed body", body: `{"interval":`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			current := scheduler.DefaultConfig()
			f.scheduler.EXPECT().Config().DoAndReturn(func() scheduler.Config { return current }).AnyTimes()
			if tt.check != nil {
				f.scheduler.EXPECT().UpdateConfig(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, cfg scheduler.Config) error {
						tt.check(t, cfg)
						current = cfg
						return nil
					})
			}

			rr := do(t, f.router(nil), http.MethodPut, "/scheduler/config", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
		})
	}
}

func TestListExecutions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		query     string
		wantLimit int
		wantCode  int
	}{
		{name: "default limit", query: "", wantLimit: 20, wantCode: http.StatusOK},
		{name: "explicit limit", query: "?limit=5", wantLimit: 5, wantCode: http.StatusOK},
		{name: "limit too large", query: "?limit=1000", wantCode: http.StatusBadRequest},
		{name: "limit not a number", query: "?limit=ten", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.wantLimit > 0 {
				f.scheduler.EXPECT().Executions(gomock.Any(), tt.wantLimit).Return([]*status.Execution{
					{BatchID: "b2", Status: status.ExecutionCompleted},
					{BatchID: "b1", Status: status.ExecutionFailed},
				}, nil)
			}

			rr := do(t, f.router(nil), http.MethodGet, "/scheduler/executions"+tt.query, "")
			require.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				got := decode[v1.ExecutionListResponse](t, rr)
				assert.Equal(t, 2, got.Count)
				assert.Equal(t, "b2", got.Executions[0].BatchID)
			}
		})
	}
}

func TestGetRepositorySync(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	last := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	f.jobs.EXPECT().GetRepositoryState(gomock.Any(), "acme/api").Return(&sync.RepositoryState{
		RepositoryID:        "acme/api",
		LastSyncAt:          &last,
		ConsecutiveFailures: 1,
	}, nil)
	f.jobs.EXPECT().ListRepositoryJobs(gomock.Any(), "acme/api", 10, 5).Return([]*sync.Job{
		{ID: "job-2", RepositoryID: "acme/api", Status: sync.JobStatusFailed},
	}, int64(11), nil)

	rr := do(t, f.router(nil), http.MethodGet, "/repositories/"+encodedRepositoryID+"/sync?offset=10&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decode[v1.RepositorySyncResponse](t, rr)
	assert.Equal(t, 1, got.State.ConsecutiveFailures)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "job-2", got.Jobs[0].ID)
	assert.Equal(t, v1.PageMetadata{Offset: 10, Limit: 5, Total: 11}, got.Metadata)
}

func TestGetRepositorySync_InvalidQuery(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rr := do(t, f.router(nil), http.MethodGet, "/repositories/"+encodedRepositoryID+"/sync?offset=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, f.router(nil), http.MethodGet, "/repositories/acme%20api/sync", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestRepositorySync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lookup   error
		queue    error
		wantCode int
	}{
		{name: "queued", wantCode: http.StatusAccepted},
		{name: "unknown repository", lookup: directory.ErrRepositoryNotFound, wantCode: http.StatusNotFound},
		{name: "invalid repository", lookup: directory.ErrInvalidRepository, wantCode: http.StatusBadRequest},
		{name: "store down", queue: storeDown(), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			f.directory.EXPECT().GetRepository(gomock.Any(), "acme/api").
				Return(&directory.Repository{ID: "acme/api"}, tt.lookup)
			if tt.lookup == nil {
				f.scheduler.EXPECT().RequestSync(gomock.Any(), "acme/api").Return(tt.queue)
			}

			rr := do(t, f.router(nil), http.MethodPost, "/repositories/"+encodedRepositoryID+"/sync", "")
			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusAccepted {
				got := decode[v1.SyncRequestResponse](t, rr)
				assert.Equal(t, v1.SyncRequestResponse{RepositoryID: "acme/api", Queued: true}, got)
			}
		})
	}
}

func TestCancelRepositorySync(t *testing.T) {
	t.Parallel()

	t.Run("active job", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.syncs.EXPECT().CancelSync(gomock.Any(), "acme/api").Return(&sync.Job{
			ID:     "job-1",
			Status: sync.JobStatusFailed,
			Error:  sync.ErrCancelled.Error(),
		}, nil)

		rr := do(t, f.router(nil), http.MethodDelete, "/repositories/"+encodedRepositoryID+"/sync", "")
		require.Equal(t, http.StatusOK, rr.Code)

		got := decode[v1.CancelResponse](t, rr)
		assert.True(t, got.Cancelled)
		assert.Equal(t, "job-1", got.Job.ID)
		assert.Equal(t, sync.JobStatusFailed, got.Job.Status)
	})

	t.Run("nothing active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.syncs.EXPECT().CancelSync(gomock.Any(), "acme/api").Return(nil, nil)

		rr := do(t, f.router(nil), http.MethodDelete, "/repositories/"+encodedRepositoryID+"/sync", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.False(t, decode[v1.CancelResponse](t, rr).Cancelled)
	})

	t.Run("store down", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.syncs.EXPECT().CancelSync(gomock.Any(), "acme/api").
			Return(nil, sync.NewError(sync.KindStoreUnavailable, "failed to release lock", storeDown()))

		rr := do(t, f.router(nil), http.MethodDelete, "/repositories/"+encodedRepositoryID+"/sync", "")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestNotificationConfig(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	stored := notify.DefaultConfig()
	f.notifications.EXPECT().Load(gomock.Any()).DoAndReturn(func(context.Context) (notify.Config, error) {
		return stored, nil
	}).AnyTimes()
	f.notifications.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, cfg notify.Config) error {
		stored = cfg
		return nil
	})

	router := f.router(nil)

	rr := do(t, router, http.MethodGet, "/notifications/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, notify.DefaultFailureThreshold, decode[notify.Config](t, rr).FailureThreshold)

	body := `{"enabled":true,"emailRecipients":["ops@example.com"],"failureThreshold":5,"successNotificationsEnabled":true}`
	rr = do(t, router, http.MethodPut, "/notifications/config", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got := decode[notify.Config](t, rr)
	assert.True(t, got.Enabled)
	assert.Equal(t, []string{"ops@example.com"}, got.EmailRecipients)
	assert.Equal(t, 5, got.FailureThreshold)

	rr = do(t, router, http.MethodPut, "/notifications/config", `{"emailRecipients":["not-an-address"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDebugKeys(t *testing.T) {
	t.Parallel()

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.keys.EXPECT().Keys(gomock.Any(), "reposync:*").Return([]string{"reposync:a", "reposync:b"}, nil)

		rr := do(t, f.router(nil), http.MethodGet, "/debug/keys", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, v1.KeysResponse{Keys: []string{"reposync:a", "reposync:b"}, Count: 2}, decode[v1.KeysResponse](t, rr))
	})

	t.Run("wipe", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.keys.EXPECT().Keys(gomock.Any(), "reposync:*").Return([]string{"reposync:a", "reposync:b"}, nil)
		f.keys.EXPECT().Delete(gomock.Any(), "reposync:a", "reposync:b").Return(nil)

		rr := do(t, f.router(nil), http.MethodDelete, "/debug/keys", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 2, decode[v1.DeleteKeysResponse](t, rr).Deleted)
	})

	t.Run("wipe empty store", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.keys.EXPECT().Keys(gomock.Any(), "reposync:*").Return(nil, nil)

		rr := do(t, f.router(nil), http.MethodDelete, "/debug/keys", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 0, decode[v1.DeleteKeysResponse](t, rr).Deleted)
	})
}
