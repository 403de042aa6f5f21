package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/reposync/internal/adapter"
	adaptermocks "github.com/stacklok/reposync/internal/adapter/mocks"
	"github.com/stacklok/reposync/internal/config"
	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler"
)

// createValidTestConfig returns a memory store configuration with one
// repository whose token is read from a temporary file
func createValidTestConfig(t *testing.T) *config.Config {
	t.Helper()

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("s3cret\n"), 0o600))

	enabled := false
	return &config.Config{
		InstanceID: "test-instance",
		Store:      config.StoreConfig{Type: config.StoreTypeMemory, KeyPrefix: "test"},
		Scheduler: config.SchedulerConfig{
			Enabled:           &enabled,
			Interval:          "15m",
			DelayBetweenRepos: "0s",
			RateLimit:         &config.RateLimitConfig{MinInterval: "0s"},
		},
		Directory: config.DirectoryConfig{
			Static: &config.StaticDirectoryConfig{
				Repositories: []config.RepositoryConfig{
					{ID: "acme/api", Organization: "acme", Project: "api", TokenFile: tokenFile},
					{ID: "acme/web", Organization: "acme", Project: "web", TokenFile: tokenFile, Disabled: true},
				},
			},
		},
		Adapter: config.AdapterConfig{Endpoint: "http://worker.invalid"},
	}
}

func TestBaseConfig_Defaults(t *testing.T) {
	t.Parallel()

	built, err := baseConfig(WithConfig(createValidTestConfig(t)))
	require.NoError(t, err)
	assert.Equal(t, defaultHTTPAddress, built.address)
	assert.Equal(t, defaultRequestTimeout, built.requestTimeout)
	assert.Equal(t, defaultManualRunInterval, built.manualRunEvery)
	assert.False(t, built.debugEndpoints)
}

func TestBaseConfig_RequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := baseConfig()
	assert.Error(t, err)
}

func TestWithAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr    string
		wantErr bool
	}{
		{addr: ":9090"},
		{addr: "localhost:8080"},
		{addr: "10.0.0.1:80"},
		{addr: "", wantErr: true},
		{addr: ":", wantErr: true},
		{addr: "9090", wantErr: true},
		{addr: ":notaport", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			t.Parallel()
			built, err := baseConfig(WithConfig(createValidTestConfig(t)), WithAddress(tt.addr))
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, built)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addr, built.address)
		})
	}
}

func TestWithManualRunInterval(t *testing.T) {
	t.Parallel()

	_, err := baseConfig(WithConfig(createValidTestConfig(t)), WithManualRunInterval(-time.Second))
	assert.Error(t, err)

	built, err := baseConfig(WithConfig(createValidTestConfig(t)), WithManualRunInterval(0))
	require.NoError(t, err)
	assert.Zero(t, built.manualRunEvery)
}

func TestSchedulerConfigFrom(t *testing.T) {
	t.Parallel()

	got := schedulerConfigFrom(&config.SchedulerConfig{})
	assert.Equal(t, scheduler.Config{
		Enabled:            true,
		Interval:           config.DefaultSchedulerInterval,
		MaxConcurrentRepos: config.DefaultMaxConcurrentRepos,
		DelayBetweenRepos:  config.DefaultDelayBetweenRepos,
		SyncType:           sync.TypeIncremental,
		MaxRetries:         config.DefaultMaxRetries,
		RateLimit:          ratelimit.DefaultConfig(),
	}, got)
	require.NoError(t, got.Validate())

	got = schedulerConfigFrom(&config.SchedulerConfig{Cron: "0 * * * *", SyncType: "full"})
	assert.Equal(t, "0 * * * *", got.Cron)
	assert.Equal(t, sync.TypeFull, got.SyncType)
}

func TestInstanceID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pod-1", instanceID(&config.Config{InstanceID: "pod-1"}))

	a := instanceID(&config.Config{})
	b := instanceID(&config.Config{})
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestBuildStore_Errors(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	cfg.Store = config.StoreConfig{Type: config.StoreTypeRedis}
	_, err := buildStore(context.Background(), &repoSyncAppConfig{config: cfg})
	assert.Error(t, err)

	cfg.Store = config.StoreConfig{Type: "etcd"}
	_, err = buildStore(context.Background(), &repoSyncAppConfig{config: cfg})
	assert.Error(t, err)
}

func TestBuildDirectory_RequiresSource(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	cfg.Directory = config.DirectoryConfig{}
	_, err := buildDirectory(&repoSyncAppConfig{config: cfg})
	assert.Error(t, err)
}

func TestNewComponents_SeedsConfiguration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := createValidTestConfig(t)
	cfg.Notifications = &notify.Config{Enabled: true, FailureThreshold: 5}

	components, err := NewComponents(ctx, WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Close(context.Background()) })

	assert.Nil(t, components.Publisher)
	assert.Equal(t, "test:", components.Keys.Prefix())

	notifications, err := components.Notifications.Load(ctx)
	require.NoError(t, err)
	assert.True(t, notifications.Enabled)
	assert.Equal(t, 5, notifications.FailureThreshold)

	schedCfg := components.Scheduler.Config()
	assert.False(t, schedCfg.Enabled)
	assert.Equal(t, 15*time.Minute, schedCfg.Interval)
	assert.Zero(t, schedCfg.RateLimit.MinInterval)
	assert.Equal(t, schedCfg.RateLimit, components.Limiter.Config())
}

func TestNewComponents_StoredConfigurationWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := store.NewMemoryStore()
	keys := store.NewKeys("test")
	stored := scheduler.DefaultConfig()
	stored.Interval = 2 * time.Hour
	require.NoError(t, scheduler.NewConfigStore(s, keys).Save(ctx, stored))

	components, err := NewComponents(ctx, WithConfig(createValidTestConfig(t)), WithStore(s))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Close(context.Background()) })

	assert.Equal(t, 2*time.Hour, components.Scheduler.Config().Interval)
}

func TestNewComponents_ConfigChangesReachLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	components, err := NewComponents(ctx, WithConfig(createValidTestConfig(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Close(context.Background()) })

	next := components.Scheduler.Config()
	next.RateLimit = ratelimit.Config{RequestsPerMinute: 30, BurstLimit: 3, MinInterval: 2 * time.Second}
	next.MaxRetries = 7
	require.NoError(t, components.Scheduler.UpdateConfig(ctx, next))

	assert.Equal(t, next.RateLimit, components.Limiter.Config())
}

func TestNewComponents_RunsBatchEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	syncAdapter := adaptermocks.NewMockAdapter(ctrl)
	syncAdapter.EXPECT().
		RunSync(gomock.Any(), gomock.Cond(func(r *directory.Repository) bool {
			return r.ID == "acme/api" && r.Credentials.Token == "s3cret"
		}), gomock.Nil()).
		Return(&adapter.Outcome{RecordsProcessed: 12}, nil)

	components, err := NewComponents(ctx, WithConfig(createValidTestConfig(t)), WithAdapter(syncAdapter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = components.Close(context.Background()) })

	execution, err := components.Scheduler.ExecuteScheduler(ctx, status.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, status.ExecutionCompleted, execution.Status)
	assert.Equal(t, 1, execution.ProcessedCount)
	assert.Equal(t, 1, execution.SuccessCount)
	assert.Equal(t, []string{"acme/api"}, execution.Repositories)

	repoState, err := components.Jobs.GetRepositoryState(ctx, "acme/api")
	require.NoError(t, err)
	assert.Equal(t, sync.JobStatusCompleted, repoState.LastStatus)
	assert.NotNil(t, repoState.LastSyncAt)

	history, err := components.Scheduler.Executions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, execution.BatchID, history[0].BatchID)
}

func TestOpenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, keys, err := OpenStore(ctx, createValidTestConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, "test:", keys.Prefix())
	assert.NoError(t, s.Ping(ctx))

	_, _, err = OpenStore(ctx, nil)
	assert.Error(t, err)
}

func TestBuildAdapter(t *testing.T) {
	t.Parallel()

	cfg := createValidTestConfig(t)
	got, err := buildAdapter(&repoSyncAppConfig{config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &adapter.HTTPAdapter{}, got)

	cfg.Adapter = config.AdapterConfig{Type: config.AdapterTypeGit}
	got, err = buildAdapter(&repoSyncAppConfig{config: cfg})
	require.NoError(t, err)
	assert.IsType(t, &adapter.GitAdapter{}, got)
}
