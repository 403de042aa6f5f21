package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/adapter"
	"github.com/stacklok/reposync/internal/api"
	v1 "github.com/stacklok/reposync/internal/api/v1"
	"github.com/stacklok/reposync/internal/config"
	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/events"
	"github.com/stacklok/reposync/internal/git"
	"github.com/stacklok/reposync/internal/httpclient"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/orchestrator"
	"github.com/stacklok/reposync/internal/sync/scheduler"
	"github.com/stacklok/reposync/internal/sync/state"
	"github.com/stacklok/reposync/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// defaultManualRunInterval spaces out operator triggered batches
	defaultManualRunInterval = 10 * time.Second
)

// RepoSyncAppOptions is a function that configures the application builder
type RepoSyncAppOptions func(*repoSyncAppConfig) error

// repoSyncAppConfig collects the application settings and optional component
// overrides used by tests
type repoSyncAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	store     store.Store
	directory directory.Directory
	adapter   adapter.Adapter
	clock     clock.WithTicker

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration
	debugEndpoints bool
	manualRunEvery time.Duration

	// redisClient is set when the store is Redis backed
	redisClient redis.UniversalClient
}

func baseConfig(opts ...RepoSyncAppOptions) (*repoSyncAppConfig, error) {
	cfg := &repoSyncAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
		manualRunEvery: defaultManualRunInterval,
		clock:          clock.RealClock{},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewRepoSyncApp builds the application: components, operator API and HTTP server
func NewRepoSyncApp(ctx context.Context, opts ...RepoSyncAppOptions) (*RepoSyncApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	components, err := buildComponents(ctx, cfg)
	if err != nil {
		return nil, err
	}

	httpServer, err := buildHTTPServer(cfg, components)
	if err != nil {
		_ = components.Close(ctx)
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	appCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &RepoSyncApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// NewComponents builds the application components without the HTTP server,
// for one-shot commands. The caller must Close the result.
func NewComponents(ctx context.Context, opts ...RepoSyncAppOptions) (*AppComponents, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	return buildComponents(ctx, cfg)
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithDebugEndpoints mounts the key enumeration and wipe endpoints
func WithDebugEndpoints(enabled bool) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.debugEndpoints = enabled
		return nil
	}
}

// WithManualRunInterval sets the minimum spacing of operator triggered batches
func WithManualRunInterval(d time.Duration) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		if d < 0 {
			return fmt.Errorf("manual run interval cannot be negative: %s", d)
		}
		cfg.manualRunEvery = d
		return nil
	}
}

// WithStore allows injecting a store instead of the configured one (for testing)
func WithStore(s store.Store) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.store = s
		return nil
	}
}

// WithDirectory allows injecting a directory instead of the configured one (for testing)
func WithDirectory(d directory.Directory) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.directory = d
		return nil
	}
}

// WithAdapter allows injecting a sync adapter instead of the configured one (for testing)
func WithAdapter(a adapter.Adapter) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.adapter = a
		return nil
	}
}

// WithClock sets the clock used by every component (for testing)
func WithClock(c clock.WithTicker) RepoSyncAppOptions {
	return func(cfg *repoSyncAppConfig) error {
		cfg.clock = c
		return nil
	}
}

// buildComponents builds the store, sync and scheduling components
func buildComponents(ctx context.Context, b *repoSyncAppConfig) (*AppComponents, error) {
	slog.Info("Initializing application components")

	tel, err := telemetry.New(ctx, b.config.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	components := &AppComponents{Telemetry: tel}

	// Release whatever was built when a later step fails
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			_ = components.Close(context.WithoutCancel(ctx))
		}
	}()

	s, err := buildStore(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}
	components.Store = s
	components.Keys = store.NewKeys(b.config.Store.KeyPrefix)

	dir, err := buildDirectory(b)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory: %w", err)
	}
	components.Directory = dir

	syncAdapter, err := buildAdapter(b)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync adapter: %w", err)
	}

	keys := components.Keys
	components.Notifications = notify.NewConfigStore(s, keys)
	if err := components.Notifications.Seed(ctx, b.config.GetNotifications()); err != nil {
		return nil, fmt.Errorf("failed to seed notification config: %w", err)
	}

	configs := scheduler.NewConfigStore(s, keys)
	schedulerConfig, err := configs.Seed(ctx, schedulerConfigFrom(&b.config.Scheduler))
	if err != nil {
		return nil, fmt.Errorf("failed to seed scheduler config: %w", err)
	}

	meterProvider := tel.MeterProvider()
	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}
	rateMetrics, err := telemetry.NewRateLimitMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit metrics: %w", err)
	}
	schedulerMetrics, err := telemetry.NewSchedulerMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler metrics: %w", err)
	}
	notificationMetrics, err := telemetry.NewNotificationMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if ev := b.config.Events; ev != nil && ev.Enabled {
		sinks := []events.Sink{events.LogSink{}}
		if b.redisClient != nil {
			sinks = append(sinks, events.NewRedisSink(b.redisClient, keys.EventsChannel()))
		}
		components.Publisher = events.NewAsyncPublisher(ev.BufferSize, sinks...)
		publisher = components.Publisher
		slog.Info("Status events enabled", "sinks", len(sinks))
	}

	components.Jobs = state.NewStoreJobService(s, keys, state.WithClock(b.clock))

	channel := notify.MultiChannel{
		notify.LogChannel{},
		notify.NewWebhookChannel(httpclient.NewDefaultClient(notify.DefaultDeliveryTimeout)),
	}
	policy := notify.NewPolicy(components.Notifications, components.Jobs, channel,
		notify.WithClock(b.clock),
		notify.WithMetrics(notificationMetrics))

	components.Limiter = ratelimit.New(s, keys,
		ratelimit.WithClock(b.clock),
		ratelimit.WithConfig(schedulerConfig.RateLimit),
		ratelimit.WithMetrics(rateMetrics))

	components.Orchestrator = orchestrator.New(s, keys, components.Jobs, dir, syncAdapter, components.Limiter,
		orchestrator.WithNotifier(policy),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithClock(b.clock),
		orchestrator.WithMetrics(syncMetrics),
		orchestrator.WithTracerProvider(tel.TracerProvider()),
		orchestrator.WithMaxRetries(schedulerConfig.MaxRetries))

	components.Scheduler = scheduler.New(s, keys, dir, components.Orchestrator,
		status.NewStoreStatusPersistence(s, keys, b.clock),
		configs,
		schedulerConfig,
		scheduler.WithInstanceID(instanceID(b.config)),
		scheduler.WithNotifier(policy),
		scheduler.WithPublisher(publisher),
		scheduler.WithClock(b.clock),
		scheduler.WithMetrics(schedulerMetrics),
		scheduler.WithTracerProvider(tel.TracerProvider()),
		scheduler.WithConfigListener(applySchedulerConfig(components)))

	cleanupNeeded = false
	slog.Info("Application components initialized",
		"store", b.config.Store.GetStoreType(),
		"key_prefix", keys.Prefix())
	return components, nil
}

// applySchedulerConfig pushes runtime configuration changes into the limiter and orchestrator
func applySchedulerConfig(c *AppComponents) scheduler.ConfigListener {
	return func(cfg scheduler.Config) {
		if err := c.Limiter.SetConfig(cfg.RateLimit); err != nil {
			slog.Error("Failed to apply rate limit configuration", "error", err)
		}
		c.Orchestrator.SetMaxRetries(cfg.MaxRetries)
	}
}

// buildStore connects the configured shared state store
func buildStore(ctx context.Context, b *repoSyncAppConfig) (store.Store, error) {
	if b.store != nil {
		return b.store, nil
	}

	switch b.config.Store.GetStoreType() {
	case config.StoreTypeMemory:
		slog.Warn("Using in-memory store, state is not shared between instances")
		return store.NewMemoryStore(store.WithClock(b.clock)), nil
	case config.StoreTypeRedis:
		redisCfg := b.config.Store.Redis
		if redisCfg == nil {
			return nil, fmt.Errorf("store.redis is required for the redis store")
		}
		password, err := redisCfg.GetPassword()
		if err != nil {
			return nil, err
		}
		s, err := store.ConnectRedis(ctx, store.RedisOptions{
			Addresses:  redisCfg.Addresses,
			Username:   redisCfg.Username,
			Password:   password,
			DB:         redisCfg.DB,
			MasterName: redisCfg.MasterName,
		})
		if err != nil {
			return nil, err
		}
		b.redisClient = s.Client()
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type %q", b.config.Store.Type)
	}
}

// OpenStore connects the configured store without building any other
// component. The caller closes the store.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, store.Keys, error) {
	b, err := baseConfig(WithConfig(cfg))
	if err != nil {
		return nil, store.Keys{}, err
	}
	s, err := buildStore(ctx, b)
	if err != nil {
		return nil, store.Keys{}, fmt.Errorf("failed to build store: %w", err)
	}
	return s, store.NewKeys(cfg.Store.KeyPrefix), nil
}

// buildDirectory creates the configured repository directory
func buildDirectory(b *repoSyncAppConfig) (directory.Directory, error) {
	if b.directory != nil {
		return b.directory, nil
	}

	dirCfg := b.config.Directory
	switch {
	case dirCfg.Static != nil:
		slog.Info("Using static repository directory", "repositories", len(dirCfg.Static.Repositories))
		return directory.NewStaticDirectory(dirCfg.Static, dirCfg.Filter), nil
	case dirCfg.API != nil:
		token, err := dirCfg.API.GetToken()
		if err != nil {
			return nil, err
		}
		slog.Info("Using admin backend repository directory", "endpoint", dirCfg.API.Endpoint)
		client := httpclient.NewDefaultClient(dirCfg.API.GetTimeout())
		return directory.NewAPIDirectory(client, dirCfg.API.Endpoint, token, dirCfg.Filter), nil
	default:
		return nil, fmt.Errorf("no repository directory configured")
	}
}

// buildAdapter creates the configured sync adapter
func buildAdapter(b *repoSyncAppConfig) (adapter.Adapter, error) {
	if b.adapter != nil {
		return b.adapter, nil
	}

	if b.config.Adapter.GetAdapterType() == config.AdapterTypeGit {
		var urlTemplate, branch string
		if g := b.config.Adapter.Git; g != nil {
			urlTemplate, branch = g.URLTemplate, g.Branch
		}
		slog.Info("Using git adapter, commits are counted from direct clones")
		return adapter.NewGitAdapter(git.NewDefaultClient(), urlTemplate, branch), nil
	}

	token, err := b.config.Adapter.GetToken()
	if err != nil {
		return nil, err
	}
	client := httpclient.NewDefaultClient(b.config.Adapter.GetTimeout())
	return adapter.NewHTTPAdapter(client, b.config.Adapter.Endpoint,
		adapter.WithToken(token),
		adapter.WithMaxElapsedTime(b.config.Adapter.GetMaxElapsedTime())), nil
}

// buildHTTPServer builds the HTTP server with router and middleware
func buildHTTPServer(b *repoSyncAppConfig, c *AppComponents) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Metrics and tracing wrap everything else so rejected requests are observed too
	metricsMiddleware, err := telemetry.MetricsMiddleware(c.Telemetry.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	b.middlewares = append([]func(http.Handler) http.Handler{
		metricsMiddleware,
		telemetry.TracingMiddleware(c.Telemetry.TracerProvider()),
	}, b.middlewares...)

	deps := v1.Dependencies{
		Scheduler:     c.Scheduler,
		Syncs:         c.Orchestrator,
		Jobs:          c.Jobs,
		Directory:     c.Directory,
		Notifications: c.Notifications,
	}
	if b.manualRunEvery > 0 {
		deps.RunLimiter = rate.NewLimiter(rate.Every(b.manualRunEvery), 1)
	}
	if b.debugEndpoints {
		deps.Keys = c.Store
		deps.KeyPattern = c.Keys.All()
		slog.Warn("Debug endpoints enabled, all reposync keys can be wiped over HTTP")
	}

	serverOpts := []api.ServerOption{api.WithMiddlewares(b.middlewares...)}
	if h := c.Telemetry.MetricsHandler(); h != nil {
		serverOpts = append(serverOpts, api.WithMetricsHandler(h))
	}
	router := api.NewServer(c.Store, deps, serverOpts...)

	server := &http.Server{
		Addr:              b.address,
		Handler:           router,
		ReadTimeout:       b.readTimeout,
		ReadHeaderTimeout: b.readTimeout,
		WriteTimeout:      b.writeTimeout,
		IdleTimeout:       b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}

// schedulerConfigFrom converts the file settings into the runtime configuration
func schedulerConfigFrom(c *config.SchedulerConfig) scheduler.Config {
	return scheduler.Config{
		Enabled:            c.IsEnabled(),
		Interval:           c.GetInterval(),
		Cron:               c.Cron,
		MaxConcurrentRepos: c.GetMaxConcurrentRepos(),
		DelayBetweenRepos:  c.GetDelayBetweenRepos(),
		SyncType:           sync.Type(c.GetSyncType()),
		MaxRetries:         c.GetMaxRetries(),
		RateLimit:          c.GetRateLimit(),
	}
}

// instanceID identifies this process in lock values
func instanceID(c *config.Config) string {
	if c.InstanceID != "" {
		return c.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + uuid.NewString()[:8]
}
