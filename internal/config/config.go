// Package config provides configuration loading for reposync.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable reposync reads
const EnvPrefix = "REPOSYNC"

const (
	// StoreTypeRedis shares state through Redis
	StoreTypeRedis = "redis"

	// StoreTypeMemory keeps state in process, for single-instance development
	StoreTypeMemory = "memory"

	// AdapterTypeHTTP delegates syncs to the sync worker
	AdapterTypeHTTP = "http"

	// AdapterTypeGit counts commits by cloning repositories directly
	AdapterTypeGit = "git"
)

// Defaults applied when a field is left empty
const (
	DefaultSchedulerInterval  = 30 * time.Minute
	DefaultMaxConcurrentRepos = 10
	DefaultDelayBetweenRepos  = 5 * time.Second
	DefaultSyncType           = "incremental"
	DefaultMaxRetries         = 3
	DefaultAdapterTimeout     = 10 * time.Minute
	DefaultAdapterMaxElapsed  = 5 * time.Minute
	DefaultDirectoryTimeout   = 30 * time.Second
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// EvalSymlinks also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// InstanceID identifies this process in lock values. Generated when empty.
	InstanceID string `yaml:"instanceId,omitempty"`

	Store         StoreConfig       `yaml:"store"`
	Scheduler     SchedulerConfig   `yaml:"scheduler"`
	Notifications *notify.Config    `yaml:"notifications,omitempty"`
	Directory     DirectoryConfig   `yaml:"directory"`
	Adapter       AdapterConfig     `yaml:"adapter"`
	Events        *EventsConfig     `yaml:"events,omitempty"`
	Telemetry     *telemetry.Config `yaml:"telemetry,omitempty"`
}

// StoreConfig selects and configures the shared state store
type StoreConfig struct {
	// Type is "redis" (default) or "memory"
	Type string `yaml:"type,omitempty"`

	// KeyPrefix is prepended to every key. Defaults to "reposync:".
	KeyPrefix string `yaml:"keyPrefix,omitempty"`

	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the Redis connection. A MasterName selects Sentinel,
// several addresses without one select Cluster.
type RedisConfig struct {
	Addresses  []string `yaml:"addresses"`
	Username   string   `yaml:"username,omitempty"`
	DB         int      `yaml:"db,omitempty"`
	MasterName string   `yaml:"masterName,omitempty"`

	// PasswordFile is the path to a file containing the Redis password
	PasswordFile string `yaml:"passwordFile,omitempty"`
}

// SchedulerConfig holds the scheduler settings seeded into the store on first start
type SchedulerConfig struct {
	// Enabled defaults to true
	Enabled *bool `yaml:"enabled,omitempty"`

	// Interval between batches, e.g. "30m"
	Interval string `yaml:"interval,omitempty"`

	// Cron is a cron expression that replaces Interval when set
	Cron string `yaml:"cron,omitempty"`

	MaxConcurrentRepos int    `yaml:"maxConcurrentRepos,omitempty"`
	DelayBetweenRepos  string `yaml:"delayBetweenRepos,omitempty"`
	SyncType           string `yaml:"syncType,omitempty"`
	MaxRetries         int    `yaml:"maxRetries,omitempty"`

	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty"`
}

// RateLimitConfig holds the outbound rate limit settings
type RateLimitConfig struct {
	RequestsPerMinute int    `yaml:"requestsPerMinute,omitempty"`
	BurstLimit        int    `yaml:"burstLimit,omitempty"`
	MinInterval       string `yaml:"minInterval,omitempty"`
}

// DirectoryConfig selects where sync candidates come from. Exactly one of
// Static and API must be set.
type DirectoryConfig struct {
	Static *StaticDirectoryConfig `yaml:"static,omitempty"`
	API    *APIDirectoryConfig    `yaml:"api,omitempty"`

	// Filter narrows the candidate list by repository name and topic
	Filter *FilterConfig `yaml:"filter,omitempty"`
}

// StaticDirectoryConfig lists the repositories to sync
type StaticDirectoryConfig struct {
	Repositories []RepositoryConfig `yaml:"repositories"`
}

// RepositoryConfig defines one repository of the static directory
type RepositoryConfig struct {
	// ID is the stable repository identifier used in keys and the API
	ID string `yaml:"id"`

	Organization string   `yaml:"organization"`
	Project      string   `yaml:"project"`
	Topics       []string `yaml:"topics,omitempty"`

	// Disabled keeps the repository known but out of scheduled batches
	Disabled bool `yaml:"disabled,omitempty"`

	// TokenFile is the path to a file holding the source-control access token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// TokenEnv names an environment variable holding the token
	TokenEnv string `yaml:"tokenEnv,omitempty"`
}

// APIDirectoryConfig reads repositories from the admin backend
type APIDirectoryConfig struct {
	// Endpoint is the admin backend base URL
	Endpoint string `yaml:"endpoint"`

	TokenFile string `yaml:"tokenFile,omitempty"`
	Timeout   string `yaml:"timeout,omitempty"`
}

// FilterConfig defines candidate filtering rules
type FilterConfig struct {
	Names  *NameFilterConfig  `yaml:"names,omitempty"`
	Topics *TopicFilterConfig `yaml:"topics,omitempty"`
}

// NameFilterConfig defines glob patterns on the repository name
type NameFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// TopicFilterConfig defines exact topic matches
type TopicFilterConfig struct {
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// AdapterConfig selects how repository activity is pulled
type AdapterConfig struct {
	// Type is "http" (default) or "git"
	Type string `yaml:"type,omitempty"`

	// Endpoint is the sync worker base URL, required for the http adapter
	Endpoint  string `yaml:"endpoint,omitempty"`
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Timeout bounds one sync request, default "10m"
	Timeout string `yaml:"timeout,omitempty"`

	// MaxElapsedTime bounds retries of throttled requests, default "5m"
	MaxElapsedTime string `yaml:"maxElapsedTime,omitempty"`

	Git *GitAdapterConfig `yaml:"git,omitempty"`
}

// GitAdapterConfig configures the git adapter
type GitAdapterConfig struct {
	// URLTemplate builds clone URLs from {organization}, {project} and {id}.
	// Defaults to GitHub.
	URLTemplate string `yaml:"urlTemplate,omitempty"`

	// Branch to count commits on, default the remote HEAD
	Branch string `yaml:"branch,omitempty"`
}

// EventsConfig controls live status events
type EventsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"bufferSize,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStoreType returns the store type, redis when unset
func (c *StoreConfig) GetStoreType() string {
	if c.Type == "" {
		return StoreTypeRedis
	}
	return c.Type
}

// GetPassword returns the Redis password from PasswordFile, then from
// REPOSYNC_REDIS_PASSWORD. No password is not an error.
func (r *RedisConfig) GetPassword() (string, error) {
	return readSecret(r.PasswordFile, EnvPrefix+"_REDIS_PASSWORD")
}

// IsEnabled reports whether the scheduler should run, true when unset
func (s *SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GetInterval returns the batch interval
func (s *SchedulerConfig) GetInterval() time.Duration {
	return durationOr(s.Interval, DefaultSchedulerInterval)
}

// GetDelayBetweenRepos returns the pause between repositories of a batch
func (s *SchedulerConfig) GetDelayBetweenRepos() time.Duration {
	return durationOr(s.DelayBetweenRepos, DefaultDelayBetweenRepos)
}

// GetMaxConcurrentRepos returns the per-batch repository cap
func (s *SchedulerConfig) GetMaxConcurrentRepos() int {
	if s.MaxConcurrentRepos <= 0 {
		return DefaultMaxConcurrentRepos
	}
	return s.MaxConcurrentRepos
}

// GetSyncType returns the sync type of scheduled jobs
func (s *SchedulerConfig) GetSyncType() string {
	if s.SyncType == "" {
		return DefaultSyncType
	}
	return s.SyncType
}

// GetMaxRetries returns the retry budget recorded on jobs
func (s *SchedulerConfig) GetMaxRetries() int {
	if s.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return s.MaxRetries
}

// GetRateLimit returns the limiter settings with defaults filled in
func (s *SchedulerConfig) GetRateLimit() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if s.RateLimit == nil {
		return cfg
	}
	if s.RateLimit.RequestsPerMinute > 0 {
		cfg.RequestsPerMinute = s.RateLimit.RequestsPerMinute
	}
	if s.RateLimit.BurstLimit > 0 {
		cfg.BurstLimit = s.RateLimit.BurstLimit
	}
	cfg.MinInterval = durationOr(s.RateLimit.MinInterval, cfg.MinInterval)
	return cfg
}

// GetToken returns the repository token from TokenFile, then from the TokenEnv variable
func (r *RepositoryConfig) GetToken() (string, error) {
	return readSecret(r.TokenFile, r.TokenEnv)
}

// GetToken returns the admin backend token from TokenFile, then from REPOSYNC_DIRECTORY_TOKEN
func (a *APIDirectoryConfig) GetToken() (string, error) {
	return readSecret(a.TokenFile, EnvPrefix+"_DIRECTORY_TOKEN")
}

// GetTimeout returns the admin backend request timeout
func (a *APIDirectoryConfig) GetTimeout() time.Duration {
	return durationOr(a.Timeout, DefaultDirectoryTimeout)
}

// GetToken returns the sync worker token from TokenFile, then from REPOSYNC_ADAPTER_TOKEN
func (a *AdapterConfig) GetToken() (string, error) {
	return readSecret(a.TokenFile, EnvPrefix+"_ADAPTER_TOKEN")
}

// GetTimeout returns the per-request timeout of the sync worker
func (a *AdapterConfig) GetTimeout() time.Duration {
	return durationOr(a.Timeout, DefaultAdapterTimeout)
}

// GetMaxElapsedTime returns how long throttled requests are retried
func (a *AdapterConfig) GetMaxElapsedTime() time.Duration {
	return durationOr(a.MaxElapsedTime, DefaultAdapterMaxElapsed)
}

// GetNotifications returns the notification settings, the defaults when unset
func (c *Config) GetNotifications() notify.Config {
	if c.Notifications == nil {
		return notify.DefaultConfig()
	}
	return *c.Notifications
}

// readSecret reads a secret from file, falling back to the named environment
// variable. File content is trimmed.
func readSecret(file, envVar string) (string, error) {
	if file != "" {
		data, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if envVar != "" {
		return os.Getenv(envVar), nil
	}
	return "", nil
}

// durationOr parses s, returning def for empty or invalid values. Invalid
// values are rejected by validate before they get here.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error
	errs = append(errs,
		c.Store.validate(),
		c.Scheduler.validate(),
		c.Directory.validate(),
		c.Adapter.validate(),
	)
	if c.Notifications != nil {
		if err := c.Notifications.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("notifications: %w", err))
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	if c.Events != nil && c.Events.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("events.bufferSize cannot be negative"))
	}
	return errors.Join(errs...)
}

func (s *StoreConfig) validate() error {
	switch s.GetStoreType() {
	case StoreTypeMemory:
		return nil
	case StoreTypeRedis:
		if s.Redis == nil || len(s.Redis.Addresses) == 0 {
			return fmt.Errorf("store.redis.addresses is required for the redis store")
		}
		return nil
	default:
		return fmt.Errorf("store.type must be %q or %q, got %q", StoreTypeRedis, StoreTypeMemory, s.Type)
	}
}

func (s *SchedulerConfig) validate() error {
	for field, value := range map[string]string{
		"interval":          s.Interval,
		"delayBetweenRepos": s.DelayBetweenRepos,
	} {
		if err := validateDuration("scheduler."+field, value); err != nil {
			return err
		}
	}
	if s.SyncType != "" && s.SyncType != "full" && s.SyncType != "incremental" {
		return fmt.Errorf("scheduler.syncType must be full or incremental, got %q", s.SyncType)
	}
	if s.RateLimit != nil {
		if err := validateDuration("scheduler.rateLimit.minInterval", s.RateLimit.MinInterval); err != nil {
			return err
		}
		if err := s.GetRateLimit().Validate(); err != nil {
			return fmt.Errorf("scheduler.rateLimit: %w", err)
		}
	}
	return nil
}

func (d *DirectoryConfig) validate() error {
	switch {
	case d.Static == nil && d.API == nil:
		return fmt.Errorf("directory: one of static or api must be specified")
	case d.Static != nil && d.API != nil:
		return fmt.Errorf("directory: only one of static or api may be specified")
	}

	if d.API != nil {
		if err := validateURL("directory.api.endpoint", d.API.Endpoint); err != nil {
			return err
		}
		return validateDuration("directory.api.timeout", d.API.Timeout)
	}

	seen := make(map[string]bool)
	for i, repo := range d.Static.Repositories {
		prefix := fmt.Sprintf("directory.static.repositories[%d]", i)
		if repo.ID == "" {
			return fmt.Errorf("%s: id is required", prefix)
		}
		if seen[repo.ID] {
			return fmt.Errorf("%s: duplicate repository id '%s'", prefix, repo.ID)
		}
		seen[repo.ID] = true
		if repo.Organization == "" || repo.Project == "" {
			return fmt.Errorf("%s (%s): organization and project are required", prefix, repo.ID)
		}
	}
	return nil
}

// GetAdapterType returns the adapter type, defaulting to http
func (a *AdapterConfig) GetAdapterType() string {
	if a.Type == "" {
		return AdapterTypeHTTP
	}
	return a.Type
}

func (a *AdapterConfig) validate() error {
	switch a.GetAdapterType() {
	case AdapterTypeHTTP:
		if err := validateURL("adapter.endpoint", a.Endpoint); err != nil {
			return err
		}
	case AdapterTypeGit:
		if a.Git != nil && a.Git.URLTemplate != "" && !strings.Contains(a.Git.URLTemplate, "{") {
			return fmt.Errorf("adapter.git.urlTemplate must reference {organization}, {project} or {id}")
		}
	default:
		return fmt.Errorf("adapter.type must be %q or %q", AdapterTypeHTTP, AdapterTypeGit)
	}
	if err := validateDuration("adapter.timeout", a.Timeout); err != nil {
		return err
	}
	return validateDuration("adapter.maxElapsedTime", a.MaxElapsedTime)
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid duration (e.g., '30s', '5m'): %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s cannot be negative", field)
	}
	return nil
}

func validateURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(value)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, value)
	}
	return nil
}
