package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync"
)

const (
	// DefaultInterval is the time between scheduled batches
	DefaultInterval = 30 * time.Minute

	// DefaultMaxConcurrentRepos caps the repositories processed per batch
	DefaultMaxConcurrentRepos = 10

	// DefaultDelayBetweenRepos is the pause between two repositories of a batch
	DefaultDelayBetweenRepos = 5 * time.Second

	// DefaultMaxRetries is recorded on every job created by a batch
	DefaultMaxRetries = 3

	// MinInterval rejects schedules that would run batches back to back
	MinInterval = time.Minute
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config is the singleton scheduler configuration record
type Config struct {
	Enabled            bool             `json:"enabled"`
	Interval           time.Duration    `json:"interval"`
	Cron               string           `json:"cron,omitempty"`
	MaxConcurrentRepos int              `json:"maxConcurrentRepos"`
	DelayBetweenRepos  time.Duration    `json:"delayBetweenRepos"`
	SyncType           sync.Type        `json:"syncType"`
	MaxRetries         int              `json:"maxRetries"`
	RateLimit          ratelimit.Config `json:"rateLimit"`
}

// DefaultConfig returns an enabled configuration with default values
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Interval:           DefaultInterval,
		MaxConcurrentRepos: DefaultMaxConcurrentRepos,
		DelayBetweenRepos:  DefaultDelayBetweenRepos,
		SyncType:           sync.TypeIncremental,
		MaxRetries:         DefaultMaxRetries,
		RateLimit:          ratelimit.DefaultConfig(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	var errs []error
	if c.Cron != "" {
		if _, err := cronParser.Parse(c.Cron); err != nil {
			errs = append(errs, fmt.Errorf("cron: invalid expression %q: %w", c.Cron, err))
		}
	} else if c.Interval < MinInterval {
		errs = append(errs, fmt.Errorf("interval must be at least %s, got %s", MinInterval, c.Interval))
	}
	if c.MaxConcurrentRepos <= 0 {
		errs = append(errs, fmt.Errorf("maxConcurrentRepos must be positive, got %d", c.MaxConcurrentRepos))
	}
	if c.DelayBetweenRepos < 0 {
		errs = append(errs, fmt.Errorf("delayBetweenRepos cannot be negative, got %s", c.DelayBetweenRepos))
	}
	if _, err := sync.ParseType(string(c.SyncType)); err != nil {
		errs = append(errs, fmt.Errorf("syncType: %w", err))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("maxRetries cannot be negative, got %d", c.MaxRetries))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rateLimit: %w", err))
	}
	return errors.Join(errs...)
}

// Schedule returns when batches run: the cron expression when set,
// otherwise a fixed interval
func (c Config) Schedule() (cron.Schedule, error) {
	if c.Cron != "" {
		schedule, err := cronParser.Parse(c.Cron)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", c.Cron, err)
		}
		return schedule, nil
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	return cron.Every(c.Interval), nil
}

// scheduleChanged reports whether moving from c to next needs a timer restart
func (c Config) scheduleChanged(next Config) bool {
	return c.Interval != next.Interval || c.Cron != next.Cron
}

const (
	fieldEnabled            = "enabled"
	fieldInterval           = "interval"
	fieldCron               = "cron"
	fieldMaxConcurrentRepos = "maxConcurrentRepos"
	fieldDelayBetweenRepos  = "delayBetweenRepos"
	fieldSyncType           = "syncType"
	fieldMaxRetries         = "maxRetries"
	fieldRequestsPerMinute  = "rateLimit.requestsPerMinute"
	fieldBurstLimit         = "rateLimit.burstLimit"
	fieldMinInterval        = "rateLimit.minInterval"
)

// ConfigStore reads and writes the scheduler configuration record
type ConfigStore struct {
	store store.Store
	key   string
}

// NewConfigStore creates a ConfigStore
func NewConfigStore(s store.Store, keys store.Keys) *ConfigStore {
	return &ConfigStore{store: s, key: keys.SchedulerConfig()}
}

// Load returns the stored configuration, or the default when none is stored.
// Fields missing from the record keep their default value.
func (c *ConfigStore) Load(ctx context.Context) (Config, error) {
	cfg, _, err := c.Stored(ctx)
	return cfg, err
}

// Stored is Load that also reports whether a record exists
func (c *ConfigStore) Stored(ctx context.Context) (Config, bool, error) {
	fields, err := c.store.ReadRecord(ctx, c.key)
	if err != nil {
		return Config{}, false, fmt.Errorf("failed to read scheduler config: %w", err)
	}
	if fields == nil {
		return DefaultConfig(), false, nil
	}
	return decodeConfig(store.Record(fields)), true, nil
}

func decodeConfig(r store.Record) Config {
	cfg := DefaultConfig()
	if _, ok := r[fieldEnabled]; ok {
		cfg.Enabled = r.Bool(fieldEnabled)
	}
	if d := r.Duration(fieldInterval); d > 0 {
		cfg.Interval = d
	}
	cfg.Cron = r.String(fieldCron)
	if n := r.Int(fieldMaxConcurrentRepos); n > 0 {
		cfg.MaxConcurrentRepos = n
	}
	if _, ok := r[fieldDelayBetweenRepos]; ok {
		cfg.DelayBetweenRepos = r.Duration(fieldDelayBetweenRepos)
	}
	if t, err := sync.ParseType(r.String(fieldSyncType)); err == nil {
		cfg.SyncType = t
	}
	if _, ok := r[fieldMaxRetries]; ok {
		cfg.MaxRetries = r.Int(fieldMaxRetries)
	}
	if n := r.Int(fieldRequestsPerMinute); n > 0 {
		cfg.RateLimit.RequestsPerMinute = n
	}
	if n := r.Int(fieldBurstLimit); n > 0 {
		cfg.RateLimit.BurstLimit = n
	}
	if _, ok := r[fieldMinInterval]; ok {
		cfg.RateLimit.MinInterval = r.Duration(fieldMinInterval)
	}
	return cfg
}

// Save validates and stores the configuration
func (c *ConfigStore) Save(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r := store.Record{}
	r.SetBool(fieldEnabled, cfg.Enabled)
	r.SetDuration(fieldInterval, cfg.Interval)
	r.SetString(fieldCron, cfg.Cron)
	r.SetInt(fieldMaxConcurrentRepos, cfg.MaxConcurrentRepos)
	r.SetDuration(fieldDelayBetweenRepos, cfg.DelayBetweenRepos)
	r.SetString(fieldSyncType, string(cfg.SyncType))
	r.SetInt(fieldMaxRetries, cfg.MaxRetries)
	r.SetInt(fieldRequestsPerMinute, cfg.RateLimit.RequestsPerMinute)
	r.SetInt(fieldBurstLimit, cfg.RateLimit.BurstLimit)
	r.SetDuration(fieldMinInterval, cfg.RateLimit.MinInterval)
	if err := c.store.WriteRecord(ctx, c.key, r); err != nil {
		return fmt.Errorf("failed to write scheduler config: %w", err)
	}
	return nil
}

// Seed stores cfg only when no configuration has been stored yet, and
// returns the configuration in effect
func (c *ConfigStore) Seed(ctx context.Context, cfg Config) (Config, error) {
	fields, err := c.store.ReadRecord(ctx, c.key)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scheduler config: %w", err)
	}
	if fields != nil {
		return c.Load(ctx)
	}
	if err := c.Save(ctx, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
