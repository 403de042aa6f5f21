// Package ratelimit throttles outbound calls to the external source-control API.
//
// Admission is tracked per repository in a sorted set of request timestamps
// held in the shared state store, so the limits hold across every reposync
// instance. Two windows are enforced: a sliding minute and a short burst window.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/telemetry"
)

const (
	// DefaultRequestsPerMinute is the default sliding minute limit
	DefaultRequestsPerMinute = 60

	// DefaultBurstLimit is the default burst window limit
	DefaultBurstLimit = 10

	// DefaultMinInterval is the default fixed delay applied after every admission
	DefaultMinInterval = time.Second

	// MinuteWindow is the length of the sliding window
	MinuteWindow = 60 * time.Second

	// BurstWindow is the length of the burst window
	BurstWindow = 10 * time.Second

	// MinWait is the shortest time a throttled caller is suspended
	MinWait = time.Second

	// windowTTL keeps idle windows from lingering in the store
	windowTTL = 2 * MinuteWindow
)

// Config holds the limiter parameters
type Config struct {
	RequestsPerMinute int           `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	BurstLimit        int           `json:"burstLimit" yaml:"burstLimit"`
	MinInterval       time.Duration `json:"minInterval" yaml:"minInterval"`
}

// DefaultConfig returns the default limiter parameters
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: DefaultRequestsPerMinute,
		BurstLimit:        DefaultBurstLimit,
		MinInterval:       DefaultMinInterval,
	}
}

// Validate checks the limiter parameters
func (c Config) Validate() error {
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requestsPerMinute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.BurstLimit <= 0 {
		return fmt.Errorf("burstLimit must be positive, got %d", c.BurstLimit)
	}
	if c.BurstLimit > c.RequestsPerMinute {
		return fmt.Errorf("burstLimit (%d) cannot exceed requestsPerMinute (%d)", c.BurstLimit, c.RequestsPerMinute)
	}
	if c.MinInterval < 0 {
		return fmt.Errorf("minInterval cannot be negative, got %s", c.MinInterval)
	}
	return nil
}

// Limiter admits outbound calls per repository
type Limiter struct {
	store   store.Store
	keys    store.Keys
	clock   clock.Clock
	metrics *telemetry.RateLimitMetrics

	mu     gosync.RWMutex
	config Config

	// keyLocks serialize check-and-record per repository within this process
	keyLocks gosync.Map
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock sets the clock used for windows and waits
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// WithConfig sets the initial limiter parameters
func WithConfig(cfg Config) Option {
	return func(l *Limiter) {
		l.config = cfg
	}
}

// WithMetrics sets the rate limit metrics
func WithMetrics(m *telemetry.RateLimitMetrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a Limiter backed by the shared state store
func New(s store.Store, keys store.Keys, opts ...Option) *Limiter {
	l := &Limiter{
		store:  s,
		keys:   keys,
		clock:  clock.RealClock{},
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the current limiter parameters
func (l *Limiter) Config() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetConfig replaces the limiter parameters at runtime
func (l *Limiter) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config = cfg
	slog.Info("Rate limiter reconfigured",
		"requests_per_minute", cfg.RequestsPerMinute,
		"burst_limit", cfg.BurstLimit,
		"min_interval", cfg.MinInterval)
	return nil
}

// WaitForSlot blocks until a call for repositoryID is admitted, then applies the
// fixed inter-request delay. It only fails when ctx is done. Store failures
// admit the call.
func (l *Limiter) WaitForSlot(ctx context.Context, repositoryID string) error {
	cfg := l.Config()
	start := l.clock.Now()

	for {
		wait, err := l.tryAdmit(ctx, repositoryID, cfg)
		if err != nil {
			slog.Warn("Rate limit check failed, admitting request",
				"repository", repositoryID,
				"error", err)
			l.metrics.RecordFailOpen(ctx, repositoryID)
			break
		}
		if wait == 0 {
			break
		}

		slog.Debug("Rate limit reached, waiting for slot",
			"repository", repositoryID,
			"wait", wait)
		l.metrics.RecordThrottled(ctx, repositoryID)
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	l.metrics.RecordWait(ctx, repositoryID, l.clock.Since(start))

	if cfg.MinInterval > 0 {
		return l.sleep(ctx, cfg.MinInterval)
	}
	return nil
}

// tryAdmit records the call and returns zero when both windows have room,
// otherwise returns how long to wait before checking again.
func (l *Limiter) tryAdmit(ctx context.Context, repositoryID string, cfg Config) (time.Duration, error) {
	mu := l.keyLock(repositoryID)
	mu.Lock()
	defer mu.Unlock()

	now := l.clock.Now()
	nowMs := now.UnixMilli()
	key := l.keys.RateWindow(repositoryID)

	entries, err := l.store.RangeByScore(ctx, key, float64(nowMs-MinuteWindow.Milliseconds()), math.Inf(1))
	if err != nil {
		return 0, err
	}

	burstStart := float64(nowMs - BurstWindow.Milliseconds())
	var burst []store.ScoredMember
	for i, e := range entries {
		if e.Score >= burstStart {
			burst = entries[i:]
			break
		}
	}

	var wait time.Duration
	if len(entries) >= cfg.RequestsPerMinute {
		wait = max(wait, waitFor(entries[0].Score, MinuteWindow, nowMs))
	}
	if len(burst) >= cfg.BurstLimit {
		wait = max(wait, waitFor(burst[0].Score, BurstWindow, nowMs))
	}
	if wait > 0 {
		return wait, nil
	}

	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()[:8]
	if err := l.store.AddToSortedSet(ctx, key, float64(nowMs), member); err != nil {
		return 0, err
	}
	if err := l.store.RemoveByScore(ctx, key, math.Inf(-1), float64(nowMs-MinuteWindow.Milliseconds()-1)); err != nil {
		return 0, err
	}
	if err := l.store.Expire(ctx, key, windowTTL); err != nil {
		return 0, err
	}
	return 0, nil
}

// waitFor is the time until the oldest entry leaves the window, never below
// MinWait. Window queries include their lower bound, so the entry is gone one
// millisecond after oldest+window.
func waitFor(oldestMs float64, window time.Duration, nowMs int64) time.Duration {
	d := time.Duration(int64(oldestMs)+window.Milliseconds()-nowMs+1) * time.Millisecond
	return max(d, MinWait)
}

func (l *Limiter) keyLock(repositoryID string) *gosync.Mutex {
	mu, _ := l.keyLocks.LoadOrStore(repositoryID, &gosync.Mutex{})
	return mu.(*gosync.Mutex)
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	timer := l.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
