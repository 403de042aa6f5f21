package v1

import (
	"fmt"
	"time"

	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/status"
	"github.com/stacklok/reposync/internal/sync"
	"github.com/stacklok/reposync/internal/sync/scheduler"
)

// RateLimitConfig is the wire form of the outbound rate limit parameters
type RateLimitConfig struct {
	RequestsPerMinute int    `json:"requestsPerMinute"`
	BurstLimit        int    `json:"burstLimit"`
	MinInterval       string `json:"minInterval"`
}

// SchedulerConfigResponse is the wire form of the scheduler configuration
type SchedulerConfigResponse struct {
	Enabled            bool            `json:"enabled"`
	Interval           string          `json:"interval"`
	Cron               string          `json:"cron,omitempty"`
	MaxConcurrentRepos int             `json:"maxConcurrentRepos"`
	DelayBetweenRepos  string          `json:"delayBetweenRepos"`
	SyncType           sync.Type       `json:"syncType"`
	MaxRetries         int             `json:"maxRetries"`
	RateLimit          RateLimitConfig `json:"rateLimit"`
}

// RateLimitConfigUpdate holds the rate limit fields to change
type RateLimitConfigUpdate struct {
	RequestsPerMinute *int    `json:"requestsPerMinute,omitempty"`
	BurstLimit        *int    `json:"burstLimit,omitempty"`
	MinInterval       *string `json:"minInterval,omitempty"`
}

// SchedulerConfigUpdate holds the scheduler fields to change. Omitted fields keep their value.
type SchedulerConfigUpdate struct {
	Enabled            *bool                  `json:"enabled,omitempty"`
	Interval           *string                `json:"interval,omitempty"`
	Cron               *string                `json:"cron,omitempty"`
	MaxConcurrentRepos *int                   `json:"maxConcurrentRepos,omitempty"`
	DelayBetweenRepos  *string                `json:"delayBetweenRepos,omitempty"`
	SyncType           *string                `json:"syncType,omitempty"`
	MaxRetries         *int                   `json:"maxRetries,omitempty"`
	RateLimit          *RateLimitConfigUpdate `json:"rateLimit,omitempty"`
}

// SchedulerStatusResponse combines the stored status with the live configuration
type SchedulerStatusResponse struct {
	*status.SchedulerStatus
	Config SchedulerConfigResponse `json:"config"`
}

// ExecutionListResponse is the execution history
type ExecutionListResponse struct {
	Executions []*status.Execution `json:"executions"`
	Count      int                 `json:"count"`
}

// RepositorySyncResponse is the sync bookkeeping and job history of one repository
type RepositorySyncResponse struct {
	State    *sync.RepositoryState `json:"state"`
	Jobs     []*sync.Job           `json:"jobs"`
	Metadata PageMetadata          `json:"metadata"`
}

// PageMetadata describes a page of a list
type PageMetadata struct {
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
	Total  int64 `json:"total"`
}

// SyncRequestResponse acknowledges a queued sync
type SyncRequestResponse struct {
	RepositoryID string `json:"repositoryId"`
	Queued       bool   `json:"queued"`
}

// CancelResponse reports the job a cancel request stopped, if any
type CancelResponse struct {
	RepositoryID string    `json:"repositoryId"`
	Cancelled    bool      `json:"cancelled"`
	Job          *sync.Job `json:"job,omitempty"`
}

// NotificationConfigResponse is the wire form of the notification configuration
type NotificationConfigResponse = notify.Config

// KeysResponse lists the keys written by reposync
type KeysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// DeleteKeysResponse reports how many keys were removed
type DeleteKeysResponse struct {
	Deleted int `json:"deleted"`
}

func schedulerConfigToResponse(cfg scheduler.Config) SchedulerConfigResponse {
	return SchedulerConfigResponse{
		Enabled:            cfg.Enabled,
		Interval:           cfg.Interval.String(),
		Cron:               cfg.Cron,
		MaxConcurrentRepos: cfg.MaxConcurrentRepos,
		DelayBetweenRepos:  cfg.DelayBetweenRepos.String(),
		SyncType:           cfg.SyncType,
		MaxRetries:         cfg.MaxRetries,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			BurstLimit:        cfg.RateLimit.BurstLimit,
			MinInterval:       cfg.RateLimit.MinInterval.String(),
		},
	}
}

// apply returns cfg with the update's fields set
func (u SchedulerConfigUpdate) apply(cfg scheduler.Config) (scheduler.Config, error) {
	if u.Enabled != nil {
		cfg.Enabled = *u.Enabled
	}
	if err := setDuration(&cfg.Interval, u.Interval, "interval"); err != nil {
		return cfg, err
	}
	if u.Cron != nil {
		cfg.Cron = *u.Cron
	}
	if u.MaxConcurrentRepos != nil {
		cfg.MaxConcurrentRepos = *u.MaxConcurrentRepos
	}
	if err := setDuration(&cfg.DelayBetweenRepos, u.DelayBetweenRepos, "delayBetweenRepos"); err != nil {
		return cfg, err
	}
	if u.SyncType != nil {
		t, err := sync.ParseType(*u.SyncType)
		if err != nil {
			return cfg, err
		}
		cfg.SyncType = t
	}
	if u.MaxRetries != nil {
		cfg.MaxRetries = *u.MaxRetries
	}
	if u.RateLimit != nil {
		cfg.RateLimit = u.RateLimit.apply(cfg.RateLimit)
		if err := setDuration(&cfg.RateLimit.MinInterval, u.RateLimit.MinInterval, "rateLimit.minInterval"); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func (u RateLimitConfigUpdate) apply(cfg ratelimit.Config) ratelimit.Config {
	if u.RequestsPerMinute != nil {
		cfg.RequestsPerMinute = *u.RequestsPerMinute
	}
	if u.BurstLimit != nil {
		cfg.BurstLimit = *u.BurstLimit
	}
	return cfg
}

func setDuration(dst *time.Duration, value *string, field string) error {
	if value == nil {
		return nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", field, *value)
	}
	*dst = d
	return nil
}
