// Package notify decides when sync failures should alert operators and hands
// the resulting messages to a delivery channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/reposync/internal/telemetry"
)

const (
	// FailureWindow is the trailing window in which repository failures are counted
	FailureWindow = 24 * time.Hour

	// DefaultDeliveryTimeout bounds a single delivery attempt
	DefaultDeliveryTimeout = 15 * time.Second
)

// FailureCounter counts recorded sync failures for a repository
type FailureCounter interface {
	CountFailuresSince(ctx context.Context, repositoryID string, since time.Time) (int, error)
}

// BatchOutcome summarizes a finished scheduler batch
type BatchOutcome struct {
	BatchID        string
	FailureCount   int
	TotalProcessed int
}

// Policy evaluates sync outcomes against the notification configuration
type Policy struct {
	configs  *ConfigStore
	failures FailureCounter
	channel  Channel
	clock    clock.PassiveClock
	metrics  *telemetry.NotificationMetrics
	timeout  time.Duration
}

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithClock sets the clock used for the failure window
func WithClock(c clock.PassiveClock) PolicyOption {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithMetrics sets the notification metrics
func WithMetrics(m *telemetry.NotificationMetrics) PolicyOption {
	return func(p *Policy) {
		p.metrics = m
	}
}

// WithDeliveryTimeout bounds each delivery attempt
func WithDeliveryTimeout(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.timeout = d
	}
}

// NewPolicy creates a Policy
func NewPolicy(configs *ConfigStore, failures FailureCounter, channel Channel, opts ...PolicyOption) *Policy {
	p := &Policy{
		configs:  configs,
		failures: failures,
		channel:  channel,
		clock:    clock.RealClock{},
		timeout:  DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EvaluateBatch notifies about a batch that had failures. Any failure fires,
// there is no threshold. Batches without failures only notify when success
// notifications are enabled. recipients overrides the configured recipients
// when not empty.
func (p *Policy) EvaluateBatch(ctx context.Context, outcome BatchOutcome, recipients []string) {
	cfg, ok := p.loadConfig(ctx)
	if !ok || !cfg.Enabled {
		return
	}
	if len(recipients) == 0 {
		recipients = cfg.EmailRecipients
	}

	msg := Message{
		Recipients:     recipients,
		WebhookURL:     cfg.ChatWebhookURL,
		BatchID:        outcome.BatchID,
		FailureCount:   outcome.FailureCount,
		TotalProcessed: outcome.TotalProcessed,
	}

	switch {
	case outcome.FailureCount > 0:
		msg.Scope = ScopeBatch
		msg.Subject = fmt.Sprintf("Repository sync batch had %d failure(s)", outcome.FailureCount)
		msg.Body = fmt.Sprintf("Batch %s processed %d repositories: %d failed.",
			outcome.BatchID, outcome.TotalProcessed, outcome.FailureCount)
	case cfg.SuccessNotificationsEnabled:
		msg.Scope = ScopeBatchSuccess
		msg.Subject = "Repository sync batch completed"
		msg.Body = fmt.Sprintf("Batch %s processed %d repositories without failures.",
			outcome.BatchID, outcome.TotalProcessed)
	default:
		return
	}

	p.deliver(ctx, msg)
}

// EvaluateRepositoryFailure notifies when the repository has failed at least
// FailureThreshold times within the trailing 24 hours. The current failure must
// already be recorded.
func (p *Policy) EvaluateRepositoryFailure(ctx context.Context, repositoryID, errorMessage, batchID string) {
	cfg, ok := p.loadConfig(ctx)
	if !ok || !cfg.Enabled {
		return
	}

	since := p.clock.Now().Add(-FailureWindow)
	count, err := p.failures.CountFailuresSince(ctx, repositoryID, since)
	if err != nil {
		slog.Warn("Failed to count recent repository failures",
			"repository", repositoryID,
			"error", err)
		return
	}

	threshold := cfg.GetFailureThreshold()
	if count < threshold {
		slog.Debug("Repository failures below notification threshold",
			"repository", repositoryID,
			"failures", count,
			"threshold", threshold)
		return
	}

	p.deliver(ctx, Message{
		Scope:        ScopeRepository,
		Subject:      fmt.Sprintf("Repository %s failed %d times in the last 24h", repositoryID, count),
		Body:         fmt.Sprintf("Latest error: %s", errorMessage),
		Recipients:   cfg.EmailRecipients,
		WebhookURL:   cfg.ChatWebhookURL,
		BatchID:      batchID,
		RepositoryID: repositoryID,
		FailureCount: count,
	})
}

func (p *Policy) loadConfig(ctx context.Context) (Config, bool) {
	cfg, err := p.configs.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load notification config, skipping notification", "error", err)
		return Config{}, false
	}
	return cfg, true
}

func (p *Policy) deliver(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err := p.channel.Send(sendCtx, msg)
	p.metrics.RecordNotification(ctx, msg.Scope, err == nil)
	if err != nil {
		slog.Error("Failed to deliver notification",
			"scope", msg.Scope,
			"batch_id", msg.BatchID,
			"repository", msg.RepositoryID,
			"error", err)
		return
	}
	slog.Info("Notification sent",
		"scope", msg.Scope,
		"batch_id", msg.BatchID,
		"repository", msg.RepositoryID,
		"failure_count", msg.FailureCount)
}
