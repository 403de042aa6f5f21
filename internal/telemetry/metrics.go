package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/reposync/sync"

	// RateLimitMetricsMeterName is the name used for the rate limit metrics meter
	RateLimitMetricsMeterName = "github.com/stacklok/reposync/ratelimit"

	// SchedulerMetricsMeterName is the name used for the scheduler metrics meter
	SchedulerMetricsMeterName = "github.com/stacklok/reposync/scheduler"

	// NotificationMetricsMeterName is the name used for the notification metrics meter
	NotificationMetricsMeterName = "github.com/stacklok/reposync/notify"
)

// SyncMetrics holds the OpenTelemetry instruments for repository sync attempts
type SyncMetrics struct {
	syncDuration     metric.Float64Histogram
	syncsTotal       metric.Int64Counter
	recordsProcessed metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	syncDuration, err := meter.Float64Histogram(
		"reposync_sync_duration_seconds",
		metric.WithDescription("Duration of repository sync attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900),
	)
	if err != nil {
		return nil, err
	}

	syncsTotal, err := meter.Int64Counter(
		"reposync_syncs_total",
		metric.WithDescription("Number of repository sync attempts by outcome"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		return nil, err
	}

	recordsProcessed, err := meter.Int64Counter(
		"reposync_records_processed_total",
		metric.WithDescription("Number of activity records processed by completed syncs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		syncDuration:     syncDuration,
		syncsTotal:       syncsTotal,
		recordsProcessed: recordsProcessed,
	}, nil
}

// RecordSync records the duration and outcome of a sync attempt.
// reason is empty for successful attempts and the failure kind otherwise.
func (m *SyncMetrics) RecordSync(
	ctx context.Context,
	repositoryID, syncType string,
	duration time.Duration,
	success bool,
	reason string,
) {
	if m == nil || m.syncDuration == nil {
		return
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("repository", repositoryID),
		attribute.String("sync_type", syncType),
		attribute.Bool("success", success),
	))
	m.syncsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync_type", syncType),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	))
}

// RecordRecordsProcessed adds the number of records a completed sync processed
func (m *SyncMetrics) RecordRecordsProcessed(ctx context.Context, repositoryID string, count int) {
	if m == nil || m.recordsProcessed == nil || count <= 0 {
		return
	}
	m.recordsProcessed.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("repository", repositoryID),
	))
}

// RateLimitMetrics holds the OpenTelemetry instruments for the outbound rate limiter
type RateLimitMetrics struct {
	waitDuration   metric.Float64Histogram
	throttledTotal metric.Int64Counter
	failOpenTotal  metric.Int64Counter
}

// NewRateLimitMetrics creates a new RateLimitMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRateLimitMetrics(provider metric.MeterProvider) (*RateLimitMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RateLimitMetricsMeterName)

	waitDuration, err := meter.Float64Histogram(
		"reposync_ratelimit_wait_seconds",
		metric.WithDescription("Time spent waiting for a rate limit slot in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	throttledTotal, err := meter.Int64Counter(
		"reposync_ratelimit_throttled_total",
		metric.WithDescription("Number of times a caller was suspended by the rate limiter"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, err
	}

	failOpenTotal, err := meter.Int64Counter(
		"reposync_ratelimit_fail_open_total",
		metric.WithDescription("Number of calls admitted because the rate limit state was unavailable"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &RateLimitMetrics{
		waitDuration:   waitDuration,
		throttledTotal: throttledTotal,
		failOpenTotal:  failOpenTotal,
	}, nil
}

// RecordWait records how long a caller waited before admission
func (m *RateLimitMetrics) RecordWait(ctx context.Context, repositoryID string, wait time.Duration) {
	if m == nil || m.waitDuration == nil {
		return
	}
	m.waitDuration.Record(ctx, wait.Seconds(), metric.WithAttributes(
		attribute.String("repository", repositoryID),
	))
}

// RecordThrottled counts a suspension
func (m *RateLimitMetrics) RecordThrottled(ctx context.Context, repositoryID string) {
	if m == nil || m.throttledTotal == nil {
		return
	}
	m.throttledTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repositoryID),
	))
}

// RecordFailOpen counts a call admitted without consulting the windows
func (m *RateLimitMetrics) RecordFailOpen(ctx context.Context, repositoryID string) {
	if m == nil || m.failOpenTotal == nil {
		return
	}
	m.failOpenTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repositoryID),
	))
}

// SchedulerMetrics holds the OpenTelemetry instruments for scheduler batches
type SchedulerMetrics struct {
	batchDuration  metric.Float64Histogram
	batchesTotal   metric.Int64Counter
	reposProcessed metric.Int64Counter
	leader         metric.Int64Gauge
}

// NewSchedulerMetrics creates a new SchedulerMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSchedulerMetrics(provider metric.MeterProvider) (*SchedulerMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SchedulerMetricsMeterName)

	batchDuration, err := meter.Float64Histogram(
		"reposync_scheduler_batch_duration_seconds",
		metric.WithDescription("Duration of scheduler batches in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 10, 30, 60, 300, 600, 1800, 3600),
	)
	if err != nil {
		return nil, err
	}

	batchesTotal, err := meter.Int64Counter(
		"reposync_scheduler_batches_total",
		metric.WithDescription("Number of scheduler batches by trigger and status"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, err
	}

	reposProcessed, err := meter.Int64Counter(
		"reposync_scheduler_repositories_processed_total",
		metric.WithDescription("Number of repositories processed by scheduler batches"),
		metric.WithUnit("{repository}"),
	)
	if err != nil {
		return nil, err
	}

	leader, err := meter.Int64Gauge(
		"reposync_scheduler_leader",
		metric.WithDescription("Whether this instance currently holds the scheduler leader lock"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerMetrics{
		batchDuration:  batchDuration,
		batchesTotal:   batchesTotal,
		reposProcessed: reposProcessed,
		leader:         leader,
	}, nil
}

// RecordBatch records a finished batch
func (m *SchedulerMetrics) RecordBatch(
	ctx context.Context,
	trigger, status string,
	duration time.Duration,
	succeeded, failed int,
) {
	if m == nil || m.batchDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("trigger", trigger),
		attribute.String("status", status),
	}
	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.batchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if succeeded > 0 {
		m.reposProcessed.Add(ctx, int64(succeeded), metric.WithAttributes(attribute.Bool("success", true)))
	}
	if failed > 0 {
		m.reposProcessed.Add(ctx, int64(failed), metric.WithAttributes(attribute.Bool("success", false)))
	}
}

// RecordLeadership records whether this instance holds the leader lock
func (m *SchedulerMetrics) RecordLeadership(ctx context.Context, isLeader bool) {
	if m == nil || m.leader == nil {
		return
	}
	var v int64
	if isLeader {
		v = 1
	}
	m.leader.Record(ctx, v)
}

// NotificationMetrics holds the OpenTelemetry instruments for alert decisions
type NotificationMetrics struct {
	notificationsTotal metric.Int64Counter
}

// NewNotificationMetrics creates a new NotificationMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewNotificationMetrics(provider metric.MeterProvider) (*NotificationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(NotificationMetricsMeterName)

	notificationsTotal, err := meter.Int64Counter(
		"reposync_notifications_total",
		metric.WithDescription("Number of notifications sent by scope and delivery outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, err
	}

	return &NotificationMetrics{notificationsTotal: notificationsTotal}, nil
}

// RecordNotification counts a notification send attempt
func (m *NotificationMetrics) RecordNotification(ctx context.Context, scope string, delivered bool) {
	if m == nil || m.notificationsTotal == nil {
		return
	}
	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.Bool("delivered", delivered),
	))
}
