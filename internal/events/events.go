// Package events publishes live sync and scheduler status events.
//
// Publishing is best-effort: events are buffered and written to sinks by a
// background loop, and dropped when the buffer is full. Nothing on the sync
// path ever waits on a sink.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event types
const (
	SyncStarted               = "sync:started"
	SyncCompleted             = "sync:completed"
	SyncFailed                = "sync:failed"
	SyncCancelled             = "sync:cancelled"
	SchedulerStarted          = "scheduler:started"
	SchedulerStopped          = "scheduler:stopped"
	SchedulerExecutionStarted = "scheduler:execution:started"
	SchedulerExecutionDone    = "scheduler:execution:completed"
	SchedulerExecutionFailed  = "scheduler:execution:failed"
)

// DefaultBufferSize is the number of events held before new ones are dropped
const DefaultBufferSize = 256

// Event is a live status update
type Event struct {
	Type         string         `json:"type"`
	Timestamp    time.Time      `json:"timestamp"`
	RepositoryID string         `json:"repositoryId,omitempty"`
	JobID        string         `json:"jobId,omitempty"`
	BatchID      string         `json:"batchId,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Publisher accepts events without blocking
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Sink writes events somewhere
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// NopPublisher discards every event
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, Event) {}

// AsyncPublisher buffers events and writes them to its sinks from Run
type AsyncPublisher struct {
	events  chan Event
	sinks   []Sink
	dropped atomic.Int64
	wg      gosync.WaitGroup
}

// NewAsyncPublisher creates an AsyncPublisher with the given buffer size
func NewAsyncPublisher(bufferSize int, sinks ...Sink) *AsyncPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &AsyncPublisher{
		events: make(chan Event, bufferSize),
		sinks:  sinks,
	}
}

// Publish enqueues the event, dropping it when the buffer is full
func (p *AsyncPublisher) Publish(_ context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.events <- event:
	default:
		if p.dropped.Add(1)%100 == 1 {
			slog.Warn("Event buffer full, dropping events",
				"type", event.Type,
				"dropped_total", p.dropped.Load())
		}
	}
}

// Dropped returns the number of events dropped so far
func (p *AsyncPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Run writes buffered events to the sinks until ctx is done, then flushes
// whatever is still buffered.
func (p *AsyncPublisher) Run(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	for {
		select {
		case event := <-p.events:
			p.write(ctx, event)
		case <-ctx.Done():
			p.flush()
			return
		}
	}
}

// Wait blocks until Run has returned
func (p *AsyncPublisher) Wait() {
	p.wg.Wait()
}

func (p *AsyncPublisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case event := <-p.events:
			p.write(ctx, event)
		default:
			return
		}
	}
}

func (p *AsyncPublisher) write(ctx context.Context, event Event) {
	for _, sink := range p.sinks {
		if err := sink.Write(ctx, event); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("Failed to write event", "type", event.Type, "error", err)
		}
	}
}

// LogSink writes events to the debug log
type LogSink struct{}

// Write logs the event
func (LogSink) Write(_ context.Context, event Event) error {
	slog.Debug("Event",
		"type", event.Type,
		"repository", event.RepositoryID,
		"job_id", event.JobID,
		"batch_id", event.BatchID)
	return nil
}

// RedisSink publishes events as JSON on a Redis pub/sub channel
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink creates a RedisSink
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Write publishes the event
func (s *RedisSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", s.channel, err)
	}
	return nil
}
