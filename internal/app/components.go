package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/reposync/internal/directory"
	"github.com/stacklok/reposync/internal/events"
	"github.com/stacklok/reposync/internal/notify"
	"github.com/stacklok/reposync/internal/ratelimit"
	"github.com/stacklok/reposync/internal/store"
	"github.com/stacklok/reposync/internal/sync/orchestrator"
	"github.com/stacklok/reposync/internal/sync/scheduler"
	"github.com/stacklok/reposync/internal/sync/state"
	"github.com/stacklok/reposync/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Store is the shared state store
	Store store.Store

	// Keys builds the store keys of this deployment
	Keys store.Keys

	// Jobs persists sync jobs and repository state
	Jobs state.JobService

	// Directory lists the repositories to keep in sync
	Directory directory.Directory

	// Limiter throttles outbound calls to the source-control API
	Limiter *ratelimit.Limiter

	// Orchestrator runs single repository syncs
	Orchestrator *orchestrator.Orchestrator

	// Scheduler runs sync batches
	Scheduler *scheduler.Service

	// Notifications stores the notification configuration
	Notifications *notify.ConfigStore

	// Publisher delivers live status events. Nil when events are disabled.
	Publisher *events.AsyncPublisher

	// Telemetry owns the tracer and meter providers
	Telemetry *telemetry.Telemetry
}

// Close stops the scheduler and releases the store and telemetry providers
func (c *AppComponents) Close(ctx context.Context) error {
	var errs []error
	if c.Scheduler != nil {
		if err := c.Scheduler.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Debug("Application components closed")
	return nil
}
