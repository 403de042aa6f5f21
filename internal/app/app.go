// Package app provides application lifecycle management for reposync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/reposync/internal/config"
)

// RepoSyncApp encapsulates all components needed to run the reposync service.
// It provides lifecycle management and graceful shutdown.
type RepoSyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the event publisher, the scheduler when enabled, and the HTTP
// server. It blocks until the HTTP server stops or fails.
func (app *RepoSyncApp) Start() error {
	g, ctx := errgroup.WithContext(app.ctx)

	if p := app.components.Publisher; p != nil {
		g.Go(func() error {
			p.Run(ctx)
			return nil
		})
	}

	sched := app.components.Scheduler
	if sched.Config().Enabled {
		if err := sched.Start(ctx); err != nil {
			app.cancelFunc()
			_ = g.Wait()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		slog.Info("Scheduler disabled, batches only run on request")
	}

	g.Go(func() error {
		slog.Info("Server listening", "address", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.cancelFunc()
	return err
}

// Stop gracefully stops the application with the given timeout. The HTTP
// server is shut down first, then the scheduler, events and the store.
func (app *RepoSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if err := app.components.Scheduler.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop scheduler: %w", err))
	}

	app.cancelFunc()
	if p := app.components.Publisher; p != nil {
		p.Wait()
	}

	if err := app.components.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *RepoSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *RepoSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the application components
func (app *RepoSyncApp) Components() *AppComponents {
	return app.components
}
