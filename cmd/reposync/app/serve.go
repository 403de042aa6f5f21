package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	reposync "github.com/stacklok/reposync/internal/app"
	"github.com/stacklok/reposync/internal/config"
)

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	defaultManualRunEvery  = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	// flags can also be set through REPOSYNC_ADDRESS and friends
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the scheduler and the operator API",
		Long: `Start the reposync service.

The service requires a configuration file (--config) that specifies:
- The shared state store (Redis or in-memory)
- The repository directory (static list or admin backend)
- The sync worker endpoint
- Initial scheduler, rate limit and notification settings

Scheduler and notification settings are stored on first start and can then
be changed through the operator API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	addConfigFlag(cmd)
	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().Bool("enable-debug-endpoints", false, "Expose the key listing and wipe endpoints")
	cmd.Flags().Duration("manual-run-interval", defaultManualRunEvery,
		"Minimum time between operator triggered batches, 0 disables throttling")

	for _, name := range []string{"address", "enable-debug-endpoints", "manual-run-interval"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}
	return cmd
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	app, err := reposync.NewRepoSyncApp(ctx,
		reposync.WithConfig(cfg),
		reposync.WithAddress(v.GetString("address")),
		reposync.WithDebugEndpoints(v.GetBool("enable-debug-endpoints")),
		reposync.WithManualRunInterval(v.GetDuration("manual-run-interval")),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			slog.Error("Server stopped unexpectedly", "error", err)
			if stopErr := app.Stop(defaultGracefulTimeout); stopErr != nil {
				slog.Error("Failed to stop application", "error", stopErr)
			}
			return err
		}
	}

	return app.Stop(defaultGracefulTimeout)
}
