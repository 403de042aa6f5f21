package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	reposync "github.com/stacklok/reposync/internal/app"
	"github.com/stacklok/reposync/internal/status"
)

// batchRunner runs one leader-locked batch
type batchRunner interface {
	RunOnce(ctx context.Context) (*status.Execution, error)
}

func newRunOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single sync batch and exit",
		Long: `Run a single sync batch under the scheduler leader lock, print its summary
as JSON and exit. The command fails when another instance holds the lock or
the batch fails. Use it to drive reposync from an external cron.`,
		RunE: runRunOnce,
	}
	addConfigFlag(cmd)
	return cmd
}

func runRunOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := reposync.NewComponents(ctx, reposync.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer func() {
		if err := components.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Error("Failed to close components", "error", err)
		}
	}()

	if p := components.Publisher; p != nil {
		pubCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go p.Run(pubCtx)
		defer func() {
			cancel()
			p.Wait()
		}()
	}

	return runBatch(ctx, components.Scheduler, cmd.OutOrStdout())
}

// runBatch runs one batch and writes the execution summary to out
func runBatch(ctx context.Context, runner batchRunner, out io.Writer) error {
	execution, err := runner.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("failed to run batch: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(execution); err != nil {
		return fmt.Errorf("failed to write batch summary: %w", err)
	}

	if execution.Status == status.ExecutionFailed {
		return fmt.Errorf("batch %s failed: %s", execution.BatchID, execution.Error)
	}
	slog.Info("Batch finished",
		"batch_id", execution.BatchID,
		"status", execution.Status,
		"processed", execution.ProcessedCount,
		"failed", execution.FailureCount)
	return nil
}
