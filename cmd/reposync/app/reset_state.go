package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	reposync "github.com/stacklok/reposync/internal/app"
	"github.com/stacklok/reposync/internal/store"
)

func newResetStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset-state",
		Short: "Delete every reposync key from the shared store",
		Long: `Delete every key under the configured key prefix: jobs, repository state,
locks, rate limit windows, scheduler status, history and stored configuration.
Stored configuration is seeded again from the file on the next start.

Without --yes the command asks for confirmation on a terminal and refuses to
run otherwise.`,
		RunE: runResetState,
	}
	addConfigFlag(cmd)
	cmd.Flags().Bool("yes", false, "Delete without asking for confirmation")
	cmd.Flags().Bool("dry-run", false, "List the keys that would be deleted")
	return cmd
}

func runResetState(cmd *cobra.Command, _ []string) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("failed to get dry-run flag: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	s, keys, err := reposync.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	confirm := func(string) bool { return yes }
	if !yes && !dryRun {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to delete state without --yes when stdin is not a terminal")
		}
		confirm = promptConfirm(os.Stdin, cmd.ErrOrStderr())
	}

	return resetState(ctx, s, keys, dryRun, confirm, cmd.OutOrStdout())
}

// resetState deletes every key under the prefix once confirm accepts the summary
func resetState(
	ctx context.Context,
	s store.Store,
	keys store.Keys,
	dryRun bool,
	confirm func(summary string) bool,
	out io.Writer,
) error {
	found, err := s.Keys(ctx, keys.All())
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	if len(found) == 0 {
		_, err := fmt.Fprintf(out, "No keys found under prefix %q\n", keys.Prefix())
		return err
	}

	if dryRun {
		for _, k := range found {
			if _, err := fmt.Fprintln(out, k); err != nil {
				return err
			}
		}
		return nil
	}

	summary := fmt.Sprintf("Delete %d keys under prefix %q?", len(found), keys.Prefix())
	if !confirm(summary) {
		_, err := fmt.Fprintln(out, "Aborted")
		return err
	}

	if err := s.Delete(ctx, found...); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	slog.Warn("Shared state reset", "prefix", keys.Prefix(), "deleted", len(found))
	_, err = fmt.Fprintf(out, "Deleted %d keys\n", len(found))
	return err
}

// promptConfirm asks a yes/no question on prompt and reads the answer from in
func promptConfirm(in io.Reader, prompt io.Writer) func(string) bool {
	return func(summary string) bool {
		if _, err := fmt.Fprintf(prompt, "%s [y/N]: ", summary); err != nil {
			return false
		}
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && answer == "" {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}
