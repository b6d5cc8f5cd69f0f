package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var force bool
	var wait bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the registry and index whatever changed",
		Long: `Fetches the registry listing, diffs it against the index, and queues
new, updated, and previously failed videos for indexing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			stats, err := app.manager.SyncRegistry(ctx, force)
			if err != nil {
				return err
			}
			if stats.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Sync skipped: minimum interval not elapsed (use --force to override)")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d videos: %d new, %d updated, %d retried, %d requeued (%d enqueued)\n",
				stats.Listed, stats.New, stats.Updated, stats.Retried, stats.Requeued, stats.Enqueued)
			if stats.QueueRefused > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Queue refused %d items (full); run sync again later\n", stats.QueueRefused)
			}

			if !wait {
				return nil
			}
			return waitForDrain(cmd, app, waitTimeout)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Bypass the minimum sync interval")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the indexing queue drains")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 10*time.Minute, "Maximum time to wait for the queue to drain")

	return cmd
}

// waitForDrain polls until the queue is empty and no videos are in flight.
func waitForDrain(cmd *cobra.Command, app *app, timeout time.Duration) error {
	ctx, cancel := signalContext()
	defer cancel()

	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out waiting for queue to drain")
		case <-ticker.C:
			status := app.manager.GetIndexingStatus()
			if status.QueueSize == 0 && len(status.Processing) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Indexing complete: %d videos indexed\n", status.Indexed)
				return nil
			}
		}
	}
}
