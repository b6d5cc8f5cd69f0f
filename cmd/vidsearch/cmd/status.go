package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var showQueue bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [video-id]",
		Short: "Show indexing status",
		Long: `Without arguments, prints a snapshot of the whole pipeline: entry
counts by status, queue depth, and in-flight videos. With a video id,
prints that video's indexing state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				status, err := app.manager.GetVideoStatus(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(out).Encode(status)
				}
				fmt.Fprintf(out, "Video:    %s\n", status.VideoID)
				if status.Title != "" {
					fmt.Fprintf(out, "Title:    %s\n", status.Title)
				}
				fmt.Fprintf(out, "Status:   %s\n", status.Status)
				if status.IndexedAt != nil {
					fmt.Fprintf(out, "Indexed:  %s\n", status.IndexedAt.Format("2006-01-02 15:04:05"))
				}
				if len(status.ContentKinds) > 0 {
					fmt.Fprintf(out, "Content:  %v (%d words)\n", status.ContentKinds, status.WordCount)
				}
				if status.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s (retry %d)\n", status.ErrorMessage, status.RetryCount)
				}
				return nil
			}

			status := app.manager.GetIndexingStatus()
			searchStats := app.manager.SearchStatistics()
			if jsonOutput {
				if showQueue {
					return json.NewEncoder(out).Encode(struct {
						Indexing any `json:"indexing"`
						Search   any `json:"search"`
						Queue    any `json:"queue"`
					}{status, searchStats, app.manager.GetQueueStatus()})
				}
				return json.NewEncoder(out).Encode(struct {
					Indexing any `json:"indexing"`
					Search   any `json:"search"`
				}{status, searchStats})
			}

			fmt.Fprintf(out, "Videos:      %d total, %d indexed\n", status.TotalVideos, status.Indexed)
			for s, n := range status.StatusBreakdown {
				fmt.Fprintf(out, "  %-10s %d\n", s, n)
			}
			fmt.Fprintf(out, "Content:     %d units, %d words\n", status.ContentUnits, status.IndexedWords)
			fmt.Fprintf(out, "Queue:       %d waiting\n", status.QueueSize)
			if len(status.Processing) > 0 {
				fmt.Fprintf(out, "In flight:   %v\n", status.Processing)
			}
			if status.LastSync != nil {
				fmt.Fprintf(out, "Last sync:   %s\n", status.LastSync.Format("2006-01-02 15:04:05"))
			}
			if status.DroppedEvents > 0 || status.DroppedAlerts > 0 {
				fmt.Fprintf(out, "Dropped:     %d events, %d alerts\n", status.DroppedEvents, status.DroppedAlerts)
			}
			if searchStats.TotalSearches > 0 {
				fmt.Fprintf(out, "Searches:    %d total, %d cached (%.0f%%), avg %s\n",
					searchStats.TotalSearches, searchStats.CacheHits,
					searchStats.CacheHitRate*100, searchStats.AverageDuration.Round(time.Microsecond))
			}

			if showQueue {
				qs := app.manager.GetQueueStatus()
				fmt.Fprintf(out, "\nQueue (%d/%d):\n", qs.Size, qs.Capacity)
				for _, item := range qs.Items {
					fmt.Fprintf(out, "  p%-2d %s (queued %s)\n", item.Priority, item.VideoID, item.QueuedAt.Format("15:04:05"))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showQueue, "queue", false, "Also list queued items")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")

	return cmd
}
