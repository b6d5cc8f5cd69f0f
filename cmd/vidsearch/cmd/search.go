package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/playbacklab/vidsearch/internal/model"
	"github.com/playbacklab/vidsearch/internal/search"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		threshold  float64
		tags       []string
		kinds      []string
		since      string
		recent     bool
		filters    bool
		page       int
		pageSize   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed video content",
		Long: `Runs a ranked semantic search over the indexed videos. Quote phrases
inside the query to require verbatim matches: search 'deep "coral reef"'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			query := search.SearchQuery{
				Text:        args[0],
				Limit:       limit,
				Threshold:   threshold,
				Tags:        tags,
				BoostRecent: recent,
			}
			for _, k := range kinds {
				query.ContentKinds = append(query.ContentKinds, model.ContentKind(k))
			}
			if since != "" {
				from, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date %q, want YYYY-MM-DD", since)
				}
				query.DateFrom = &from
			}

			if page > 0 {
				paged, metrics, err := app.manager.SearchWithPagination(ctx, query, page, pageSize)
				if err != nil {
					return err
				}
				return printPaged(cmd, paged, metrics, jsonOutput)
			}

			var (
				results []search.SearchResult
				metrics search.SearchMetrics
			)
			if filters {
				results, metrics, err = app.manager.SearchWithFilters(ctx, query)
			} else {
				results, metrics, err = app.manager.Search(ctx, query)
			}
			if err != nil {
				return err
			}
			return printResults(cmd, results, metrics, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (0 uses the configured default)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum relevance score in [0,1] (0 uses the configured default)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Require at least one matching tag")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Require at least one matching content kind (captions.vtt, audio-transcript.txt, ...)")
	cmd.Flags().StringVar(&since, "since", "", "Only videos created on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&recent, "recent", false, "Boost recently created videos")
	cmd.Flags().BoolVar(&filters, "filters", false, "Apply confidence rescoring against the active filters")
	cmd.Flags().IntVar(&page, "page", 0, "Page number (enables pagination)")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Results per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")

	return cmd
}

func printResults(cmd *cobra.Command, results []search.SearchResult, metrics search.SearchMetrics, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		return json.NewEncoder(out).Encode(struct {
			Results []search.SearchResult `json:"results"`
			Metrics search.SearchMetrics  `json:"metrics"`
		}{results, metrics})
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	for i, r := range results {
		fmt.Fprintf(out, "%2d. [%.2f] %s (%s)\n", i+1, r.Score, r.Title, r.VideoID)
		if r.Snippet != "" {
			fmt.Fprintf(out, "    %s\n", r.Snippet)
		}
		if len(r.Tags) > 0 {
			fmt.Fprintf(out, "    tags: %s\n", strings.Join(r.Tags, ", "))
		}
	}
	fmt.Fprintf(out, "\n%d results in %s (%d candidates scored", len(results), metrics.Duration.Round(time.Millisecond), metrics.CandidatesAfter)
	if metrics.CacheHit {
		fmt.Fprint(out, ", cached")
	}
	fmt.Fprintln(out, ")")
	return nil
}

func printPaged(cmd *cobra.Command, paged *search.PaginatedResults, metrics search.SearchMetrics, asJSON bool) error {
	out := cmd.OutOrStdout()

	if asJSON {
		return json.NewEncoder(out).Encode(struct {
			*search.PaginatedResults
			Metrics search.SearchMetrics `json:"metrics"`
		}{paged, metrics})
	}

	if err := printResults(cmd, paged.Results, metrics, false); err != nil {
		return err
	}
	fmt.Fprintf(out, "Page %d/%d (%d total results)\n", paged.Page, paged.TotalPages, paged.TotalResults)
	return nil
}
