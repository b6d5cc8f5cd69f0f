package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <prefix>",
		Short: "Suggest query completions",
		Long:  `Completes a query prefix against the indexed vocabulary, most frequent words first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			suggestions := app.manager.Suggestions(args[0], limit)
			if len(suggestions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No suggestions.")
				return nil
			}
			for _, s := range suggestions {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %d\n", s.Word, s.Frequency)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum suggestions")

	return cmd
}

func newSimilarCmd() *cobra.Command {
	var limit int
	var threshold float64

	cmd := &cobra.Command{
		Use:   "similar <word>",
		Short: "Find semantically similar indexed words",
		Long:  `Ranks the indexed vocabulary by embedding similarity to the given word.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp()
			if err != nil {
				return err
			}
			defer app.close()

			ctx, cancel := signalContext()
			defer cancel()

			matches, err := app.manager.FindSimilarWords(ctx, args[0], limit, threshold)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No similar words.")
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %.3f\n", m.Word, m.Similarity)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum matches")
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "Minimum similarity in [0,1]")

	return cmd
}
