package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	searchThreshold float64
	searchLimit     int
	searchStringID  string
)

var searchCmd = &cobra.Command{
	Use:   "search <tm_id> <source text>",
	Short: "Run the cascade matcher against a TM (tm.search)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tm id %q: %w", args[0], err)
		}
		query := args[1]

		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		tm, err := repos.TMs.Get(ctx, tmID)
		if err != nil {
			return fmt.Errorf("loading tm %d: %w", tmID, err)
		}

		threshold := searchThreshold
		if !cmd.Flags().Changed("threshold") {
			threshold = cfg.SimilarityThresholdDefault
		}
		limit := searchLimit
		if !cmd.Flags().Changed("limit") {
			limit = cfg.CascadeLimitDefault
		}

		hits, err := matcher.Search(ctx, repos, tm, query, searchStringID, threshold, limit)
		if err != nil {
			return fmt.Errorf("searching tm %d: %w", tmID, err)
		}
		if len(hits) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("tier %d  score %.3f  entry %d  %q -> %q\n", h.Tier, h.Score, h.EntryID, h.Source, h.Target)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity score (default: similarity_threshold_default)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum number of results (default: cascade_limit_default)")
	searchCmd.Flags().StringVar(&searchStringID, "string-id", "", "row identifier for stringid-mode TMs")
	rootCmd.AddCommand(searchCmd)
}
