package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/indexer"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and inspect a TM's index artefacts",
}

var indexBuildCmd = &cobra.Command{
	Use:   "build <tm_id>",
	Short: "Force a full rebuild of a TM's index artefacts (tm.indexes.build)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tm id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}

		if err := idx.Build(ctx, repos, tmID); err != nil {
			return fmt.Errorf("building tm %d: %w", tmID, err)
		}
		fmt.Printf("tm %d: build complete\n", tmID)
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status <tm_id>",
	Short: "Show a TM's artefact metadata and staleness (tm.indexes.status)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tm id %q: %w", args[0], err)
		}

		repos, err := fct.Resolve(cmd.Context(), currentViewer())
		if err != nil {
			return err
		}

		a, err := idx.Artefacts(repos, tmID)
		if err != nil {
			if errors.Is(err, indexer.ErrArtefactsMissing) {
				fmt.Printf("tm %d: no artefacts built yet\n", tmID)
				return nil
			}
			return fmt.Errorf("loading artefacts for tm %d: %w", tmID, err)
		}

		tm, err := repos.TMs.Get(cmd.Context(), tmID)
		if err != nil && !errs.IsNotFound(err) {
			return err
		}

		fmt.Printf("tm %d:\n", tmID)
		fmt.Printf("  provider:        %s\n", a.Meta.ProviderID)
		fmt.Printf("  dimension:       %d\n", a.Meta.Dimension)
		fmt.Printf("  entry count:     %s\n", humanize.Comma(int64(a.Meta.EntryCount)))
		fmt.Printf("  built:           %s\n", humanize.Time(a.Meta.BuildTimestamp))
		fmt.Printf("  schema version:  %d\n", a.Meta.SchemaVersion)
		fmt.Printf("  tombstone ratio: %.1f%%\n", indexer.TombstoneRatio(a)*100)
		if tm != nil {
			entries, err := repos.TMEntries.GetAll(cmd.Context(), tmID)
			if err != nil {
				return err
			}
			var newest time.Time
			for _, e := range entries {
				if e.UpdatedAt.After(newest) {
					newest = e.UpdatedAt
				}
			}
			fmt.Printf("  status:          %s\n", tm.Status)
			fmt.Printf("  stale:           %v\n", tm.Stale(newest))
		}
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexBuildCmd, indexStatusCmd)
	rootCmd.AddCommand(indexCmd)
}
