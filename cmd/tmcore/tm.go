package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neilvibe/tm-core/internal/jsonl"
	"github.com/neilvibe/tm-core/internal/types"
)

var tmCmd = &cobra.Command{
	Use:   "tm",
	Short: "Create, list, import entries into, and delete Translation Memories",
}

var (
	tmCreateSource string
	tmCreateTarget string
	tmCreateDesc   string
)

var tmCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a TM (tm.create)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		tm, err := repos.TMs.Create(ctx, &types.TM{
			Name:        args[0],
			Description: tmCreateDesc,
			SourceLang:  tmCreateSource,
			TargetLang:  tmCreateTarget,
			OwnerID:     viewerID,
		})
		if err != nil {
			return err
		}
		if err := idx.OnTMCreated(repos, tm.ID); err != nil {
			logger.Warn("tm created but initial index scheduling failed", "tm_id", tm.ID, "error", err)
		}
		fmt.Printf("tm %d created (%s -> %s)\n", tm.ID, tm.SourceLang, tm.TargetLang)
		return nil
	},
}

var tmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List TMs (tm.list)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		tms, err := repos.TMs.List(ctx, types.TMFilter{})
		if err != nil {
			return err
		}
		if len(tms) == 0 {
			fmt.Println("no tms")
			return nil
		}
		for _, tm := range tms {
			fmt.Printf("%d  %-20s  %s -> %s  %s  %d entries\n",
				tm.ID, tm.Name, tm.SourceLang, tm.TargetLang, tm.Status, tm.EntryCount)
		}
		return nil
	},
}

var tmDeleteCmd = &cobra.Command{
	Use:   "delete <tm_id>",
	Short: "Soft-delete a TM, quarantining its index artefacts (trash.DeleteTM)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tm id %q: %w", args[0], err)
		}
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		if err := orchestrator.DeleteTM(ctx, repos, id, viewerID); err != nil {
			return err
		}
		fmt.Printf("tm %d: trashed\n", id)
		return nil
	},
}

var tmImportFile string

// importEntryRow is the on-disk shape accepted by `tm import-entries`: one
// JSON object per line, matching internal/jsonl's generic reader rather
// than a bespoke CSV parser, since the core already carries that
// dependency for hash artefact persistence.
type importEntryRow struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	StringID string `json:"string_id"`
}

var tmImportCmd = &cobra.Command{
	Use:   "import-entries <tm_id>",
	Short: "Bulk-add entries to a TM from a JSONL file (tm.import_entries / tm.entries.bulk_add)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tmID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid tm id %q: %w", args[0], err)
		}
		if tmImportFile == "" {
			return fmt.Errorf("--file is required")
		}

		f, err := os.Open(tmImportFile)
		if err != nil {
			return err
		}
		defer f.Close()

		rows, err := jsonl.ReadAll[importEntryRow](f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", tmImportFile, err)
		}

		entries := make([]*types.TMEntry, len(rows))
		for i, r := range rows {
			entries[i] = &types.TMEntry{
				TMID:      tmID,
				Source:    r.Source,
				Target:    r.Target,
				StringID:  r.StringID,
				CreatedBy: viewerID,
			}
		}

		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		added, err := repos.TMEntries.BulkAdd(ctx, tmID, entries)
		if err != nil {
			return err
		}
		if err := idx.OnBulkInsert(repos, tmID, added); err != nil {
			logger.Warn("entries added but index scheduling failed", "tm_id", tmID, "error", err)
		}
		fmt.Printf("tm %d: added %d entries\n", tmID, len(added))
		return nil
	},
}

func init() {
	tmCreateCmd.Flags().StringVar(&tmCreateSource, "source-lang", "", "source language code")
	tmCreateCmd.Flags().StringVar(&tmCreateTarget, "target-lang", "", "target language code")
	tmCreateCmd.Flags().StringVar(&tmCreateDesc, "description", "", "TM description")
	tmImportCmd.Flags().StringVar(&tmImportFile, "file", "", "path to a JSONL file of {source,target,string_id} rows")

	tmCmd.AddCommand(tmCreateCmd, tmListCmd, tmDeleteCmd, tmImportCmd)
	rootCmd.AddCommand(tmCmd)
}
