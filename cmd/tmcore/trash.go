package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dustin/go-humanize"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List, restore, and purge trashed entities",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed entities pending restore or purge",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		entries, err := repos.Trash.List(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("trash is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%d  %-8s  entity=%d  deleted_by=%s  deleted %s\n",
				e.ID, e.EntityKind, e.EntityID, e.ActorID, humanize.Time(e.DeletedAt))
		}
		return nil
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <trash_id>",
	Short: "Restore a trashed entity, reactivating any assignments scoped to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid trash id %q: %w", args[0], err)
		}
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		if err := orchestrator.Restore(ctx, repos, id); err != nil {
			return fmt.Errorf("restoring trash entry %d: %w", id, err)
		}
		fmt.Printf("trash entry %d: restored\n", id)
		return nil
	},
}

var trashPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Permanently remove trash entries past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		purged, err := orchestrator.PurgeExpired(ctx, repos, cfg.TrashRetentionDays)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d trash entries older than %d days\n", purged, cfg.TrashRetentionDays)
		return nil
	},
}

func init() {
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd, trashPurgeCmd)
	rootCmd.AddCommand(trashCmd)
}
