package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <file_id>",
	Short: "Resolve the ordered list of TMs a file sees (file.resolve_active_tms)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}

		assignments, err := resolver.ResolveForFile(ctx, repos, fileID)
		if err != nil {
			return fmt.Errorf("resolving assignments for file %d: %w", fileID, err)
		}
		if len(assignments) == 0 {
			fmt.Println("no active tm assignments")
			return nil
		}
		for _, a := range assignments {
			kind, scopeID := a.Scope()
			fmt.Printf("tm %d  priority %d  scope %s:%d\n", a.TMID, a.Priority, kind, scopeID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
