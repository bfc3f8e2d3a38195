package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/neilvibe/tm-core/internal/storage/bridge"
	"github.com/neilvibe/tm-core/internal/types"
)

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Create and list platforms",
}

var platformCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		p, err := repos.Platforms.Create(ctx, &types.Platform{Name: args[0], OwnerID: viewerID})
		if err != nil {
			return err
		}
		fmt.Printf("platform %d created\n", p.ID)
		return nil
	},
}

var platformListCmd = &cobra.Command{
	Use:   "list",
	Short: "List platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		platforms, err := repos.Platforms.List(ctx)
		if err != nil {
			return err
		}
		for _, p := range platforms {
			if p.Name == bridge.OfflineStorageName && bridge.Hidden(p.OwnerID, viewerID) {
				continue
			}
			fmt.Printf("%d  %s\n", p.ID, p.Name)
		}
		return nil
	},
}

var (
	projectPlatformID int64
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create and list projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project under a platform",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		var platformID *int64
		if cmd.Flags().Changed("platform") {
			platformID = &projectPlatformID
		}
		p, err := repos.Projects.Create(ctx, &types.Project{Name: args[0], PlatformID: platformID})
		if err != nil {
			return err
		}
		fmt.Printf("project %d created\n", p.ID)
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects, optionally filtered by platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		var platformID *int64
		if cmd.Flags().Changed("platform") {
			platformID = &projectPlatformID
		}
		projects, err := repos.Projects.List(ctx, platformID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			if p.Name == bridge.OfflineStorageName && bridge.Hidden(p.OwnerID, viewerID) {
				continue
			}
			fmt.Printf("%d  %s\n", p.ID, p.Name)
		}
		return nil
	},
}

var (
	assignTMID       int64
	assignPlatformID int64
	assignProjectID  int64
	assignFolderID   int64
	assignPriority   int
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Create or revoke TM scope assignments (assignment.create / assignment.revoke)",
}

var assignCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Assign a TM to exactly one of --platform/--project/--folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		a := &types.Assignment{TMID: assignTMID, Priority: assignPriority, AssignerID: viewerID, Active: true}
		switch {
		case cmd.Flags().Changed("platform"):
			a.PlatformID = &assignPlatformID
		case cmd.Flags().Changed("project"):
			a.ProjectID = &assignProjectID
		case cmd.Flags().Changed("folder"):
			a.FolderID = &assignFolderID
		default:
			return fmt.Errorf("exactly one of --platform, --project, or --folder is required")
		}

		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		created, err := repos.Assignments.Create(ctx, a)
		if err != nil {
			return err
		}
		fmt.Printf("assignment %d created\n", created.ID)
		return nil
	},
}

var assignRevokeCmd = &cobra.Command{
	Use:   "revoke <assignment_id>",
	Short: "Revoke an assignment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid assignment id %q: %w", args[0], err)
		}
		ctx := cmd.Context()
		repos, err := fct.Resolve(ctx, currentViewer())
		if err != nil {
			return err
		}
		if err := repos.Assignments.Revoke(ctx, id); err != nil {
			return err
		}
		fmt.Printf("assignment %d revoked\n", id)
		return nil
	},
}

func init() {
	projectCreateCmd.Flags().Int64Var(&projectPlatformID, "platform", 0, "platform id")
	projectListCmd.Flags().Int64Var(&projectPlatformID, "platform", 0, "platform id")

	assignCreateCmd.Flags().Int64Var(&assignTMID, "tm", 0, "tm id (required)")
	assignCreateCmd.Flags().Int64Var(&assignPlatformID, "platform", 0, "platform scope id")
	assignCreateCmd.Flags().Int64Var(&assignProjectID, "project", 0, "project scope id")
	assignCreateCmd.Flags().Int64Var(&assignFolderID, "folder", 0, "folder scope id")
	assignCreateCmd.Flags().IntVar(&assignPriority, "priority", 0, "lower sorts first within a scope level")
	_ = assignCreateCmd.MarkFlagRequired("tm")

	platformCmd.AddCommand(platformCreateCmd, platformListCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd)
	assignCmd.AddCommand(assignCreateCmd, assignRevokeCmd)
	rootCmd.AddCommand(platformCmd, projectCmd, assignCmd)
}
