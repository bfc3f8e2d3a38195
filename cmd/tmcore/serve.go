package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neilvibe/tm-core/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexer's background job queue and the trash retention sweep",
	Long: `serve keeps tmcore resident: it starts the indexer's bounded worker pool
(servicing build/incremental/compaction jobs queued by CRUD operations
elsewhere in the process) and periodically purges trash entries past their
retention window. It holds no network listener of its own — spec.md §6
mandates no wire format, so routes embedding this core call it as a
library in-process rather than dialing tmcore over a socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		idx.Start(ctx)
		defer idx.Stop()
		logger.Info("tmcore serve started", "trash_retention_days", cfg.TrashRetentionDays)

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("tmcore serve stopping")
				return nil
			case <-ticker.C:
				purgeExpiredTrash(ctx)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// purgeExpiredTrash sweeps every backend this process can reach (remote
// authoritative when configured, always the local-shadow/degraded
// embedded store) so trash accumulated while offline is swept too.
func purgeExpiredTrash(ctx context.Context) {
	for _, viewer := range []storage.Viewer{
		{ID: "tmcore-scheduler"},
		{ID: "tmcore-scheduler", Offline: true},
	} {
		repos, err := fct.Resolve(ctx, viewer)
		if err != nil {
			logger.Warn("trash sweep: resolving backend failed", "offline", viewer.Offline, "error", err)
			continue
		}
		purged, err := orchestrator.PurgeExpired(ctx, repos, cfg.TrashRetentionDays)
		if err != nil {
			logger.Error("trash sweep failed", "offline", viewer.Offline, "error", err)
			continue
		}
		if purged > 0 {
			logger.Info("trash sweep purged entries", "count", purged, "offline", viewer.Offline)
		}
	}
}
