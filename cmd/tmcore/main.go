// Command tmcore wires the repository layer, embedding provider, indexer,
// cascade matcher, assignment resolver, and trash orchestrator into a
// single binary, the way cmd/bd wires the teacher's storage, config, and
// background workers. Unlike the teacher's daemon-plus-RPC split, no wire
// format is mandated by spec.md §6, so every subcommand here operates
// directly against a resolved storage.Repositories bundle; `tmcore serve`
// is the one subcommand that stays resident, running the indexer's
// background job queue and the trash retention sweep.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neilvibe/tm-core/internal/assignment"
	"github.com/neilvibe/tm-core/internal/cascade"
	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/embedding"
	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/factory"
	"github.com/neilvibe/tm-core/internal/telemetry"
	"github.com/neilvibe/tm-core/internal/trash"
)

var (
	configPath string
	viewerID   string
	offline    bool
	jsonOutput bool
	verbose    bool

	logger       *slog.Logger
	cfg          *config.Config
	metrics      *telemetry.Metrics
	fct          *factory.Factory
	provider     embedding.Provider
	idx          *indexer.Indexer
	matcher      *cascade.Matcher
	resolver     *assignment.Resolver
	orchestrator *trash.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "tmcore",
	Short: "tmcore - translation memory core",
	Long:  "tmcore operates the TM core's repository layer, index builds, and cascade search directly against a resolved backend.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a tmcore config file (TOML/YAML, viper-recognised)")
	rootCmd.PersistentFlags().StringVar(&viewerID, "viewer", "", "viewer id for audit trail and offline-credential checks (default: $TMCORE_VIEWER or $USER)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "resolve against the local-shadow backend instead of auto-detecting")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit structured JSON logs")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
}

func setup(ctx context.Context) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	logger = slog.New(handler)

	metrics, err = telemetry.New()
	if err != nil {
		return fmt.Errorf("initialising telemetry: %w", err)
	}

	provider, err = buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("initialising embedding provider: %w", err)
	}

	fct = factory.New(cfg, metrics)
	idx = indexer.New(cfg, provider, metrics)
	matcher = cascade.New(idx, provider, metrics)
	resolver = assignment.New()
	orchestrator = trash.New(idx)

	if viewerID == "" {
		if v := os.Getenv("TMCORE_VIEWER"); v != "" {
			viewerID = v
		} else if u := os.Getenv("USER"); u != "" {
			viewerID = u
		} else {
			viewerID = "unknown"
		}
	}

	return nil
}

func teardown() error {
	if metrics != nil {
		_ = metrics.Shutdown(context.Background())
	}
	if fct != nil {
		return fct.Close()
	}
	return nil
}

func buildProvider(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingDeep:
		return embedding.NewDeepProvider(embedding.DeepProviderConfig{
			Endpoint: cfg.DeepEmbeddingEndpoint,
			APIKey:   cfg.DeepEmbeddingAPIKey,
		}), nil
	default:
		return embedding.NewFastProvider(filepath.Join(cfg.EmbeddedDir, "fastembed-cache"), cfg.IndexBuildParallelism)
	}
}

// currentViewer builds the storage.Viewer the factory resolves repositories
// against, honouring --offline the same way a route would honour an
// offline-credential prefix on an incoming request.
func currentViewer() storage.Viewer {
	return storage.Viewer{ID: viewerID, Offline: offline}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
