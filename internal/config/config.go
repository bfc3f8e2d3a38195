// Package config loads the TM core's process-wide configuration using a
// dedicated viper instance, matching cmd/bd/config.go's "v := viper.New()"
// convention rather than binding to viper's package-global instance.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EmbeddingProvider selects which Embedding Provider implementation is
// process-wide active. Switching it invalidates every TM's index artefacts.
type EmbeddingProvider string

const (
	EmbeddingFast EmbeddingProvider = "fast"
	EmbeddingDeep EmbeddingProvider = "deep"
)

// BackendMode overrides the factory's automatic mode detection.
type BackendMode string

const (
	BackendAuto          BackendMode = "auto"
	BackendAuthoritative BackendMode = "authoritative"
	BackendEmbedded      BackendMode = "embedded"
)

// Config holds the recognised options from spec.md §6.
type Config struct {
	EmbeddingProvider        EmbeddingProvider
	BackendMode              BackendMode
	IndexBuildParallelism    int
	SimilarityThresholdDefault float64
	CascadeLimitDefault      int
	CompactionTombstoneRatio float64
	TrashRetentionDays       int

	// Backend connection settings, not named individually in spec.md §6
	// but required to actually reach the two backends described in §4.1.
	RemoteDSN        string // e.g. "root@tcp(127.0.0.1:3307)/tm_core"
	EmbeddedDir      string // directory holding the embedded SQLite file(s)
	IndexArtefactDir string // root directory holding per-TM index artefact directories

	DeepEmbeddingEndpoint string
	DeepEmbeddingAPIKey   string
}

// Default returns the documented defaults: index_build_parallelism =
// min(4, NumCPU) is resolved by the indexer itself from
// IndexBuildParallelism<=0.
func Default() *Config {
	return &Config{
		EmbeddingProvider:          EmbeddingFast,
		BackendMode:                BackendAuto,
		IndexBuildParallelism:      0, // 0 => indexer resolves min(4, NumCPU)
		SimilarityThresholdDefault: 0.75,
		CascadeLimitDefault:        10,
		CompactionTombstoneRatio:   0.10,
		TrashRetentionDays:         30,
	}
}

// Load builds a dedicated viper instance bound to env vars
// (TMCORE_-prefixed) and an optional config file, with Default() values as
// the floor.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("embedding_provider", string(def.EmbeddingProvider))
	v.SetDefault("backend_mode", string(def.BackendMode))
	v.SetDefault("index_build_parallelism", def.IndexBuildParallelism)
	v.SetDefault("similarity_threshold_default", def.SimilarityThresholdDefault)
	v.SetDefault("cascade_limit_default", def.CascadeLimitDefault)
	v.SetDefault("compaction_tombstone_ratio", def.CompactionTombstoneRatio)
	v.SetDefault("trash_retention_days", def.TrashRetentionDays)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		EmbeddingProvider:          EmbeddingProvider(v.GetString("embedding_provider")),
		BackendMode:                BackendMode(v.GetString("backend_mode")),
		IndexBuildParallelism:      v.GetInt("index_build_parallelism"),
		SimilarityThresholdDefault: v.GetFloat64("similarity_threshold_default"),
		CascadeLimitDefault:        v.GetInt("cascade_limit_default"),
		CompactionTombstoneRatio:   v.GetFloat64("compaction_tombstone_ratio"),
		TrashRetentionDays:         v.GetInt("trash_retention_days"),
		RemoteDSN:                  v.GetString("remote_dsn"),
		EmbeddedDir:                v.GetString("embedded_dir"),
		IndexArtefactDir:           v.GetString("index_artefact_dir"),
		DeepEmbeddingEndpoint:      v.GetString("deep_embedding_endpoint"),
		DeepEmbeddingAPIKey:        v.GetString("deep_embedding_api_key"),
	}
	return cfg, nil
}

// Watch reloads the config file on change and invokes onChange with the
// freshly parsed Config. Mirrors fsnotify's use elsewhere in the teacher's
// stack (viper's own WatchConfig plumbing) for hot-reloading operator
// overrides without a restart.
func Watch(configPath string, onChange func(*Config)) error {
	if configPath == "" {
		return fmt.Errorf("watch: configPath is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := watcher.Add(configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch: %w", err)
	}
	go func() {
		defer watcher.Close()
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, func() {
					if cfg, err := Load(configPath); err == nil {
						onChange(cfg)
					}
				})
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}
