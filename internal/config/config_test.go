package config

import "testing"

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()
	if cfg.EmbeddingProvider != EmbeddingFast {
		t.Errorf("expected fast provider default, got %s", cfg.EmbeddingProvider)
	}
	if cfg.TrashRetentionDays != 30 {
		t.Errorf("expected 30 day trash retention default, got %d", cfg.TrashRetentionDays)
	}
	if cfg.CascadeLimitDefault != 10 {
		t.Errorf("expected cascade limit default 10, got %d", cfg.CascadeLimitDefault)
	}
	if cfg.CompactionTombstoneRatio != 0.10 {
		t.Errorf("expected compaction tombstone ratio 0.10, got %f", cfg.CompactionTombstoneRatio)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BackendMode != BackendAuto {
		t.Errorf("expected auto backend mode default, got %s", cfg.BackendMode)
	}
}
