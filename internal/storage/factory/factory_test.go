package factory

import (
	"context"
	"testing"

	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

func unreachableDSN() string {
	// Port 1 is a privileged, essentially never-listening port; dialing it
	// fails (connection refused) almost immediately rather than timing
	// out, so this exercises the failover path without real test latency.
	return "root@tcp(127.0.0.1:1)/tmcore_test"
}

func TestResolve_OfflineViewerSelectsLocalShadow(t *testing.T) {
	cfg := config.Default()
	cfg.EmbeddedDir = t.TempDir()
	f := New(cfg, nil)
	defer f.Close()

	repos, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1", Offline: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repos.Mode != storage.ModeLocalShadow {
		t.Errorf("expected local shadow mode, got %s", repos.Mode)
	}
}

func TestResolve_BackendModeEmbeddedForcesDegraded(t *testing.T) {
	cfg := config.Default()
	cfg.BackendMode = config.BackendEmbedded
	cfg.EmbeddedDir = t.TempDir()
	f := New(cfg, nil)
	defer f.Close()

	repos, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repos.Mode != storage.ModeDegraded {
		t.Errorf("expected degraded mode, got %s", repos.Mode)
	}
}

func TestResolve_BackendModeAuthoritativeFailsWhenUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.BackendMode = config.BackendAuthoritative
	cfg.RemoteDSN = unreachableDSN()
	f := New(cfg, nil)
	defer f.Close()

	_, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1"})
	if err == nil {
		t.Fatal("expected an error forcing authoritative mode against an unreachable remote")
	}
}

func TestResolve_AutoModeFailsOverToDegradedWhenRemoteUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.RemoteDSN = unreachableDSN()
	cfg.EmbeddedDir = t.TempDir()
	f := New(cfg, nil)
	defer f.Close()

	repos, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1"})
	if err != nil {
		t.Fatalf("expected failover to degraded mode, got error: %v", err)
	}
	if repos.Mode != storage.ModeDegraded {
		t.Errorf("expected degraded mode after failover, got %s", repos.Mode)
	}
}

func TestResolve_AutoModeCachesFailedRemoteProbe(t *testing.T) {
	cfg := config.Default()
	cfg.RemoteDSN = unreachableDSN()
	cfg.EmbeddedDir = t.TempDir()
	f := New(cfg, nil)
	defer f.Close()

	if _, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1"}); err != nil {
		t.Fatalf("first resolve: unexpected error: %v", err)
	}
	// A second resolve does not re-probe: the first failed open is cached,
	// so it falls back to degraded mode again and also succeeds.
	if _, err := f.Resolve(context.Background(), storage.Viewer{ID: "u1"}); err != nil {
		t.Fatalf("second resolve: unexpected error: %v", err)
	}
}

func TestRemoteTCPAddr(t *testing.T) {
	addr, err := remoteTCPAddr("root:pw@tcp(127.0.0.1:3307)/tmcore")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "127.0.0.1:3307" {
		t.Errorf("expected 127.0.0.1:3307, got %s", addr)
	}
}

func TestRemoteTCPAddr_NoTCPSegment(t *testing.T) {
	if _, err := remoteTCPAddr("not-a-dsn"); err == nil {
		t.Fatal("expected error for a DSN with no tcp(...) segment")
	}
}

func TestDegradedStorePersistsAcrossResolves(t *testing.T) {
	cfg := config.Default()
	cfg.BackendMode = config.BackendEmbedded
	cfg.EmbeddedDir = t.TempDir()
	f := New(cfg, nil)
	defer f.Close()

	ctx := context.Background()
	repos, err := f.Resolve(ctx, storage.Viewer{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "acme", SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("creating tm: %v", err)
	}

	repos2, err := f.Resolve(ctx, storage.Viewer{ID: "u1"})
	if err != nil {
		t.Fatalf("second resolve: unexpected error: %v", err)
	}
	got, err := repos2.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("expected the second resolve to reuse the same degraded store, got: %v", err)
	}
	if got.ID != tm.ID {
		t.Errorf("expected same TM across resolves, got id %d want %d", got.ID, tm.ID)
	}
}
