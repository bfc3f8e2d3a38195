package bridge

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/embedded"
	"github.com/neilvibe/tm-core/internal/storage/schema"
)

func newTestStore(t *testing.T, mode schema.Mode) *embedded.Store {
	t.Helper()
	dir := t.TempDir()
	store, err := embedded.Open(context.Background(), filepath.Join(dir, "test.db"), mode)
	if err != nil {
		t.Fatalf("opening embedded store: %v", err)
	}
	repoMode := storage.ModeLocalShadow
	if mode == schema.ModeAuthoritative {
		repoMode = storage.ModeRemoteAuthoritative
	}
	t.Cleanup(func() { _ = store.Repositories(repoMode).Close() })
	return store
}

func TestEnsureAuthoritative_ResolvesSingleSeededPair(t *testing.T) {
	auth := newTestStore(t, schema.ModeAuthoritative)
	local := newTestStore(t, schema.ModeLocal)
	b := New(auth.Repositories(storage.ModeRemoteAuthoritative), local.Repositories(storage.ModeLocalShadow))

	ctx := context.Background()
	platformID, projectID, err := b.EnsureAuthoritative(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if platformID == 0 || projectID == 0 {
		t.Fatal("expected non-zero ids")
	}

	platformID2, projectID2, err := b.EnsureAuthoritative(ctx)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if platformID2 != platformID || projectID2 != projectID {
		t.Error("expected EnsureAuthoritative to be idempotent across calls")
	}

	platforms, err := auth.Repositories(storage.ModeRemoteAuthoritative).Platforms.List(ctx)
	if err != nil {
		t.Fatalf("listing platforms: %v", err)
	}
	count := 0
	for _, p := range platforms {
		if p.Name == OfflineStorageName {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one Offline Storage platform, got %d", count)
	}
}

func TestEnsureLocalMirror_MatchesAuthoritativeName(t *testing.T) {
	auth := newTestStore(t, schema.ModeAuthoritative)
	local := newTestStore(t, schema.ModeLocal)
	b := New(auth.Repositories(storage.ModeRemoteAuthoritative), local.Repositories(storage.ModeLocalShadow))

	ctx := context.Background()
	if _, _, err := b.EnsureAuthoritative(ctx); err != nil {
		t.Fatalf("ensure authoritative: %v", err)
	}
	mirror, err := b.EnsureLocalMirror(ctx)
	if err != nil {
		t.Fatalf("ensure local mirror: %v", err)
	}
	if mirror.Name != OfflineStorageName {
		t.Errorf("expected mirror named %q, got %q", OfflineStorageName, mirror.Name)
	}

	mirror2, err := b.EnsureLocalMirror(ctx)
	if err != nil {
		t.Fatalf("second ensure local mirror: %v", err)
	}
	if mirror2.ID != mirror.ID {
		t.Error("expected EnsureLocalMirror to be idempotent across calls")
	}
}

func TestTranslateProjectID_MapsAuthoritativeToLocalMirror(t *testing.T) {
	auth := newTestStore(t, schema.ModeAuthoritative)
	local := newTestStore(t, schema.ModeLocal)
	b := New(auth.Repositories(storage.ModeRemoteAuthoritative), local.Repositories(storage.ModeLocalShadow))

	ctx := context.Background()
	_, authProjectID, err := b.EnsureAuthoritative(ctx)
	if err != nil {
		t.Fatalf("ensure authoritative: %v", err)
	}
	mirror, err := b.EnsureLocalMirror(ctx)
	if err != nil {
		t.Fatalf("ensure local mirror: %v", err)
	}

	translated, err := b.TranslateProjectID(ctx, authProjectID)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if translated != mirror.ID {
		t.Errorf("expected translation to local mirror id %d, got %d", mirror.ID, translated)
	}

	passthrough, err := b.TranslateProjectID(ctx, 999)
	if err != nil {
		t.Fatalf("translate passthrough: %v", err)
	}
	if passthrough != 999 {
		t.Errorf("expected an unrelated id to pass through unchanged, got %d", passthrough)
	}
}

func TestHidden(t *testing.T) {
	if !Hidden("owner-a", "viewer-b") {
		t.Error("expected record owned by someone else to be hidden")
	}
	if Hidden("owner-a", "owner-a") {
		t.Error("expected a record to be visible to its own owner")
	}
}
