package embedded

import (
	"context"
	"testing"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir()+"/test.db", schema.ModeAuthoritative)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.db.Close() })
	return s
}

func TestPlatformProjectFolderHierarchy(t *testing.T) {
	s := openTestStore(t)
	repos := s.Repositories(storage.ModeDegraded)
	ctx := context.Background()

	platform, err := repos.Platforms.Create(ctx, &types.Platform{Name: "acme", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("create platform: %v", err)
	}
	project, err := repos.Projects.Create(ctx, &types.Project{Name: "site", PlatformID: &platform.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	folder, err := repos.Folders.Create(ctx, &types.Folder{Name: "docs", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}

	folders, err := repos.Folders.List(ctx, types.FolderFilter{ProjectID: &project.ID})
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != folder.ID {
		t.Fatalf("expected exactly the created folder, got %+v", folders)
	}
}

func TestPlatformDeleteCreatesTrashEntryAndRestoreClearsIt(t *testing.T) {
	s := openTestStore(t)
	repos := s.Repositories(storage.ModeDegraded)
	ctx := context.Background()

	platform, err := repos.Platforms.Create(ctx, &types.Platform{Name: "acme", OwnerID: "alice"})
	if err != nil {
		t.Fatalf("create platform: %v", err)
	}

	if err := repos.Platforms.Delete(ctx, platform.ID, "alice"); err != nil {
		t.Fatalf("delete platform: %v", err)
	}

	entries, err := repos.Trash.List(ctx)
	if err != nil {
		t.Fatalf("list trash: %v", err)
	}
	if len(entries) != 1 || entries[0].EntityKind != types.TrashPlatform || entries[0].EntityID != platform.ID {
		t.Fatalf("expected one platform trash entry, got %+v", entries)
	}

	platforms, err := repos.Platforms.List(ctx)
	if err != nil {
		t.Fatalf("list platforms: %v", err)
	}
	if len(platforms) != 0 {
		t.Fatalf("expected the soft-deleted platform to be hidden from List, got %+v", platforms)
	}

	if err := repos.Trash.Restore(ctx, entries[0].ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := repos.Platforms.Get(ctx, platform.ID)
	if err != nil {
		t.Fatalf("get restored platform: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Fatal("expected restored platform to have no deleted_at tombstone")
	}
}

func TestTMEntryBulkAddAndSearchHash(t *testing.T) {
	s := openTestStore(t)
	repos := s.Repositories(storage.ModeDegraded)
	ctx := context.Background()

	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "greetings", SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}

	added, err := repos.TMEntries.BulkAdd(ctx, tm.ID, []*types.TMEntry{
		{TMID: tm.ID, Source: "hello", Target: "bonjour"},
		{TMID: tm.ID, Source: "goodbye", Target: "au revoir"},
	})
	if err != nil {
		t.Fatalf("bulk add: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(added))
	}

	refreshed, err := repos.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("get tm: %v", err)
	}
	if refreshed.EntryCount != 2 {
		t.Fatalf("expected entry_count to be maintained at 2, got %d", refreshed.EntryCount)
	}

	hit, err := repos.TMEntries.SearchHash(ctx, tm.ID, added[0].SourceHash)
	if err != nil {
		t.Fatalf("search hash: %v", err)
	}
	if hit == nil || hit.ID != added[0].ID {
		t.Fatalf("expected SearchHash to find the bulk-added entry, got %+v", hit)
	}
}

func TestAssignmentCreateListAndRevoke(t *testing.T) {
	s := openTestStore(t)
	repos := s.Repositories(storage.ModeDegraded)
	ctx := context.Background()

	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "tm1", SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}
	project, err := repos.Projects.Create(ctx, &types.Project{Name: "p1"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	a, err := repos.Assignments.Create(ctx, &types.Assignment{
		TMID: tm.ID, ProjectID: &project.ID, Active: true, AssignerID: "alice",
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	active := true
	assignments, err := repos.Assignments.List(ctx, types.AssignmentFilter{ProjectID: &project.ID, ActiveOnly: active})
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	if len(assignments) != 1 || assignments[0].ID != a.ID {
		t.Fatalf("expected the created assignment, got %+v", assignments)
	}

	if err := repos.Assignments.Revoke(ctx, a.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	assignments, err = repos.Assignments.List(ctx, types.AssignmentFilter{ProjectID: &project.ID, ActiveOnly: true})
	if err != nil {
		t.Fatalf("list assignments after revoke: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("expected no active assignments after revoke, got %+v", assignments)
	}
}

func TestDeactivateAndReactivateForScope(t *testing.T) {
	s := openTestStore(t)
	repos := s.Repositories(storage.ModeDegraded)
	ctx := context.Background()

	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "tm1", SourceLang: "en", TargetLang: "es"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}
	folder, err := repos.Folders.Create(ctx, &types.Folder{Name: "f1", ProjectID: 0})
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	a, err := repos.Assignments.Create(ctx, &types.Assignment{
		TMID: tm.ID, FolderID: &folder.ID, Active: true, AssignerID: "alice",
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	if err := repos.Assignments.DeactivateForScope(ctx, types.ScopeFolder, folder.ID); err != nil {
		t.Fatalf("deactivate for scope: %v", err)
	}
	got, err := repos.Assignments.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got.Active {
		t.Fatal("expected assignment to be inactive after DeactivateForScope")
	}

	if err := repos.Assignments.ReactivateForScope(ctx, types.ScopeFolder, folder.ID); err != nil {
		t.Fatalf("reactivate for scope: %v", err)
	}
	got, err = repos.Assignments.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if !got.Active {
		t.Fatal("expected assignment to be active again after ReactivateForScope")
	}
}
