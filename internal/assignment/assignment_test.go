package assignment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/embedded"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/types"
)

func newRepos(t *testing.T) *storage.Repositories {
	t.Helper()
	dir := t.TempDir()
	store, err := embedded.Open(context.Background(), filepath.Join(dir, "db.sqlite"), schema.ModeAuthoritative)
	if err != nil {
		t.Fatalf("embedded.Open: %v", err)
	}
	repos := store.Repositories(storage.ModeDegraded)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

// buildScope creates platform -> project -> parent folder -> child
// folder -> file, returning each id for assignment/override tests.
func buildScope(t *testing.T, repos *storage.Repositories) (platformID, projectID, parentFolderID, childFolderID, fileID int64) {
	t.Helper()
	ctx := context.Background()

	platform, err := repos.Platforms.Create(ctx, &types.Platform{Name: "Acme"})
	if err != nil {
		t.Fatalf("create platform: %v", err)
	}
	project, err := repos.Projects.Create(ctx, &types.Project{Name: "Localization", PlatformID: &platform.ID})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	parent, err := repos.Folders.Create(ctx, &types.Folder{Name: "docs", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("create parent folder: %v", err)
	}
	child, err := repos.Folders.Create(ctx, &types.Folder{Name: "strings", ProjectID: project.ID, ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("create child folder: %v", err)
	}
	file, err := repos.Files.Create(ctx, &types.File{
		Name: "ui.json", OriginalName: "ui.json", ProjectID: project.ID, FolderID: &child.ID,
		SourceLang: "en", TargetLang: "fr",
	}, nil)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	return platform.ID, project.ID, parent.ID, child.ID, file.ID
}

func mustAssign(t *testing.T, repos *storage.Repositories, a *types.Assignment) *types.Assignment {
	t.Helper()
	a.Active = true
	got, err := repos.Assignments.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return got
}

func mustCreateTM(t *testing.T, repos *storage.Repositories, name string) *types.TM {
	t.Helper()
	tm, err := repos.TMs.Create(context.Background(), &types.TM{Name: name, SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}
	return tm
}

func TestResolveForFile_WalksScopeChainMostToLeastSpecific(t *testing.T) {
	repos := newRepos(t)
	platformID, projectID, parentID, childID, fileID := buildScope(t, repos)

	folderTM := mustCreateTM(t, repos, "folder-tm")
	projectTM := mustCreateTM(t, repos, "project-tm")
	platformTM := mustCreateTM(t, repos, "platform-tm")
	ancestorTM := mustCreateTM(t, repos, "ancestor-tm")

	mustAssign(t, repos, &types.Assignment{TMID: folderTM.ID, FolderID: &childID, Priority: 1, AssignedAt: time.Unix(4, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: ancestorTM.ID, FolderID: &parentID, Priority: 1, AssignedAt: time.Unix(3, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: projectTM.ID, ProjectID: &projectID, Priority: 1, AssignedAt: time.Unix(2, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: platformTM.ID, PlatformID: &platformID, Priority: 1, AssignedAt: time.Unix(1, 0)})

	r := New()
	resolved, err := r.ResolveForFile(context.Background(), repos, fileID)
	if err != nil {
		t.Fatalf("ResolveForFile: %v", err)
	}

	var gotTMIDs []int64
	for _, a := range resolved {
		gotTMIDs = append(gotTMIDs, a.TMID)
	}
	want := []int64{folderTM.ID, ancestorTM.ID, projectTM.ID, platformTM.ID}
	if len(gotTMIDs) != len(want) {
		t.Fatalf("expected %d TMs, got %d: %v", len(want), len(gotTMIDs), gotTMIDs)
	}
	for i := range want {
		if gotTMIDs[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, gotTMIDs)
		}
	}
}

func TestResolveForFile_MoreSpecificShadowsBroaderForSameTM(t *testing.T) {
	repos := newRepos(t)
	platformID, _, _, childID, fileID := buildScope(t, repos)

	sharedTM := mustCreateTM(t, repos, "shared-tm")
	mustAssign(t, repos, &types.Assignment{TMID: sharedTM.ID, FolderID: &childID, Priority: 1, AssignedAt: time.Unix(2, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: sharedTM.ID, PlatformID: &platformID, Priority: 1, AssignedAt: time.Unix(1, 0)})

	r := New()
	resolved, err := r.ResolveForFile(context.Background(), repos, fileID)
	if err != nil {
		t.Fatalf("ResolveForFile: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected the platform-level duplicate to be shadowed, got %d results", len(resolved))
	}
	if resolved[0].FolderID == nil || *resolved[0].FolderID != childID {
		t.Fatalf("expected the surviving assignment to be the folder-level one, got %+v", resolved[0])
	}
}

func TestResolveForFile_WithinLevelOrdersByPriorityThenRecency(t *testing.T) {
	repos := newRepos(t)
	_, _, _, childID, fileID := buildScope(t, repos)

	low := mustCreateTM(t, repos, "low-priority")
	highOlder := mustCreateTM(t, repos, "high-priority-older")
	highNewer := mustCreateTM(t, repos, "high-priority-newer")

	mustAssign(t, repos, &types.Assignment{TMID: low.ID, FolderID: &childID, Priority: 5, AssignedAt: time.Unix(1, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: highOlder.ID, FolderID: &childID, Priority: 1, AssignedAt: time.Unix(1, 0)})
	mustAssign(t, repos, &types.Assignment{TMID: highNewer.ID, FolderID: &childID, Priority: 1, AssignedAt: time.Unix(2, 0)})

	r := New()
	resolved, err := r.ResolveForFile(context.Background(), repos, fileID)
	if err != nil {
		t.Fatalf("ResolveForFile: %v", err)
	}
	if len(resolved) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(resolved))
	}
	want := []int64{highNewer.ID, highOlder.ID, low.ID}
	for i, tmID := range want {
		if resolved[i].TMID != tmID {
			t.Fatalf("expected order %v, got %v (index %d)", want, resolved, i)
		}
	}
}

func TestResolveForFile_DanglingTMReferenceIsSkipped(t *testing.T) {
	repos := newRepos(t)
	_, _, _, childID, fileID := buildScope(t, repos)

	mustAssign(t, repos, &types.Assignment{TMID: 999999, FolderID: &childID, Priority: 1, AssignedAt: time.Unix(1, 0)})

	r := New()
	resolved, err := r.ResolveForFile(context.Background(), repos, fileID)
	if err != nil {
		t.Fatalf("ResolveForFile: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected the dangling TM reference to be skipped, got %+v", resolved)
	}
}
