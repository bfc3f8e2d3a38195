package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neilvibe/tm-core/internal/assignment"
	"github.com/neilvibe/tm-core/internal/cascade"
	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/storage/factory"
	"github.com/neilvibe/tm-core/internal/trash"
	"github.com/neilvibe/tm-core/internal/types"
)

// fakeProvider stands in for the real fastembed/HTTP providers so these
// tests exercise the CLI's wiring, not model inference, mirroring
// internal/trash's own test harness.
type fakeProvider struct{ dim int }

func (p *fakeProvider) Dimension() int { return p.dim }
func (p *fakeProvider) ID() string     { return "fake:tmcore-cmd-test" }

func (p *fakeProvider) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dim)
		for j, b := range []byte(t) {
			v[j%p.dim] += float32(b)
		}
		out[i] = v
	}
	return out, nil
}

// wireForTest populates the package-level globals setup() would, against
// an embedded-only config, so subcommand RunE bodies can be called
// directly without going through cobra's flag parsing or Execute.
func wireForTest(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	cfg = config.Default()
	cfg.BackendMode = config.BackendEmbedded
	cfg.EmbeddedDir = filepath.Join(dir, "embedded")
	cfg.IndexArtefactDir = filepath.Join(dir, "artefacts")
	cfg.IndexBuildParallelism = 1

	provider = &fakeProvider{dim: 8}
	fct = factory.New(cfg, nil)
	idx = indexer.New(cfg, provider, nil)
	matcher = cascade.New(idx, provider, nil)
	resolver = assignment.New()
	orchestrator = trash.New(idx)
	viewerID = "test-viewer"
	offline = false

	t.Cleanup(func() { _ = fct.Close() })
}

func TestTMCreateImportBuildSearch(t *testing.T) {
	wireForTest(t)
	ctx := context.Background()

	repos, err := fct.Resolve(ctx, currentViewer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "greetings", SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}

	entries := []*types.TMEntry{
		{TMID: tm.ID, Source: "hello", Target: "bonjour"},
		{TMID: tm.ID, Source: "goodbye", Target: "au revoir"},
	}
	added, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries)
	if err != nil {
		t.Fatalf("bulk add: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 entries added, got %d", len(added))
	}

	if err := idx.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("build: %v", err)
	}

	tm, err = repos.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("get tm: %v", err)
	}

	hits, err := matcher.Search(ctx, repos, tm, "hello", "", 0.0, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit for an exact match")
	}
}

func TestTMDeleteTrashesAndRestores(t *testing.T) {
	wireForTest(t)
	ctx := context.Background()

	repos, err := fct.Resolve(ctx, currentViewer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "to-trash", SourceLang: "en", TargetLang: "de"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}

	if err := orchestrator.DeleteTM(ctx, repos, tm.ID, viewerID); err != nil {
		t.Fatalf("delete tm: %v", err)
	}

	entries, err := repos.Trash.List(ctx)
	if err != nil {
		t.Fatalf("list trash: %v", err)
	}
	if len(entries) != 1 || entries[0].EntityKind != types.TrashTM {
		t.Fatalf("expected one tm trash entry, got %+v", entries)
	}

	if err := orchestrator.Restore(ctx, repos, entries[0].ID); err != nil {
		t.Fatalf("restore: %v", err)
	}

	restored, err := repos.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("get restored tm: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Fatal("expected restored tm to have no deleted_at tombstone")
	}
}

func TestResolveForFileReflectsScopeAssignment(t *testing.T) {
	wireForTest(t)
	ctx := context.Background()

	repos, err := fct.Resolve(ctx, currentViewer())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	project, err := repos.Projects.Create(ctx, &types.Project{Name: "proj"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	folder, err := repos.Folders.Create(ctx, &types.Folder{Name: "folder", ProjectID: project.ID})
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	file, err := repos.Files.Create(ctx, &types.File{Name: "doc.docx", FolderID: &folder.ID, ProjectID: project.ID}, nil)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	tm, err := repos.TMs.Create(ctx, &types.TM{Name: "scoped", SourceLang: "en", TargetLang: "es"})
	if err != nil {
		t.Fatalf("create tm: %v", err)
	}
	if _, err := repos.Assignments.Create(ctx, &types.Assignment{
		TMID: tm.ID, FolderID: &folder.ID, Active: true, AssignerID: viewerID,
	}); err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	assignments, err := resolver.ResolveForFile(ctx, repos, file.ID)
	if err != nil {
		t.Fatalf("resolve for file: %v", err)
	}
	if len(assignments) != 1 || assignments[0].TMID != tm.ID {
		t.Fatalf("expected the folder-scoped tm to resolve, got %+v", assignments)
	}
}
