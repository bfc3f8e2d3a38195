package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/embedded"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/types"
)

// fakeProvider is a deterministic stand-in for embedding.Provider: each
// text hashes to a fixed-dimension vector so tests never touch a real
// ONNX model or network endpoint.
type fakeProvider struct {
	dim int
}

func (p *fakeProvider) Dimension() int { return p.dim }
func (p *fakeProvider) ID() string     { return "fake:test" }

func (p *fakeProvider) Encode(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dim)
		if t != "" {
			for j, b := range []byte(t) {
				v[j%p.dim] += float32(b)
			}
		}
		out[i] = v
	}
	return out, nil
}

func newTestIndexer(t *testing.T) (*Indexer, *storage.Repositories) {
	t.Helper()
	dir := t.TempDir()
	store, err := embedded.Open(context.Background(), filepath.Join(dir, "db.sqlite"), schema.ModeAuthoritative)
	if err != nil {
		t.Fatalf("embedded.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Repositories(storage.ModeDegraded).Close() })

	cfg := config.Default()
	cfg.IndexArtefactDir = filepath.Join(dir, "artefacts")
	cfg.IndexBuildParallelism = 1

	ix := New(cfg, &fakeProvider{dim: 8}, nil)
	return ix, store.Repositories(storage.ModeDegraded)
}

func mustCreateTM(t *testing.T, repos *storage.Repositories) *types.TM {
	t.Helper()
	tm, err := repos.TMs.Create(context.Background(), &types.TM{Name: "t1", SourceLang: "en", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("creating TM: %v", err)
	}
	return tm
}

func TestBuild_ProducesReadyTMAndQueryableArtefacts(t *testing.T) {
	ix, repos := newTestIndexer(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos)

	entries := []*types.TMEntry{
		{TMID: tm.ID, Source: "Hello, world.", Target: "Bonjour le monde."},
		{TMID: tm.ID, Source: "Good morning.\nHow are you?", Target: "Bonjour.\nComment ça va?"},
	}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}

	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := repos.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.TMReady {
		t.Fatalf("expected status ready, got %s", got.Status)
	}
	if got.IndexedAt == nil {
		t.Fatal("expected IndexedAt to be stamped")
	}

	a, err := ix.Artefacts(repos, tm.ID)
	if err != nil {
		t.Fatalf("Artefacts: %v", err)
	}
	if a.Meta.EntryCount != 2 {
		t.Fatalf("expected 2 entries indexed, got %d", a.Meta.EntryCount)
	}
	if len(a.WholeMapping) != 2 {
		t.Fatalf("expected 2 whole_mapping rows, got %d", len(a.WholeMapping))
	}
	if len(a.LineMapping) != 3 {
		t.Fatalf("expected 3 line_mapping rows (1 + 2), got %d", len(a.LineMapping))
	}

	hit, ok := a.WholeHash.Lookup(hashText(t, "Hello, world."))
	if !ok || hit.Target != "Bonjour le monde." {
		t.Fatalf("expected exact hash hit for first entry, got %+v, ok=%v", hit, ok)
	}
}

func TestBuild_SkipsEmptySourceEntries(t *testing.T) {
	ix, repos := newTestIndexer(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos)

	entries := []*types.TMEntry{
		{TMID: tm.ID, Source: "", Target: ""},
		{TMID: tm.ID, Source: "real entry", Target: "vraie entrée"},
	}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}
	a, err := ix.Artefacts(repos, tm.ID)
	if err != nil {
		t.Fatalf("Artefacts: %v", err)
	}
	if a.Meta.EntryCount != 1 {
		t.Fatalf("expected empty-source entry to be skipped, got entry count %d", a.Meta.EntryCount)
	}
}

func TestIncrementalAdd_AppendsWithoutFullRebuildSemanticsChanging(t *testing.T) {
	ix, repos := newTestIndexer(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos)

	first := []*types.TMEntry{{TMID: tm.ID, Source: "first", Target: "premier"}}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, first); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}

	second := []*types.TMEntry{{TMID: tm.ID, Source: "second", Target: "deuxième"}}
	added, err := repos.TMEntries.BulkAdd(ctx, tm.ID, second)
	if err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.IncrementalAdd(ctx, repos, tm.ID, added); err != nil {
		t.Fatalf("IncrementalAdd: %v", err)
	}

	a, err := ix.Artefacts(repos, tm.ID)
	if err != nil {
		t.Fatalf("Artefacts: %v", err)
	}
	if a.Meta.EntryCount != 2 {
		t.Fatalf("expected 2 entries after incremental add, got %d", a.Meta.EntryCount)
	}
	if _, ok := a.WholeHash.Lookup(hashText(t, "second")); !ok {
		t.Fatal("expected the incrementally added entry to be hash-lookupable")
	}
	if _, ok := a.WholeHash.Lookup(hashText(t, "first")); !ok {
		t.Fatal("expected the original entry to survive the incremental add")
	}
}

func TestIncrementalAdd_FallsBackToFullBuildWhenNeverBuilt(t *testing.T) {
	ix, repos := newTestIndexer(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos)

	entries, err := repos.TMEntries.BulkAdd(ctx, tm.ID, []*types.TMEntry{{TMID: tm.ID, Source: "x", Target: "y"}})
	if err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.IncrementalAdd(ctx, repos, tm.ID, entries); err != nil {
		t.Fatalf("IncrementalAdd: %v", err)
	}
	a, err := ix.Artefacts(repos, tm.ID)
	if err != nil {
		t.Fatalf("Artefacts: %v", err)
	}
	if a.Meta.EntryCount != 1 {
		t.Fatalf("expected fallback full build to index 1 entry, got %d", a.Meta.EntryCount)
	}
}

func TestProviderMismatch_FlagsStaleArtefacts(t *testing.T) {
	ix, repos := newTestIndexer(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos)
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, []*types.TMEntry{{TMID: tm.ID, Source: "x", Target: "y"}}); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ix.provider = &fakeProvider{dim: 16} // simulate a provider swap mid-process
	if _, err := ix.Artefacts(repos, tm.ID); err == nil {
		t.Fatal("expected a dimension mismatch to surface as an error")
	}
	if len(ix.jobs) != 1 {
		t.Fatalf("expected the mismatch to enqueue exactly one rebuild job, queue has %d", len(ix.jobs))
	}
	job := <-ix.jobs
	if job.Kind != JobFullBuild || job.TMID != tm.ID {
		t.Fatalf("expected a full build job for tm %d, got %+v", tm.ID, job)
	}
}

func TestTombstoneRatio(t *testing.T) {
	a := &Artefacts{WholeMapping: []MappingRow{{Tombstoned: true}, {Tombstoned: false}, {Tombstoned: false}, {Tombstoned: false}}}
	if got := TombstoneRatio(a); got != 0.25 {
		t.Fatalf("expected ratio 0.25, got %v", got)
	}
}

func hashText(t *testing.T, s string) [32]byte {
	t.Helper()
	return hashindex.HashText(s)
}
