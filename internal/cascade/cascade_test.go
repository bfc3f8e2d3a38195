package cascade

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/embedded"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/types"
)

// fakeProvider mirrors internal/indexer's test double: deterministic,
// byte-sum hashing into a fixed-dimension vector, so near-identical
// strings land near each other without a real ONNX/HTTP round trip.
type fakeProvider struct{ dim int }

func (p *fakeProvider) Dimension() int { return p.dim }
func (p *fakeProvider) ID() string     { return "fake:cascade-test" }

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

func newHarness(t *testing.T) (*Matcher, *indexer.Indexer, *storage.Repositories) {
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

	provider := &fakeProvider{dim: 16}
	ix := indexer.New(cfg, provider, nil)
	repos := store.Repositories(storage.ModeDegraded)
	m := New(ix, provider, nil)
	return m, ix, repos
}

func mustCreateTM(t *testing.T, repos *storage.Repositories, mode types.MatchingMode) *types.TM {
	t.Helper()
	tm, err := repos.TMs.Create(context.Background(), &types.TM{
		Name: "t", SourceLang: "en", TargetLang: "fr", MatchingMode: mode,
	})
	if err != nil {
		t.Fatalf("creating TM: %v", err)
	}
	return tm
}

func TestSearch_ExactHashHit(t *testing.T) {
	m, ix, repos := newHarness(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos, types.MatchingStandard)

	entries := []*types.TMEntry{{TMID: tm.ID, Source: "Hello, world.", Target: "Bonjour le monde."}}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err := m.Search(ctx, repos, tm, "Hello, world.", "", 0.7, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Tier != 1 || hits[0].Score != 1.0 || hits[0].Target != "Bonjour le monde." {
		t.Fatalf("expected a single tier-1 exact hit, got %+v", hits)
	}
}

func TestTierLineHash_StitchesAcrossEntries(t *testing.T) {
	// Exercised directly against hashindex, rather than through Search,
	// since routing through the full cascade risks the fake test
	// provider's tier-2 ANN incidentally clearing a high threshold first
	// and masking tier 3 — the stitching behavior itself only depends on
	// the line hash table, not on embeddings.
	lineHash := hashindex.NewLineIndex()
	lineHash.Put(hashindex.HashText("A"), hashindex.LineHit{EntryID: 1, LineOrdinal: 0, TargetLine: "alpha"})
	lineHash.Put(hashindex.HashText("C"), hashindex.LineHit{EntryID: 2, LineOrdinal: 0, TargetLine: "gamma"})

	hit, ok := tierLineHash("A\nC", lineHash)
	if !ok {
		t.Fatal("expected every line to resolve via exact hash")
	}
	if hit.Tier != 3 || hit.Score != 1.0 {
		t.Fatalf("expected a perfect tier-3 hit, got %+v", hit)
	}
	if hit.Target != "alpha\ngamma" {
		t.Fatalf("expected stitched target from both entries' lines, got %q", hit.Target)
	}

	if _, ok := tierLineHash("A\nmissing", lineHash); ok {
		t.Fatal("expected a partial match to fail tier 3 entirely")
	}
}

func TestTier5Trigram_ScoresCloseMisspelling(t *testing.T) {
	// Exercised directly against the mapping, rather than through
	// Search, for the same reason as the tier-3 test above: tier 5 only
	// ever runs after tiers 1-4 all miss, and pinning that ordering
	// through the fake test provider's embeddings would make the test
	// fragile without adding coverage of tier 5 itself.
	rows := []indexer.MappingRow{{EntryID: 7, Source: "quick brown fox", Target: "renard brun rapide"}}

	hits := tier5Trigram("quick brwn fox", rows)
	if len(hits) != 1 || hits[0].Tier != 5 || hits[0].EntryID != 7 {
		t.Fatalf("expected one tier-5 hit against the single mapping row, got %+v", hits)
	}
	if hits[0].Score < 0.75 {
		t.Fatalf("expected a close misspelling to score high under Dice trigram overlap, got %v", hits[0].Score)
	}

	noHits := tier5Trigram("completely unrelated text", rows)
	for _, h := range noHits {
		if h.Score >= 0.5 {
			t.Fatalf("expected unrelated text to score low, got %+v", h)
		}
	}
}

func TestSearch_StringIDMode(t *testing.T) {
	m, ix, repos := newHarness(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos, types.MatchingStringID)

	entries := []*types.TMEntry{{TMID: tm.ID, Source: "x", Target: "y", StringID: "row-42"}}
	added, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries)
	if err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	if err := ix.Build(ctx, repos, tm.ID); err != nil {
		t.Fatalf("Build: %v", err)
	}

	hits, err := m.Search(ctx, repos, tm, "x", "row-42", 0.5, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Tier != 1 || hits[0].EntryID != added[0].ID {
		t.Fatalf("expected string-id tier-1 hit for the matching entry, got %+v", hits)
	}
}

func TestSearch_NeverBuiltTMReturnsEmptyWithoutError(t *testing.T) {
	m, _, repos := newHarness(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos, types.MatchingStandard)

	hits, err := m.Search(ctx, repos, tm, "anything", "", 0.5, 10)
	if err != nil {
		t.Fatalf("expected a never-built TM to degrade quietly, got error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits for a never-built TM, got %+v", hits)
	}

	got, err := repos.TMs.Get(ctx, tm.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status == types.TMError {
		t.Fatal("a never-built TM must not be flipped to error by a cascade query")
	}
}

func TestSearch_ExactHashHitImmediatelyAfterBulkAddBeforeBuild(t *testing.T) {
	m, _, repos := newHarness(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos, types.MatchingStandard)

	entries := []*types.TMEntry{{TMID: tm.ID, Source: "Hello, world.", Target: "Bonjour le monde."}}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}
	// Deliberately no ix.Build call: OnBulkInsert's background job has not
	// run, so no on-disk artefact exists yet. The exact-match tier must
	// still find the entry via the live-DB fallback, not wait for a build.

	hits, err := m.Search(ctx, repos, tm, "Hello, world.", "", 0.7, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Tier != 1 || hits[0].Score != 1.0 || hits[0].Target != "Bonjour le monde." {
		t.Fatalf("expected a tier-1 exact hit served from the live DB, got %+v", hits)
	}
}

func TestSearch_StringIDExactHitImmediatelyAfterBulkAddBeforeBuild(t *testing.T) {
	m, _, repos := newHarness(t)
	ctx := context.Background()
	tm := mustCreateTM(t, repos, types.MatchingStringID)

	entries := []*types.TMEntry{{TMID: tm.ID, Source: "Hello, world.", Target: "Bonjour le monde.", StringID: "greeting.hello"}}
	if _, err := repos.TMEntries.BulkAdd(ctx, tm.ID, entries); err != nil {
		t.Fatalf("BulkAdd: %v", err)
	}

	hits, err := m.Search(ctx, repos, tm, "ignored in string-id mode", "greeting.hello", 0.7, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Tier != 1 || hits[0].Target != "Bonjour le monde." {
		t.Fatalf("expected a string-id tier-1 hit served from the live DB, got %+v", hits)
	}
}

// stubSimilarityRepo wraps a real TMEntryRepository and adds
// storage.SimilarityCapable, standing in for the remote/Dolt backend's
// FULLTEXT pushdown without needing a live MySQL server in this test.
type stubSimilarityRepo struct {
	storage.TMEntryRepository
	entries []*types.TMEntry
	calls   int
}

func (s *stubSimilarityRepo) SearchSimilar(_ context.Context, _ int64, _ string, _ int) ([]*types.TMEntry, error) {
	s.calls++
	return s.entries, nil
}

func TestTier5_PrefersSimilarityCapablePushdownOverTrigramScan(t *testing.T) {
	m, _, repos := newHarness(t)
	tm := mustCreateTM(t, repos, types.MatchingStandard)

	stub := &stubSimilarityRepo{
		TMEntryRepository: repos.TMEntries,
		entries:           []*types.TMEntry{{ID: 9, Source: "quick brown fox", Target: "renard brun rapide"}},
	}
	repos.TMEntries = stub

	hits := m.tier5(context.Background(), repos, tm, "quick brwn fox", &indexer.Artefacts{})
	if stub.calls != 1 {
		t.Fatalf("expected tier5 to route through SearchSimilar exactly once, got %d calls", stub.calls)
	}
	if len(hits) != 1 || hits[0].Tier != 5 || hits[0].EntryID != 9 {
		t.Fatalf("expected the pushed-down candidate to score as a tier-5 hit, got %+v", hits)
	}
}

func TestTier5_FallsBackToMappingScanWithoutSimilarityCapable(t *testing.T) {
	m, _, repos := newHarness(t)
	tm := mustCreateTM(t, repos, types.MatchingStandard)

	// repos.TMEntries here is the plain embedded repository, which does
	// not implement storage.SimilarityCapable.
	a := &indexer.Artefacts{WholeMapping: []indexer.MappingRow{{EntryID: 7, Source: "quick brown fox", Target: "renard brun rapide"}}}
	hits := m.tier5(context.Background(), repos, tm, "quick brwn fox", a)
	if len(hits) != 1 || hits[0].Tier != 5 || hits[0].EntryID != 7 {
		t.Fatalf("expected a mapping-scan tier-5 hit, got %+v", hits)
	}
}

func TestSearch_ResultCapAndDedup(t *testing.T) {
	hits := finalize([]Hit{
		{EntryID: 1, Score: 0.9},
		{EntryID: 1, Score: 0.95},
		{EntryID: 2, Score: 0.8},
	}, 0.5, 1)
	if len(hits) != 1 {
		t.Fatalf("expected cap to 1, got %d", len(hits))
	}
	if hits[0].EntryID != 1 || hits[0].Score != 0.95 {
		t.Fatalf("expected the higher-scoring duplicate to win, got %+v", hits[0])
	}
}
