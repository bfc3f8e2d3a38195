// Package cascade implements C9: given a query source string and a TM,
// run the fixed five-tier lookup of spec.md §4.4 against that TM's C6/C7
// artefacts and return scored, deduplicated, tie-broken matches. Tiers
// descend only as far as needed — the first tier producing hits at or
// above the caller's threshold wins.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neilvibe/tm-core/internal/embedding"
	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/telemetry"
	"github.com/neilvibe/tm-core/internal/types"
)

// stitchedEntryID marks a Hit assembled by joining lines that belong to
// more than one underlying TM entry (tiers 3/4): no single entry id owns
// the composite target, so the hit carries this sentinel instead.
const stitchedEntryID int64 = 0

const defaultWholeTopK = 5

// defaultSimilarityCandidateLimit bounds how many rows a
// storage.SimilarityCapable pushdown pulls up for tier 5's Dice scoring
// pass — a coarse pre-filter width, not the result cap Search applies.
const defaultSimilarityCandidateLimit = 200

// Hit is one cascade match: a candidate entry (or, for tiers 3/4, a
// synthetic stitched match) with the tier and score that produced it.
type Hit struct {
	EntryID   int64
	Source    string
	Target    string
	Score     float64
	Tier      int
	UpdatedAt time.Time // zero when the hit has no single owning entry (stitched tiers 3/4)
}

// ArtefactSource is the subset of *indexer.Indexer the matcher needs.
// Accepting an interface rather than a concrete *indexer.Indexer keeps
// cascade testable against a fake and keeps the dependency direction
// one-way (cascade depends on indexer's artefact shape, not its
// scheduling machinery).
type ArtefactSource interface {
	Artefacts(repos *storage.Repositories, tmID int64) (*indexer.Artefacts, error)
	HashOnly(tmID int64) (*hashindex.WholeIndex, *hashindex.LineIndex, error)
	Quarantine(tmID int64) error
}

// Matcher runs cascade queries against one embedding provider and one
// artefact source. A single Matcher is shared across every TM a process
// serves; per-query state never survives past one Search call.
type Matcher struct {
	artefacts ArtefactSource
	provider  embedding.Provider
	metrics   *telemetry.Metrics
}

// New builds a Matcher. metrics may be nil in tests.
func New(artefacts ArtefactSource, provider embedding.Provider, metrics *telemetry.Metrics) *Matcher {
	return &Matcher{artefacts: artefacts, provider: provider, metrics: metrics}
}

// Search runs the cascade of spec.md §4.4 against tm for query, stopping
// at the first tier producing hits scoring at or above threshold.
// stringID is consulted only when tm.MatchingMode is MatchingStringID; it
// is the caller's row-level external identifier, not derived from query.
// Results are deduplicated by entry id, tie-broken by (score desc,
// updated_at desc, entry id asc), and capped at limit.
func (m *Matcher) Search(ctx context.Context, repos *storage.Repositories, tm *types.TM, query, stringID string, threshold float64, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	a, err := m.artefacts.Artefacts(repos, tm.ID)
	if err != nil {
		return m.searchDegraded(ctx, repos, tm, query, stringID, threshold, limit, err)
	}
	return m.searchFull(ctx, repos, tm, a, query, stringID, threshold, limit)
}

// searchDegraded implements the "missing/corrupt index artefacts"
// failure modes: a load error that is neither a clean "never built" miss
// nor a provider/dimension mismatch (which Artefacts answers by scheduling
// a rebuild) quarantines the directory and flips the TM to error; either way,
// tiers 1/3 still run against whatever hash lookups survive, since those
// do not depend on the ANN graphs or the active embedding provider.
func (m *Matcher) searchDegraded(ctx context.Context, repos *storage.Repositories, tm *types.TM, query, stringID string, threshold float64, limit int, loadErr error) ([]Hit, error) {
	missing := errors.Is(loadErr, indexer.ErrArtefactsMissing)
	mismatch := errs.IsIndexUnavailable(loadErr)
	if !missing && !mismatch {
		// neither "never built" nor "provider changed" — a corrupt
		// artefact directory per spec.md §4.4's second failure mode.
		if err := m.artefacts.Quarantine(tm.ID); err == nil {
			_ = repos.TMs.SetStatus(ctx, tm.ID, types.TMError, nil)
		}
	}

	// A missing on-disk artefact (including "never built yet," the case
	// right after a bulk_add whose background build hasn't run) is not
	// fatal here: wholeHash/lineHash simply stay nil and tier1StringOrHash
	// falls through to its live-DB lookup instead of the on-disk index.
	wholeHash, lineHash, err := m.artefacts.HashOnly(tm.ID)
	if err != nil {
		wholeHash, lineHash = nil, nil
	}

	var hits []Hit
	if tierHit, ok := m.tier1StringOrHash(ctx, repos, tm, query, stringID, wholeHash); ok {
		hits = append(hits, tierHit)
	}
	if len(hits) == 0 {
		if tierHit, ok := tierLineHash(query, lineHash); ok {
			hits = append(hits, tierHit)
		}
	}
	return finalize(hits, threshold, limit), nil
}

func (m *Matcher) searchFull(ctx context.Context, repos *storage.Repositories, tm *types.TM, a *indexer.Artefacts, query, stringID string, threshold float64, limit int) ([]Hit, error) {
	wholeByID := indexWholeMapping(a.WholeMapping)

	// Tier 1 / string-id tier.
	if hit, ok := m.tier1StringOrHash(ctx, repos, tm, query, stringID, a.WholeHash); ok {
		if row, ok := wholeByID[hit.EntryID]; ok {
			hit.UpdatedAt = row.UpdatedAt
		}
		hits := finalize([]Hit{hit}, threshold, limit)
		if len(hits) > 0 {
			return hits, nil
		}
	}

	// Tier 2: ANN over whole_index.
	if a.WholeIndex != nil {
		hits, err := m.tier2WholeANN(ctx, query, a, wholeByID)
		if err != nil {
			return nil, err
		}
		if best := bestScore(hits); best >= threshold && len(hits) > 0 {
			return finalize(hits, threshold, limit), nil
		}
	}

	// Tier 3: per-line exact stitching — skipped entirely in string-id
	// mode, since a StringID is an entry-level attribute with no
	// per-line analogue.
	if tm.MatchingMode != types.MatchingStringID {
		if hit, ok := tierLineHash(query, a.LineHash); ok {
			hits := finalize([]Hit{hit}, threshold, limit)
			if len(hits) > 0 {
				return hits, nil
			}
		}
	}

	// Tier 4: per-line ANN.
	if a.LineIndex != nil {
		if hit, ok, err := m.tier4LineANN(ctx, query, a, threshold); err != nil {
			return nil, err
		} else if ok {
			hits := finalize([]Hit{hit}, threshold, limit)
			if len(hits) > 0 {
				return hits, nil
			}
		}
	}

	// Tier 5: trigram Dice fallback, scored either over a backend-pushed
	// candidate set or the mapping's full source-string list.
	hits := m.tier5(ctx, repos, tm, query, a)
	return finalize(hits, threshold, limit), nil
}

// tier5 runs the cascade's final fallback. When repos.TMEntries backs
// onto a storage.SimilarityCapable backend (the remote/Dolt store, which
// can push a FULLTEXT predicate down to the engine instead of pulling
// every candidate row up for scoring in Go), it narrows the candidate
// set via SearchSimilar first; the embedded backend has no such
// pushdown, so it scores every live row in the artefact's mapping
// directly, as it always has.
func (m *Matcher) tier5(ctx context.Context, repos *storage.Repositories, tm *types.TM, query string, a *indexer.Artefacts) []Hit {
	if capable, ok := repos.TMEntries.(storage.SimilarityCapable); ok {
		candidates, err := capable.SearchSimilar(ctx, tm.ID, query, defaultSimilarityCandidateLimit)
		if err == nil {
			return tier5TrigramEntries(query, candidates)
		}
	}
	return tier5Trigram(query, a.WholeMapping)
}

// tier1StringOrHash runs the exact-match tier: string-id lookup when
// tm.MatchingMode is stringid and a stringID was supplied, otherwise
// SHA-256 exact match against wholeHash. A miss or a nil wholeHash (no
// on-disk artefact built yet, or the query's hash bucket hasn't been
// swept into one) falls through to a live-DB lookup via
// repos.TMEntries.SearchHash/SearchStringID, so an entry bulk_add just
// wrote is still an exact match on the very next search, before the
// background index build that would otherwise be the only way to find
// it — per spec.md §8, tier 1's exact-match guarantee holds immediately,
// not "eventually once indexed."
func (m *Matcher) tier1StringOrHash(ctx context.Context, repos *storage.Repositories, tm *types.TM, query, stringID string, wholeHash *hashindex.WholeIndex) (Hit, bool) {
	if tm.MatchingMode == types.MatchingStringID && stringID != "" {
		entry, err := repos.TMEntries.SearchStringID(ctx, tm.ID, stringID)
		if err == nil && entry != nil && entry.DeletedAt == nil {
			return Hit{EntryID: entry.ID, Source: entry.Source, Target: entry.Target, Score: 1.0, Tier: 1}, true
		}
		return Hit{}, false
	}
	if wholeHash != nil {
		if hit, ok := wholeHash.Lookup(hashindex.HashText(query)); ok {
			return Hit{EntryID: hit.EntryID, Source: query, Target: hit.Target, Score: 1.0, Tier: 1}, true
		}
	}
	entry, err := repos.TMEntries.SearchHash(ctx, tm.ID, hashindex.HashText(query))
	if err != nil || entry == nil || entry.DeletedAt != nil {
		return Hit{}, false
	}
	return Hit{EntryID: entry.ID, Source: entry.Source, Target: entry.Target, Score: 1.0, Tier: 1}, true
}

func (m *Matcher) tier2WholeANN(ctx context.Context, query string, a *indexer.Artefacts, wholeByID map[int64]indexer.MappingRow) ([]Hit, error) {
	vecs, err := m.provider.Encode(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("cascade: encoding query for tier 2: %w", err)
	}
	neighbours, err := a.WholeIndex.Search(vecs[0], defaultWholeTopK)
	if err != nil {
		return nil, fmt.Errorf("cascade: tier 2 ANN search: %w", err)
	}
	var hits []Hit
	for _, n := range neighbours {
		row, ok := wholeByID[n.EntryID]
		if !ok || row.Tombstoned {
			continue
		}
		hits = append(hits, Hit{
			EntryID:   n.EntryID,
			Source:    row.Source,
			Target:    row.Target,
			Score:     1 - float64(n.Distance),
			Tier:      2,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return hits, nil
}

// tier4LineANN embeds each line of query, finds its best line_index
// neighbour, and stitches the per-line targets together. Every line must
// individually clear threshold for the stitched hit to qualify, matching
// tier 2's "best neighbour's similarity >= T" condition applied per line.
func (m *Matcher) tier4LineANN(ctx context.Context, query string, a *indexer.Artefacts, threshold float64) (Hit, bool, error) {
	lines := nonBlankLines(query)
	if len(lines) == 0 {
		return Hit{}, false, nil
	}
	vecs, err := m.provider.Encode(ctx, lines)
	if err != nil {
		return Hit{}, false, fmt.Errorf("cascade: encoding query lines for tier 4: %w", err)
	}

	targets := make([]string, len(lines))
	minScore := 1.0
	for i, vec := range vecs {
		neighbours, err := a.LineIndex.Search(vec, 1)
		if err != nil {
			return Hit{}, false, fmt.Errorf("cascade: tier 4 ANN search: %w", err)
		}
		if len(neighbours) == 0 {
			return Hit{}, false, nil
		}
		best := neighbours[0]
		if best.EntryID < 0 || int(best.EntryID) >= len(a.LineMapping) {
			return Hit{}, false, nil
		}
		row := a.LineMapping[best.EntryID]
		if row.Tombstoned {
			return Hit{}, false, nil
		}
		score := 1 - float64(best.Distance)
		if score < threshold {
			return Hit{}, false, nil
		}
		if score < minScore {
			minScore = score
		}
		targets[i] = row.Target
	}
	return Hit{
		EntryID: stitchedEntryID,
		Source:  query,
		Target:  strings.Join(targets, "\n"),
		Score:   minScore,
		Tier:    4,
	}, true, nil
}

// tierLineHash is the shared tier-3 / degraded-path implementation:
// every non-blank line of query must resolve via an exact line hash for
// the stitched hit to qualify.
func tierLineHash(query string, lineHash *hashindex.LineIndex) (Hit, bool) {
	if lineHash == nil {
		return Hit{}, false
	}
	lines := nonBlankLines(query)
	if len(lines) == 0 {
		return Hit{}, false
	}
	targets := make([]string, len(lines))
	for i, line := range lines {
		lineHits, ok := lineHash.Lookup(hashindex.HashText(line))
		if !ok || len(lineHits) == 0 {
			return Hit{}, false
		}
		targets[i] = lineHits[0].TargetLine
	}
	return Hit{
		EntryID: stitchedEntryID,
		Source:  query,
		Target:  strings.Join(targets, "\n"),
		Score:   1.0,
		Tier:    3,
	}, true
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func indexWholeMapping(rows []indexer.MappingRow) map[int64]indexer.MappingRow {
	m := make(map[int64]indexer.MappingRow, len(rows))
	for _, r := range rows {
		m[r.EntryID] = r
	}
	return m
}

func bestScore(hits []Hit) float64 {
	best := 0.0
	for _, h := range hits {
		if h.Score > best {
			best = h.Score
		}
	}
	return best
}

// finalize applies the threshold filter, de-duplicates by entry id
// (keeping the highest-scoring hit), sorts by the documented tie-break
// (score desc, updated_at desc — folded into score for stitched hits
// which carry no single entry's updated_at — then entry id asc), and
// caps at limit.
func finalize(hits []Hit, threshold float64, limit int) []Hit {
	best := make(map[int64]Hit, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		if prior, ok := best[h.EntryID]; !ok || h.Score > prior.Score {
			best[h.EntryID] = h
		}
	}
	out := make([]Hit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].EntryID < out[j].EntryID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
