package cascade

import (
	"strings"

	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/types"
)

// tier5Trigram is the cascade's final fallback (spec.md §4.4 tier 5):
// a hand-rolled Dice coefficient over character trigrams, run against
// every live whole_mapping row. See DESIGN.md for why this tier stays on
// the standard library instead of a full inverted-index search engine.
func tier5Trigram(query string, rows []indexer.MappingRow) []Hit {
	queryGrams := trigramSet(query)
	if len(queryGrams) == 0 {
		return nil
	}
	var hits []Hit
	for _, row := range rows {
		if row.Tombstoned {
			continue
		}
		score := diceCoefficient(queryGrams, trigramSet(row.Source))
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			EntryID:   row.EntryID,
			Source:    row.Source,
			Target:    row.Target,
			Score:     score,
			Tier:      5,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return hits
}

// tier5TrigramEntries is tier5Trigram's counterpart for a backend that
// already narrowed the candidate set via storage.SimilarityCapable's
// pushed-down predicate, so scoring only runs over the rows the engine
// itself returned instead of the whole mapping. The Dice coefficient
// stays the ranking function either way — the pushdown is a pre-filter,
// not a replacement scorer, per SearchSimilar's own doc comment.
func tier5TrigramEntries(query string, entries []*types.TMEntry) []Hit {
	queryGrams := trigramSet(query)
	if len(queryGrams) == 0 {
		return nil
	}
	var hits []Hit
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		score := diceCoefficient(queryGrams, trigramSet(e.Source))
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{
			EntryID:   e.ID,
			Source:    e.Source,
			Target:    e.Target,
			Score:     score,
			Tier:      5,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return hits
}

// trigramSet lower-cases s and returns the set of its overlapping
// 3-rune windows. Strings shorter than 3 runes are their own single
// "gram" so short queries still participate in scoring instead of
// producing an empty, always-zero-score set.
func trigramSet(s string) map[string]struct{} {
	runes := []rune(strings.ToLower(s))
	set := make(map[string]struct{})
	if len(runes) == 0 {
		return set
	}
	if len(runes) < 3 {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = struct{}{}
	}
	return set
}

// diceCoefficient computes 2|A∩B| / (|A|+|B|) over two trigram sets.
func diceCoefficient(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	common := 0
	small, large := a, b
	if len(large) < len(small) {
		small, large = large, small
	}
	for g := range small {
		if _, ok := large[g]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(a)+len(b))
}
