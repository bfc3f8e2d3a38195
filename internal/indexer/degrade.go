package indexer

import (
	"fmt"
	"os"
	"time"

	"github.com/neilvibe/tm-core/internal/hashindex"
)

// HashOnly loads just tmID's hash lookup tables directly from disk,
// bypassing the ANN graphs and the provider/dimension check Artefacts
// enforces. This is the degraded read path spec.md §4.4's cascade
// failure modes call for: "missing index artefacts: fall back to
// tiers 1/3 (hash-only) if lookups exist." Hash lookups never depend on
// the active embedding provider, so they stay usable even when the ANN
// half of an artefact set is stale, absent, or built under a different
// provider.
func (ix *Indexer) HashOnly(tmID int64) (*hashindex.WholeIndex, *hashindex.LineIndex, error) {
	dir := tmDir(ix.artefactRoot, tmID)
	wholeHash, err := hashindex.LoadWholeIndex(wholeHashPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: loading whole.lookup: %w", err)
	}
	lineHash, err := hashindex.LoadLineIndex(lineHashPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: loading line.lookup: %w", err)
	}
	return wholeHash, lineHash, nil
}

// Quarantine renames tmID's artefact directory aside so a corrupt set
// stops being read, per spec.md §4.4's "corrupt artefact: quarantine
// directory" failure mode. It evicts any cached Artefacts itself; the
// caller is responsible for flipping the TM's status to error.
func (ix *Indexer) Quarantine(tmID int64) error {
	ix.cache.Invalidate(tmID)
	dir := tmDir(ix.artefactRoot, tmID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	dest := fmt.Sprintf("%s.quarantined-%d", dir, time.Now().UnixNano())
	if err := os.Rename(dir, dest); err != nil {
		return fmt.Errorf("indexer: quarantining artefact dir for TM %d: %w", tmID, err)
	}
	return nil
}
