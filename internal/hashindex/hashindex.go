// Package hashindex implements C7: the exact-match lookup tables spec.md
// §4.1 names whole_hash_lookup and line_hash_lookup. Each table is an
// in-memory map keyed by SHA-256 of the source text, persisted as JSONL
// (internal/jsonl) to hash/whole.lookup and hash/line.lookup. A plain
// Go map gives O(1) exact lookup without pulling in a third-party
// embedded key-value store for what is, per TM, a few thousand 32-byte
// keys that comfortably fit in memory.
package hashindex

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/neilvibe/tm-core/internal/jsonl"
)

// HashText computes the lookup key for a source string, shared by the
// whole-string and per-line tables so indexer and cascade hash text the
// same way.
func HashText(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

// WholeHit is one row of whole_hash_lookup: SHA-256(source) -> (entry
// id, target).
type WholeHit struct {
	EntryID int64
	Target  string
}

// wholeRecord is WholeHit's on-disk JSONL shape — [32]byte marshals
// poorly as JSON (a 32-element number array), so the hash travels as
// hex on disk and as a map key in memory.
type wholeRecord struct {
	Hash    string `json:"hash"`
	EntryID int64  `json:"entry_id"`
	Target  string `json:"target"`
}

// WholeIndex is whole_hash_lookup: exact match on the full source string.
type WholeIndex struct {
	mu    sync.RWMutex
	table map[[32]byte]WholeHit
}

// NewWholeIndex returns an empty WholeIndex.
func NewWholeIndex() *WholeIndex {
	return &WholeIndex{table: make(map[[32]byte]WholeHit)}
}

// Put inserts or overwrites the entry for hash, used by both the full
// build and the incremental-insert path.
func (idx *WholeIndex) Put(hash [32]byte, hit WholeHit) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.table[hash] = hit
}

// Lookup is tier 1 of the cascade: an exact hit on the full source
// string's hash.
func (idx *WholeIndex) Lookup(hash [32]byte) (WholeHit, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hit, ok := idx.table[hash]
	return hit, ok
}

// Delete removes hash's entry, used when compaction drops a tombstoned
// entry from the live table.
func (idx *WholeIndex) Delete(hash [32]byte) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.table, hash)
}

// Len reports the number of entries currently indexed.
func (idx *WholeIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.table)
}

// Snapshot rewrites path to hold exactly this index's current contents,
// for the full-build and compaction protocols. Callers performing the
// directory-swap write this to a sibling path and rename on success.
func (idx *WholeIndex) Snapshot(path string) error {
	idx.mu.RLock()
	records := make([]wholeRecord, 0, len(idx.table))
	for hash, hit := range idx.table {
		records = append(records, wholeRecord{Hash: fmt.Sprintf("%x", hash), EntryID: hit.EntryID, Target: hit.Target})
	}
	idx.mu.RUnlock()
	return jsonl.WriteFile(path, records)
}

// AppendToFile appends newly-put entries to path without rewriting the
// whole file. The indexer's incremental path does not call it; it
// rewrites the file through Snapshot.
func (idx *WholeIndex) AppendToFile(path string, hashes [][32]byte) error {
	idx.mu.RLock()
	records := make([]wholeRecord, 0, len(hashes))
	for _, hash := range hashes {
		hit, ok := idx.table[hash]
		if !ok {
			continue
		}
		records = append(records, wholeRecord{Hash: fmt.Sprintf("%x", hash), EntryID: hit.EntryID, Target: hit.Target})
	}
	idx.mu.RUnlock()
	return jsonl.AppendFile(path, records)
}

// LoadWholeIndex rebuilds a WholeIndex from a JSONL file previously
// written by Snapshot/AppendToFile. A missing file yields an empty
// index, matching jsonl.ReadFile's not-yet-built contract.
func LoadWholeIndex(path string) (*WholeIndex, error) {
	records, err := jsonl.ReadFile[wholeRecord](path)
	if err != nil {
		return nil, fmt.Errorf("hashindex: loading %s: %w", path, err)
	}
	idx := NewWholeIndex()
	for _, rec := range records {
		hash, err := decodeHash(rec.Hash)
		if err != nil {
			return nil, fmt.Errorf("hashindex: %s: %w", path, err)
		}
		idx.table[hash] = WholeHit{EntryID: rec.EntryID, Target: rec.Target}
	}
	return idx, nil
}

// LineHit is one row of line_hash_lookup: SHA-256(source_line) ->
// (entry id, line ordinal, target line).
type LineHit struct {
	EntryID     int64
	LineOrdinal int
	TargetLine  string
}

type lineRecord struct {
	Hash        string `json:"hash"`
	EntryID     int64  `json:"entry_id"`
	LineOrdinal int    `json:"line_ordinal"`
	TargetLine  string `json:"target_line"`
}

// LineIndex is line_hash_lookup. Unlike WholeIndex, a single hash can
// legitimately map to more than one hit — the same line of text can
// recur across many entries — so each key holds a slice.
type LineIndex struct {
	mu    sync.RWMutex
	table map[[32]byte][]LineHit
}

// NewLineIndex returns an empty LineIndex.
func NewLineIndex() *LineIndex {
	return &LineIndex{table: make(map[[32]byte][]LineHit)}
}

// Put appends hit to hash's bucket.
func (idx *LineIndex) Put(hash [32]byte, hit LineHit) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.table[hash] = append(idx.table[hash], hit)
}

// Lookup is tier 3 of the cascade: exact per-line hits to stitch
// together when the full-string match fails.
func (idx *LineIndex) Lookup(hash [32]byte) ([]LineHit, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	hits, ok := idx.table[hash]
	return hits, ok
}

// DeleteEntry removes every hit belonging to entryID, used when
// compaction drops a tombstoned entry's lines from the live table.
func (idx *LineIndex) DeleteEntry(entryID int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for hash, hits := range idx.table {
		kept := hits[:0]
		for _, h := range hits {
			if h.EntryID != entryID {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(idx.table, hash)
		} else {
			idx.table[hash] = kept
		}
	}
}

// Len reports the total number of line hits currently indexed.
func (idx *LineIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, hits := range idx.table {
		n += len(hits)
	}
	return n
}

// Snapshot rewrites path with this index's current contents.
func (idx *LineIndex) Snapshot(path string) error {
	idx.mu.RLock()
	var records []lineRecord
	for hash, hits := range idx.table {
		for _, h := range hits {
			records = append(records, lineRecord{
				Hash: fmt.Sprintf("%x", hash), EntryID: h.EntryID,
				LineOrdinal: h.LineOrdinal, TargetLine: h.TargetLine,
			})
		}
	}
	idx.mu.RUnlock()
	return jsonl.WriteFile(path, records)
}

// AppendToFile appends the hits belonging to hashes without rewriting
// the whole file.
func (idx *LineIndex) AppendToFile(path string, hashes [][32]byte) error {
	idx.mu.RLock()
	var records []lineRecord
	for _, hash := range hashes {
		for _, h := range idx.table[hash] {
			records = append(records, lineRecord{
				Hash: fmt.Sprintf("%x", hash), EntryID: h.EntryID,
				LineOrdinal: h.LineOrdinal, TargetLine: h.TargetLine,
			})
		}
	}
	idx.mu.RUnlock()
	return jsonl.AppendFile(path, records)
}

// LoadLineIndex rebuilds a LineIndex from a JSONL file previously
// written by Snapshot/AppendToFile.
func LoadLineIndex(path string) (*LineIndex, error) {
	records, err := jsonl.ReadFile[lineRecord](path)
	if err != nil {
		return nil, fmt.Errorf("hashindex: loading %s: %w", path, err)
	}
	idx := NewLineIndex()
	for _, rec := range records {
		hash, err := decodeHash(rec.Hash)
		if err != nil {
			return nil, fmt.Errorf("hashindex: %s: %w", path, err)
		}
		idx.table[hash] = append(idx.table[hash], LineHit{
			EntryID: rec.EntryID, LineOrdinal: rec.LineOrdinal, TargetLine: rec.TargetLine,
		})
	}
	return idx, nil
}

func decodeHash(hexStr string) ([32]byte, error) {
	var hash [32]byte
	decoded, err := hex.DecodeString(hexStr)
	if err != nil || len(decoded) != len(hash) {
		return hash, fmt.Errorf("decoding hash %q: %w", hexStr, err)
	}
	copy(hash[:], decoded)
	return hash, nil
}

// EnsureDir creates the hash/ directory under a TM's artefact root if
// it does not already exist.
func EnsureDir(tmDir string) (string, error) {
	dir := filepath.Join(tmDir, "hash")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("hashindex: creating %s: %w", dir, err)
	}
	return dir, nil
}
