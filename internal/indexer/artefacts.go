package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/jsonl"
	"github.com/neilvibe/tm-core/internal/vectorindex"
)

// ErrArtefactsMissing distinguishes "this TM has never been built" from
// a corrupt artefact directory: cascade's degraded-read path treats the
// former as routine (fall back to hash tiers, no TM state change) and
// the latter as the quarantine-and-error failure mode of spec.md §4.4.
var ErrArtefactsMissing = errors.New("indexer: tm has no built artefacts")

// Meta is the per-TM artefact metadata spec.md §4.3 names: provider id,
// dimension, entry count, construction timestamp, schema version.
type Meta struct {
	ProviderID     string    `json:"provider_id"`
	Dimension      int       `json:"dimension"`
	EntryCount     int       `json:"entry_count"`
	BuildTimestamp time.Time `json:"build_timestamp"`
	SchemaVersion  int       `json:"schema_version"`
}

const currentSchemaVersion = 1

// MappingRow is one row of whole_mapping: for each vector row, the
// entry id, source, target, and enough bookkeeping (UpdatedAt for
// cascade's tie-break rule, Tombstoned for the compaction protocol) to
// answer a cascade query without a repository round-trip.
type MappingRow struct {
	EntryID    int64     `json:"entry_id"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	UpdatedAt  time.Time `json:"updated_at"`
	Tombstoned bool      `json:"tombstoned"`
}

// LineMappingRow is one row of line_mapping.
type LineMappingRow struct {
	EntryID     int64     `json:"entry_id"`
	LineOrdinal int       `json:"line_ordinal"`
	Source      string    `json:"source"`
	Target      string    `json:"target"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tombstoned  bool      `json:"tombstoned"`
}

// Artefacts is everything the cascade matcher needs to query one TM,
// loaded into memory from the directory a build last swapped into place.
type Artefacts struct {
	Meta         Meta
	WholeMapping []MappingRow
	LineMapping  []LineMappingRow
	WholeIndex   *vectorindex.Index
	LineIndex    *vectorindex.Index
	WholeHash    *hashindex.WholeIndex
	LineHash     *hashindex.LineIndex
}

// tmDir is the artefact root for one TM: <root>/<tmID>.
func tmDir(root string, tmID int64) string {
	return filepath.Join(root, fmt.Sprintf("%d", tmID))
}

func metaPath(dir string) string          { return filepath.Join(dir, "meta.json") }
func wholeMappingPath(dir string) string  { return filepath.Join(dir, "embeddings", "whole_mapping") }
func lineMappingPath(dir string) string   { return filepath.Join(dir, "embeddings", "line_mapping") }
func wholeIndexPath(dir string) string    { return filepath.Join(dir, "ann", "whole.index") }
func lineIndexPath(dir string) string     { return filepath.Join(dir, "ann", "line.index") }
func wholeHashPath(dir string) string     { return filepath.Join(dir, "hash", "whole.lookup") }
func lineHashPath(dir string) string      { return filepath.Join(dir, "hash", "line.lookup") }

func loadMeta(dir string) (Meta, error) {
	data, err := os.ReadFile(metaPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("indexer: %s: %w", dir, ErrArtefactsMissing)
		}
		return Meta{}, fmt.Errorf("indexer: reading meta.json: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("indexer: parsing meta.json: %w", err)
	}
	return m, nil
}

func saveMeta(dir string, m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("indexer: marshaling meta.json: %w", err)
	}
	if err := os.WriteFile(metaPath(dir), data, 0o644); err != nil {
		return fmt.Errorf("indexer: writing meta.json: %w", err)
	}
	return nil
}

// loadArtefacts reads a complete artefact set from dir into the in-memory
// Artefacts struct cascade consults. It is both the cache's miss path and
// loadForTM's read.
func loadArtefacts(dir string) (*Artefacts, error) {
	meta, err := loadMeta(dir)
	if err != nil {
		return nil, err
	}
	wholeMapping, err := jsonl.ReadFile[MappingRow](wholeMappingPath(dir))
	if err != nil {
		return nil, fmt.Errorf("indexer: reading whole_mapping: %w", err)
	}
	lineMapping, err := jsonl.ReadFile[LineMappingRow](lineMappingPath(dir))
	if err != nil {
		return nil, fmt.Errorf("indexer: reading line_mapping: %w", err)
	}

	var wholeIdx, lineIdx *vectorindex.Index
	if f, err := os.Open(wholeIndexPath(dir)); err == nil {
		wholeIdx, err = vectorindex.Load(f, meta.Dimension)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("indexer: loading whole.index: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("indexer: opening whole.index: %w", err)
	}
	if f, err := os.Open(lineIndexPath(dir)); err == nil {
		lineIdx, err = vectorindex.Load(f, meta.Dimension)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("indexer: loading line.index: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("indexer: opening line.index: %w", err)
	}

	wholeHash, err := hashindex.LoadWholeIndex(wholeHashPath(dir))
	if err != nil {
		return nil, fmt.Errorf("indexer: loading whole.lookup: %w", err)
	}
	lineHash, err := hashindex.LoadLineIndex(lineHashPath(dir))
	if err != nil {
		return nil, fmt.Errorf("indexer: loading line.lookup: %w", err)
	}

	return &Artefacts{
		Meta:         meta,
		WholeMapping: wholeMapping,
		LineMapping:  lineMapping,
		WholeIndex:   wholeIdx,
		LineIndex:    lineIdx,
		WholeHash:    wholeHash,
		LineHash:     lineHash,
	}, nil
}
