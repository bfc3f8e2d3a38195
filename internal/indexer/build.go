package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/jsonl"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
	"github.com/neilvibe/tm-core/internal/vectorindex"
)

const embedBatchSize = 64

// buildLine is one non-empty line of an entry's source, kept alongside
// its parent entry and ordinal so the line matrix and line_mapping stay
// aligned through batched embedding.
type buildLine struct {
	entryID     int64
	lineOrdinal int
	source      string
	target      string
	updatedAt   time.Time
}

// Build runs the full-rebuild protocol of spec.md §4.3 for tmID: read
// every entry, embed whole-source and per-line vectors in batches, build
// hash lookups, construct both ANN indexes, and swap the result in
// atomically. Transitions the TM to indexing before starting and to
// ready (stamping IndexedAt) on success, or error with a reason on
// failure.
func (ix *Indexer) Build(ctx context.Context, repos *storage.Repositories, tmID int64) error {
	unlock := ix.lockTM(tmID)
	defer unlock()

	if err := repos.TMs.SetStatus(ctx, tmID, types.TMIndexing, nil); err != nil {
		return errs.Wrap("indexer.build.set_indexing", err)
	}

	start := time.Now()
	if err := ix.runBuild(ctx, repos, tmID); err != nil {
		_ = repos.TMs.SetStatus(ctx, tmID, types.TMError, nil)
		ix.recordBuild(ctx, "full", "error", time.Since(start))
		return err
	}

	now := time.Now()
	if err := repos.TMs.SetStatus(ctx, tmID, types.TMReady, &now); err != nil {
		return errs.Wrap("indexer.build.set_ready", err)
	}
	ix.cache.Invalidate(tmID)
	ix.recordBuild(ctx, "full", "success", time.Since(start))
	return nil
}

func (ix *Indexer) runBuild(ctx context.Context, repos *storage.Repositories, tmID int64) error {
	entries, err := repos.TMEntries.GetAll(ctx, tmID)
	if err != nil {
		return errs.Wrap("indexer.build.get_all", err)
	}

	wholeHash := hashindex.NewWholeIndex()
	lineHash := hashindex.NewLineIndex()
	var wholeMapping []MappingRow
	var lineMapping []LineMappingRow

	live := make([]*types.TMEntry, 0, len(entries))
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		if strings.TrimSpace(e.Source) == "" {
			// invariant: empty-source entries never produce an artefact row
			continue
		}
		live = append(live, e)
	}

	dim := ix.provider.Dimension()
	wholeIdx := vectorindex.New(dim, vectorindex.DefaultProfile)
	lineIdx := vectorindex.New(dim, vectorindex.DefaultProfile)

	for batchStart := 0; batchStart < len(live); batchStart += embedBatchSize {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		batch := live[batchStart:min(batchStart+embedBatchSize, len(live))]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Source
		}
		vectors, err := ix.provider.Encode(ctx, texts)
		if err != nil {
			return errs.Wrap("indexer.build.encode_whole", err)
		}

		ids := make([]int64, len(batch))
		for i, e := range batch {
			ids[i] = e.ID
			wholeHash.Put(hashindex.HashText(e.Source), hashindex.WholeHit{EntryID: e.ID, Target: e.Target})
			wholeMapping = append(wholeMapping, MappingRow{
				EntryID: e.ID, Source: e.Source, Target: e.Target, UpdatedAt: e.UpdatedAt,
			})
		}
		if err := wholeIdx.AppendBatch(ids, vectors); err != nil {
			return errs.Wrap("indexer.build.append_whole", err)
		}
	}

	var lines []buildLine
	for _, e := range live {
		for ordinal, raw := range strings.Split(e.Source, "\n") {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			lines = append(lines, buildLine{entryID: e.ID, lineOrdinal: ordinal, source: raw, target: e.Target, updatedAt: e.UpdatedAt})
		}
	}

	for batchStart := 0; batchStart < len(lines); batchStart += embedBatchSize {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		batch := lines[batchStart:min(batchStart+embedBatchSize, len(lines))]

		texts := make([]string, len(batch))
		for i, l := range batch {
			texts[i] = l.source
		}
		vectors, err := ix.provider.Encode(ctx, texts)
		if err != nil {
			return errs.Wrap("indexer.build.encode_line", err)
		}

		ids := make([]int64, len(batch))
		for i, l := range batch {
			// HNSW keys must be unique per graph; line vectors are keyed
			// by row position within line_mapping rather than entry id,
			// since one entry contributes many lines.
			ids[i] = int64(len(lineMapping))
			lineHash.Put(hashindex.HashText(l.source), hashindex.LineHit{
				EntryID: l.entryID, LineOrdinal: l.lineOrdinal, TargetLine: l.target,
			})
			lineMapping = append(lineMapping, LineMappingRow{
				EntryID: l.entryID, LineOrdinal: l.lineOrdinal, Source: l.source, Target: l.target, UpdatedAt: l.updatedAt,
			})
		}
		if err := lineIdx.AppendBatch(ids, vectors); err != nil {
			return errs.Wrap("indexer.build.append_line", err)
		}
	}

	meta := Meta{
		ProviderID:     ix.provider.ID(),
		Dimension:      dim,
		EntryCount:     len(live),
		BuildTimestamp: time.Now(),
		SchemaVersion:  currentSchemaVersion,
	}
	return ix.writeArtefactSet(tmID, meta, wholeMapping, lineMapping, wholeIdx, lineIdx, wholeHash, lineHash)
}

// writeArtefactSet writes a complete artefact directory to a sibling
// path and renames it into place, satisfying spec.md §4.3 step 5's
// "never observes a torn set" requirement: a concurrent reader either
// sees the old directory in full or the new one in full.
func (ix *Indexer) writeArtefactSet(
	tmID int64, meta Meta,
	wholeMapping []MappingRow, lineMapping []LineMappingRow,
	wholeIdx, lineIdx *vectorindex.Index,
	wholeHash *hashindex.WholeIndex, lineHash *hashindex.LineIndex,
) error {
	finalDir := tmDir(ix.artefactRoot, tmID)
	stagingDir := finalDir + ".staging"

	if err := os.RemoveAll(stagingDir); err != nil {
		return fmt.Errorf("indexer: clearing stale staging dir: %w", err)
	}
	for _, sub := range []string{"embeddings", "ann", "hash"} {
		if err := os.MkdirAll(filepath.Join(stagingDir, sub), 0o755); err != nil {
			return fmt.Errorf("indexer: creating %s: %w", sub, err)
		}
	}

	if err := saveMeta(stagingDir, meta); err != nil {
		return err
	}
	if err := writeMappingFile(wholeMappingPath(stagingDir), wholeMapping); err != nil {
		return err
	}
	if err := writeLineMappingFile(lineMappingPath(stagingDir), lineMapping); err != nil {
		return err
	}
	if err := writeIndexFile(wholeIndexPath(stagingDir), wholeIdx); err != nil {
		return err
	}
	if err := writeIndexFile(lineIndexPath(stagingDir), lineIdx); err != nil {
		return err
	}
	if err := wholeHash.Snapshot(wholeHashPath(stagingDir)); err != nil {
		return fmt.Errorf("indexer: snapshotting whole hash index: %w", err)
	}
	if err := lineHash.Snapshot(lineHashPath(stagingDir)); err != nil {
		return fmt.Errorf("indexer: snapshotting line hash index: %w", err)
	}

	// finalDir must exist as either the old or the new artefact set at
	// every instant, never neither: rename the old directory aside before
	// renaming staging into place, rather than removing it first, so a
	// reader racing this swap always finds a complete directory.
	backupDir := finalDir + ".prev"
	if err := os.RemoveAll(backupDir); err != nil {
		return fmt.Errorf("indexer: clearing stale backup dir: %w", err)
	}
	if _, err := os.Stat(finalDir); err == nil {
		if err := os.Rename(finalDir, backupDir); err != nil {
			return fmt.Errorf("indexer: moving prior artefact dir aside: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("indexer: checking prior artefact dir: %w", err)
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		return fmt.Errorf("indexer: swapping in new artefact dir: %w", err)
	}
	if err := os.RemoveAll(backupDir); err != nil {
		return fmt.Errorf("indexer: cleaning up prior artefact dir: %w", err)
	}
	return nil
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func writeMappingFile(path string, rows []MappingRow) error {
	if err := jsonl.WriteFile(path, rows); err != nil {
		return fmt.Errorf("indexer: writing whole_mapping: %w", err)
	}
	return nil
}

func writeLineMappingFile(path string, rows []LineMappingRow) error {
	if err := jsonl.WriteFile(path, rows); err != nil {
		return fmt.Errorf("indexer: writing line_mapping: %w", err)
	}
	return nil
}

func writeIndexFile(path string, idx *vectorindex.Index) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: creating %s: %w", path, err)
	}
	defer f.Close()
	if err := idx.Snapshot(f); err != nil {
		return fmt.Errorf("indexer: snapshotting %s: %w", path, err)
	}
	return f.Close()
}
