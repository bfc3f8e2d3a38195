package indexer

import (
	"context"
	"strings"
	"time"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

// IncrementalAdd runs the pure-insertion protocol of spec.md §4.3: the
// new entries' vectors are appended to the existing ANN graphs and hash
// tables in memory, then the whole artefact set is rewritten atomically
// (mapping files always get rewritten in full per the spec; since
// hashindex.Snapshot already writes its whole table in one pass, reusing
// it for the hash tables too keeps a single write path instead of a
// separate append-only branch). If tmID has no prior artefacts (never
// built), this falls back to a full Build instead.
func (ix *Indexer) IncrementalAdd(ctx context.Context, repos *storage.Repositories, tmID int64, newEntries []*types.TMEntry) error {
	unlock := ix.lockTM(tmID)

	existing, err := ix.loadForTM(tmID)
	if err != nil {
		unlock()
		return ix.Build(ctx, repos, tmID)
	}
	defer unlock()

	start := time.Now()
	if err := ix.runIncrementalAdd(ctx, tmID, existing, newEntries); err != nil {
		_ = repos.TMs.SetStatus(ctx, tmID, types.TMError, nil)
		ix.recordBuild(ctx, "incremental", "error", time.Since(start))
		return err
	}

	now := time.Now()
	if err := repos.TMs.SetStatus(ctx, tmID, types.TMReady, &now); err != nil {
		return errs.Wrap("indexer.incremental.set_ready", err)
	}
	ix.cache.Invalidate(tmID)
	ix.recordBuild(ctx, "incremental", "success", time.Since(start))
	return nil
}

func (ix *Indexer) runIncrementalAdd(ctx context.Context, tmID int64, existing *Artefacts, newEntries []*types.TMEntry) error {
	live := make([]*types.TMEntry, 0, len(newEntries))
	for _, e := range newEntries {
		if e.DeletedAt == nil && strings.TrimSpace(e.Source) != "" {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil
	}

	texts := make([]string, len(live))
	for i, e := range live {
		texts[i] = e.Source
	}
	wholeVectors, err := ix.provider.Encode(ctx, texts)
	if err != nil {
		return errs.Wrap("indexer.incremental.encode_whole", err)
	}

	ids := make([]int64, len(live))
	for i, e := range live {
		ids[i] = e.ID
		existing.WholeHash.Put(hashindex.HashText(e.Source), hashindex.WholeHit{EntryID: e.ID, Target: e.Target})
		existing.WholeMapping = append(existing.WholeMapping, MappingRow{
			EntryID: e.ID, Source: e.Source, Target: e.Target, UpdatedAt: e.UpdatedAt,
		})
	}
	if err := existing.WholeIndex.AppendBatch(ids, wholeVectors); err != nil {
		return errs.Wrap("indexer.incremental.append_whole", err)
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
	if len(lines) > 0 {
		lineTexts := make([]string, len(lines))
		for i, l := range lines {
			lineTexts[i] = l.source
		}
		lineVectors, err := ix.provider.Encode(ctx, lineTexts)
		if err != nil {
			return errs.Wrap("indexer.incremental.encode_line", err)
		}
		lineIDs := make([]int64, len(lines))
		for i, l := range lines {
			lineIDs[i] = int64(len(existing.LineMapping))
			existing.LineHash.Put(hashindex.HashText(l.source), hashindex.LineHit{
				EntryID: l.entryID, LineOrdinal: l.lineOrdinal, TargetLine: l.target,
			})
			existing.LineMapping = append(existing.LineMapping, LineMappingRow{
				EntryID: l.entryID, LineOrdinal: l.lineOrdinal, Source: l.source, Target: l.target, UpdatedAt: l.updatedAt,
			})
		}
		if err := existing.LineIndex.AppendBatch(lineIDs, lineVectors); err != nil {
			return errs.Wrap("indexer.incremental.append_line", err)
		}
	}

	meta := existing.Meta
	meta.EntryCount += len(live)
	meta.BuildTimestamp = time.Now()

	return ix.writeArtefactSet(tmID, meta, existing.WholeMapping, existing.LineMapping,
		existing.WholeIndex, existing.LineIndex, existing.WholeHash, existing.LineHash)
}

// loadForTM reads tmID's artefacts straight from disk, bypassing the LRU
// cache a cascade read would use — the build path always wants the
// freshest set.
func (ix *Indexer) loadForTM(tmID int64) (*Artefacts, error) {
	return loadArtefacts(tmDir(ix.artefactRoot, tmID))
}
