package remote

import (
	"context"
	"database/sql"
	"time"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/hashindex"
	"github.com/neilvibe/tm-core/internal/types"
)

type tmEntryRepo struct{ s *Store }

var tmEntryPatchable = map[string]bool{
	"target": true, "confirmed": true, "confirmed_by": true, "confirmed_at": true, "string_id": true,
}

const tmEntryCols = `id, tm_id, source, target, source_hash, string_id, confirmed, confirmed_by,
	confirmed_at, created_by, created_at, updated_at, deleted_at`

func scanTMEntry(row scanner) (*types.TMEntry, error) {
	e := &types.TMEntry{}
	var sourceHash []byte
	var confirmedAt, deletedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.TMID, &e.Source, &e.Target, &sourceHash, &e.StringID, &e.Confirmed,
		&e.ConfirmedBy, &confirmedAt, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	copy(e.SourceHash[:], sourceHash)
	e.ConfirmedAt = nullableTime(confirmedAt)
	e.DeletedAt = nullableTime(deletedAt)
	return e, nil
}

func (r *tmEntryRepo) BulkAdd(ctx context.Context, tmID int64, entries []*types.TMEntry) ([]*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	tmTable := r.s.r.Table("tms")

	var out []*types.TMEntry
	err := r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, e := range entries {
			e.SourceHash = hashindex.HashText(e.Source)
			res, err := r.s.conn(ctx).ExecContext(ctx,
				"INSERT INTO "+table+" (tm_id, source, target, source_hash, string_id, created_by) VALUES (?, ?, ?, ?, ?, ?)",
				tmID, e.Source, e.Target, e.SourceHash[:], e.StringID, e.CreatedBy)
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+tmEntryCols+" FROM "+table+" WHERE id = ?", id)
			got, err := scanTMEntry(row)
			if err != nil {
				return err
			}
			out = append(out, got)
		}
		_, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+tmTable+" SET entry_count = entry_count + ? WHERE id = ?", len(entries), tmID)
		return err
	})
	if err != nil {
		return nil, errs.Wrap("tmentry.bulk_add", err)
	}
	return out, nil
}

func (r *tmEntryRepo) GetAll(ctx context.Context, tmID int64) ([]*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	rows, err := r.s.conn(ctx).QueryContext(ctx,
		"SELECT "+tmEntryCols+" FROM "+table+" WHERE tm_id = ? AND deleted_at IS NULL ORDER BY id", tmID)
	if err != nil {
		return nil, errs.Wrap("tmentry.get_all", err)
	}
	defer rows.Close()

	var out []*types.TMEntry
	for rows.Next() {
		e, err := scanTMEntry(rows)
		if err != nil {
			return nil, errs.Wrap("tmentry.get_all", err)
		}
		out = append(out, e)
	}
	return out, errs.Wrap("tmentry.get_all", rows.Err())
}

func (r *tmEntryRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, tmEntryPatchable); err != nil {
		return nil, errs.Wrap("tmentry.update", err)
	}
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+tmEntryCols+" FROM "+table+" WHERE id = ?", id)
	e, err := scanTMEntry(row)
	if err != nil {
		return nil, errs.Wrap("tmentry.update", err)
	}
	return e, nil
}

// Delete tombstones the entry (see compaction protocol) rather than
// physically removing it, so the hash/vector indexes can detect and
// purge it on the next incremental pass instead of going stale silently.
func (r *tmEntryRepo) Delete(ctx context.Context, id int64) error {
	table := r.s.r.Table("tm_entries")
	now := time.Now()
	_, err := r.s.conn(ctx).ExecContext(ctx,
		"UPDATE "+table+" SET deleted_at = ? WHERE id = ?", timeArg(&now), id)
	return errs.Wrap("tmentry.delete", err)
}

func (r *tmEntryRepo) SearchHash(ctx context.Context, tmID int64, sourceHash [32]byte) (*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	row := r.s.conn(ctx).QueryRowContext(ctx,
		"SELECT "+tmEntryCols+" FROM "+table+" WHERE tm_id = ? AND source_hash = ? AND deleted_at IS NULL",
		tmID, sourceHash[:])
	e, err := scanTMEntry(row)
	if err != nil {
		return nil, errs.Wrap("tmentry.search_hash", err)
	}
	return e, nil
}

func (r *tmEntryRepo) SearchStringID(ctx context.Context, tmID int64, stringID string) (*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	row := r.s.conn(ctx).QueryRowContext(ctx,
		"SELECT "+tmEntryCols+" FROM "+table+" WHERE tm_id = ? AND string_id = ? AND deleted_at IS NULL",
		tmID, stringID)
	e, err := scanTMEntry(row)
	if err != nil {
		return nil, errs.Wrap("tmentry.search_string_id", err)
	}
	return e, nil
}

// SearchSimilar implements storage.SimilarityCapable by pushing a MySQL
// FULLTEXT predicate (natural-language mode) down to the Dolt server
// instead of pulling every candidate row up into the cascade matcher's
// trigram scorer. This is a coarse pre-filter only — it orders by the
// engine's own relevance score, not the Dice-coefficient tier 5 uses, so
// callers that need the exact cascade ranking still run it over this
// result set rather than trusting the ordering outright.
func (r *tmEntryRepo) SearchSimilar(ctx context.Context, tmID int64, text string, limit int) ([]*types.TMEntry, error) {
	table := r.s.r.Table("tm_entries")
	rows, err := r.s.conn(ctx).QueryContext(ctx,
		`SELECT `+tmEntryCols+` FROM `+table+`
		 WHERE tm_id = ? AND deleted_at IS NULL AND MATCH(source) AGAINST(? IN NATURAL LANGUAGE MODE)
		 ORDER BY MATCH(source) AGAINST(? IN NATURAL LANGUAGE MODE) DESC
		 LIMIT ?`,
		tmID, text, text, limit)
	if err != nil {
		return nil, errs.Wrap("tmentry.search_similar", err)
	}
	defer rows.Close()

	var out []*types.TMEntry
	for rows.Next() {
		e, err := scanTMEntry(rows)
		if err != nil {
			return nil, errs.Wrap("tmentry.search_similar", err)
		}
		out = append(out, e)
	}
	return out, errs.Wrap("tmentry.search_similar", rows.Err())
}
