package embedded

import (
	"context"
	"database/sql"
	"time"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type tmRepo struct{ s *Store }

var tmPatchable = map[string]bool{
	"name": true, "description": true, "source_lang": true, "target_lang": true, "matching_mode": true,
}

const tmCols = `id, name, description, source_lang, target_lang, entry_count, status,
	matching_mode, owner_id, indexed_at, created_at, updated_at, deleted_at`

func scanTM(row scanner) (*types.TM, error) {
	t := &types.TM{}
	var indexedAt, deletedAt sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.SourceLang, &t.TargetLang, &t.EntryCount, &t.Status,
		&t.MatchingMode, &t.OwnerID, &indexedAt, &t.CreatedAt, &t.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	t.IndexedAt = parseNullableTime(indexedAt)
	t.DeletedAt = parseNullableTime(deletedAt)
	return t, nil
}

func (r *tmRepo) Get(ctx context.Context, id int64) (*types.TM, error) {
	table := r.s.r.Table("tms")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+tmCols+" FROM "+table+" WHERE id = ?", id)
	t, err := scanTM(row)
	if err != nil {
		return nil, errs.Wrap("tm.get", err)
	}
	return t, nil
}

func (r *tmRepo) List(ctx context.Context, filter types.TMFilter) ([]*types.TM, error) {
	table := r.s.r.Table("tms")
	query := "SELECT " + tmCols + " FROM " + table + " WHERE deleted_at IS NULL"
	var args []any
	if filter.OwnerID != "" {
		query += " AND owner_id = ?"
		args = append(args, filter.OwnerID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.MatchingMode != nil {
		query += " AND matching_mode = ?"
		args = append(args, *filter.MatchingMode)
	}
	if filter.NameLike != "" {
		query += " AND name LIKE ?"
		args = append(args, "%"+filter.NameLike+"%")
	}
	query += " ORDER BY id"

	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("tm.list", err)
	}
	defer rows.Close()

	var out []*types.TM
	for rows.Next() {
		t, err := scanTM(rows)
		if err != nil {
			return nil, errs.Wrap("tm.list", err)
		}
		out = append(out, t)
	}
	return out, errs.Wrap("tm.list", rows.Err())
}

func (r *tmRepo) Create(ctx context.Context, t *types.TM) (*types.TM, error) {
	table := r.s.r.Table("tms")
	if t.Status == "" {
		t.Status = types.TMPending
	}
	if t.MatchingMode == "" {
		t.MatchingMode = types.MatchingStandard
	}
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (name, description, source_lang, target_lang, status, matching_mode, owner_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.Name, t.Description, t.SourceLang, t.TargetLang, t.Status, t.MatchingMode, t.OwnerID)
	if err != nil {
		return nil, errs.Wrap("tm.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap("tm.create", err)
	}
	return r.Get(ctx, id)
}

func (r *tmRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.TM, error) {
	table := r.s.r.Table("tms")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, tmPatchable); err != nil {
		return nil, errs.Wrap("tm.update", err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the TM and records a TrashEntry, mirroring
// fileRepo.Delete's pattern. Callers that also need to retire the TM's
// C8 artefacts (ANN graphs, hash tables) do so through internal/trash,
// which wraps this call with that cleanup.
func (r *tmRepo) Delete(ctx context.Context, id int64, actor string) error {
	table := r.s.r.Table("tms")
	return r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+table+" SET deleted_at = datetime('now') WHERE id = ?", id,
		); err != nil {
			return err
		}
		trash := &trashRepo{r.s}
		_, err = trash.createInTx(ctx, types.TrashTM, t.ID, actor, t)
		return err
	})
}

// SetStatus transitions a TM's lifecycle tag, stamping IndexedAt when
// indexedAt is non-nil (i.e. on a successful transition to ready), per
// invariant 4 ("a TM is Stale whenever its indexed_at predates its
// newest entry's updated_at").
func (r *tmRepo) SetStatus(ctx context.Context, id int64, status types.TMStatus, indexedAt *time.Time) error {
	table := r.s.r.Table("tms")
	if indexedAt != nil {
		_, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+table+" SET status = ?, indexed_at = ? WHERE id = ?", status, formatNullableTime(indexedAt), id)
		return errs.Wrap("tm.set_status", err)
	}
	_, err := r.s.conn(ctx).ExecContext(ctx, "UPDATE "+table+" SET status = ? WHERE id = ?", status, id)
	return errs.Wrap("tm.set_status", err)
}
