package remote

import (
	"context"
	"encoding/json"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type trashRepo struct{ s *Store }

const trashCols = "id, entity_kind, entity_id, actor_id, restore_metadata, deleted_at"

func scanTrash(row scanner) (*types.TrashEntry, error) {
	t := &types.TrashEntry{}
	if err := row.Scan(&t.ID, &t.EntityKind, &t.EntityID, &t.ActorID, &t.RestoreMetadata, &t.DeletedAt); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *trashRepo) Create(ctx context.Context, t *types.TrashEntry) (*types.TrashEntry, error) {
	var created *types.TrashEntry
	err := r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		got, err := r.insert(ctx, t.EntityKind, t.EntityID, t.ActorID, t.RestoreMetadata)
		if err != nil {
			return err
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, errs.Wrap("trash.create", err)
	}
	return created, nil
}

// createInTx persists a trash entry for snapshot (marshaled to JSON as
// RestoreMetadata) and must run inside a transaction the caller already
// opened — used by fileRepo.Delete and its peers, which need the
// soft-delete UPDATE and the trash INSERT to commit together.
func (r *trashRepo) createInTx(ctx context.Context, kind types.TrashEntityKind, entityID int64, actor string, snapshot any) (*types.TrashEntry, error) {
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	return r.insert(ctx, kind, entityID, actor, blob)
}

func (r *trashRepo) insert(ctx context.Context, kind types.TrashEntityKind, entityID int64, actor string, blob []byte) (*types.TrashEntry, error) {
	table := r.s.r.Table("trash")
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (entity_kind, entity_id, actor_id, restore_metadata) VALUES (?, ?, ?, ?)",
		kind, entityID, actor, blob)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+trashCols+" FROM "+table+" WHERE id = ?", id)
	return scanTrash(row)
}

func (r *trashRepo) List(ctx context.Context) ([]*types.TrashEntry, error) {
	table := r.s.r.Table("trash")
	rows, err := r.s.conn(ctx).QueryContext(ctx, "SELECT "+trashCols+" FROM "+table+" ORDER BY deleted_at DESC")
	if err != nil {
		return nil, errs.Wrap("trash.list", err)
	}
	defer rows.Close()

	var out []*types.TrashEntry
	for rows.Next() {
		t, err := scanTrash(rows)
		if err != nil {
			return nil, errs.Wrap("trash.list", err)
		}
		out = append(out, t)
	}
	return out, errs.Wrap("trash.list", rows.Err())
}

func (r *trashRepo) Get(ctx context.Context, id int64) (*types.TrashEntry, error) {
	table := r.s.r.Table("trash")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+trashCols+" FROM "+table+" WHERE id = ?", id)
	t, err := scanTrash(row)
	if err != nil {
		return nil, errs.Wrap("trash.get", err)
	}
	return t, nil
}

// Restore clears the soft-delete tombstone on the entity the trash entry
// names and removes the trash row. The assignment-reactivation half of
// restore is orchestrated by internal/trash, same as embedded.
func (r *trashRepo) Restore(ctx context.Context, id int64) error {
	table := r.s.r.Table("trash")
	return r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		t, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		entityTable, err := entityTableFor(r.s, t.EntityKind)
		if err != nil {
			return err
		}
		if _, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+entityTable+" SET deleted_at = NULL WHERE id = ?", t.EntityID,
		); err != nil {
			return err
		}
		_, err = r.s.conn(ctx).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
		return err
	})
}

// PurgeOlderThanDays permanently removes trash entries (and their
// underlying soft-deleted rows, where the entity kind tracks deleted_at)
// older than the retention window, mirroring the teacher's
// internal/deletions PruneDeletions(path, retentionDays) pass.
func (r *trashRepo) PurgeOlderThanDays(ctx context.Context, days int) (int, error) {
	table := r.s.r.Table("trash")

	rows, err := r.s.conn(ctx).QueryContext(ctx,
		"SELECT "+trashCols+" FROM "+table+" WHERE deleted_at <= DATE_SUB(NOW(), INTERVAL ? DAY)", days)
	if err != nil {
		return 0, errs.Wrap("trash.purge", err)
	}
	var entries []*types.TrashEntry
	for rows.Next() {
		t, err := scanTrash(rows)
		if err != nil {
			rows.Close()
			return 0, errs.Wrap("trash.purge", err)
		}
		entries = append(entries, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errs.Wrap("trash.purge", err)
	}

	purged := 0
	for _, t := range entries {
		err := r.s.RunInTransaction(ctx, func(ctx context.Context) error {
			if entityTable, err := entityTableFor(r.s, t.EntityKind); err == nil {
				if _, err := r.s.conn(ctx).ExecContext(ctx, "DELETE FROM "+entityTable+" WHERE id = ?", t.EntityID); err != nil {
					return err
				}
			}
			_, err := r.s.conn(ctx).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", t.ID)
			return err
		})
		if err != nil {
			return purged, errs.Wrap("trash.purge", err)
		}
		purged++
	}
	return purged, nil
}

func entityTableFor(s *Store, kind types.TrashEntityKind) (string, error) {
	switch kind {
	case types.TrashFile:
		return s.r.Table("files"), nil
	case types.TrashFolder:
		return s.r.Table("folders"), nil
	case types.TrashProject:
		return s.r.Table("projects"), nil
	case types.TrashPlatform:
		return s.r.Table("platforms"), nil
	case types.TrashTM:
		return s.r.Table("tms"), nil
	default:
		return "", errs.Validation("trash.entity_table", "unknown entity kind "+string(kind))
	}
}
