package remote

import (
	"context"
	"database/sql"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type platformRepo struct{ s *Store }

var platformPatchable = map[string]bool{"name": true, "description": true, "owner_id": true, "restricted": true}

const platformCols = "id, name, description, owner_id, restricted, created_at, updated_at, deleted_at"

func scanPlatform(row scanner) (*types.Platform, error) {
	p := &types.Platform{}
	var deletedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.Restricted, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	p.DeletedAt = nullableTime(deletedAt)
	return p, nil
}

func (r *platformRepo) Get(ctx context.Context, id int64) (*types.Platform, error) {
	table := r.s.r.Table("platforms")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+platformCols+" FROM "+table+" WHERE id = ?", id)
	p, err := scanPlatform(row)
	if err != nil {
		return nil, errs.Wrap("platform.get", err)
	}
	return p, nil
}

func (r *platformRepo) List(ctx context.Context) ([]*types.Platform, error) {
	table := r.s.r.Table("platforms")
	rows, err := r.s.conn(ctx).QueryContext(ctx, "SELECT "+platformCols+" FROM "+table+" WHERE deleted_at IS NULL ORDER BY id")
	if err != nil {
		return nil, errs.Wrap("platform.list", err)
	}
	defer rows.Close()

	var out []*types.Platform
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, errs.Wrap("platform.list", err)
		}
		out = append(out, p)
	}
	return out, errs.Wrap("platform.list", rows.Err())
}

func (r *platformRepo) Create(ctx context.Context, p *types.Platform) (*types.Platform, error) {
	table := r.s.r.Table("platforms")
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (name, description, owner_id, restricted) VALUES (?, ?, ?, ?)",
		p.Name, p.Description, p.OwnerID, p.Restricted)
	if err != nil {
		return nil, errs.Wrap("platform.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap("platform.create", err)
	}
	return r.Get(ctx, id)
}

func (r *platformRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.Platform, error) {
	table := r.s.r.Table("platforms")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, platformPatchable); err != nil {
		return nil, errs.Wrap("platform.update", err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the platform and records a TrashEntry, mirroring
// fileRepo.Delete's pattern.
func (r *platformRepo) Delete(ctx context.Context, id int64, actor string) error {
	table := r.s.r.Table("platforms")
	return r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+table+" SET deleted_at = NOW() WHERE id = ?", id,
		); err != nil {
			return err
		}
		trash := &trashRepo{r.s}
		_, err = trash.createInTx(ctx, types.TrashPlatform, p.ID, actor, p)
		return err
	})
}
