package embedded

import (
	"context"
	"database/sql"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type projectRepo struct{ s *Store }

var projectPatchable = map[string]bool{
	"name": true, "description": true, "platform_id": true, "owner_id": true, "restricted": true,
}

const projectCols = "id, platform_id, name, description, owner_id, restricted, created_at, updated_at, deleted_at"

func scanProject(row scanner) (*types.Project, error) {
	p := &types.Project{}
	var platformID sql.NullInt64
	var restricted int
	var deletedAt sql.NullString
	if err := row.Scan(&p.ID, &platformID, &p.Name, &p.Description, &p.OwnerID, &restricted, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if platformID.Valid {
		p.PlatformID = &platformID.Int64
	}
	p.Restricted = restricted != 0
	p.DeletedAt = parseNullableTime(deletedAt)
	return p, nil
}

func (r *projectRepo) Get(ctx context.Context, id int64) (*types.Project, error) {
	table := r.s.r.Table("projects")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+projectCols+" FROM "+table+" WHERE id = ?", id)
	p, err := scanProject(row)
	if err != nil {
		return nil, errs.Wrap("project.get", err)
	}
	return p, nil
}

func (r *projectRepo) List(ctx context.Context, platformID *int64) ([]*types.Project, error) {
	table := r.s.r.Table("projects")
	query := "SELECT " + projectCols + " FROM " + table + " WHERE deleted_at IS NULL"
	var args []any
	if platformID != nil {
		query += " AND platform_id = ?"
		args = append(args, *platformID)
	}
	query += " ORDER BY id"

	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("project.list", err)
	}
	defer rows.Close()

	var out []*types.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, errs.Wrap("project.list", err)
		}
		out = append(out, p)
	}
	return out, errs.Wrap("project.list", rows.Err())
}

func (r *projectRepo) Create(ctx context.Context, p *types.Project) (*types.Project, error) {
	table := r.s.r.Table("projects")
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (platform_id, name, description, owner_id, restricted) VALUES (?, ?, ?, ?, ?)",
		p.PlatformID, p.Name, p.Description, p.OwnerID, p.Restricted)
	if err != nil {
		return nil, errs.Wrap("project.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap("project.create", err)
	}
	return r.Get(ctx, id)
}

func (r *projectRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.Project, error) {
	table := r.s.r.Table("projects")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, projectPatchable); err != nil {
		return nil, errs.Wrap("project.update", err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the project and records a TrashEntry, mirroring
// fileRepo.Delete's pattern.
func (r *projectRepo) Delete(ctx context.Context, id int64, actor string) error {
	table := r.s.r.Table("projects")
	return r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+table+" SET deleted_at = datetime('now') WHERE id = ?", id,
		); err != nil {
			return err
		}
		trash := &trashRepo{r.s}
		_, err = trash.createInTx(ctx, types.TrashProject, p.ID, actor, p)
		return err
	})
}
