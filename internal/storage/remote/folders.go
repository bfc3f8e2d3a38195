package remote

import (
	"context"
	"database/sql"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type folderRepo struct{ s *Store }

var folderPatchable = map[string]bool{"name": true, "parent_id": true}

const folderCols = "id, project_id, parent_id, name, created_at, updated_at, deleted_at"

func scanFolder(row scanner) (*types.Folder, error) {
	f := &types.Folder{}
	var parentID sql.NullInt64
	var deletedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.ProjectID, &parentID, &f.Name, &f.CreatedAt, &f.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.Int64
	}
	f.DeletedAt = nullableTime(deletedAt)
	return f, nil
}

func (r *folderRepo) Get(ctx context.Context, id int64) (*types.Folder, error) {
	table := r.s.r.Table("folders")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+folderCols+" FROM "+table+" WHERE id = ?", id)
	f, err := scanFolder(row)
	if err != nil {
		return nil, errs.Wrap("folder.get", err)
	}
	return f, nil
}

func (r *folderRepo) List(ctx context.Context, filter types.FolderFilter) ([]*types.Folder, error) {
	table := r.s.r.Table("folders")
	query := "SELECT " + folderCols + " FROM " + table + " WHERE deleted_at IS NULL"
	var args []any
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if !filter.Recursive {
		if filter.ParentID != nil {
			query += " AND parent_id = ?"
			args = append(args, *filter.ParentID)
		} else {
			query += " AND parent_id IS NULL"
		}
	}
	query += " ORDER BY id"

	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("folder.list", err)
	}
	defer rows.Close()

	var out []*types.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, errs.Wrap("folder.list", err)
		}
		out = append(out, f)
	}
	return out, errs.Wrap("folder.list", rows.Err())
}

// Ancestors walks parent_id pointers from id upward, nearest first,
// stopping once it reaches a project-root folder (ParentID == nil).
func (r *folderRepo) Ancestors(ctx context.Context, id int64) ([]*types.Folder, error) {
	var out []*types.Folder
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for cur.ParentID != nil {
		parent, err := r.Get(ctx, *cur.ParentID)
		if err != nil {
			return nil, err
		}
		out = append(out, parent)
		cur = parent
	}
	return out, nil
}

func (r *folderRepo) Create(ctx context.Context, f *types.Folder) (*types.Folder, error) {
	table := r.s.r.Table("folders")
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (project_id, parent_id, name) VALUES (?, ?, ?)",
		f.ProjectID, f.ParentID, f.Name)
	if err != nil {
		return nil, errs.Wrap("folder.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap("folder.create", err)
	}
	return r.Get(ctx, id)
}

func (r *folderRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.Folder, error) {
	table := r.s.r.Table("folders")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, folderPatchable); err != nil {
		return nil, errs.Wrap("folder.update", err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the folder and records a TrashEntry, mirroring
// fileRepo.Delete's pattern.
func (r *folderRepo) Delete(ctx context.Context, id int64, actor string) error {
	table := r.s.r.Table("folders")
	return r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		f, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := r.s.conn(ctx).ExecContext(ctx,
			"UPDATE "+table+" SET deleted_at = NOW() WHERE id = ?", id,
		); err != nil {
			return err
		}
		trash := &trashRepo{r.s}
		_, err = trash.createInTx(ctx, types.TrashFolder, f.ID, actor, f)
		return err
	})
}
