package remote

import (
	"context"
	"database/sql"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type fileRepo struct{ s *Store }

var filePatchable = map[string]bool{
	"name": true, "folder_id": true, "sync_state": true, "extra_metadata": true, "row_count": true,
}

const fileCols = `id, name, original_name, format, row_count, source_lang, target_lang,
	project_id, folder_id, sync_state, extra_metadata, created_at, updated_at, deleted_at`

func scanFile(row scanner) (*types.File, error) {
	f := &types.File{}
	var folderID sql.NullInt64
	var deletedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.Name, &f.OriginalName, &f.Format, &f.RowCount, &f.SourceLang, &f.TargetLang,
		&f.ProjectID, &folderID, &f.SyncState, &f.ExtraMetadata, &f.CreatedAt, &f.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if folderID.Valid {
		f.FolderID = &folderID.Int64
	}
	f.DeletedAt = nullableTime(deletedAt)
	return f, nil
}

func (r *fileRepo) Get(ctx context.Context, id int64) (*types.File, error) {
	table := r.s.r.Table("files")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+fileCols+" FROM "+table+" WHERE id = ?", id)
	f, err := scanFile(row)
	if err != nil {
		return nil, errs.Wrap("file.get", err)
	}
	return f, nil
}

func (r *fileRepo) List(ctx context.Context, filter types.FileFilter) ([]*types.File, error) {
	table := r.s.r.Table("files")
	query := "SELECT " + fileCols + " FROM " + table + " WHERE 1=1"
	var args []any
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.FolderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *filter.FolderID)
	}
	if filter.SyncState != nil {
		query += " AND sync_state = ?"
		args = append(args, *filter.SyncState)
	}
	if !filter.IncludeTrashed {
		query += " AND deleted_at IS NULL"
	}
	query += " ORDER BY id"

	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("file.list", err)
	}
	defer rows.Close()

	var out []*types.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, errs.Wrap("file.list", err)
		}
		out = append(out, f)
	}
	return out, errs.Wrap("file.list", rows.Err())
}

// Create persists f and its initial rows transactionally: either all rows
// land with the file, or neither does.
func (r *fileRepo) Create(ctx context.Context, f *types.File, rows []*types.Row) (*types.File, error) {
	table := r.s.r.Table("files")
	rowsTable := r.s.r.Table("rows")

	var created *types.File
	err := r.s.RunInTransaction(ctx, func(ctx context.Context) error {
		res, err := r.s.conn(ctx).ExecContext(ctx,
			"INSERT INTO "+table+" (name, original_name, format, row_count, source_lang, target_lang, project_id, folder_id, sync_state, extra_metadata) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			f.Name, f.OriginalName, f.Format, len(rows), f.SourceLang, f.TargetLang, f.ProjectID, f.FolderID, f.SyncState, f.ExtraMetadata)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, row := range rows {
			if _, err := r.s.conn(ctx).ExecContext(ctx,
				"INSERT INTO "+rowsTable+" (row_number, file_id, external_id, source, target, memo, lifecycle, extra_data) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
				row.RowNumber, id, row.ExternalID, row.Source, row.Target, row.Memo, row.Lifecycle, row.ExtraData,
			); err != nil {
				return err
			}
		}
		got, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		created = got
		return nil
	})
	if err != nil {
		return nil, errs.Wrap("file.create", err)
	}
	return created, nil
}

func (r *fileRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.File, error) {
	table := r.s.r.Table("files")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, filePatchable); err != nil {
		return nil, errs.Wrap("file.update", err)
	}
	return r.Get(ctx, id)
}

// Delete soft-deletes the file and records a TrashEntry capturing enough
// of it to restore scope links later.
func (r *fileRepo) Delete(ctx context.Context, id int64, actor string) error {
	table := r.s.r.Table("files")
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
		_, err = trash.createInTx(ctx, types.TrashFile, f.ID, actor, f)
		return err
	})
}
