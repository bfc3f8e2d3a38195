package remote

import (
	"context"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type rowRepo struct{ s *Store }

// Target, Memo, and Lifecycle are the only fields a translator edits;
// Source is write-once per the data model's invariant.
var rowPatchable = map[string]bool{"target": true, "memo": true, "lifecycle": true, "extra_data": true}

const rowCols = "id, row_number, file_id, external_id, source, target, memo, lifecycle, extra_data, created_at, updated_at"

func scanRow(row scanner) (*types.Row, error) {
	out := &types.Row{}
	if err := row.Scan(&out.ID, &out.RowNumber, &out.FileID, &out.ExternalID, &out.Source, &out.Target,
		&out.Memo, &out.Lifecycle, &out.ExtraData, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rowRepo) Get(ctx context.Context, id int64) (*types.Row, error) {
	table := r.s.r.Table("rows")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+rowCols+" FROM "+table+" WHERE id = ?", id)
	out, err := scanRow(row)
	if err != nil {
		return nil, errs.Wrap("row.get", err)
	}
	return out, nil
}

func (r *rowRepo) GetForFile(ctx context.Context, fileID int64, page types.Pagination, filter *types.RowFilter) ([]*types.Row, int, error) {
	table := r.s.r.Table("rows")
	where := " WHERE file_id = ?"
	args := []any{fileID}
	if filter != nil {
		if filter.Lifecycle != nil {
			where += " AND lifecycle = ?"
			args = append(args, *filter.Lifecycle)
		}
		if filter.Query != "" {
			where += " AND (source LIKE ? OR target LIKE ?)"
			like := "%" + filter.Query + "%"
			args = append(args, like, like)
		}
	}

	var total int
	if err := r.s.conn(ctx).QueryRowContext(ctx, "SELECT count(*) FROM "+table+where, args...).Scan(&total); err != nil {
		return nil, 0, errs.Wrap("row.get_for_file", err)
	}

	query := "SELECT " + rowCols + " FROM " + table + where + " ORDER BY row_number LIMIT ? OFFSET ?"
	args = append(args, page.Limit, page.Offset)
	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errs.Wrap("row.get_for_file", err)
	}
	defer rows.Close()

	var out []*types.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, 0, errs.Wrap("row.get_for_file", err)
		}
		out = append(out, row)
	}
	return out, total, errs.Wrap("row.get_for_file", rows.Err())
}

func (r *rowRepo) Update(ctx context.Context, id int64, patch map[string]any) (*types.Row, error) {
	table := r.s.r.Table("rows")
	if err := applyPatch(ctx, r.s.conn(ctx), table, id, patch, rowPatchable); err != nil {
		return nil, errs.Wrap("row.update", err)
	}
	return r.Get(ctx, id)
}

func (r *rowRepo) Delete(ctx context.Context, id int64) error {
	table := r.s.r.Table("rows")
	_, err := r.s.conn(ctx).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	return errs.Wrap("row.delete", err)
}
