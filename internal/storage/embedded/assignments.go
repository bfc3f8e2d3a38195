package embedded

import (
	"context"
	"database/sql"
	"time"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/types"
)

type assignmentRepo struct{ s *Store }

const assignmentCols = `id, tm_id, platform_id, project_id, folder_id, active, priority,
	assigner_id, assigned_at, updated_at`

func scanAssignment(row scanner) (*types.Assignment, error) {
	a := &types.Assignment{}
	var platformID, projectID, folderID sql.NullInt64
	var active int
	if err := row.Scan(&a.ID, &a.TMID, &platformID, &projectID, &folderID, &active, &a.Priority,
		&a.AssignerID, &a.AssignedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if platformID.Valid {
		a.PlatformID = &platformID.Int64
	}
	if projectID.Valid {
		a.ProjectID = &projectID.Int64
	}
	if folderID.Valid {
		a.FolderID = &folderID.Int64
	}
	a.Active = active != 0
	return a, nil
}

func (r *assignmentRepo) Get(ctx context.Context, id int64) (*types.Assignment, error) {
	table := r.s.r.Table("assignments")
	row := r.s.conn(ctx).QueryRowContext(ctx, "SELECT "+assignmentCols+" FROM "+table+" WHERE id = ?", id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, errs.Wrap("assignment.get", err)
	}
	return a, nil
}

func (r *assignmentRepo) List(ctx context.Context, filter types.AssignmentFilter) ([]*types.Assignment, error) {
	table := r.s.r.Table("assignments")
	query := "SELECT " + assignmentCols + " FROM " + table + " WHERE 1=1"
	var args []any
	if filter.TMID != nil {
		query += " AND tm_id = ?"
		args = append(args, *filter.TMID)
	}
	if filter.PlatformID != nil {
		query += " AND platform_id = ?"
		args = append(args, *filter.PlatformID)
	}
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.FolderID != nil {
		query += " AND folder_id = ?"
		args = append(args, *filter.FolderID)
	}
	if filter.ActiveOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY priority ASC, assigned_at DESC"

	rows, err := r.s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap("assignment.list", err)
	}
	defer rows.Close()

	var out []*types.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, errs.Wrap("assignment.list", err)
		}
		out = append(out, a)
	}
	return out, errs.Wrap("assignment.list", rows.Err())
}

func (r *assignmentRepo) Create(ctx context.Context, a *types.Assignment) (*types.Assignment, error) {
	// Scope() panics if the caller handed us an Assignment with more or
	// fewer than one of platform/project/folder set; that invariant is
	// cheaper to catch here than after a malformed row lands in SQLite.
	a.Scope()

	assignedAt := a.AssignedAt
	if assignedAt.IsZero() {
		assignedAt = time.Now()
	}

	table := r.s.r.Table("assignments")
	res, err := r.s.conn(ctx).ExecContext(ctx,
		"INSERT INTO "+table+" (tm_id, platform_id, project_id, folder_id, priority, assigner_id, assigned_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		a.TMID, a.PlatformID, a.ProjectID, a.FolderID, a.Priority, a.AssignerID,
		assignedAt.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return nil, errs.Wrap("assignment.create", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Wrap("assignment.create", err)
	}
	return r.Get(ctx, id)
}

func (r *assignmentRepo) Revoke(ctx context.Context, id int64) error {
	table := r.s.r.Table("assignments")
	_, err := r.s.conn(ctx).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	return errs.Wrap("assignment.revoke", err)
}

func (r *assignmentRepo) DeactivateForScope(ctx context.Context, kind types.ScopeKind, scopeID int64) error {
	table := r.s.r.Table("assignments")
	col, err := scopeColumn(kind)
	if err != nil {
		return err
	}
	_, execErr := r.s.conn(ctx).ExecContext(ctx,
		"UPDATE "+table+" SET active = 0 WHERE "+col+" = ?", scopeID)
	return errs.Wrap("assignment.deactivate_for_scope", execErr)
}

func (r *assignmentRepo) ReactivateForScope(ctx context.Context, kind types.ScopeKind, scopeID int64) error {
	table := r.s.r.Table("assignments")
	col, err := scopeColumn(kind)
	if err != nil {
		return err
	}
	_, execErr := r.s.conn(ctx).ExecContext(ctx,
		"UPDATE "+table+" SET active = 1 WHERE "+col+" = ?", scopeID)
	return errs.Wrap("assignment.reactivate_for_scope", execErr)
}

func scopeColumn(kind types.ScopeKind) (string, error) {
	switch kind {
	case types.ScopePlatform:
		return "platform_id", nil
	case types.ScopeProject:
		return "project_id", nil
	case types.ScopeFolder:
		return "folder_id", nil
	default:
		return "", errs.Validation("assignment.scope_column", "unknown scope kind "+string(kind))
	}
}
