package embedded

import (
	"context"
	"fmt"
	"sort"
)

// applyPatch runs a column-allowlisted UPDATE built from patch, rejecting
// any key not present in allowed. Column order is sorted so generated SQL
// is deterministic (and therefore diffable in logs), mirroring the
// teacher's preference for stable, reviewable generated queries over
// map-iteration-order SQL.
func applyPatch(ctx context.Context, db querier, table string, id int64, patch map[string]any, allowed map[string]bool) error {
	if len(patch) == 0 {
		return nil
	}
	cols := make([]string, 0, len(patch))
	for k := range patch {
		if !allowed[k] {
			return fmt.Errorf("embedded: column %q is not patchable on %s", k, table)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	query := "UPDATE " + table + " SET "
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		if i > 0 {
			query += ", "
		}
		query += c + " = ?"
		args = append(args, patch[c])
	}
	query += " WHERE id = ?"
	args = append(args, id)

	_, err := db.ExecContext(ctx, query, args...)
	return err
}
