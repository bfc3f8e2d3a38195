package remote

import (
	"context"
	"fmt"
	"sort"
)

// applyPatch mirrors embedded's column-allowlisted UPDATE builder;
// duplicated rather than shared because the two packages' querier types
// are distinct (this one's conn(ctx) can resolve to a retryingConn, which
// embedded has no equivalent of).
func applyPatch(ctx context.Context, db querier, table string, id int64, patch map[string]any, allowed map[string]bool) error {
	if len(patch) == 0 {
		return nil
	}
	cols := make([]string, 0, len(patch))
	for k := range patch {
		if !allowed[k] {
			return fmt.Errorf("remote: column %q is not patchable on %s", k, table)
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
