package embedded

import (
	"database/sql"
	"time"
)

// parseNullableTime parses a nullable TEXT timestamp column. The
// ncruces/go-sqlite3 driver only auto-converts TEXT -> time.Time for
// columns declared DATETIME/DATE/TIME/TIMESTAMP; nullable timestamp
// columns here (deleted_at, indexed_at, confirmed_at, finished_at) stay
// plain TEXT so they can hold NULL, so they are parsed by hand.
func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
