package remote

import (
	"database/sql"
	"time"
)

// nullableTime converts a nullable DATETIME column (scanned with
// parseTime=true in the DSN, so the driver already hands back a
// time.Time) to the *time.Time shape internal/types uses.
func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// timeArg converts a *time.Time field back into a bind argument; MySQL's
// driver accepts time.Time directly for DATETIME columns, so — unlike
// embedded's formatNullableTime — no string formatting is needed.
func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
