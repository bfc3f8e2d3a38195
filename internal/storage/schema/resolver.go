// Package schema implements the Schema-Aware Table Resolver: the single
// place that knows the embedded SQLite database stores both an
// authoritative-shaped table set (when running in degraded mode, standing
// in for the unreachable remote) and a locally-prefixed shadow table set
// (when running in local-shadow mode alongside a reachable remote). Every
// other embedded-backend file asks this package for a table name instead
// of hand-rolling the prefix.
package schema

import "fmt"

// Mode selects which physical table family a Resolver maps logical names
// onto. It intentionally mirrors storage.Mode's two embedded-backend
// values rather than importing storage.Mode directly, keeping this leaf
// package free of a dependency on the repository-contract package.
type Mode int

const (
	// ModeAuthoritative maps logical names onto the bare table names
	// (used when the embedded database itself stands in as the
	// authoritative store, i.e. degraded mode).
	ModeAuthoritative Mode = iota
	// ModeLocal maps logical names onto an "offline_"-prefixed shadow
	// table set (used when the embedded database mirrors a reachable
	// remote, i.e. local-shadow mode).
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeAuthoritative:
		return "authoritative"
	case ModeLocal:
		return "local"
	default:
		return "unknown"
	}
}

// logicalTables enumerates every logical table name the embedded backend
// is allowed to resolve. Kept as a set rather than trusting caller input
// so a typo in a repository file fails fast instead of silently querying
// a nonexistent table.
var logicalTables = map[string]bool{
	"platforms":   true,
	"projects":    true,
	"folders":     true,
	"files":       true,
	"rows":        true,
	"tms":         true,
	"tm_entries":  true,
	"assignments": true,
	"trash":       true,
	"import_jobs": true,
	"audit_events": true,
}

// Resolver maps logical table names to physical table names for a fixed
// Mode. A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	mode Mode
}

// New returns a Resolver bound to mode.
func New(mode Mode) *Resolver {
	return &Resolver{mode: mode}
}

// Mode reports the resolver's bound mode.
func (r *Resolver) Mode() Mode { return r.mode }

// Table resolves a logical name to its physical table name for the
// resolver's mode. It panics on an unknown logical name — this is always
// a programming error (a typo in a repository file), never a runtime
// condition a caller should handle.
func (r *Resolver) Table(logical string) string {
	if !logicalTables[logical] {
		panic(fmt.Sprintf("schema: unknown logical table %q", logical))
	}
	if r.mode == ModeLocal {
		return "offline_" + logical
	}
	return logical
}

// SchemaMigrationsTable is the bookkeeping table every migration runner
// checks and updates, regardless of mode — migrations track schema
// version per physical database file, not per logical table family, so
// both a degraded-mode and a local-shadow-mode database carry their own
// independent version row.
const SchemaMigrationsTable = "schema_migrations"
