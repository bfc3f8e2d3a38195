package schema

import (
	"database/sql"
	"fmt"
)

// Migration is one idempotent, numbered schema step. Each func checks
// whether its change already exists (via PRAGMA table_info / sqlite_master)
// before applying it, exactly as the teacher's migrations/NNN_*.go files
// do, so Migrate can be run against a brand-new file or a long-lived one
// without a separate "initial schema" path.
type Migration struct {
	Version int
	Name    string
	Run     func(db *sql.DB, r *Resolver) error
}

// Registry lists every migration in version order. Appending a new one
// here is the only change required to evolve the embedded schema.
var Registry = []Migration{
	{1, "core_tables", migrateCoreTables},
	{2, "tm_entry_indexes", migrateTMEntryIndexes},
	{3, "trash_table", migrateTrashTable},
	{4, "import_audit_tables", migrateImportAuditTables},
	{5, "offline_storage_sentinel", migrateOfflineStorageSentinel},
}

// Migrate ensures SchemaMigrationsTable exists, then runs every
// migration whose version has not yet been recorded, in order, each in
// its own transaction. r selects which physical table family the
// migrations operate on.
func Migrate(db *sql.DB, r *Resolver) error {
	if _, err := db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at DATETIME NOT NULL DEFAULT (datetime('now')))`,
		SchemaMigrationsTable,
	)); err != nil {
		return fmt.Errorf("schema: creating migrations table: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.Query(fmt.Sprintf(`SELECT version FROM %s`, SchemaMigrationsTable))
	if err != nil {
		return fmt.Errorf("schema: reading applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("schema: scanning migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("schema: iterating applied migrations: %w", err)
	}
	rows.Close()

	for _, m := range Registry {
		if applied[m.Version] {
			continue
		}
		if err := m.Run(db, r); err != nil {
			return fmt.Errorf("schema: migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.Exec(fmt.Sprintf(
			`INSERT INTO %s (version, name) VALUES (?, ?)`, SchemaMigrationsTable,
		), m.Version, m.Name); err != nil {
			return fmt.Errorf("schema: recording migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func migrateCoreTables(db *sql.DB, r *Resolver) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			restricted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("platforms")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			platform_id INTEGER REFERENCES %s(id),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id TEXT NOT NULL DEFAULT '',
			restricted INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("projects"), r.Table("platforms")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES %s(id),
			parent_id INTEGER REFERENCES %s(id),
			name TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("folders"), r.Table("projects"), r.Table("folders")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			original_name TEXT NOT NULL DEFAULT '',
			format TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			source_lang TEXT NOT NULL DEFAULT '',
			target_lang TEXT NOT NULL DEFAULT '',
			project_id INTEGER NOT NULL REFERENCES %s(id),
			folder_id INTEGER REFERENCES %s(id),
			sync_state TEXT NOT NULL DEFAULT 'local',
			extra_metadata BLOB,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("files"), r.Table("projects"), r.Table("folders")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			row_number INTEGER NOT NULL,
			file_id INTEGER NOT NULL REFERENCES %s(id),
			external_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT '',
			memo TEXT NOT NULL DEFAULT '',
			lifecycle TEXT NOT NULL DEFAULT 'normal',
			extra_data BLOB,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`, r.Table("rows"), r.Table("files")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_lang TEXT NOT NULL DEFAULT '',
			target_lang TEXT NOT NULL DEFAULT '',
			entry_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			matching_mode TEXT NOT NULL DEFAULT 'standard',
			owner_id TEXT NOT NULL DEFAULT '',
			indexed_at TEXT,
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("tms")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tm_id INTEGER NOT NULL REFERENCES %s(id),
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			source_hash BLOB NOT NULL,
			string_id TEXT NOT NULL DEFAULT '',
			confirmed INTEGER NOT NULL DEFAULT 0,
			confirmed_by TEXT NOT NULL DEFAULT '',
			confirmed_at TEXT,
			created_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT
		)`, r.Table("tm_entries"), r.Table("tms")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tm_id INTEGER NOT NULL REFERENCES %s(id),
			platform_id INTEGER,
			project_id INTEGER,
			folder_id INTEGER,
			active INTEGER NOT NULL DEFAULT 1,
			priority INTEGER NOT NULL DEFAULT 0,
			assigner_id TEXT NOT NULL DEFAULT '',
			assigned_at DATETIME NOT NULL DEFAULT (datetime('now')),
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`, r.Table("assignments"), r.Table("tms")),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateTMEntryIndexes(db *sql.DB, r *Resolver) error {
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_source_hash ON %s(tm_id, source_hash)`,
			r.Table("tm_entries"), r.Table("tm_entries")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_string_id ON %s(tm_id, string_id)`,
			r.Table("tm_entries"), r.Table("tm_entries")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_platform ON %s(platform_id)`,
			r.Table("assignments"), r.Table("assignments")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_project ON %s(project_id)`,
			r.Table("assignments"), r.Table("assignments")),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_folder ON %s(folder_id)`,
			r.Table("assignments"), r.Table("assignments")),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func migrateTrashTable(db *sql.DB, r *Resolver) error {
	exists, err := tableExists(db, r.Table("trash"))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf(`CREATE TABLE %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_kind TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		actor_id TEXT NOT NULL,
		restore_metadata BLOB,
		deleted_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`, r.Table("trash")))
	return err
}

// migrateOfflineStorageSentinel seeds the reserved negative-id Offline
// Storage platform/project pair C11 (internal/storage/bridge) reads by
// id, per spec.md §3's data model invariant 6 ("migrations insert it
// unconditionally"). INSERT OR IGNORE makes this safe to re-run, the
// same idempotent idiom the other migrations in this file use.
func migrateOfflineStorageSentinel(db *sql.DB, r *Resolver) error {
	if _, err := db.Exec(fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (id, name, description, owner_id) VALUES (-1, 'Offline Storage', 'Entities authored while offline, not yet assigned to a real platform.', '')`,
		r.Table("platforms"),
	)); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (id, platform_id, name, description, owner_id) VALUES (-1, -1, 'Offline Storage', 'Offline Storage project under the sentinel platform.', '')`,
		r.Table("projects"),
	))
	return err
}

func migrateImportAuditTables(db *sql.DB, r *Resolver) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tm_id INTEGER NOT NULL REFERENCES %s(id),
			source_tag TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL DEFAULT (datetime('now')),
			finished_at TEXT
		)`, r.Table("import_jobs"), r.Table("tms")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tm_id INTEGER NOT NULL,
			actor_id TEXT NOT NULL,
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at DATETIME NOT NULL DEFAULT (datetime('now'))
		)`, r.Table("audit_events")),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
