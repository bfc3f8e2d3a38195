package remote

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/neilvibe/tm-core/internal/storage/schema"
)

// migration is remote's counterpart to schema.Migration, adapted to the
// MySQL/Dolt DDL dialect (AUTO_INCREMENT, DATETIME NULL, no SQLite
// datetime()/PRAGMA idioms) — the table shapes and idempotent
// "does this already exist" discipline otherwise follow the same
// convention as internal/storage/schema/migrate.go and, further back, the
// teacher's internal/storage/sqlite/migrations/*.go.
type migration struct {
	version int
	name    string
	run     func(ctx context.Context, db *sql.DB) error
}

var registry = []migration{
	{1, "core_tables", migrateCoreTables},
	{2, "tm_entry_indexes", migrateTMEntryIndexes},
	{3, "trash_table", migrateTrashTable},
	{4, "import_audit_tables", migrateImportAuditTables},
	{5, "offline_storage_sentinel", migrateOfflineStorageSentinel},
}

func migrate(ctx context.Context, s *Store) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+schema.SchemaMigrationsTable+` (
		version INT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating %s: %w", schema.SchemaMigrationsTable, err)
	}

	for _, m := range registry {
		var applied int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+schema.SchemaMigrationsTable+" WHERE version = ?", m.version).Scan(&applied)
		if err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}
		if err := m.run(ctx, s.db); err != nil {
			return fmt.Errorf("running migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO "+schema.SchemaMigrationsTable+" (version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}
	return nil
}

func migrateCoreTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS platforms (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id VARCHAR(255) NOT NULL DEFAULT '',
			restricted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			platform_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			owner_id VARCHAR(255) NOT NULL DEFAULT '',
			restricted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL,
			FOREIGN KEY (platform_id) REFERENCES platforms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS folders (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			project_id BIGINT NOT NULL,
			parent_id BIGINT NULL,
			name VARCHAR(255) NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id),
			FOREIGN KEY (parent_id) REFERENCES folders(id)
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			original_name VARCHAR(255) NOT NULL,
			format VARCHAR(32) NOT NULL,
			row_count INT NOT NULL DEFAULT 0,
			source_lang VARCHAR(32) NOT NULL,
			target_lang VARCHAR(32) NOT NULL,
			project_id BIGINT NOT NULL,
			folder_id BIGINT NULL,
			sync_state VARCHAR(32) NOT NULL DEFAULT 'synced',
			extra_metadata LONGBLOB,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id),
			FOREIGN KEY (folder_id) REFERENCES folders(id)
		)`,
		`CREATE TABLE IF NOT EXISTS rows (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			row_number INT NOT NULL,
			file_id BIGINT NOT NULL,
			external_id VARCHAR(255) NOT NULL DEFAULT '',
			source LONGTEXT NOT NULL,
			target LONGTEXT NOT NULL DEFAULT '',
			memo TEXT NOT NULL DEFAULT '',
			lifecycle VARCHAR(32) NOT NULL DEFAULT 'normal',
			extra_data LONGBLOB,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (file_id) REFERENCES files(id)
		)`,
		`CREATE TABLE IF NOT EXISTS tms (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			source_lang VARCHAR(32) NOT NULL,
			target_lang VARCHAR(32) NOT NULL,
			entry_count INT NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			matching_mode VARCHAR(32) NOT NULL DEFAULT 'standard',
			owner_id VARCHAR(255) NOT NULL DEFAULT '',
			indexed_at DATETIME NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tm_entries (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			tm_id BIGINT NOT NULL,
			source LONGTEXT NOT NULL,
			target LONGTEXT NOT NULL DEFAULT '',
			source_hash BINARY(32) NOT NULL,
			string_id VARCHAR(255) NOT NULL DEFAULT '',
			confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			confirmed_by VARCHAR(255) NOT NULL DEFAULT '',
			confirmed_at DATETIME NULL,
			created_by VARCHAR(255) NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME NULL,
			FOREIGN KEY (tm_id) REFERENCES tms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS assignments (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			tm_id BIGINT NOT NULL,
			platform_id BIGINT NULL,
			project_id BIGINT NULL,
			folder_id BIGINT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			priority INT NOT NULL DEFAULT 0,
			assigner_id VARCHAR(255) NOT NULL DEFAULT '',
			assigned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tm_id) REFERENCES tms(id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateTMEntryIndexes(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE INDEX idx_tm_entries_tm_hash ON tm_entries (tm_id, source_hash)`,
		`CREATE INDEX idx_tm_entries_tm_string_id ON tm_entries (tm_id, string_id)`,
		`CREATE INDEX idx_assignments_platform ON assignments (platform_id)`,
		`CREATE INDEX idx_assignments_project ON assignments (project_id)`,
		`CREATE INDEX idx_assignments_folder ON assignments (folder_id)`,
		// Supports the SimilarityCapable pushdown in tmentries.go's
		// SearchSimilar, which leans on a FULLTEXT predicate instead of
		// pulling every candidate row into the cascade matcher's
		// trigram scorer.
		`CREATE FULLTEXT INDEX idx_tm_entries_source_fulltext ON tm_entries (source)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func migrateTrashTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS trash (
		id BIGINT PRIMARY KEY AUTO_INCREMENT,
		entity_kind VARCHAR(32) NOT NULL,
		entity_id BIGINT NOT NULL,
		actor_id VARCHAR(255) NOT NULL DEFAULT '',
		restore_metadata LONGBLOB,
		deleted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// migrateOfflineStorageSentinel is remote's counterpart to
// schema.migrateOfflineStorageSentinel: the same reserved negative-id
// Offline Storage pair, seeded here too so C11's bridge can look it up
// by id on the authoritative side as well, per spec.md §3's data model
// invariant 6.
func migrateOfflineStorageSentinel(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx,
		`INSERT IGNORE INTO platforms (id, name, description, owner_id) VALUES (-1, 'Offline Storage', 'Entities authored while offline, not yet assigned to a real platform.', '')`,
	); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx,
		`INSERT IGNORE INTO projects (id, platform_id, name, description, owner_id) VALUES (-1, -1, 'Offline Storage', 'Offline Storage project under the sentinel platform.', '')`,
	)
	return err
}

func migrateImportAuditTables(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS import_jobs (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			tm_id BIGINT NOT NULL,
			source_tag VARCHAR(64) NOT NULL,
			row_count INT NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			finished_at DATETIME NULL,
			FOREIGN KEY (tm_id) REFERENCES tms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			tm_id BIGINT NOT NULL,
			actor_id VARCHAR(255) NOT NULL DEFAULT '',
			action VARCHAR(32) NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (tm_id) REFERENCES tms(id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
