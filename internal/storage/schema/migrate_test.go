package schema

import (
	"database/sql"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	r := New(ModeAuthoritative)
	if err := Migrate(db, r); err != nil {
		t.Fatalf("first Migrate: %v", err)
	}
	if err := Migrate(db, r); err != nil {
		t.Fatalf("second Migrate (should be no-op): %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("counting applied migrations: %v", err)
	}
	if n != len(Registry) {
		t.Errorf("expected %d applied migrations, got %d", len(Registry), n)
	}
}

func TestMigrateLocalModeCreatesPrefixedTables(t *testing.T) {
	db := openTestDB(t)
	r := New(ModeLocal)
	if err := Migrate(db, r); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	var n int
	if err := db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='offline_tm_entries'`,
	).Scan(&n); err != nil {
		t.Fatalf("checking for offline_tm_entries: %v", err)
	}
	if n != 1 {
		t.Errorf("expected offline_tm_entries table to exist in local mode")
	}
}
