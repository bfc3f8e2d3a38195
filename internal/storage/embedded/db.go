// Package embedded implements every storage.Repositories contract against
// an embedded SQLite database (github.com/ncruces/go-sqlite3), serving
// both local-shadow mode (mirroring a reachable remote) and degraded mode
// (standing in for an unreachable one). Which physical table family a
// Store targets is entirely decided by the schema.Resolver it is built
// with — no method in this package branches on mode itself.
package embedded

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/schema"
)

// querier is the subset of *sql.DB and *sql.Conn every repository needs.
// Repository methods always fetch one through Store.conn(ctx) instead of
// touching Store.db directly, so a method runs against the transaction's
// dedicated connection when called from inside RunInTransaction, and
// against the shared pool otherwise.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txConnKey struct{}

// Store bundles the shared *sql.DB and schema.Resolver every embedded
// repository reads and writes through. Its single-connection discipline
// (db.SetMaxOpenConns(1)) follows the teacher's own reasoning in
// internal/storage/sqlite: SQLite's writer lock makes multiple open
// connections a source of SQLITE_BUSY churn, not real parallelism.
type Store struct {
	db *sql.DB
	r  *schema.Resolver
}

// Open opens (creating if necessary) the SQLite file at path, applies
// every pending migration for mode, and returns a ready Store.
func Open(ctx context.Context, path string, mode schema.Mode) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=busy_timeout(30000)")
	if err != nil {
		return nil, fmt.Errorf("embedded: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedded: pinging %s: %w", path, err)
	}

	r := schema.New(mode)
	if err := schema.Migrate(db, r); err != nil {
		db.Close()
		return nil, fmt.Errorf("embedded: migrating %s: %w", path, err)
	}
	return &Store{db: db, r: r}, nil
}

// Repositories assembles the storage.Repositories bundle this Store backs.
func (s *Store) Repositories(mode storage.Mode) *storage.Repositories {
	return &storage.Repositories{
		Mode:        mode,
		Platforms:   &platformRepo{s},
		Projects:    &projectRepo{s},
		Folders:     &folderRepo{s},
		Files:       &fileRepo{s},
		Rows:        &rowRepo{s},
		TMs:         &tmRepo{s},
		TMEntries:   &tmEntryRepo{s},
		Assignments: &assignmentRepo{s},
		Trash:       &trashRepo{s},
		Close:       s.db.Close,
	}
}

// conn returns the querier a repository method should issue its
// statements against: the transaction's dedicated connection if ctx
// carries one, the shared pool otherwise.
func (s *Store) conn(ctx context.Context) querier {
	if c, ok := ctx.Value(txConnKey{}).(*sql.Conn); ok {
		return c
	}
	return s.db
}

// RunInTransaction implements storage.Transactional. Acquires a single
// dedicated connection, runs raw BEGIN IMMEDIATE/COMMIT/ROLLBACK on it
// (database/sql's BeginTx does not expose SQLite's locking modes), and
// stashes the connection in ctx so every repository call fn makes inside
// the callback is routed to that same connection instead of the pool —
// with MaxOpenConns(1) a query against the pool while this connection is
// checked out would otherwise deadlock. Mirrors the teacher's own
// dedicated-connection transaction discipline in
// internal/storage/sqlite/queries.go's CreateIssue.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("embedded: acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("embedded: BEGIN IMMEDIATE: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	txCtx := context.WithValue(ctx, txConnKey{}, conn)
	if err := fn(txCtx); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("embedded: COMMIT: %w", err)
	}
	committed = true
	return nil
}
