// Package remote implements every storage.Repositories contract against a
// running Dolt sql-server over the MySQL wire protocol
// (github.com/dolthub/driver's sibling github.com/go-sql-driver/mysql),
// serving remote-authoritative mode. Unlike internal/storage/embedded it
// never restricts itself to a single connection — Dolt's server mode is a
// real multi-writer engine — so transient network/driver errors are
// retried with cenkalti/backoff/v4 instead of being designed away.
package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/telemetry"
)

// Config describes how to reach the Dolt sql-server.
type Config struct {
	DSN             string // e.g. "root@tcp(127.0.0.1:3307)/tm_core?parseTime=true"
	DialTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 500 * time.Millisecond
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// querier is the subset of *sql.DB, *retryingConn, and *sql.Tx every
// repository needs, mirroring embedded's querier/conn(ctx) split.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Store bundles the pooled *sql.DB, schema.Resolver (always
// schema.ModeAuthoritative — remote is the authoritative backend), and
// retry policy every remote repository reads and writes through.
type Store struct {
	db      *sql.DB
	r       *schema.Resolver
	metrics *telemetry.Metrics
}

// serverRetryMaxElapsed mirrors the teacher's own 30s ceiling on
// server-mode transient-error retries (internal/storage/dolt/store.go).
const serverRetryMaxElapsed = 30 * time.Second

func newRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableError reports whether err is a transient connection error
// worth retrying, lifted from the same substring set the teacher's
// internal/storage/dolt/store.go checks for its own server-mode retries.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"database is read only",
		"lost connection",
		"gone away",
		"i/o timeout",
		"unknown database",
	} {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// Open dials the Dolt server, verifies reachability with a fast TCP probe
// before paying the MySQL handshake timeout, runs pending migrations, and
// returns a ready Store. metrics may be nil in tests that don't care about
// retry counters.
func Open(ctx context.Context, cfg Config, metrics *telemetry.Metrics) (*Store, error) {
	cfg.applyDefaults()
	cfg.DSN = ensureParseTime(cfg.DSN)

	if addr, err := dsnTCPAddr(cfg.DSN); err == nil {
		conn, dialErr := net.DialTimeout("tcp", addr, cfg.DialTimeout)
		if dialErr != nil {
			return nil, fmt.Errorf("remote: dolt server unreachable at %s: %w", addr, dialErr)
		}
		_ = conn.Close()
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("remote: opening dolt connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("remote: pinging dolt server: %w", err)
	}

	r := schema.New(schema.ModeAuthoritative)
	s := &Store{db: db, r: r, metrics: metrics}
	if err := migrate(ctx, s); err != nil {
		db.Close()
		return nil, fmt.Errorf("remote: migrating: %w", err)
	}
	return s, nil
}

// Repositories assembles the storage.Repositories bundle this Store backs.
func (s *Store) Repositories() *storage.Repositories {
	return &storage.Repositories{
		Mode:        storage.ModeRemoteAuthoritative,
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
// statements against: the enclosing transaction if ctx carries one, a
// retry-wrapped handle onto the pool otherwise.
func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return &retryingConn{db: s.db, metrics: s.metrics}
}

// RunInTransaction implements storage.Transactional with a standard
// database/sql transaction — Dolt's server mode is a genuine multi-writer
// engine, so (unlike embedded's single-connection SQLite discipline)
// there is no need to hand-manage a dedicated connection, only to stash
// the *sql.Tx so nested repository calls route onto it instead of the
// pool.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("remote: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("remote: commit: %w", err)
	}
	committed = true
	return nil
}

// retryingConn wraps the pooled *sql.DB with server-mode transient-error
// retry. QueryRowContext is not retried: *sql.Row defers its error until
// Scan, by which point a retry would silently re-issue the query against
// a row the caller has already started reading — the same reason the
// teacher's own queryRowContext takes an explicit scan callback instead
// of returning a bare *sql.Row. Exec/Query, whose errors surface
// immediately, get the full retry treatment.
type retryingConn struct {
	db      *sql.DB
	metrics *telemetry.Metrics
}

func (c *retryingConn) withRetry(ctx context.Context, op func() error) error {
	attempts := 0
	bo := newRetryBackoff()
	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err != nil && isRetryableError(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if attempts > 1 && c.metrics != nil {
		c.metrics.RemoteRetries.Add(ctx, int64(attempts-1))
	}
	return err
}

func (c *retryingConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := c.withRetry(ctx, func() error {
		var execErr error
		res, execErr = c.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (c *retryingConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := c.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = c.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

func (c *retryingConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// ensureParseTime guarantees the DSN carries parseTime=true, the same
// parameter the teacher's buildServerDSN always appends, so DATETIME
// columns scan straight into time.Time/sql.NullTime instead of []byte.
func ensureParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "parseTime=true"
}

// dsnTCPAddr extracts the "host:port" portion of a go-sql-driver/mysql DSN
// of the form "user:pass@tcp(host:port)/db?params" for the fast
// reachability probe in Open. Any other DSN shape (e.g. a unix socket)
// returns an error and the probe is skipped.
func dsnTCPAddr(dsn string) (string, error) {
	start := strings.Index(dsn, "tcp(")
	if start < 0 {
		return "", errors.New("remote: DSN has no tcp(...) address")
	}
	rest := dsn[start+len("tcp("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return "", errors.New("remote: malformed DSN address")
	}
	return rest[:end], nil
}
