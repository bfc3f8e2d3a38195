// Package factory implements C4: it resolves a storage.Repositories
// bundle per request by detecting which of the three modes spec.md §4.1
// applies, and owns the documented failover policy — an unreachable
// remote backend triggers at most one retry at degraded mode. No route
// or background job outside this package constructs a backend connection
// or a concrete query directly.
package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/storage/embedded"
	"github.com/neilvibe/tm-core/internal/storage/remote"
	"github.com/neilvibe/tm-core/internal/storage/schema"
	"github.com/neilvibe/tm-core/internal/telemetry"
)

// probeTimeout bounds the reachability check used to decide, on each
// resolution, whether the remote backend is still up — mirrors the
// teacher's own fail-fast net.DialTimeout check in newServerMode before
// paying for the full MySQL handshake.
const probeTimeout = 500 * time.Millisecond

// Factory lazily opens and caches the backend Stores a resolution might
// need, and picks among them per spec.md §4.1's mode table. Safe for
// concurrent use; Resolve may be called from many request goroutines.
type Factory struct {
	cfg     *config.Config
	metrics *telemetry.Metrics

	mu              sync.Mutex
	remoteStore     *remote.Store
	remoteErr       error
	remoteOpened    bool
	degradedStore   *embedded.Store
	degradedErr     error
	degradedOpened  bool
	localShadow     *embedded.Store
	localShadowErr  error
	localShadowOpen bool
}

// New builds a Factory against cfg. Backends are opened lazily on first
// Resolve, not here, so a Factory can be constructed before the remote
// store is necessarily reachable.
func New(cfg *config.Config, metrics *telemetry.Metrics) *Factory {
	return &Factory{cfg: cfg, metrics: metrics}
}

// Resolve picks a mode for viewer and returns the matching
// storage.Repositories bundle, per spec.md §4.1's mode table:
//   - viewer.Offline selects local shadow, unconditionally.
//   - cfg.BackendMode overrides automatic detection when not "auto".
//   - otherwise: remote authoritative if reachable, else degraded.
//
// A remote resolution that fails with backend_unavailable is retried
// exactly once at degraded mode, per the documented failover policy;
// it is not retried a second time even if degraded also fails.
func (f *Factory) Resolve(ctx context.Context, viewer storage.Viewer) (*storage.Repositories, error) {
	if viewer.Offline {
		return f.resolveLocalShadow(ctx)
	}

	switch f.cfg.BackendMode {
	case config.BackendEmbedded:
		return f.resolveDegraded(ctx)
	case config.BackendAuthoritative:
		repos, err := f.resolveRemote(ctx)
		if err != nil {
			return nil, err
		}
		return repos, nil
	default: // config.BackendAuto
		repos, err := f.resolveRemote(ctx)
		if err == nil {
			return repos, nil
		}
		if !errs.IsBackendUnavailable(err) {
			return nil, err
		}
		if f.metrics != nil {
			f.metrics.BackendFailovers.Add(ctx, 1)
		}
		return f.resolveDegraded(ctx)
	}
}

func (f *Factory) resolveRemote(ctx context.Context) (*storage.Repositories, error) {
	store, err := f.openRemote(ctx)
	if err != nil {
		return nil, err
	}
	return store.Repositories(), nil
}

func (f *Factory) resolveDegraded(ctx context.Context) (*storage.Repositories, error) {
	store, err := f.openDegraded(ctx)
	if err != nil {
		return nil, err
	}
	return store.Repositories(storage.ModeDegraded), nil
}

func (f *Factory) resolveLocalShadow(ctx context.Context) (*storage.Repositories, error) {
	store, err := f.openLocalShadow(ctx)
	if err != nil {
		return nil, err
	}
	return store.Repositories(storage.ModeLocalShadow), nil
}

// openRemote opens (once) and reachability-probes the remote store. A
// probe failure, or an open/migrate failure, is normalised to
// errs.ErrBackendUnavailable so Resolve's auto-mode branch can decide to
// fail over without inspecting driver-specific error strings.
func (f *Factory) openRemote(ctx context.Context) (*remote.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.remoteOpened {
		if f.remoteErr != nil {
			return nil, f.remoteErr
		}
		if err := probeReachable(f.cfg.RemoteDSN); err != nil {
			return nil, errs.Wrap("factory.remote", fmt.Errorf("%w: %w", errs.ErrBackendUnavailable, err))
		}
		return f.remoteStore, nil
	}

	f.remoteOpened = true
	if err := probeReachable(f.cfg.RemoteDSN); err != nil {
		f.remoteErr = errs.Wrap("factory.remote", fmt.Errorf("%w: %w", errs.ErrBackendUnavailable, err))
		return nil, f.remoteErr
	}

	store, err := remote.Open(ctx, remote.Config{DSN: f.cfg.RemoteDSN}, f.metrics)
	if err != nil {
		f.remoteErr = errs.Wrap("factory.remote", fmt.Errorf("%w: %w", errs.ErrBackendUnavailable, err))
		return nil, f.remoteErr
	}
	f.remoteStore = store
	return store, nil
}

func (f *Factory) openDegraded(ctx context.Context) (*embedded.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.degradedOpened {
		return f.degradedStore, f.degradedErr
	}
	f.degradedOpened = true

	path := filepath.Join(f.cfg.EmbeddedDir, "degraded.db")
	store, err := embedded.Open(ctx, path, schema.ModeAuthoritative)
	if err != nil {
		f.degradedErr = errs.Wrap("factory.degraded", err)
		return nil, f.degradedErr
	}
	f.degradedStore = store
	return store, nil
}

func (f *Factory) openLocalShadow(ctx context.Context) (*embedded.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.localShadowOpen {
		return f.localShadow, f.localShadowErr
	}
	f.localShadowOpen = true

	path := filepath.Join(f.cfg.EmbeddedDir, "local_shadow.db")
	store, err := embedded.Open(ctx, path, schema.ModeLocal)
	if err != nil {
		f.localShadowErr = errs.Wrap("factory.local_shadow", err)
		return nil, f.localShadowErr
	}
	f.localShadow = store
	return store, nil
}

// probeReachable dials the DSN's host:port with a short timeout, the
// same fail-fast check remote.Open itself performs before the MySQL
// handshake — run here too so an already-open Factory notices the
// backend going away between requests instead of only at first use.
func probeReachable(dsn string) error {
	addr, err := remoteTCPAddr(dsn)
	if err != nil {
		return err
	}
	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// remoteTCPAddr extracts the host:port remote.Open would dial from a
// Go-MySQL-Driver DSN. It is a thin re-derivation of remote's own
// dsnTCPAddr rather than an import of an unexported helper — factory
// needs it to probe reachability even when openRemote has not run yet
// this process (e.g. before the first successful open).
func remoteTCPAddr(dsn string) (string, error) {
	start := -1
	for i := range dsn {
		if dsn[i] == '(' {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return "", errors.New("factory: DSN has no tcp(host:port) segment")
	}
	end := -1
	for i := start; i < len(dsn); i++ {
		if dsn[i] == ')' {
			end = i
			break
		}
	}
	if end < 0 {
		return "", errors.New("factory: DSN has an unterminated tcp(host:port) segment")
	}
	return dsn[start:end], nil
}

// Close releases every backend this Factory has opened. Safe to call
// even if some backends were never opened.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var closeErrs []error
	if f.remoteStore != nil {
		if err := f.remoteStore.Repositories().Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	if f.degradedStore != nil {
		if err := f.degradedStore.Repositories(storage.ModeDegraded).Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	if f.localShadow != nil {
		if err := f.localShadow.Repositories(storage.ModeLocalShadow).Close(); err != nil {
			closeErrs = append(closeErrs, err)
		}
	}
	return errors.Join(closeErrs...)
}
