// Package bridge implements C11, the Scope Identity Bridge: the
// "Offline Storage" platform/project pair that must be addressable from
// both the authoritative and local backends because an assignment
// created against one may reference a scope that materially lives in
// the other. Both backends' migrations seed this pair unconditionally at
// the reserved negative sentinel id (internal/storage/schema's and
// internal/storage/remote's migrateOfflineStorageSentinel, following the
// teacher's idempotent INSERT OR IGNORE migration idiom), per spec.md
// §3's data model invariant 6 — this package only looks the row up by
// that id, it never creates it.
package bridge

import (
	"context"
	"fmt"

	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

// OfflineStorageName is the fixed, well-known name both backends use for
// the bridged platform and project, per spec.md §4.6.
const OfflineStorageName = "Offline Storage"

// Local sentinel surrogate ids: a reserved negative range so they can
// never collide with a real AUTO_INCREMENT id on either backend.
const (
	LocalSentinelPlatformID int64 = -1
	LocalSentinelProjectID  int64 = -1
)

// Bridge owns the authoritative (platform, project) pair's surrogate ids
// once looked up, and the transparent id translation local
// repositories need when an Assignment or parent/child traversal
// references the authoritative surrogate from the local side.
type Bridge struct {
	authoritative *storage.Repositories
	local         *storage.Repositories

	authPlatformID int64
	authProjectID  int64
	resolved       bool
}

// New builds a Bridge over an already-resolved authoritative repository
// bundle and an already-resolved local (shadow or degraded) bundle.
func New(authoritative, local *storage.Repositories) *Bridge {
	return &Bridge{authoritative: authoritative, local: local}
}

// EnsureAuthoritative looks up the authoritative "Offline Storage"
// platform and project at the reserved sentinel id and caches their ids
// for Translate* to use. Safe to call repeatedly; only the first call
// with no cached ids touches the backend.
func (b *Bridge) EnsureAuthoritative(ctx context.Context) (platformID, projectID int64, err error) {
	if b.resolved {
		return b.authPlatformID, b.authProjectID, nil
	}

	platform, err := b.authoritative.Platforms.Get(ctx, LocalSentinelPlatformID)
	if err != nil {
		return 0, 0, errs.Wrap("bridge.ensure_authoritative", fmt.Errorf("offline storage platform sentinel row missing, migrations did not seed it: %w", err))
	}
	project, err := b.authoritative.Projects.Get(ctx, LocalSentinelProjectID)
	if err != nil {
		return 0, 0, errs.Wrap("bridge.ensure_authoritative", fmt.Errorf("offline storage project sentinel row missing, migrations did not seed it: %w", err))
	}

	b.authPlatformID = platform.ID
	b.authProjectID = project.ID
	b.resolved = true
	return platform.ID, project.ID, nil
}

// EnsureLocalMirror looks up the local mirror at the reserved sentinel
// ids, seeded unconditionally by the embedded schema's migrations — it
// never creates the row, only reads it.
func (b *Bridge) EnsureLocalMirror(ctx context.Context) (*types.Project, error) {
	project, err := b.local.Projects.Get(ctx, LocalSentinelProjectID)
	if err != nil {
		return nil, errs.Wrap("bridge.ensure_local_mirror", fmt.Errorf("offline storage project sentinel row missing, migrations did not seed it: %w", err))
	}
	return project, nil
}

// TranslateProjectID maps the authoritative Offline Storage project's
// surrogate id onto the local mirror's id when a local repository
// traverses a parent/child relation carrying the authoritative id — the
// transparent translation spec.md §4.6 requires. Since both backends
// seed the same sentinel id, this is ordinarily a no-op; it still routes
// through EnsureLocalMirror so a local backend history not overlapping
// the migration history of its peers.
func (b *Bridge) TranslateProjectID(ctx context.Context, id int64) (int64, error) {
	if !b.resolved || id != b.authProjectID {
		return id, nil
	}
	mirror, err := b.EnsureLocalMirror(ctx)
	if err != nil {
		return 0, err
	}
	return mirror.ID, nil
}

// Hidden reports whether a platform/project record named
// OfflineStorageName should be hidden from viewerID's listing views: it
// is visible only to its own owner, per the Open Question 3 decision in
// DESIGN.md. It compares the two ids only; callers check the record's
// name against OfflineStorageName themselves (the CLI's platform and
// project list commands do). Repository List methods do not filter.
func Hidden(ownerID, viewerID string) bool {
	return ownerID != viewerID
}
