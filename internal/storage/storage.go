// Package storage defines the mode-agnostic repository contracts every
// backend (remote-authoritative, embedded-local, embedded-degraded) must
// satisfy. Routes and background jobs depend only on these interfaces,
// resolved per request by internal/storage/factory; nothing outside this
// package constructs a backend connection or a concrete query directly.
package storage

import (
	"context"
	"time"

	"github.com/neilvibe/tm-core/internal/types"
)

// Viewer is the identity a caller passes to the factory's Resolve. The
// factory reads only Offline, to choose the backend mode; the repositories
// it builds do not receive the Viewer and perform no permission checks.
type Viewer struct {
	ID      string
	Offline bool // true when the caller presented the opaque offline credential prefix
}

// Mode names which of the three concrete backends a repository bundle
// was resolved against. Routes never branch on Mode directly — that
// would reintroduce the cross-layer coupling §4.1 warns against — but
// the factory and logging layers need to name it.
type Mode string

const (
	ModeRemoteAuthoritative Mode = "remote_authoritative"
	ModeLocalShadow         Mode = "local_shadow"
	ModeDegraded            Mode = "degraded"
)

// PlatformRepository is the contract for Platform entities.
type PlatformRepository interface {
	Get(ctx context.Context, id int64) (*types.Platform, error)
	List(ctx context.Context) ([]*types.Platform, error)
	Create(ctx context.Context, p *types.Platform) (*types.Platform, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.Platform, error)
	// Delete soft-deletes the platform, creating a TrashEntry.
	Delete(ctx context.Context, id int64, actor string) error
}

// ProjectRepository is the contract for Project entities.
type ProjectRepository interface {
	Get(ctx context.Context, id int64) (*types.Project, error)
	List(ctx context.Context, platformID *int64) ([]*types.Project, error)
	Create(ctx context.Context, p *types.Project) (*types.Project, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.Project, error)
	// Delete soft-deletes the project, creating a TrashEntry.
	Delete(ctx context.Context, id int64, actor string) error
}

// FolderRepository is the contract for Folder entities.
type FolderRepository interface {
	Get(ctx context.Context, id int64) (*types.Folder, error)
	List(ctx context.Context, filter types.FolderFilter) ([]*types.Folder, error)
	// Ancestors returns id's parent chain, nearest first, up to and
	// including the project root's immediate child. An empty slice means
	// id is already a project-root folder.
	Ancestors(ctx context.Context, id int64) ([]*types.Folder, error)
	Create(ctx context.Context, f *types.Folder) (*types.Folder, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.Folder, error)
	// Delete soft-deletes the folder, creating a TrashEntry.
	Delete(ctx context.Context, id int64, actor string) error
}

// FileRepository is the contract for File entities.
type FileRepository interface {
	Get(ctx context.Context, id int64) (*types.File, error)
	List(ctx context.Context, filter types.FileFilter) ([]*types.File, error)
	// Create persists a file and its initial rows transactionally.
	Create(ctx context.Context, f *types.File, rows []*types.Row) (*types.File, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.File, error)
	// Delete soft-deletes f, creating a TrashEntry.
	Delete(ctx context.Context, id int64, actor string) error
}

// RowRepository is the contract for Row entities.
type RowRepository interface {
	// GetForFile returns a page of rows for fileID plus the total row count.
	GetForFile(ctx context.Context, fileID int64, page types.Pagination, filter *types.RowFilter) ([]*types.Row, int, error)
	Get(ctx context.Context, id int64) (*types.Row, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.Row, error)
	Delete(ctx context.Context, id int64) error
}

// TMRepository is the contract for Translation Memory entities.
type TMRepository interface {
	Get(ctx context.Context, id int64) (*types.TM, error)
	List(ctx context.Context, filter types.TMFilter) ([]*types.TM, error)
	Create(ctx context.Context, tm *types.TM) (*types.TM, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.TM, error)
	// Delete soft-deletes the TM, creating a TrashEntry.
	Delete(ctx context.Context, id int64, actor string) error
	// SetStatus transitions a TM's lifecycle tag, optionally stamping
	// IndexedAt (on transition to ready) per invariant 4.
	SetStatus(ctx context.Context, id int64, status types.TMStatus, indexedAt *time.Time) error
}

// TMEntryRepository is the contract for TM Entry entities.
type TMEntryRepository interface {
	BulkAdd(ctx context.Context, tmID int64, entries []*types.TMEntry) ([]*types.TMEntry, error)
	GetAll(ctx context.Context, tmID int64) ([]*types.TMEntry, error)
	Update(ctx context.Context, id int64, patch map[string]any) (*types.TMEntry, error)
	Delete(ctx context.Context, id int64) error
	SearchHash(ctx context.Context, tmID int64, sourceHash [32]byte) (*types.TMEntry, error)
	SearchStringID(ctx context.Context, tmID int64, stringID string) (*types.TMEntry, error)
}

// AssignmentRepository is the contract for Assignment entities.
type AssignmentRepository interface {
	Get(ctx context.Context, id int64) (*types.Assignment, error)
	List(ctx context.Context, filter types.AssignmentFilter) ([]*types.Assignment, error)
	Create(ctx context.Context, a *types.Assignment) (*types.Assignment, error)
	Revoke(ctx context.Context, id int64) error
	// DeactivateForScope/ReactivateForScope implement the "deactivate on
	// trash, reactivate on restore" policy decided in SPEC_FULL.md §10.
	DeactivateForScope(ctx context.Context, kind types.ScopeKind, scopeID int64) error
	ReactivateForScope(ctx context.Context, kind types.ScopeKind, scopeID int64) error
}

// TrashRepository is the contract for TrashEntry entities.
type TrashRepository interface {
	Create(ctx context.Context, t *types.TrashEntry) (*types.TrashEntry, error)
	List(ctx context.Context) ([]*types.TrashEntry, error)
	Get(ctx context.Context, id int64) (*types.TrashEntry, error)
	Restore(ctx context.Context, id int64) error
	// PurgeOlderThanDays permanently deletes trash entries (and the
	// underlying soft-deleted rows) older than the retention window.
	PurgeOlderThanDays(ctx context.Context, days int) (int, error)
}

// SimilarityCapable is the optional capability contract only the
// remote-authoritative backend implements (it can push trigram/full-text
// predicates down to the engine; the embedded backend cannot). Callers
// check for this via a type assertion, never via reflection or a
// backend-type enum — see the internal/cascade entry of DESIGN.md.
type SimilarityCapable interface {
	SearchSimilar(ctx context.Context, tmID int64, text string, limit int) ([]*types.TMEntry, error)
}

// Transactional is the optional capability contract for backends that can
// run a callback inside a single atomic transaction.
type Transactional interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories bundles every entity-kind contract a single backend
// resolution produces. The factory returns one of these per request;
// nothing downstream touches C1/C2 directly.
type Repositories struct {
	Mode        Mode
	Platforms   PlatformRepository
	Projects    ProjectRepository
	Folders     FolderRepository
	Files       FileRepository
	Rows        RowRepository
	TMs         TMRepository
	TMEntries   TMEntryRepository
	Assignments AssignmentRepository
	Trash       TrashRepository

	// Close releases backend resources (connections, file handles). Not
	// every backend needs it; embedded SQLite does.
	Close func() error
}
