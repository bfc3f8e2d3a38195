// Package trash implements the TrashEntry lifecycle spec.md §3 names:
// deleting a platform, project, folder, file, or TM is a soft-delete
// that leaves a restorable TrashEntry behind rather than destroying the
// row outright. It also owns the cross-entity policy decided for
// SPEC_FULL.md's Open Question 2: an assignment scoped to a platform,
// project, or folder deactivates the moment that scope is trashed, and
// reactivates if the scope is restored before the retention window
// expires.
package trash

import (
	"context"
	"fmt"

	"github.com/neilvibe/tm-core/internal/indexer"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

// Orchestrator wraps a Repositories bundle's per-entity Delete/Restore
// calls with the assignment-deactivation policy. It holds no state of
// its own beyond an optional Indexer reference, used only to retire a
// trashed TM's C8 artefacts immediately instead of waiting for the
// scheduler to notice the TM is gone.
type Orchestrator struct {
	indexer *indexer.Indexer
}

// New builds an Orchestrator. ix may be nil in contexts that never
// trash a TM (e.g. a file-only import worker); DeleteTM returns early
// in that case without attempting artefact cleanup.
func New(ix *indexer.Indexer) *Orchestrator {
	return &Orchestrator{indexer: ix}
}

// DeletePlatform soft-deletes platformID and deactivates every
// assignment scoped directly to it.
func (o *Orchestrator) DeletePlatform(ctx context.Context, repos *storage.Repositories, platformID int64, actor string) error {
	if err := repos.Platforms.Delete(ctx, platformID, actor); err != nil {
		return err
	}
	return repos.Assignments.DeactivateForScope(ctx, types.ScopePlatform, platformID)
}

// DeleteProject soft-deletes projectID and deactivates every
// assignment scoped directly to it.
func (o *Orchestrator) DeleteProject(ctx context.Context, repos *storage.Repositories, projectID int64, actor string) error {
	if err := repos.Projects.Delete(ctx, projectID, actor); err != nil {
		return err
	}
	return repos.Assignments.DeactivateForScope(ctx, types.ScopeProject, projectID)
}

// DeleteFolder soft-deletes folderID and deactivates every assignment
// scoped directly to it. It does not cascade to descendant folders:
// each folder is its own scope level and trashed independently, per
// spec.md §4.5's scope-chain model.
func (o *Orchestrator) DeleteFolder(ctx context.Context, repos *storage.Repositories, folderID int64, actor string) error {
	if err := repos.Folders.Delete(ctx, folderID, actor); err != nil {
		return err
	}
	return repos.Assignments.DeactivateForScope(ctx, types.ScopeFolder, folderID)
}

// DeleteFile soft-deletes fileID. Files are not an assignment scope
// kind (scopes bottom out at folder), so there is no assignment
// fallout to deactivate.
func (o *Orchestrator) DeleteFile(ctx context.Context, repos *storage.Repositories, fileID int64, actor string) error {
	return repos.Files.Delete(ctx, fileID, actor)
}

// DeleteTM soft-deletes tmID and quarantines its cascade artefacts so a
// trashed TM stops serving matches immediately, rather than waiting for
// the indexer's scheduler to notice on the next query. Restoring the TM
// leaves it without artefacts until the next build trigger fires; the
// entries themselves are untouched, so a rebuild reconstructs them.
func (o *Orchestrator) DeleteTM(ctx context.Context, repos *storage.Repositories, tmID int64, actor string) error {
	if err := repos.TMs.Delete(ctx, tmID, actor); err != nil {
		return err
	}
	if o.indexer == nil {
		return nil
	}
	if err := o.indexer.Quarantine(tmID); err != nil {
		return fmt.Errorf("trash: retiring artefacts for tm %d: %w", tmID, err)
	}
	return nil
}

// Restore clears trashID's soft-delete tombstone and, for scope-kind
// entities, reactivates whichever assignments were deactivated when it
// was trashed.
func (o *Orchestrator) Restore(ctx context.Context, repos *storage.Repositories, trashID int64) error {
	entry, err := repos.Trash.Get(ctx, trashID)
	if err != nil {
		return err
	}
	if err := repos.Trash.Restore(ctx, trashID); err != nil {
		return err
	}
	switch entry.EntityKind {
	case types.TrashPlatform:
		return repos.Assignments.ReactivateForScope(ctx, types.ScopePlatform, entry.EntityID)
	case types.TrashProject:
		return repos.Assignments.ReactivateForScope(ctx, types.ScopeProject, entry.EntityID)
	case types.TrashFolder:
		return repos.Assignments.ReactivateForScope(ctx, types.ScopeFolder, entry.EntityID)
	default:
		return nil
	}
}

// PurgeExpired permanently removes trash entries (and their underlying
// soft-deleted rows) older than retentionDays, per spec.md §3's default
// 30-day window, and returns how many were purged.
func (o *Orchestrator) PurgeExpired(ctx context.Context, repos *storage.Repositories, retentionDays int) (int, error) {
	return repos.Trash.PurgeOlderThanDays(ctx, retentionDays)
}
