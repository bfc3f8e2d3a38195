// Package assignment implements C10: given a file, resolve the ordered
// list of TMs a translator should see, walking the file's scope chain
// from its folder up through ancestor folders, its project, and finally
// the project's platform, per spec.md §4.5.
package assignment

import (
	"context"
	"sort"

	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/types"
)

// Resolver is stateless; a single instance is shared across requests.
type Resolver struct{}

// New builds a Resolver.
func New() *Resolver { return &Resolver{} }

// ResolveForFile walks fileID's scope chain (nearest folder outward to
// platform) and returns the ordered, deduplicated TM list spec.md §4.5
// describes: within a level, assignments sort by ascending priority then
// descending assigned_at; across levels, a TM already seen at a more
// specific level is skipped when it reappears at a broader one.
func (r *Resolver) ResolveForFile(ctx context.Context, repos *storage.Repositories, fileID int64) ([]*types.Assignment, error) {
	file, err := repos.Files.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}

	var ordered []*types.Assignment
	seen := make(map[int64]bool)

	for _, level := range r.scopeChain(ctx, repos, file) {
		active, err := repos.Assignments.List(ctx, level)
		if err != nil {
			continue // a repository error at one level does not abort the walk
		}
		sortByPriorityThenRecency(active)
		for _, a := range active {
			if !a.Active || seen[a.TMID] {
				continue
			}
			if _, err := repos.TMs.Get(ctx, a.TMID); err != nil {
				// dangling TM reference: spec.md §4.5 says log and skip.
				continue
			}
			seen[a.TMID] = true
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// scopeChain builds the ordered list of AssignmentFilters to query, most
// specific first: the file's folder and every ancestor folder, then its
// project, then the project's platform. A missing ancestor, project, or
// platform simply truncates the chain at that point rather than failing
// the whole resolution.
func (r *Resolver) scopeChain(ctx context.Context, repos *storage.Repositories, file *types.File) []types.AssignmentFilter {
	var chain []types.AssignmentFilter

	if file.FolderID != nil {
		folderID := *file.FolderID
		if _, err := repos.Folders.Get(ctx, folderID); err == nil {
			chain = append(chain, types.AssignmentFilter{FolderID: &folderID, ActiveOnly: true})
			if ancestors, err := repos.Folders.Ancestors(ctx, folderID); err == nil {
				for _, anc := range ancestors {
					id := anc.ID
					chain = append(chain, types.AssignmentFilter{FolderID: &id, ActiveOnly: true})
				}
			}
		}
	}

	project, err := repos.Projects.Get(ctx, file.ProjectID)
	if err != nil {
		return chain
	}
	projectID := project.ID
	chain = append(chain, types.AssignmentFilter{ProjectID: &projectID, ActiveOnly: true})

	if project.PlatformID != nil {
		if platform, err := repos.Platforms.Get(ctx, *project.PlatformID); err == nil {
			platformID := platform.ID
			chain = append(chain, types.AssignmentFilter{PlatformID: &platformID, ActiveOnly: true})
		}
	}
	return chain
}

// sortByPriorityThenRecency applies spec.md §4.5's within-level ordering:
// ascending priority, then descending assigned_at.
func sortByPriorityThenRecency(assignments []*types.Assignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		if assignments[i].Priority != assignments[j].Priority {
			return assignments[i].Priority < assignments[j].Priority
		}
		return assignments[i].AssignedAt.After(assignments[j].AssignedAt)
	})
}
