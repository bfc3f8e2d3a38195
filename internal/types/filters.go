package types

// Pagination bounds a paged list operation.
type Pagination struct {
	Offset int
	Limit  int
}

// RowFilter narrows Row.GetForFile results.
type RowFilter struct {
	Lifecycle *RowLifecycle
	Query     string // free-text match against source/target, backend-dependent
}

// FolderFilter narrows Folder.List results.
type FolderFilter struct {
	ProjectID *int64
	ParentID  *int64 // nil pointer with Recursive=false means "root only"
	Recursive bool
}

// FileFilter narrows File.List results.
type FileFilter struct {
	ProjectID *int64
	FolderID  *int64
	SyncState *FileSyncState
	IncludeTrashed bool
}

// TMFilter narrows TM.List results.
type TMFilter struct {
	OwnerID      string
	Status       *TMStatus
	MatchingMode *MatchingMode
	NameLike     string
}

// AssignmentFilter narrows Assignment.List results.
type AssignmentFilter struct {
	TMID       *int64
	PlatformID *int64
	ProjectID  *int64
	FolderID   *int64
	ActiveOnly bool
}
