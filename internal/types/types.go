// Package types defines the data model shared by every storage backend,
// the indexer, the cascade matcher, and the assignment resolver.
package types

import "time"

// FileSyncState tracks whether a File's row data lives only on a local
// embedded backend, has been reconciled with the authoritative backend,
// or has lost its authoritative counterpart.
type FileSyncState string

const (
	SyncStateLocal    FileSyncState = "local"
	SyncStateSynced   FileSyncState = "synced"
	SyncStateOrphaned FileSyncState = "orphaned"
)

// FileFormat is the source document format a File was ingested from.
type FileFormat string

const (
	FormatTXT  FileFormat = "txt"
	FormatXML  FileFormat = "xml"
	FormatXLSX FileFormat = "xlsx"
)

// RowLifecycle tracks a Row's translation review state.
type RowLifecycle string

const (
	RowNormal   RowLifecycle = "normal"
	RowReviewed RowLifecycle = "reviewed"
	RowApproved RowLifecycle = "approved"
)

// TMStatus is a Translation Memory's index lifecycle state.
type TMStatus string

const (
	TMPending  TMStatus = "pending"
	TMIndexing TMStatus = "indexing"
	TMReady    TMStatus = "ready"
	TMError    TMStatus = "error"
)

// MatchingMode selects whether a TM's cascade uses hash/semantic tiers
// (standard) or string-identifier lookups (stringid) for tiers 1/3.
type MatchingMode string

const (
	MatchingStandard MatchingMode = "standard"
	MatchingStringID MatchingMode = "stringid"
)

// Platform is the top level of the scope hierarchy.
type Platform struct {
	ID          int64
	Name        string
	Description string
	OwnerID     string
	Restricted  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time // soft-delete tombstone, set by internal/trash
}

// Project belongs to an optional Platform and owns Folders/Files.
type Project struct {
	ID          int64
	Name        string
	Description string
	PlatformID  *int64
	OwnerID     string
	Restricted  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Folder forms a tree under a Project; ParentID nil means the project root.
type Folder struct {
	ID        int64
	Name      string
	ProjectID int64
	ParentID  *int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// File is an uploaded bilingual document; its Rows are created transactionally
// with it.
type File struct {
	ID             int64
	Name           string
	OriginalName   string
	Format         FileFormat
	RowCount       int
	SourceLang     string
	TargetLang     string
	ProjectID      int64
	FolderID       *int64
	SyncState      FileSyncState
	ExtraMetadata  []byte // opaque JSON blob, validated at the boundary
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Row is a single translatable unit inside a File. Source is write-once.
type Row struct {
	ID         int64
	RowNumber  int
	FileID     int64
	ExternalID string // optional caller-supplied string identifier
	Source     string // immutable after creation
	Target     string
	Memo       string
	Lifecycle  RowLifecycle
	ExtraData  []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TM is a named collection of bilingual Entries.
type TM struct {
	ID           int64
	Name         string
	Description  string
	SourceLang   string
	TargetLang   string
	EntryCount   int
	Status       TMStatus
	MatchingMode MatchingMode
	OwnerID      string
	IndexedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Stale reports whether the TM's index predates its most recently
// updated entry, per spec invariant 4.
func (t *TM) Stale(maxEntryUpdatedAt time.Time) bool {
	if t.IndexedAt == nil {
		return true
	}
	return t.IndexedAt.Before(maxEntryUpdatedAt)
}

// TMEntry is a single bilingual record inside a TM.
type TMEntry struct {
	ID            int64
	TMID          int64
	Source        string
	Target        string
	SourceHash    [32]byte // SHA-256(Source), cached for O(1) exact lookup
	StringID      string   // optional, used when TM.MatchingMode == MatchingStringID
	Confirmed     bool
	ConfirmedBy   string
	ConfirmedAt   *time.Time
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time // soft-delete tombstone, see compaction protocol
}

// ScopeKind identifies which level of the scope hierarchy an Assignment
// targets.
type ScopeKind string

const (
	ScopePlatform ScopeKind = "platform"
	ScopeProject  ScopeKind = "project"
	ScopeFolder   ScopeKind = "folder"
)

// Assignment links a TM into a scope with a priority; exactly one of
// PlatformID/ProjectID/FolderID is non-nil.
type Assignment struct {
	ID         int64
	TMID       int64
	PlatformID *int64
	ProjectID  *int64
	FolderID   *int64
	Active     bool
	Priority   int
	AssignerID string
	AssignedAt time.Time
	UpdatedAt  time.Time
}

// Scope returns which scope kind this assignment targets and the target's id.
// It panics if the invariant "exactly one of platform/project/folder is set"
// has been violated, since that can only happen from a repository bug.
func (a *Assignment) Scope() (ScopeKind, int64) {
	set := 0
	var kind ScopeKind
	var id int64
	if a.PlatformID != nil {
		set++
		kind, id = ScopePlatform, *a.PlatformID
	}
	if a.ProjectID != nil {
		set++
		kind, id = ScopeProject, *a.ProjectID
	}
	if a.FolderID != nil {
		set++
		kind, id = ScopeFolder, *a.FolderID
	}
	if set != 1 {
		panic("assignment: exactly one of platform/project/folder must be set")
	}
	return kind, id
}

// TrashEntityKind names the kind of entity a TrashEntry captured.
type TrashEntityKind string

const (
	TrashFile       TrashEntityKind = "file"
	TrashFolder     TrashEntityKind = "folder"
	TrashProject    TrashEntityKind = "project"
	TrashPlatform   TrashEntityKind = "platform"
	TrashTM         TrashEntityKind = "tm"
)

// TrashEntry records a soft-deleted entity for restore and eventual purge.
type TrashEntry struct {
	ID               int64
	EntityKind       TrashEntityKind
	EntityID         int64
	DeletedAt        time.Time
	ActorID          string
	RestoreMetadata  []byte // opaque JSON blob sufficient to re-create scope links
}

// TMImportJob tracks a bulk entries.bulk_add/import_entries call end to end,
// distinct from the Indexer's own build job bookkeeping.
type TMImportJob struct {
	ID         int64
	TMID       int64
	SourceTag  string // e.g. "tmx", "csv", "manual"
	RowCount   int
	Status     string // "pending" | "running" | "done" | "error"
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// AuditEvent is a narrow, append-only record of a TM lifecycle action.
// Permission checks and durable audit trails belong to the collaborator
// that injects the viewer identity; this is just enough to correlate
// "who created/indexed/searched which TM and when" inside the core.
type AuditEvent struct {
	ID        int64
	TMID      int64
	ActorID   string
	Action    string // "create" | "bulk_add" | "update" | "delete" | "build" | "search"
	Detail    string
	At        time.Time
}
