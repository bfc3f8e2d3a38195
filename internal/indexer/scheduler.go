// Package indexer implements C8: the orchestrator that owns building,
// incrementally extending, and compacting a TM's index artefacts, per
// the full/incremental/compaction protocols and trigger table of
// spec.md §4.3. A bounded worker pool services a process-wide job queue;
// a per-TM mutex (grounded on the teacher's per-resource locking
// discipline in internal/storage/dolt/access_lock.go, adapted from a
// cross-process flock to an in-process sync.Map of *sync.Mutex since
// this lock only needs to coordinate goroutines in one process) ensures
// at-most-one concurrent build per TM while unrelated TMs build in
// parallel.
package indexer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/neilvibe/tm-core/internal/config"
	"github.com/neilvibe/tm-core/internal/embedding"
	"github.com/neilvibe/tm-core/internal/errs"
	"github.com/neilvibe/tm-core/internal/storage"
	"github.com/neilvibe/tm-core/internal/telemetry"
	"github.com/neilvibe/tm-core/internal/types"
)

const defaultJobQueueSize = 1024

// JobKind names one of the scheduling triggers of spec.md §4.3.
type JobKind string

const (
	JobFullBuild     JobKind = "full_build"
	JobIncrementalAdd JobKind = "incremental_add"
	JobCompaction    JobKind = "compaction"
)

// Job is one unit of background work the scheduler's worker pool drains.
type Job struct {
	Kind     JobKind
	TMID     int64
	Repos    *storage.Repositories
	Entries  []*types.TMEntry // populated for JobIncrementalAdd
}

// Indexer is the C8 orchestrator. Build/IncrementalAdd (build.go,
// incremental.go) do the actual artefact work; this file owns the
// background job queue, worker pool, and trigger-table dispatch.
type Indexer struct {
	artefactRoot string
	provider     embedding.Provider
	metrics      *telemetry.Metrics
	tombstoneRatio float64

	cache *artefactCache

	locks sync.Map // map[int64]*sync.Mutex, keyed by TM id

	jobs    chan Job
	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// New builds an Indexer. parallelism<=0 resolves to min(4, NumCPU) per
// spec.md §5's documented default.
func New(cfg *config.Config, provider embedding.Provider, metrics *telemetry.Metrics) *Indexer {
	workers := cfg.IndexBuildParallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 4 {
			workers = 4
		}
	}
	return &Indexer{
		artefactRoot:   cfg.IndexArtefactDir,
		provider:       provider,
		metrics:        metrics,
		tombstoneRatio: cfg.CompactionTombstoneRatio,
		cache:          newArtefactCache(cfg.IndexArtefactDir, 64),
		jobs:           make(chan Job, defaultJobQueueSize),
		workers:        workers,
	}
}

// Start launches the worker pool. Workers run until ctx is cancelled or
// Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	ix.cancel = cancel
	for i := 0; i < ix.workers; i++ {
		ix.wg.Add(1)
		go ix.runWorker(ctx)
	}
}

// Stop drains no further jobs and waits for in-flight jobs to observe
// cancellation at their next batch boundary.
func (ix *Indexer) Stop() {
	if ix.cancel != nil {
		ix.cancel()
	}
	ix.wg.Wait()
}

func (ix *Indexer) runWorker(ctx context.Context) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ix.jobs:
			if !ok {
				return
			}
			ix.runJob(ctx, job)
		}
	}
}

func (ix *Indexer) runJob(ctx context.Context, job Job) {
	var err error
	switch job.Kind {
	case JobFullBuild, JobCompaction:
		err = ix.Build(ctx, job.Repos, job.TMID)
	case JobIncrementalAdd:
		err = ix.IncrementalAdd(ctx, job.Repos, job.TMID, job.Entries)
	default:
		err = fmt.Errorf("indexer: unknown job kind %q", job.Kind)
	}
	if err != nil && !errs.IsInternal(err) {
		// logging is the caller's concern in this core; errs already
		// classifies the outcome kind for whoever surfaces it.
		_ = err
	}
}

// enqueue submits job without blocking the caller; a full queue drops
// the job rather than stalling a request-handling goroutine, matching
// spec.md §5's "request-handling threads do not block on builds."
func (ix *Indexer) enqueue(job Job) error {
	select {
	case ix.jobs <- job:
		return nil
	default:
		return fmt.Errorf("indexer: job queue full, dropping %s job for TM %d", job.Kind, job.TMID)
	}
}

// OnTMCreated schedules a full build for a newly imported TM.
func (ix *Indexer) OnTMCreated(repos *storage.Repositories, tmID int64) error {
	return ix.enqueue(Job{Kind: JobFullBuild, TMID: tmID, Repos: repos})
}

// OnBulkInsert schedules an incremental add for pure insertions into an
// already-indexed TM.
func (ix *Indexer) OnBulkInsert(repos *storage.Repositories, tmID int64, entries []*types.TMEntry) error {
	return ix.enqueue(Job{Kind: JobIncrementalAdd, TMID: tmID, Repos: repos, Entries: entries})
}

// OnUpdateOrDelete schedules a full rebuild, since HNSW does not support
// in-place vector removal or mutation.
func (ix *Indexer) OnUpdateOrDelete(repos *storage.Repositories, tmID int64) error {
	return ix.enqueue(Job{Kind: JobFullBuild, TMID: tmID, Repos: repos})
}

// OnProviderChanged schedules a full rebuild for a TM whose artefacts
// were built under a different embedding provider. Callers detect this
// by comparing a loaded Artefacts.Meta.Dimension (or ProviderID) against
// the active provider before trusting a cache hit.
func (ix *Indexer) OnProviderChanged(repos *storage.Repositories, tmID int64) error {
	return ix.enqueue(Job{Kind: JobFullBuild, TMID: tmID, Repos: repos})
}

// ProviderMismatch reports whether a's artefacts were built under a
// different provider than the one currently active, the load-time check
// spec.md §4.3's trigger table names.
func (ix *Indexer) ProviderMismatch(a *Artefacts) bool {
	return a.Meta.ProviderID != ix.provider.ID() || a.Meta.Dimension != ix.provider.Dimension()
}

// OnLoginSync walks the TMs visible to a viewer and enqueues a sync
// (full rebuild, the safe default when the caller cannot distinguish
// pure insertions from updates/deletes) for each one that is stale per
// types.TM.Stale.
func (ix *Indexer) OnLoginSync(repos *storage.Repositories, tms []*types.TM, maxEntryUpdatedAt func(tmID int64) time.Time) {
	for _, tm := range tms {
		if tm.Stale(maxEntryUpdatedAt(tm.ID)) {
			_ = ix.enqueue(Job{Kind: JobFullBuild, TMID: tm.ID, Repos: repos})
		}
	}
}

// ForceRebuild schedules an unconditional full rebuild, for the
// explicit "build indexes" request.
func (ix *Indexer) ForceRebuild(repos *storage.Repositories, tmID int64) error {
	return ix.enqueue(Job{Kind: JobFullBuild, TMID: tmID, Repos: repos})
}

// Artefacts returns tmID's currently published artefacts for the
// cascade matcher to query, loading from disk on first use and caching
// for the process lifetime per spec.md §5. repos is only used to enqueue
// a rebuild on a provider mismatch; it is never read from directly.
func (ix *Indexer) Artefacts(repos *storage.Repositories, tmID int64) (*Artefacts, error) {
	a, err := ix.cache.Get(tmID)
	if err != nil {
		return nil, errs.Wrapf(err, "indexer.artefacts.%d", tmID)
	}
	if ix.ProviderMismatch(a) {
		_ = ix.OnProviderChanged(repos, tmID)
		return nil, fmt.Errorf("indexer: TM %d artefacts built under provider %s, active provider is %s, rebuild scheduled: %w",
			tmID, a.Meta.ProviderID, ix.provider.ID(), errs.ErrIndexUnavailable)
	}
	return a, nil
}

// TombstoneRatio reports the fraction of a's whole_mapping rows marked
// tombstoned, the value spec.md §4.3's compaction trigger compares
// against compaction_tombstone_ratio.
func TombstoneRatio(a *Artefacts) float64 {
	if len(a.WholeMapping) == 0 {
		return 0
	}
	tombstoned := 0
	for _, row := range a.WholeMapping {
		if row.Tombstoned {
			tombstoned++
		}
	}
	return float64(tombstoned) / float64(len(a.WholeMapping))
}

// MaybeCompact schedules a compaction (full rebuild) job if tmID's
// tombstone ratio exceeds the configured threshold.
func (ix *Indexer) MaybeCompact(repos *storage.Repositories, tmID int64) error {
	a, err := ix.cache.Get(tmID)
	if err != nil {
		return nil // nothing to compact if it was never built
	}
	if TombstoneRatio(a) > ix.tombstoneRatio {
		return ix.enqueue(Job{Kind: JobCompaction, TMID: tmID, Repos: repos})
	}
	return nil
}

// lockTM returns an unlock function after acquiring tmID's build mutex,
// creating it on first use.
func (ix *Indexer) lockTM(tmID int64) func() {
	v, _ := ix.locks.LoadOrStore(tmID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (ix *Indexer) recordBuild(ctx context.Context, kind, outcome string, elapsed time.Duration) {
	if ix.metrics == nil {
		return
	}
	opt := metric.WithAttributes(telemetry.BuildKindAttr(kind), telemetry.BuildOutcomeAttr(outcome))
	ix.metrics.IndexBuilds.Add(ctx, 1, opt)
	ix.metrics.IndexBuildLatency.Record(ctx, float64(elapsed.Milliseconds()), opt)
}
