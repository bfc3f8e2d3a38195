// Package vectorindex implements C6: a per-TM approximate nearest
// neighbour index over L2-normalised embedding vectors, wrapping
// github.com/coder/hnsw. Each TM gets two independent Index values (one
// over whole-source vectors, one over per-line vectors); internal/indexer
// owns building, appending to, and snapshotting both under the
// atomic directory-swap protocol spec.md §4.3 describes — this package
// only knows how to hold vectors and answer nearest-neighbour queries
// for a single graph.
package vectorindex

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/coder/hnsw"
)

// Profile names a fixed HNSW parameter set, chosen once per process
// rather than tuned per TM, per spec.md §4.3's "fixed HNSW parameters
// chosen by profile" wording.
type Profile struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultProfile matches spec.md §4.3's stated default: M=32,
// efConstruction=200, metric=inner product on L2-normalised vectors
// (i.e. cosine).
var DefaultProfile = Profile{M: 32, EfConstruction: 200, EfSearch: 64}

// Hit is one nearest-neighbour result.
type Hit struct {
	EntryID  int64
	Distance float32
}

// Index wraps one hnsw.Graph keyed by entry id, holding vectors of a
// fixed dimension. Safe for concurrent Search calls; Append takes an
// exclusive lock and Snapshot a shared one, since they mutate or walk
// the underlying graph structure.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	dim   int
}

// New builds an empty Index over vectors of the given dimension, using
// profile's M and EfSearch; profile.EfConstruction is not applied to the
// graph.
func New(dim int, profile Profile) *Index {
	g := hnsw.NewGraph[int64]()
	g.M = profile.M
	g.Ml = 1 / float64(profile.M) // coder/hnsw's default level-generation factor, tied to M
	g.EfSearch = profile.EfSearch
	g.Distance = hnsw.CosineDistance

	return &Index{graph: g, dim: dim}
}

// Dimension is the fixed vector length this Index was built for.
func (ix *Index) Dimension() int { return ix.dim }

// Len returns the number of vectors currently indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// Append adds vec under entryID to the graph. Used for both the initial
// full build (called once per entry) and the incremental-add protocol
// (called only for newly inserted entries).
func (ix *Index) Append(entryID int64, vec []float32) error {
	if len(vec) != ix.dim {
		return fmt.Errorf("vectorindex: vector has dimension %d, index expects %d", len(vec), ix.dim)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph.Add(hnsw.MakeNode(entryID, hnsw.Vector(vec)))
	return nil
}

// AppendBatch is Append for many vectors at once, sized for a full
// build's batch-by-batch insertion.
func (ix *Index) AppendBatch(entryIDs []int64, vectors [][]float32) error {
	if len(entryIDs) != len(vectors) {
		return errors.New("vectorindex: entryIDs and vectors length mismatch")
	}
	nodes := make([]hnsw.Node[int64], len(entryIDs))
	for i, id := range entryIDs {
		if len(vectors[i]) != ix.dim {
			return fmt.Errorf("vectorindex: vector %d has dimension %d, index expects %d", i, len(vectors[i]), ix.dim)
		}
		nodes[i] = hnsw.MakeNode(id, hnsw.Vector(vectors[i]))
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.graph.Add(nodes...)
	return nil
}

// Search returns the k nearest neighbours of query, nearest first. An
// empty graph returns no hits rather than an error — the cascade matcher
// treats "no candidates" as "descend to the next tier," not a failure.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("vectorindex: query has dimension %d, index expects %d", len(query), ix.dim)
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.graph.Len() == 0 {
		return nil, nil
	}
	nodes := ix.graph.Search(hnsw.Vector(query), k)
	hits := make([]Hit, len(nodes))
	for i, n := range nodes {
		hits[i] = Hit{EntryID: n.Key, Distance: hnsw.CosineDistance(hnsw.Vector(query), n.Value)}
	}
	return hits, nil
}

// Snapshot serialises the graph to w. Persisting the two independent
// Index values (whole/line) under the on-disk atomic directory-swap
// protocol is internal/indexer's job, not this package's — Snapshot only
// needs to produce bytes a later Load call can read back.
func (ix *Index) Snapshot(w io.Writer) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return hnsw.Export(ix.graph, w)
}

// Load rebuilds an Index of the given dimension from bytes previously
// written by Snapshot.
func Load(r io.Reader, dim int) (*Index, error) {
	g, err := hnsw.Import[int64](r)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: loading graph: %w", err)
	}
	return &Index{graph: g, dim: dim}, nil
}
