package indexer

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// artefactCache is the process-lifetime LRU cache spec.md §5 describes:
// "artefact loading is done at startup or first use and cached for the
// process lifetime (LRU by TM id); eviction = release the memory, next
// use triggers reload." hashicorp/golang-lru/v2 was already an indirect
// dependency of the teacher's stack (pulled in transitively); this is
// its first direct use, in exactly the generic-cache role it advertises.
type artefactCache struct {
	mu   sync.Mutex
	lru  *lru.Cache[int64, *Artefacts]
	root string
}

func newArtefactCache(root string, size int) *artefactCache {
	if size <= 0 {
		size = 64
	}
	c, _ := lru.New[int64, *Artefacts](size) // only errors on size<=0, already guarded
	return &artefactCache{lru: c, root: root}
}

// Get returns tmID's artefacts, loading them from disk on a cache miss.
// A TM with no build yet returns an error the caller should treat as
// index_unavailable per spec.md §7's propagation policy.
func (c *artefactCache) Get(tmID int64) (*Artefacts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if a, ok := c.lru.Get(tmID); ok {
		return a, nil
	}
	a, err := loadArtefacts(tmDir(c.root, tmID))
	if err != nil {
		return nil, fmt.Errorf("indexer: loading artefacts for TM %d: %w", tmID, err)
	}
	c.lru.Add(tmID, a)
	return a, nil
}

// Invalidate evicts tmID's cached artefacts, forcing the next Get to
// reload from whatever directory the most recent build swapped in.
func (c *artefactCache) Invalidate(tmID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(tmID)
}
