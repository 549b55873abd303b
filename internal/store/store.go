// Package store implements the process-wide handle cache (C3): a bounded
// LRU of open record stores, each pairing a data file with its OID index.
// The explicit doubly-linked-list-plus-map LRU shape follows the
// container/list pattern the example pack uses for bounded ordered
// collections (see ProbeChain-go-probe's SortedLinkedList); spec.md §4.3/§5
// calls for no locking since the dispatcher is single-threaded, so unlike
// that reference this cache carries no mutex by default.
package store

import (
	"container/list"
	"fmt"
	"log"

	"github.com/dmukherjee/snmprecsim/internal/recfile"
	"github.com/dmukherjee/snmprecsim/internal/recindex"
)

// RecordStore is one agent's open data file plus its index. AgentID is the
// data-directory-relative path (minus extension, 'self' stripped) that
// identifies it in the context table (internal/selector).
type RecordStore struct {
	AgentID  string
	DataPath string

	file *recfile.File
	idx  *recindex.Index
}

// Ensure lazily (re)opens the store's file and index if they were evicted
// (or never opened), the behavior spec.md §4.3 requires: "the store object
// itself remains valid and will reopen on next lookup."
func (s *RecordStore) Ensure(opts OpenOptions) error {
	if s.file != nil && s.idx != nil {
		return nil
	}
	f, idx, err := openDataFile(s.DataPath, opts)
	if err != nil {
		return err
	}
	s.file = f
	s.idx = idx
	return nil
}

// File returns the store's open record file, nil if Ensure has not been
// called or the store is currently evicted.
func (s *RecordStore) File() *recfile.File { return s.file }

// Index returns the store's open OID index, nil if Ensure has not been
// called or the store is currently evicted.
func (s *RecordStore) Index() *recindex.Index { return s.idx }

// close drops the open file descriptors held by this store without
// invalidating the RecordStore value itself, matching spec.md §4.3's
// eviction contract: "Eviction only closes file descriptors; the store
// object itself remains valid."
func (s *RecordStore) close() {
	s.file = nil
	s.idx = nil
}

// OpenOptions configures how a data file's index is obtained.
type OpenOptions struct {
	// CacheDir, if set, is where rebuilt indices are written instead of
	// beside the data file (for read-only data directories).
	CacheDir string
	// ForceRebuild ignores any existing sidecar index and rebuilds.
	ForceRebuild bool
	// Validate performs a full linear-scan cross-check of the loaded
	// index against the data file, rebuilding on any mismatch.
	Validate bool
}

func openDataFile(path string, opts OpenOptions) (*recfile.File, *recindex.Index, error) {
	f, err := recfile.Open(path)
	if err != nil {
		return nil, nil, err
	}

	idxPath := path
	if opts.CacheDir != "" {
		idxPath = opts.CacheDir + "/" + sanitizeForCache(path)
	}

	state := recindex.Missing
	if !opts.ForceRebuild {
		state, err = recindex.Stat(idxPath)
		if err != nil {
			return nil, nil, err
		}
	}

	var idx *recindex.Index
	switch state {
	case recindex.Fresh:
		idx, err = recindex.Load(idxPath)
		if err != nil {
			log.Printf("store: index load failed for %s, rebuilding: %v", path, err)
			state = recindex.Stale
		}
	}

	if state != recindex.Fresh {
		idx, err = recindex.Build(f)
		if err != nil {
			return nil, nil, fmt.Errorf("store: building index for %s: %w", path, err)
		}
		if err := idx.Save(idxPath); err != nil {
			log.Printf("store: could not persist index for %s: %v", path, err)
		}
	}

	if opts.Validate {
		if err := recindex.Validate(f, idx); err != nil {
			log.Printf("store: validation failed for %s, rebuilding: %v", path, err)
			idx, err = recindex.Build(f)
			if err != nil {
				return nil, nil, fmt.Errorf("store: rebuilding index for %s: %w", path, err)
			}
			if err := idx.Save(idxPath); err != nil {
				log.Printf("store: could not persist rebuilt index for %s: %v", path, err)
			}
		}
	}

	return f, idx, nil
}

func sanitizeForCache(path string) string {
	out := make([]byte, 0, len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '/' || c == '\\' {
			c = '_'
		}
		out = append(out, c)
	}
	return string(out) + ".idx"
}

// HandleCache is the bounded LRU of open RecordStores described by
// spec.md §4.3. K is the maximum number of stores allowed to hold live
// file handles at once; opening store K+1 evicts the least-recently-used.
type HandleCache struct {
	capacity int
	opts     OpenOptions

	ll    *list.List               // MRU at Front, LRU at Back
	index map[string]*list.Element // AgentID -> element holding *RecordStore
}

// NewHandleCache constructs a cache capped at capacity live handles
// (spec.md's default is 31).
func NewHandleCache(capacity int, opts OpenOptions) *HandleCache {
	if capacity <= 0 {
		capacity = 31
	}
	return &HandleCache{
		capacity: capacity,
		opts:     opts,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Open returns the RecordStore for dataPath under agentID, opening or
// reopening it and promoting it to most-recently-used. If opening this
// store exceeds the cache's capacity, the least-recently-used store is
// evicted: its file handles are closed and it is dropped from the cache,
// so a later Open for that agent builds a fresh RecordStore.
func (c *HandleCache) Open(agentID, dataPath string) (*RecordStore, error) {
	if el, ok := c.index[agentID]; ok {
		c.ll.MoveToFront(el)
		s := el.Value.(*RecordStore)
		if err := s.Ensure(c.opts); err != nil {
			return nil, err
		}
		return s, nil
	}

	s := &RecordStore{AgentID: agentID, DataPath: dataPath}
	if err := s.Ensure(c.opts); err != nil {
		return nil, err
	}

	el := c.ll.PushFront(s)
	c.index[agentID] = el

	if c.ll.Len() > c.capacity {
		c.evictOldest()
	}
	return s, nil
}

// evictOldest closes the file handles of the least-recently-used store and
// removes it from both the list and the index; the next Open for that
// agent creates and opens a new RecordStore.
func (c *HandleCache) evictOldest() {
	oldest := c.ll.Back()
	if oldest == nil {
		return
	}
	c.ll.Remove(oldest)
	s := oldest.Value.(*RecordStore)
	s.close()
	delete(c.index, s.AgentID)
}

// Len reports how many stores currently hold live file handles.
func (c *HandleCache) Len() int { return c.ll.Len() }

// Has reports whether agentID currently has a live handle in the cache
// (used by tests to assert eviction behavior).
func (c *HandleCache) Has(agentID string) bool {
	_, ok := c.index[agentID]
	return ok
}
