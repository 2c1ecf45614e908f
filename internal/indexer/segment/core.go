package segment

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
)

// Core is an open segment shared by every directory reader that contains
// it. It owns the lazily populated per-segment caches, so a reopen that keeps
// a segment also keeps its warmed caches.
type Core struct {
	*Reader
	name string
	refs atomic.Int32

	docs []atomic.Pointer[index.StoredFields]

	sortMu      sync.Mutex
	sortStrings map[string][]string
	sortInts    map[string][]int64
}

// OpenCore opens segment name in dir with one reference held by the caller.
func OpenCore(dir, name string) (*Core, error) {
	r, err := OpenReader(filepath.Join(dir, FileName(name)))
	if err != nil {
		return nil, fmt.Errorf("opening segment %s: %w", name, err)
	}
	c := &Core{
		Reader:      r,
		name:        name,
		docs:        make([]atomic.Pointer[index.StoredFields], r.DocCount()),
		sortStrings: make(map[string][]string),
		sortInts:    make(map[string][]int64),
	}
	c.refs.Store(1)
	return c, nil
}

func (c *Core) Name() string {
	return c.name
}

// IncRef takes another reference. It fails once the core has been closed.
func (c *Core) IncRef() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// DecRef drops a reference and closes the file when none remain.
func (c *Core) DecRef() error {
	n := c.refs.Add(-1)
	if n == 0 {
		return c.Reader.Close()
	}
	if n < 0 {
		return fmt.Errorf("segment %s released more times than acquired", c.name)
	}
	return nil
}

func (c *Core) RefCount() int32 {
	return c.refs.Load()
}

// CachedDocument returns the stored fields of doc, decoding them at most
// once per core.
func (c *Core) CachedDocument(doc uint32) (index.StoredFields, error) {
	if int(doc) >= len(c.docs) {
		return nil, fmt.Errorf("doc %d out of range (segment has %d)", doc, len(c.docs))
	}
	if p := c.docs[doc].Load(); p != nil {
		return *p, nil
	}
	fields, err := c.Reader.Document(doc)
	if err != nil {
		return nil, err
	}
	c.docs[doc].CompareAndSwap(nil, &fields)
	return fields, nil
}

// SortStrings returns the per-document values of a stored string field,
// building the column on first use.
func (c *Core) SortStrings(field string) ([]string, error) {
	c.sortMu.Lock()
	defer c.sortMu.Unlock()
	if col, ok := c.sortStrings[field]; ok {
		return col, nil
	}
	col := make([]string, c.DocCount())
	for doc := range col {
		fields, err := c.CachedDocument(uint32(doc))
		if err != nil {
			return nil, fmt.Errorf("building sort column %s: %w", field, err)
		}
		col[doc] = fields.Get(field)
	}
	c.sortStrings[field] = col
	return col, nil
}

// SortInts is SortStrings for integer fields. Missing or unparsable values
// sort as zero.
func (c *Core) SortInts(field string) ([]int64, error) {
	c.sortMu.Lock()
	defer c.sortMu.Unlock()
	if col, ok := c.sortInts[field]; ok {
		return col, nil
	}
	col := make([]int64, c.DocCount())
	for doc := range col {
		fields, err := c.CachedDocument(uint32(doc))
		if err != nil {
			return nil, fmt.Errorf("building sort column %s: %w", field, err)
		}
		if v, err := strconv.ParseInt(fields.Get(field), 10, 64); err == nil {
			col[doc] = v
		}
	}
	c.sortInts[field] = col
	return col, nil
}

// CacheStats reports how much of the core has been materialized.
func (c *Core) CacheStats() (cachedDocs int, sortColumns int) {
	for i := range c.docs {
		if c.docs[i].Load() != nil {
			cachedDocs++
		}
	}
	c.sortMu.Lock()
	sortColumns = len(c.sortStrings) + len(c.sortInts)
	c.sortMu.Unlock()
	return cachedDocs, sortColumns
}
