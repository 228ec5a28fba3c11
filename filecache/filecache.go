// Package filecache is a process-wide, reference-counted cache of
// memory-mapped read-only regions, keyed by host-native path. Concurrent
// acquires of the same live path return the same mapping; the mapping is
// unmapped and the cache entry erased when its last holder releases it.
package filecache

import (
	"fmt"
	"sync"
)

// entry is the shared state behind every outstanding Handle for one path.
type entry struct {
	path string
	data []byte         // nil for a zero-length file
	refs int
	unmap func() error // releases platform mapping resources; nil for a zero-length file
}

// Cache is a single mutex-guarded map from path to live entry. The zero
// value is ready to use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache returns an empty cache. Scoping a Cache per-server (rather than
// using the package-level Default) is supported for callers that want
// independent mmap lifetimes per embedded server instance.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Default is the process-wide cache instance used by Acquire.
var Default = NewCache()

// Acquire returns a shared, reference-counted mapping of the file at path.
// If the file is already mapped and live, the existing mapping is returned
// and its reference count incremented; otherwise the file is opened and
// mapped fresh.
func Acquire(path string) (*Handle, error) {
	return Default.Acquire(path)
}

// Handle is a single holder's reference to a cached mapping. Bytes returns
// the file's full contents (nil, not empty, for a zero-length file); the
// slice is valid until Release is called. Release must be called exactly
// once.
type Handle struct {
	cache    *Cache
	entry    *entry
	released bool
}

// Bytes returns the mapped file contents.
func (h *Handle) Bytes() []byte {
	return h.entry.data
}

// Release decrements the reference count. On the last release the mapping
// is unmapped and the cache entry for its path is erased.
func (h *Handle) Release() error {
	if h.released {
		return nil
	}
	h.released = true
	return h.cache.release(h.entry)
}

// Acquire maps path, sharing an existing live mapping if one exists.
func (c *Cache) Acquire(path string) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		e.refs++
		c.mu.Unlock()
		return &Handle{cache: c, entry: e}, nil
	}
	c.mu.Unlock()

	// Open and map outside the lock: mapping a large file shouldn't block
	// unrelated lookups. A second caller racing to map the same new path
	// is resolved right after, under the lock.
	data, closer, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("filecache: open %s: %w", path, err)
	}

	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		// Another goroutine won the race; use its mapping and discard ours.
		e.refs++
		c.mu.Unlock()
		if closer != nil {
			closer()
		}
		return &Handle{cache: c, entry: e}, nil
	}
	e := &entry{path: path, data: data, refs: 1}
	e.unmap = closer
	if c.entries == nil {
		c.entries = make(map[string]*entry)
	}
	c.entries[path] = e
	c.mu.Unlock()

	return &Handle{cache: c, entry: e}, nil
}

func (c *Cache) release(e *entry) error {
	c.mu.Lock()
	e.refs--
	if e.refs > 0 {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, e.path)
	c.mu.Unlock()

	if e.unmap != nil {
		return e.unmap()
	}
	return nil
}

