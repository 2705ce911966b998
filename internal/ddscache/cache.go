// Package ddscache implements the persistent DDS build-and-serve cache,
// the core of the system: atomic crash-safe storage, incremental mipmap
// population, in-place healing, single-step zoom-level upgrade/downgrade,
// LRU tracking, and optional transparent compression.
//
// A single mutex protects the LRU mapping, usage counter, and in-flight
// healing guard set; critical sections are metadata-only. All bulk I/O and
// block compression happen outside the lock.
package ddscache

import (
	"container/list"
	"log"
	"sync"
	"time"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
)

// Key identifies one LRU entry: a tile identity at a specific max_zoom.
// Two artifacts for the same tile at different max_zoom coexist only
// transiently during upgrade/downgrade.
type Key struct {
	ID      cachepath.Identity
	MaxZoom int
}

// Hints carries out-of-band signals the cache sets on a load or store call:
// one-shot upgrade/downgrade candidates, and the set of mm0 chunks still
// missing from an incomplete artifact.
type Hints struct {
	UpgradeAvailableTo   int // 0 = none
	DowngradeAvailableTo int // 0 = none
	NeedsHealing         bool
	MissingIndices       []int
	PopulatedMipmaps     []int
}

// Stats reports cumulative operation counters and tracked usage.
type Stats struct {
	Hits       int64
	Misses     int64
	Stores     int64
	Evictions  int64
	Heals      int64
	TotalBytes int64
}

type cacheEntry struct {
	key        Key
	ddsPath    string
	ddmPath    string
	size       int64
	lastAccess time.Time
}

// Cache is the persistent DDS cache.
type Cache struct {
	cacheRoot     string
	format        dds.Format
	compressorTag string
	compression   Compression
	logger        *log.Logger

	mu         sync.Mutex
	entries    map[Key]*list.Element
	lru        *list.List // back = most recently used, front = oldest
	totalBytes int64
	healing    map[Key]bool

	hits, misses, stores, evictions, heals int64
}

// Options configures a new Cache.
type Options struct {
	CacheRoot     string
	Format        dds.Format
	CompressorTag string
	Compression   Compression // nil defaults to NoneCompression
	Logger        *log.Logger
}

// New constructs an empty Cache. Callers should call ScanExisting to
// populate it from a pre-existing on-disk tree before serving traffic.
func New(opts Options) *Cache {
	comp := opts.Compression
	if comp == nil {
		comp = NoneCompression{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{
		cacheRoot:     opts.CacheRoot,
		format:        opts.Format,
		compressorTag: opts.CompressorTag,
		compression:   comp,
		logger:        logger,
		entries:       make(map[Key]*list.Element),
		lru:           list.New(),
		healing:       make(map[Key]bool),
	}
}

// Stats returns a snapshot of cumulative counters and tracked usage.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits: c.hits, Misses: c.misses, Stores: c.stores,
		Evictions: c.evictions, Heals: c.heals,
		TotalBytes: c.totalBytes,
	}
}

// GetDiskUsage returns the total bytes currently tracked across all
// entries.
func (c *Cache) GetDiskUsage() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Contains reports whether an entry exists for (id, maxZoom), without
// reading its contents (stat only, via the in-memory map populated by
// ScanExisting/store).
func (c *Cache) Contains(id cachepath.Identity, maxZoom int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[Key{ID: id, MaxZoom: maxZoom}]
	return ok
}

// lookup returns a copy of the entry's small tuple (paths, size) under the
// lock, without touching recency — callers that will mutate recency call
// touch separately once the operation that justifies it succeeds.
func (c *Cache) lookup(key Key) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	return *el.Value.(*cacheEntry), true
}

// touch moves key to the most-recently-used end and updates lastAccess.
func (c *Cache) touch(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return
	}
	entry := el.Value.(*cacheEntry)
	entry.lastAccess = time.Now()
	c.lru.MoveToBack(el)
}

// insert inserts or replaces the entry for key, accounting for the size
// delta against the previous entry if one existed.
func (c *Cache) insert(key Key, ddsPath, ddmPath string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		old := el.Value.(*cacheEntry)
		c.totalBytes -= old.size
		old.ddsPath = ddsPath
		old.ddmPath = ddmPath
		old.size = size
		old.lastAccess = time.Now()
		c.lru.MoveToBack(el)
		c.totalBytes += size
		return
	}
	entry := &cacheEntry{key: key, ddsPath: ddsPath, ddmPath: ddmPath, size: size, lastAccess: time.Now()}
	el := c.lru.PushBack(entry)
	c.entries[key] = el
	c.totalBytes += size
}

// remove deletes key from the LRU map and returns the removed entry (for
// the caller to delete files with, outside the lock), if present.
func (c *Cache) remove(key Key) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return cacheEntry{}, false
	}
	entry := *el.Value.(*cacheEntry)
	c.lru.Remove(el)
	delete(c.entries, key)
	c.totalBytes -= entry.size
	return entry, true
}

// findAdjacent looks for an existing entry at the same tile identity but
// max_zoom+1 or max_zoom-1, for the upgrade/downgrade hint mechanism.
func (c *Cache) findAdjacent(id cachepath.Identity, maxZoom int) (upgrade, downgrade int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[Key{ID: id, MaxZoom: maxZoom + 1}]; ok {
		upgrade = maxZoom + 1
	}
	if _, ok := c.entries[Key{ID: id, MaxZoom: maxZoom - 1}]; ok {
		downgrade = maxZoom - 1
	}
	return
}
