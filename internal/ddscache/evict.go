package ddscache

import (
	"container/list"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
)

// EvictLRU pops the oldest entries until at least bytesToFree have been
// reclaimed, deleting their files outside the protecting lock. Returns the
// number of bytes actually freed, which may exceed bytesToFree by the size
// of the last entry popped.
func (c *Cache) EvictLRU(bytesToFree int64) int64 {
	var victims []cacheEntry
	var freed int64

	c.mu.Lock()
	for freed < bytesToFree {
		front := c.lru.Front()
		if front == nil {
			break
		}
		entry := front.Value.(*cacheEntry)
		victims = append(victims, *entry)
		freed += entry.size
		c.lru.Remove(front)
		delete(c.entries, entry.key)
		c.totalBytes -= entry.size
		c.evictions++
	}
	c.mu.Unlock()

	for _, v := range victims {
		os.Remove(v.ddsPath)
		os.Remove(v.ddmPath)
	}
	return freed
}

// ScanExisting walks the cache tree once at startup, entering every DDS
// with a valid paired DDM into the LRU using file mtime as initial
// recency, and deleting any DDS that lacks a parseable DDM (an orphan).
// After the walk the whole map is re-sorted by recency, oldest first,
// rather than built up in incremental insert order.
func (c *Cache) ScanExisting() (int, error) {
	root := filepath.Join(c.cacheRoot, "dds_cache")
	type found struct {
		key        Key
		ddsPath    string
		ddmPath    string
		size       int64
		lastAccess int64
	}
	var all []found

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".dds") {
			return nil
		}
		ddmPath := strings.TrimSuffix(path, ".dds") + ".ddm"
		rec, err := ddm.Read(ddmPath)
		if err != nil {
			os.Remove(path)
			return nil
		}
		id := cachepath.Identity{Row: rec.TileRow, Col: rec.TileCol, MapType: rec.Map, TilenameZoom: rec.ZL}
		all = append(all, found{
			key:        Key{ID: id, MaxZoom: rec.MaxZL},
			ddsPath:    path,
			ddmPath:    ddmPath,
			size:       info.Size(),
			lastAccess: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].lastAccess < all[j].lastAccess })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*list.Element, len(all))
	c.lru = list.New()
	c.totalBytes = 0
	for _, f := range all {
		entry := &cacheEntry{key: f.key, ddsPath: f.ddsPath, ddmPath: f.ddmPath, size: f.size}
		el := c.lru.PushBack(entry)
		c.entries[f.key] = el
		c.totalBytes += f.size
	}
	return len(all), nil
}

// MigrateUncompressed rewrites entries stored under disk_compression="none"
// to the currently configured compression capability, used when config
// tightens compression after entries already exist.
func (c *Cache) MigrateUncompressed(cacheRootForBundle string) (int, error) {
	if _, ok := c.compression.(NoneCompression); ok {
		return 0, nil
	}

	c.mu.Lock()
	var keys []Key
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	migrated := 0
	for _, key := range keys {
		rec, ok := c.LoadMetadata(key.ID, key.MaxZoom)
		if !ok || rec.DiskCompression != "none" {
			continue
		}
		hints := &Hints{}
		data, ok := c.Load(key.ID, key.MaxZoom, hints, cacheRootForBundle)
		if !ok {
			continue
		}
		missing := rec.MissingIndices
		if c.Store(key.ID, key.MaxZoom, data, missing, cacheRootForBundle) {
			migrated++
		}
	}
	return migrated, nil
}
