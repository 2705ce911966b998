package ddscache

import (
	"os"

	"github.com/ddscache/ddscached/internal/bundle"
	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
	"github.com/ddscache/ddscached/internal/dds"
)

// Load returns the complete uncompressed DDS bytes for (id, maxZoom), or
// (nil, false) on miss, staleness, corruption, or a ZL mismatch. hints, if
// non-nil, receives upgrade/downgrade candidates and healing state.
func (c *Cache) Load(id cachepath.Identity, maxZoom int, hints *Hints, cacheRootForBundle string) ([]byte, bool) {
	key := Key{ID: id, MaxZoom: maxZoom}
	entry, ok := c.lookup(key)
	if !ok {
		c.recordMiss()
		if hints != nil {
			up, down := c.findAdjacent(id, maxZoom)
			hints.UpgradeAvailableTo = up
			hints.DowngradeAvailableTo = down
		}
		return nil, false
	}

	rec, err := ddm.Read(entry.ddmPath)
	if err != nil {
		c.dropEntry(key, entry)
		c.recordMiss()
		return nil, false
	}

	if stale := c.checkStale(rec, entry, id, cacheRootForBundle); stale {
		c.dropEntry(key, entry)
		c.recordMiss()
		return nil, false
	}

	raw, err := os.ReadFile(entry.ddsPath)
	if err != nil {
		c.recordMiss()
		return nil, false
	}

	data, err := c.compressionFor(rec.DiskCompression).Unwrap(raw)
	if err != nil {
		c.dropEntry(key, entry)
		c.recordMiss()
		return nil, false
	}

	c.touch(key)
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	if hints != nil {
		hints.NeedsHealing = rec.NeedsHealing
		hints.MissingIndices = append([]int(nil), rec.MissingIndices...)
		hints.PopulatedMipmaps = append([]int(nil), rec.PopulatedMipmaps...)
	}

	return data, true
}

// compressionFor resolves the capability that can decode an artifact
// written with the given disk_compression tag, independent of the cache's
// currently configured active compressor (an old zstd entry must still be
// readable after the config toggles back to none).
func (c *Cache) compressionFor(tag string) Compression {
	if tag == c.compression.Tag() {
		return c.compression
	}
	switch tag {
	case "zstd":
		return ZstdCompression{}
	default:
		return NoneCompression{}
	}
}

// checkStale evaluates the staleness rule set: format mismatch, compressor
// tag mismatch, uncompressed size mismatch, or a bundle that's been
// rewritten more recently than this artifact was built. A ZL mismatch is
// not staleness and is never reached here because the LRU key already
// encodes max_zoom.
func (c *Cache) checkStale(rec *ddm.Record, entry cacheEntry, id cachepath.Identity, cacheRootForBundle string) bool {
	if rec.Format != c.format.String() {
		return true
	}
	if rec.Compressor != c.compressorTag {
		return true
	}
	if rec.DiskCompression == "none" {
		format, err := dds.ParseFormat(rec.Format)
		if err == nil {
			layout := dds.NewLayout(rec.W, rec.H, format)
			expected := layout.TotalSize
			if entry.size != expected {
				return true
			}
		}
	}
	if rec.BundleMtime > 0 && cacheRootForBundle != "" {
		if mtime := bundle.Mtime(cacheRootForBundle, id); mtime > 0 && mtime > rec.BundleMtime {
			return true
		}
	}
	return false
}

// LoadMetadata reads the DDM sidecar without touching the DDS bytes.
func (c *Cache) LoadMetadata(id cachepath.Identity, maxZoom int) (*ddm.Record, bool) {
	key := Key{ID: id, MaxZoom: maxZoom}
	entry, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	rec, err := ddm.Read(entry.ddmPath)
	if err != nil {
		return nil, false
	}
	return rec, true
}

// dropEntry removes key from the LRU map and best-effort deletes its files,
// used for every staleness/corruption path: a mismatch means the pair is
// deleted and the caller sees a miss.
func (c *Cache) dropEntry(key Key, entry cacheEntry) {
	c.remove(key)
	os.Remove(entry.ddsPath)
	os.Remove(entry.ddmPath)
	c.mu.Lock()
	c.evictions++
	c.mu.Unlock()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// Invalidate removes the entry for (id, maxZoom) if present.
func (c *Cache) Invalidate(id cachepath.Identity, maxZoom int) bool {
	key := Key{ID: id, MaxZoom: maxZoom}
	entry, ok := c.remove(key)
	if !ok {
		return false
	}
	os.Remove(entry.ddsPath)
	os.Remove(entry.ddmPath)
	return true
}

// FindUpgradeCandidate reports whether a higher max_zoom entry for the same
// tile identity exists, without performing a full Load.
func (c *Cache) FindUpgradeCandidate(id cachepath.Identity, currentMaxZoom int) (int, bool) {
	up, _ := c.findAdjacent(id, currentMaxZoom)
	return up, up != 0
}
