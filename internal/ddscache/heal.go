package ddscache

import (
	"image"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/chunkdecode"
	"github.com/ddscache/ddscached/internal/compress"
	"github.com/ddscache/ddscached/internal/dds"
	"github.com/ddscache/ddscached/internal/ddm"
)

// acquireHealGuard admits exactly one healer per (id, maxZoom) at a time;
// a duplicate attempt fast-fails rather than blocking.
func (c *Cache) acquireHealGuard(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healing[key] {
		return false
	}
	c.healing[key] = true
	return true
}

func (c *Cache) releaseHealGuard(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.healing, key)
}

// PatchMissingChunks reconstructs the given mm0 chunks in place and writes
// the corresponding block data into every mipmap level a 256px chunk still
// covers. Uncompressed and compressed artifacts are handled uniformly:
// patches are always applied to an in-memory copy of the full DDS buffer (a
// compressed artifact is decompressed first), then the whole buffer is
// rewritten atomically, since the per-key guard already serializes healers
// and a second in-flight writer for the same key cannot exist.
func (c *Cache) PatchMissingChunks(id cachepath.Identity, maxZoom int, chunks map[int][]byte, cacheRootForBundle string) bool {
	key := Key{ID: id, MaxZoom: maxZoom}
	if !c.acquireHealGuard(key) {
		return false
	}
	defer c.releaseHealGuard(key)

	entry, ok := c.lookup(key)
	if !ok {
		return false
	}
	rec, err := ddm.Read(entry.ddmPath)
	if err != nil {
		return false
	}

	data, ok := c.Load(id, maxZoom, nil, cacheRootForBundle)
	if !ok {
		return false
	}
	layout, err := dds.ParseHeader(data)
	if err != nil {
		return false
	}

	cpr := chunksPerRow(layout.Width)
	blockSize := layout.Format.BlockSize()

	missing := make(map[int]bool, len(rec.MissingIndices))
	for _, idx := range rec.MissingIndices {
		missing[idx] = true
	}

	for idx, jpegBytes := range chunks {
		if !missing[idx] {
			continue
		}
		rgba, err := chunkdecode.Decode(jpegBytes)
		if err != nil {
			c.logger.Printf("ddscache: heal: decode chunk %d for %+v: %v", idx, id, err)
			continue
		}
		cx, cy := idx%cpr, idx/cpr

		if !applyChunk(data, layout, rgba, cx, cy, blockSize) {
			continue
		}
		delete(missing, idx)
	}

	newLayout := layout
	newRec := buildRecord(id, maxZoom, newLayout, layout.Format, rec.Compressor, rec.BundleMtime, ddm.SortedIndices(missing), rec.DiskCompression, rec.DiskCompressionLevel)

	diskBytes := data
	if rec.DiskCompression == "zstd" {
		wrapped, ok, err := ZstdCompression{Level: rec.DiskCompressionLevel}.Wrap(data)
		if err == nil && ok {
			diskBytes = wrapped
		} else {
			newRec.DiskCompression = "none"
		}
	}

	paths := cachepath.Resolve(c.cacheRoot, id, maxZoom)
	if err := atomicWritePair(paths, diskBytes, newRec); err != nil {
		c.logger.Printf("ddscache: heal: write %+v z%d: %v", id, maxZoom, err)
		return false
	}
	c.insert(key, paths.DDS, paths.DDM, int64(len(diskBytes)))

	c.mu.Lock()
	c.heals++
	c.mu.Unlock()

	return true
}

// applyChunk writes one decoded source chunk into every mipmap level of
// data whose chunk-pixel-size (256>>i) is still at least 4.
func applyChunk(data []byte, layout *dds.Layout, rgba *image.RGBA, cx, cy, blockSize int) bool {
	wrote := false
	for i := 0; i < layout.MipmapCount(); i++ {
		s := chunkSizePx >> uint(i)
		if s < 4 {
			break
		}
		mm, ok := layout.At(i)
		if !ok {
			break
		}

		resized := chunkdecode.ResizeTo(rgba, s)
		blockData, err := compress.CompressRGBAToBlocks(resized, s, s, layout.Format)
		if err != nil {
			continue
		}

		blocksPerChunk := s / 4
		wBlocks := mm.Width / 4
		blockX := cx * blocksPerChunk
		blockY := cy * blocksPerChunk

		for k := 0; k < blocksPerChunk; k++ {
			stripeStart := k * blocksPerChunk * blockSize
			stripeEnd := stripeStart + blocksPerChunk*blockSize
			if stripeEnd > len(blockData) {
				break
			}
			offset := mm.StartPos + int64((blockY+k)*wBlocks*blockSize+blockX*blockSize)
			end := offset + int64(blocksPerChunk*blockSize)
			if end > int64(len(data)) || offset < mm.StartPos {
				continue
			}
			copy(data[offset:end], blockData[stripeStart:stripeEnd])
			wrote = true
		}
	}
	return wrote
}
