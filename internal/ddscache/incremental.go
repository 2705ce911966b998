package ddscache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
	"github.com/ddscache/ddscached/internal/dds"
)

// StoreIncremental writes a subset of mipmaps into a (possibly brand new)
// artifact, merging with whatever was already populated. Already-populated
// indices are skipped so two concurrent writers for the same tile converge
// regardless of call order.
//
// Incremental writes always land as disk_compression="none": a partially
// built artifact is never worth paying frame overhead for, and
// MigrateUncompressed picks up compression once a later store* call
// completes it. An artifact is never both actively incremental and already
// wrapped in a zstd frame, since compression is only applied by Store on a
// complete buffer.
func (c *Cache) StoreIncremental(id cachepath.Identity, maxZoom int, format dds.Format, width, height int, mipmapBytes map[int][]byte, missingIndices []int, bundleMtime int64) bool {
	layout := dds.NewLayout(width, height, format)
	paths := cachepath.Resolve(c.cacheRoot, id, maxZoom)

	if err := os.MkdirAll(filepath.Dir(paths.DDS), 0o755); err != nil {
		c.logger.Printf("ddscache: store_incremental: mkdir: %v", err)
		return false
	}

	populated := make(map[int]bool)
	if prior, err := ddm.Read(paths.DDM); err == nil {
		for _, i := range prior.PopulatedMipmaps {
			populated[i] = true
		}
	} else if _, statErr := os.Stat(paths.DDS); os.IsNotExist(statErr) {
		// Brand new tile: preallocate a sparse skeleton sized for the full
		// artifact so later seek-writes never need to grow the file.
		if err := createSkeleton(paths.DDS, layout); err != nil {
			c.logger.Printf("ddscache: store_incremental: skeleton: %v", err)
			return false
		}
	}

	f, err := os.OpenFile(paths.DDS, os.O_RDWR, 0o644)
	if err != nil {
		c.logger.Printf("ddscache: store_incremental: open: %v", err)
		return false
	}
	defer f.Close()

	for i, data := range mipmapBytes {
		if populated[i] {
			continue
		}
		mm, ok := layout.At(i)
		if !ok || int64(len(data)) != mm.Length {
			continue
		}
		if _, err := f.WriteAt(data, mm.StartPos); err != nil {
			c.logger.Printf("ddscache: store_incremental: write mipmap %d: %v", i, err)
			return false
		}
		populated[i] = true
	}

	missing := make(map[int]bool, len(missingIndices))
	for _, idx := range missingIndices {
		missing[idx] = true
	}

	mm0Total := chunksPerRow(width) * chunksPerRow(height)
	rec := &ddm.Record{
		V: ddm.CurrentVersion, W: width, H: height, MM: layout.MipmapCount(),
		ZL: id.TilenameZoom, MaxZL: maxZoom,
		Format: format.String(), Compressor: c.compressorTag,
		Map: id.MapType, TileRow: id.Row, TileCol: id.Col,
		BundleMtime:          bundleMtime,
		Built:                time.Now().Unix(),
		Mipmaps:              ddm.BuildMipmapRecords(maxZoom, layout.MipmapCount(), mm0Total, populated, missing),
		PopulatedMipmaps:     ddm.SortedIndices(populated),
		NeedsHealing:         len(missing) > 0,
		HealingChunks:        len(missing),
		MissingIndices:       ddm.SortedIndices(missing),
		DiskCompression:      "none",
		DiskCompressionLevel: 0,
	}

	if err := ddm.Write(paths.DDM, rec); err != nil {
		c.logger.Printf("ddscache: store_incremental: ddm write: %v", err)
		return false
	}

	info, err := f.Stat()
	if err != nil {
		return false
	}
	c.insert(Key{ID: id, MaxZoom: maxZoom}, paths.DDS, paths.DDM, info.Size())
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return true
}

// createSkeleton writes the DDS header then truncates the file to the full
// expected size.
func createSkeleton(path string, layout *dds.Layout) error {
	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(layout.Header()); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Truncate(layout.TotalSize); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
