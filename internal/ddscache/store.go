package ddscache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ddscache/ddscached/internal/bundle"
	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
	"github.com/ddscache/ddscached/internal/dds"
)

// atomicWritePair implements the atomic write protocol: DDS bytes are
// flushed and renamed into place before the DDM sidecar is even attempted,
// so a crash between the two leaves a recoverable orphan DDS rather than a
// DDM pointing at missing bytes.
func atomicWritePair(paths cachepath.Paths, ddsBytes []byte, rec *ddm.Record) error {
	dir := filepath.Dir(paths.DDS)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrIOFailure, dir, err)
	}

	ddsTmp := fmt.Sprintf("%s.tmp.%d", paths.DDS, os.Getpid())
	if err := os.WriteFile(ddsTmp, ddsBytes, 0o644); err != nil {
		os.Remove(ddsTmp)
		return fmt.Errorf("%w: write %s: %v", ErrIOFailure, ddsTmp, err)
	}
	if err := os.Rename(ddsTmp, paths.DDS); err != nil {
		os.Remove(ddsTmp)
		return fmt.Errorf("%w: rename %s: %v", ErrIOFailure, ddsTmp, err)
	}

	if err := ddm.Write(paths.DDM, rec); err != nil {
		// DDS is already durable; leave it for the next scan to reclaim as
		// an orphan rather than trying to undo the rename here.
		return fmt.Errorf("%w: ddm write: %v", ErrIOFailure, err)
	}
	return nil
}

// Store durably writes a complete DDS artifact and its DDM sidecar,
// replacing any prior entry at the same key.
func (c *Cache) Store(id cachepath.Identity, maxZoom int, data []byte, missingIndices []int, cacheRootForBundle string) bool {
	layout, err := dds.ParseHeader(data)
	if err != nil {
		c.logger.Printf("ddscache: store: bad header for %+v z%d: %v", id, maxZoom, err)
		return false
	}
	expected := layout.TotalSize
	if int64(len(data)) != expected {
		c.logger.Printf("ddscache: store: size mismatch for %+v z%d: got %d want %d", id, maxZoom, len(data), expected)
		return false
	}

	paths := cachepath.Resolve(c.cacheRoot, id, maxZoom)

	var bundleMtime int64
	if cacheRootForBundle != "" {
		bundleMtime = bundle.Mtime(cacheRootForBundle, id)
	}

	diskBytes, diskCompression, err := c.encodeForDisk(data)
	if err != nil {
		c.logger.Printf("ddscache: store: compress %+v z%d: %v", id, maxZoom, err)
		return false
	}

	rec := buildRecord(id, maxZoom, layout, c.format, c.compressorTag, bundleMtime, missingIndices, diskCompression, c.compressionLevel())

	if err := atomicWritePair(paths, diskBytes, rec); err != nil {
		c.logger.Printf("ddscache: store: %v", err)
		return false
	}

	c.insert(Key{ID: id, MaxZoom: maxZoom}, paths.DDS, paths.DDM, int64(len(diskBytes)))
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return true
}

// encodeForDisk applies the active compression capability, with the
// compression-shrink fallback: if wrapping does not actually shrink the
// payload, the raw bytes are stored under disk_compression="none" instead.
func (c *Cache) encodeForDisk(data []byte) ([]byte, string, error) {
	if _, ok := c.compression.(NoneCompression); ok {
		return data, "none", nil
	}
	out, ok, err := c.compression.Wrap(data)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return data, "none", nil
	}
	return out, c.compression.Tag(), nil
}

func (c *Cache) compressionLevel() int {
	if z, ok := c.compression.(ZstdCompression); ok {
		return z.Level
	}
	return 0
}

// GetStagingPath returns a PID-and-UUID-qualified temp path inside id's
// destination directory, suitable for an external builder to write to
// before calling StoreFromFile. The UUID suffix (beyond the PID used by the
// atomic write protocol) guards against collisions between builder
// processes on different hosts sharing an NFS-style mount, where PIDs alone
// are not unique.
func (c *Cache) GetStagingPath(id cachepath.Identity, maxZoom int) string {
	dir := cachepath.Dir(c.cacheRoot, id)
	name := fmt.Sprintf("stage_%d_%d_z%d.tmp.%d.%s", id.Row, id.Col, maxZoom, os.Getpid(), uuid.NewString())
	return filepath.Join(dir, name)
}

// StoreFromFile moves an externally built DDS file into the cache. When the
// active compression is none, it places the file directly with
// durablyPlace (hard-link, falling back to copy) rather than reading it
// into memory; otherwise it must decode and re-wrap the bytes, so it falls
// back to a plain read-through Store. The direct-placement path serializes
// the destination with a cross-process flock, since staging paths are unique
// per builder (GetStagingPath) but the destination (id, max_zoom) is not,
// and two builder processes on different hosts can race to place it; the
// read-through Store path takes no flock.
func (c *Cache) StoreFromFile(id cachepath.Identity, maxZoom int, sourcePath string, missingIndices []int, cacheRootForBundle string) bool {
	header, err := readHeader(sourcePath)
	if err != nil {
		c.logger.Printf("ddscache: store_from_file: read header %s: %v", sourcePath, err)
		return false
	}
	layout, err := dds.ParseHeader(header)
	if err != nil {
		c.logger.Printf("ddscache: store_from_file: bad header %s: %v", sourcePath, err)
		return false
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		c.logger.Printf("ddscache: store_from_file: stat %s: %v", sourcePath, err)
		return false
	}
	if info.Size() != layout.TotalSize {
		c.logger.Printf("ddscache: store_from_file: size mismatch for %s: got %d want %d", sourcePath, info.Size(), layout.TotalSize)
		return false
	}

	if _, ok := c.compression.(NoneCompression); !ok {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			c.logger.Printf("ddscache: store_from_file: read %s: %v", sourcePath, err)
			return false
		}
		ok := c.Store(id, maxZoom, data, missingIndices, cacheRootForBundle)
		if ok {
			os.Remove(sourcePath)
		}
		return ok
	}

	paths := cachepath.Resolve(c.cacheRoot, id, maxZoom)
	if err := os.MkdirAll(filepath.Dir(paths.DDS), 0o755); err != nil {
		c.logger.Printf("ddscache: store_from_file: mkdir: %v", err)
		return false
	}

	lock := flock.New(paths.DDS + ".lock")
	if err := lock.Lock(); err != nil {
		c.logger.Printf("ddscache: store_from_file: lock %s: %v", paths.DDS, err)
		return false
	}
	defer lock.Unlock()

	var bundleMtime int64
	if cacheRootForBundle != "" {
		bundleMtime = bundle.Mtime(cacheRootForBundle, id)
	}
	rec := buildRecord(id, maxZoom, layout, c.format, c.compressorTag, bundleMtime, missingIndices, "none", 0)

	if err := durablyPlace(sourcePath, paths.DDS); err != nil {
		c.logger.Printf("ddscache: store_from_file: place %s: %v", sourcePath, err)
		return false
	}
	if err := ddm.Write(paths.DDM, rec); err != nil {
		c.logger.Printf("ddscache: store_from_file: ddm write: %v", err)
		return false
	}

	c.insert(Key{ID: id, MaxZoom: maxZoom}, paths.DDS, paths.DDM, info.Size())
	c.mu.Lock()
	c.stores++
	c.mu.Unlock()
	return true
}

// readHeader reads just the leading DDS header bytes of path, avoiding a
// full read for the common store_from_file case where compression is off
// and the bytes are placed, not transformed.
func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, dds.HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// durablyPlace attempts a hard link from src to dst (fast, atomic,
// same-filesystem) and falls back to a byte copy when the staging path
// lives on a different filesystem (EXDEV) or hard links aren't supported.
func durablyPlace(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir: %v", ErrIOFailure, err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove existing %s: %v", ErrIOFailure, dst, err)
	}
	if err := os.Link(src, dst); err == nil {
		os.Remove(src)
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrIOFailure, src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIOFailure, dst, err)
	}
	os.Remove(src)
	return nil
}
