// Package bundle implements a minimal concrete version of the source-JPEG
// container subsystem, referenced by the budget manager and the reaper.
// The real bundle format (an opaque "aob2" container) is out of scope;
// this package supplies just enough of a directory-based stand-in to
// exercise orphan-JPEG cleanup and the bundle-presence check that the
// stale-DDS sweep depends on.
package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ddscache/ddscached/internal/cachepath"
)

// orphanJPEGSizeEstimate is a fallback estimate for the bytes freed by
// deleting a loose source-chunk JPEG, used when a precise stat would be more
// I/O than the caller wants to pay for bulk reclamation accounting.
const orphanJPEGSizeEstimate = 20_000

// Path returns where id's source bundle would live, rooted at cacheRoot.
func Path(cacheRoot string, id cachepath.Identity) string {
	dir := filepath.Join(cacheRoot, "bundles", dirSuffix(cacheRoot, id))
	return filepath.Join(dir, filepathBase(id))
}

func dirSuffix(cacheRoot string, id cachepath.Identity) string {
	// Reuse the same signed-bucket shape the DDS path resolver uses, so
	// bundles and their derived DDS artifacts shard identically.
	full := cachepath.Dir(cacheRoot, id)
	rel, err := filepath.Rel(filepath.Join(cacheRoot, "dds_cache"), full)
	if err != nil {
		return ""
	}
	return rel
}

func filepathBase(id cachepath.Identity) string {
	return fmt.Sprintf("%d_%d.aob2", id.Row, id.Col)
}

// Exists reports whether id's source bundle is present on disk.
func Exists(cacheRoot string, id cachepath.Identity) bool {
	_, err := os.Stat(Path(cacheRoot, id))
	return err == nil
}

// Mtime returns the bundle's modification time as a unix timestamp, or 0 if
// absent.
func Mtime(cacheRoot string, id cachepath.Identity) int64 {
	info, err := os.Stat(Path(cacheRoot, id))
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}

// CleanupOrphanJPEGs walks miscRoot (the loose-chunk directory outside
// bundles/ and dds_cache/) deleting every *.jpg file. It returns the count
// deleted and the estimated bytes freed (orphanJPEGSizeEstimate per file,
// rather than statting every file).
func CleanupOrphanJPEGs(miscRoot string) (count int, freedBytes int64, err error) {
	entries, err := os.ReadDir(miscRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jpg" {
			continue
		}
		if err := os.Remove(filepath.Join(miscRoot, e.Name())); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			continue
		}
		count++
		freedBytes += orphanJPEGSizeEstimate
	}
	return count, freedBytes, nil
}

// ScanDirSize sums the apparent size of every regular file beneath root.
func ScanDirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}
