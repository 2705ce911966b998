package budget

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
	"github.com/ddscache/ddscached/internal/ddscache"
)

func writeFile(t *testing.T, path string, n int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, n), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanDiskUsageSumsPerCategory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "bundles", "a.aob2"), 100)
	writeFile(t, filepath.Join(root, "dds_cache", "a.dds"), 200)
	writeFile(t, filepath.Join(root, "misc", "a.jpg"), 50)

	cache := ddscache.New(ddscache.Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	m := New(Options{CacheRoot: root, Cache: cache, TotalBudgetBytes: 1000, DDSBudgetPct: 40, BundleBudgetPct: 55, JPEGBudgetPct: 5})
	defer m.Stop()

	report, err := m.ScanDiskUsage()
	if err != nil {
		t.Fatalf("ScanDiskUsage: %v", err)
	}
	if report.BundleBytes != 100 || report.DDSBytes != 200 || report.JPEGBytes != 50 {
		t.Errorf("report = %+v, want {100, 200, 50, ...}", report)
	}
	if report.TotalBytes != 350 {
		t.Errorf("TotalBytes = %d, want 350", report.TotalBytes)
	}
}

func TestBudgetAllocationMatchesScenario6(t *testing.T) {
	root := t.TempDir()
	cache := ddscache.New(ddscache.Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	m := New(Options{
		CacheRoot: root, Cache: cache,
		TotalBudgetBytes: 1000 * 1024 * 1024,
		DDSBudgetPct:     40, BundleBudgetPct: 55, JPEGBudgetPct: 5,
	})
	defer m.Stop()

	const mb = 1024 * 1024
	if diff := abs(m.ddsBudgetBytes - 400*mb); diff > mb {
		t.Errorf("dds budget = %d, want ~400MB", m.ddsBudgetBytes)
	}
	if diff := abs(m.bundleBudgetBytes - 550*mb); diff > mb {
		t.Errorf("bundle budget = %d, want ~550MB", m.bundleBudgetBytes)
	}
	if diff := abs(m.jpegBudgetBytes - 50*mb); diff > mb {
		t.Errorf("jpeg budget = %d, want ~50MB", m.jpegBudgetBytes)
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestCleanupStaleDDSRemovesOrphanedArtifact(t *testing.T) {
	root := t.TempDir()
	cache := ddscache.New(ddscache.Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})

	id := cachepath.Identity{Row: 1, Col: 2, MapType: "BI", TilenameZoom: 12}
	layout := dds.NewLayout(16, 16, dds.BC1)
	data := make([]byte, layout.TotalSize)
	copy(data, layout.Header())
	if !cache.Store(id, 16, data, nil, "") {
		t.Fatal("store failed")
	}
	// No bundle written: the DDS has no surviving source bundle.

	m := New(Options{CacheRoot: root, Cache: cache, TotalBudgetBytes: 1000, DDSBudgetPct: 40, BundleBudgetPct: 55, JPEGBudgetPct: 5})
	defer m.Stop()

	count, err := m.CleanupStaleDDS()
	if err != nil {
		t.Fatalf("CleanupStaleDDS: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if cache.Contains(id, 16) {
		t.Error("stale entry should have been removed")
	}
}
