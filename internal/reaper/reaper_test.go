package reaper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ddscache/ddscached/internal/cachepath"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCleanupDeletesChunksAtEveryZoomLevel(t *testing.T) {
	dir := t.TempDir()
	id := cachepath.Identity{Row: 4, Col: 8, MapType: "BI", TilenameZoom: 14}

	// z14: 1x1 grid at (8,4). z13: coarser, col/row halve. z12 (min_zoom): halve again.
	touch(t, dir, "8_4_14_BI.jpg")
	touch(t, dir, "4_2_13_BI.jpg")
	touch(t, dir, "2_1_12_BI.jpg")

	r := New(Options{MiscRoot: dir, MinZoom: 12})
	n := r.Cleanup(id, 14, 1, 1)
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	for _, name := range []string{"8_4_14_BI.jpg", "4_2_13_BI.jpg", "2_1_12_BI.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", name)
		}
	}
}

func TestCleanupMissingFilesCountAsSuccessNotDeleted(t *testing.T) {
	dir := t.TempDir()
	id := cachepath.Identity{Row: 1, Col: 1, MapType: "BI", TilenameZoom: 12}

	r := New(Options{MiscRoot: dir, MinZoom: 12})
	n := r.Cleanup(id, 12, 1, 1)
	if n != 0 {
		t.Fatalf("deleted = %d, want 0 for an empty directory", n)
	}
}

func TestCleanupZoomScalesGridAtFinerZoom(t *testing.T) {
	dir := t.TempDir()
	// tilename_zoom=12, cleaning at zoom=13 (finer than tilename_zoom) should
	// double the grid via a left shift and touch 4 files for a 1x1 chunk grid.
	id := cachepath.Identity{Row: 2, Col: 2, MapType: "BI", TilenameZoom: 12}
	for _, name := range []string{"4_4_13_BI.jpg", "5_4_13_BI.jpg", "4_5_13_BI.jpg", "5_5_13_BI.jpg"} {
		touch(t, dir, name)
	}

	r := New(Options{MiscRoot: dir, MinZoom: 13})
	n := r.Cleanup(id, 13, 1, 1)
	if n != 4 {
		t.Fatalf("deleted = %d, want 4", n)
	}
}

func TestChunksPerRow(t *testing.T) {
	cases := []struct {
		dim  int
		want int
	}{
		{256, 1},
		{1024, 4},
		{0, 1},
	}
	for _, c := range cases {
		if got := ChunksPerRow(c.dim); got != c.want {
			t.Errorf("ChunksPerRow(%d) = %d, want %d", c.dim, got, c.want)
		}
	}
}
