package ddscache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
)

func TestStoreFromFilePlacesAndRemovesSource(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})

	id := cachepath.Identity{Row: 3, Col: 4, MapType: "BI", TilenameZoom: 12}
	layout := dds.NewLayout(16, 16, dds.BC1)
	data := make([]byte, layout.TotalSize)
	copy(data, layout.Header())
	for i := dds.HeaderSize; i < len(data); i++ {
		data[i] = 0x42
	}

	staging := c.GetStagingPath(id, 12)
	if err := os.MkdirAll(filepath.Dir(staging), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if !c.StoreFromFile(id, 12, staging, nil, "") {
		t.Fatal("StoreFromFile returned false")
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Error("staging file should have been consumed")
	}

	got, ok := c.Load(id, 12, nil, "")
	if !ok {
		t.Fatal("expected load to hit after store_from_file")
	}
	if string(got) != string(data) {
		t.Error("round trip mismatch via store_from_file")
	}
}

func TestGetStagingPathUnique(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	id := cachepath.Identity{Row: 1, Col: 1, MapType: "BI", TilenameZoom: 12}

	a := c.GetStagingPath(id, 12)
	b := c.GetStagingPath(id, 12)
	if a == b {
		t.Error("expected distinct staging paths across calls")
	}
}
