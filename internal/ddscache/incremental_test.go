package ddscache

import (
	"testing"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
)

func TestStoreIncrementalMergesAcrossCalls(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	id := cachepath.Identity{Row: 3, Col: 4, MapType: "BI", TilenameZoom: 12}

	layout := dds.NewLayout(64, 64, dds.BC1)
	mm0, _ := layout.At(0)
	mm1, _ := layout.At(1)

	b0 := make([]byte, mm0.Length)
	for i := range b0 {
		b0[i] = 0
	}
	b1 := make([]byte, mm1.Length)
	for i := range b1 {
		b1[i] = 1
	}

	if !c.StoreIncremental(id, 16, dds.BC1, 64, 64, map[int][]byte{0: b0}, nil, 0) {
		t.Fatal("first incremental store failed")
	}
	if !c.StoreIncremental(id, 16, dds.BC1, 64, 64, map[int][]byte{1: b1}, nil, 0) {
		t.Fatal("second incremental store failed")
	}

	data, ok := c.Load(id, 16, nil, "")
	if !ok {
		t.Fatal("load failed after incremental stores")
	}
	if string(data[mm0.StartPos:mm0.EndPos()]) != string(b0) {
		t.Error("mm0 bytes not preserved across incremental calls")
	}
	if string(data[mm1.StartPos:mm1.EndPos()]) != string(b1) {
		t.Error("mm1 bytes not written by second incremental call")
	}

	rec, ok := c.LoadMetadata(id, 16)
	if !ok {
		t.Fatal("expected metadata")
	}
	found1, found2 := false, false
	for _, i := range rec.PopulatedMipmaps {
		if i == 0 {
			found1 = true
		}
		if i == 1 {
			found2 = true
		}
	}
	if !found1 || !found2 {
		t.Errorf("populated_mipmaps = %v, want both 0 and 1", rec.PopulatedMipmaps)
	}
}

func TestStoreIncrementalSkipsAlreadyPopulated(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	id := cachepath.Identity{Row: 7, Col: 8, MapType: "BI", TilenameZoom: 12}

	layout := dds.NewLayout(32, 32, dds.BC1)
	mm0, _ := layout.At(0)

	original := make([]byte, mm0.Length)
	for i := range original {
		original[i] = 0x11
	}
	overwrite := make([]byte, mm0.Length)
	for i := range overwrite {
		overwrite[i] = 0x22
	}

	if !c.StoreIncremental(id, 16, dds.BC1, 32, 32, map[int][]byte{0: original}, nil, 0) {
		t.Fatal("first store failed")
	}
	if !c.StoreIncremental(id, 16, dds.BC1, 32, 32, map[int][]byte{0: overwrite}, nil, 0) {
		t.Fatal("second store failed")
	}

	data, ok := c.Load(id, 16, nil, "")
	if !ok {
		t.Fatal("load failed")
	}
	if string(data[mm0.StartPos:mm0.EndPos()]) != string(original) {
		t.Error("already-populated mipmap should not be overwritten by a later incremental call")
	}
}
