package ddscache

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
)

func solidJPEG(t *testing.T, size int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestPatchMissingChunksConvergence(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	id := cachepath.Identity{Row: 5, Col: 9, MapType: "BI", TilenameZoom: 12}

	data, _ := patternDDS(t, 256, 256, dds.BC1)
	if !c.Store(id, 16, data, []int{0}, "") {
		t.Fatal("store failed")
	}

	rec, ok := c.LoadMetadata(id, 16)
	if !ok {
		t.Fatal("expected metadata")
	}
	if !rec.NeedsHealing || rec.HealingChunks != 1 {
		t.Fatalf("expected needs_healing with 1 chunk, got %+v", rec)
	}

	chunkBytes := solidJPEG(t, 256, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	if !c.PatchMissingChunks(id, 16, map[int][]byte{0: chunkBytes}, "") {
		t.Fatal("patch_missing_chunks failed")
	}

	rec2, ok := c.LoadMetadata(id, 16)
	if !ok {
		t.Fatal("expected metadata after heal")
	}
	if rec2.NeedsHealing {
		t.Error("needs_healing should be false after full heal")
	}
	if len(rec2.MissingIndices) != 0 {
		t.Errorf("missing_indices = %v, want empty", rec2.MissingIndices)
	}

	healed, ok := c.Load(id, 16, nil, "")
	if !ok {
		t.Fatal("load failed after heal")
	}
	layout, err := dds.ParseHeader(healed)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	mm0, _ := layout.At(0)
	if bytes.Equal(healed[mm0.StartPos:mm0.EndPos()], data[mm0.StartPos:mm0.EndPos()]) {
		t.Error("mm0 bytes unchanged after healing a solid-color chunk")
	}
}

func TestPatchMissingChunksGuardRejectsConcurrentHeal(t *testing.T) {
	root := t.TempDir()
	c := New(Options{CacheRoot: root, Format: dds.BC1, CompressorTag: "none"})
	id := cachepath.Identity{Row: 1, Col: 1, MapType: "BI", TilenameZoom: 12}

	data, _ := patternDDS(t, 256, 256, dds.BC1)
	if !c.Store(id, 16, data, []int{0}, "") {
		t.Fatal("store failed")
	}

	key := Key{ID: id, MaxZoom: 16}
	if !c.acquireHealGuard(key) {
		t.Fatal("expected to acquire guard")
	}
	defer c.releaseHealGuard(key)

	if c.PatchMissingChunks(id, 16, map[int][]byte{0: solidJPEG(t, 256, color.RGBA{A: 255})}, "") {
		t.Error("expected patch to fast-fail while guard is held")
	}
}
