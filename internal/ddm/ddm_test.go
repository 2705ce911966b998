package ddm

import (
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "21728_34432_z16.ddm")

	rec := &Record{
		V: CurrentVersion, W: 4096, H: 4096, MM: 13,
		ZL: 12, MaxZL: 16,
		Format: "BC1", Compressor: "none",
		Map: "BI", TileRow: 21728, TileCol: 34432,
		Mipmaps:          BuildMipmapRecords(16, 13, 256, map[int]bool{0: true}, nil),
		PopulatedMipmaps: []int{0, 1, 2},
		DiskCompression:  "none",
	}

	if err := Write(path, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.W != rec.W || got.H != rec.H || got.MM != rec.MM {
		t.Errorf("dims mismatch: got %dx%d mm=%d, want %dx%d mm=%d", got.W, got.H, got.MM, rec.W, rec.H, rec.MM)
	}
	if got.TileRow != rec.TileRow || got.TileCol != rec.TileCol {
		t.Errorf("identity mismatch: got (%d,%d), want (%d,%d)", got.TileRow, got.TileCol, rec.TileRow, rec.TileCol)
	}
}

func TestReadDefaultsOlderVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.ddm")

	rec := &Record{V: 2, W: 256, H: 256, MM: 9, Format: "BC1", Compressor: "none"}
	if err := Write(path, rec); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.NeedsHealing {
		t.Error("expected needs_healing=false for upgraded v2 record")
	}
	if len(got.PopulatedMipmaps) != 9 {
		t.Errorf("expected all 9 mipmaps defaulted populated, got %d", len(got.PopulatedMipmaps))
	}
}

func TestBuildMipmapRecordsMarksMissing(t *testing.T) {
	missing := map[int]bool{0: false, 3: true, 7: true}
	// normalize: only true entries count as missing
	realMissing := map[int]bool{3: true, 7: true}
	recs := BuildMipmapRecords(16, 11, 100, nil, realMissing)

	if recs[0].Total != 100 {
		t.Fatalf("mm0 total = %d, want 100", recs[0].Total)
	}
	if recs[0].Valid != 98 {
		t.Errorf("mm0 valid = %d, want 98", recs[0].Valid)
	}
	if recs[0].Complete {
		t.Error("mm0 should not be complete with missing chunks")
	}
	_ = missing
}

func TestSortedIndices(t *testing.T) {
	set := map[int]bool{5: true, 1: true, 3: true}
	got := SortedIndices(set)
	want := []int{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestMipmapZoomLevelFormula(t *testing.T) {
	// max_zoom=16: i < 16-11=5 -> 16-i; else 12.
	tests := []struct {
		i    int
		want int
	}{
		{0, 16}, {1, 15}, {4, 12}, {5, 12}, {10, 12},
	}
	for _, tt := range tests {
		if got := mipmapZoomLevel(16, tt.i); got != tt.want {
			t.Errorf("mipmapZoomLevel(16, %d) = %d, want %d", tt.i, got, tt.want)
		}
	}
}
