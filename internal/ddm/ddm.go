// Package ddm implements the DDM v3 JSON sidecar record: the metadata
// describing a DDS artifact's dimensions, zoom, format, compressor, and
// per-mipmap completeness.
package ddm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CurrentVersion is the current DDM schema version.
const CurrentVersion = 3

// MipmapRecord is the per-mipmap entry in a DDM record.
type MipmapRecord struct {
	ZL       int  `json:"zl"`
	Complete bool `json:"complete"`
	// Total and Valid are only meaningful for mipmap 0 (the chunk-granular
	// level); other levels are all-or-nothing.
	Total int `json:"total,omitempty"`
	Valid int `json:"valid,omitempty"`
}

// Record is the DDM v3 sidecar, one JSON object per DDS artifact.
type Record struct {
	V int `json:"v"`

	W  int `json:"w"`
	H  int `json:"h"`
	MM int `json:"mm"`

	ZL    int `json:"zl"`
	MaxZL int `json:"max_zl"`

	Format     string `json:"fmt"`
	Compressor string `json:"comp"`

	Map string `json:"map"`

	TileRow int `json:"tile_row"`
	TileCol int `json:"tile_col"`

	BundleMtime int64 `json:"bundle_mtime"`
	Built       int64 `json:"built"`

	Mipmaps []MipmapRecord `json:"mipmaps"`

	PopulatedMipmaps []int `json:"populated_mipmaps"`

	NeedsHealing   bool  `json:"needs_healing"`
	HealingChunks  int   `json:"healing_chunks"`
	MissingIndices []int `json:"missing_indices"`

	DiskCompression string `json:"disk_compression"`
	// DiskCompressionLevel records the zstd level used, so disk size stays
	// reproducible from the record alone rather than the active config.
	// Zero means "unknown / written before this field existed".
	DiskCompressionLevel int `json:"disk_compression_level,omitempty"`
}

// mipmapZoomLevel maps a mipmap index to the zoom level it represents:
// zl = max_zoom - i for i < max_zoom - 11, clamped to 12 below that.
func mipmapZoomLevel(maxZoom, i int) int {
	if i < maxZoom-11 {
		return maxZoom - i
	}
	return 12
}

// BuildMipmapRecords constructs the mipmaps[] field for a fresh record with
// mmCount levels, mm0Total chunks, and a set of populated mipmap indices.
func BuildMipmapRecords(maxZoom, mmCount, mm0Total int, populated map[int]bool, missing map[int]bool) []MipmapRecord {
	records := make([]MipmapRecord, mmCount)
	for i := 0; i < mmCount; i++ {
		rec := MipmapRecord{ZL: mipmapZoomLevel(maxZoom, i), Complete: populated[i]}
		if i == 0 {
			rec.Total = mm0Total
			rec.Valid = mm0Total - len(missing)
			rec.Complete = len(missing) == 0
		}
		records[i] = rec
	}
	return records
}

// SortedIndices returns a sorted copy of a set of mipmap/chunk indices, for
// the populated_mipmaps / missing_indices fields which must be sorted lists.
func SortedIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Write atomically writes rec as compact JSON to path via a PID-qualified
// temp file and rename. The DDS bytes must already be durably renamed into
// place before this is called.
func Write(path string, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ddm: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ddm: mkdir %s: %w", dir, err)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("ddm: write temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ddm: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// Read parses a DDM file, applying version-upgrade defaulting: records
// older than v3 are missing the v3-only fields and are treated as fully
// populated with no healing needed, since older schema versions predate
// incremental/healing support.
func Read(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("ddm: parse %s: %w", path, err)
	}

	if rec.V < CurrentVersion {
		if rec.PopulatedMipmaps == nil {
			all := make([]int, rec.MM)
			for i := range all {
				all[i] = i
			}
			rec.PopulatedMipmaps = all
		}
		rec.NeedsHealing = false
		rec.HealingChunks = 0
		rec.MissingIndices = nil
	}

	return &rec, nil
}
