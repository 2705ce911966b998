package ddscache

import (
	"time"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
	"github.com/ddscache/ddscached/internal/dds"
)

// chunkSizePx is the source JPEG chunk edge length mm0 is tiled from.
// chunksPerRow derives the mm0 chunk grid dimension from the full texture
// width, since store's public contract does not take chunks_per_row
// explicitly.
const chunkSizePx = 256

func chunksPerRow(dim int) int {
	n := dim / chunkSizePx
	if n < 1 {
		n = 1
	}
	return n
}

// buildRecord assembles a fresh DDM record for a just-written artifact.
func buildRecord(id cachepath.Identity, maxZoom int, layout *dds.Layout, format dds.Format, compressorTag string, bundleMtime int64, missingIndices []int, diskCompression string, diskCompressionLevel int) *ddm.Record {
	missing := make(map[int]bool, len(missingIndices))
	for _, idx := range missingIndices {
		missing[idx] = true
	}
	populated := make(map[int]bool, layout.MipmapCount())
	for i := 0; i < layout.MipmapCount(); i++ {
		populated[i] = true
	}

	mm0Total := chunksPerRow(layout.Width) * chunksPerRow(layout.Height)

	rec := &ddm.Record{
		V:                    ddm.CurrentVersion,
		W:                    layout.Width,
		H:                    layout.Height,
		MM:                   layout.MipmapCount(),
		ZL:                   id.TilenameZoom,
		MaxZL:                maxZoom,
		Format:               format.String(),
		Compressor:           compressorTag,
		Map:                  id.MapType,
		TileRow:              id.Row,
		TileCol:              id.Col,
		BundleMtime:          bundleMtime,
		Built:                time.Now().Unix(),
		Mipmaps:              ddm.BuildMipmapRecords(maxZoom, layout.MipmapCount(), mm0Total, populated, missing),
		PopulatedMipmaps:     ddm.SortedIndices(populated),
		NeedsHealing:         len(missing) > 0,
		HealingChunks:        len(missing),
		MissingIndices:       ddm.SortedIndices(missing),
		DiskCompression:      diskCompression,
		DiskCompressionLevel: diskCompressionLevel,
	}
	return rec
}
