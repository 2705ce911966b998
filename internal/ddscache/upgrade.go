package ddscache

import (
	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/dds"
)

// UpgradeZL moves a tile from z_old to z_old+1 by mipmap shifting rather
// than rebuilding: the caller supplies the freshly compressed mm0 at the
// higher resolution, and every old mipmap i is copied verbatim into new
// slot i+1. The old pair is deleted only after the new pair is durably
// stored.
func (c *Cache) UpgradeZL(id cachepath.Identity, zOld int, newMM0 []byte, cacheRootForBundle string) ([]byte, bool) {
	zNew := zOld + 1

	oldData, ok := c.Load(id, zOld, nil, cacheRootForBundle)
	if !ok {
		return nil, false
	}
	oldLayout, err := dds.ParseHeader(oldData)
	if err != nil {
		c.logger.Printf("ddscache: upgrade_zl: parse old header for %+v: %v", id, err)
		return nil, false
	}

	newLayout := dds.NewLayout(oldLayout.Width*2, oldLayout.Height*2, oldLayout.Format)
	mm0, _ := newLayout.At(0)
	if int64(len(newMM0)) != mm0.Length {
		c.logger.Printf("ddscache: upgrade_zl: new mm0 length %d, want %d", len(newMM0), mm0.Length)
		return nil, false
	}

	newData := make([]byte, newLayout.TotalSize)
	copy(newData, newLayout.Header())
	copy(newData[mm0.StartPos:mm0.EndPos()], newMM0)

	for i := 0; i < oldLayout.MipmapCount(); i++ {
		oldMM, _ := oldLayout.At(i)
		newMM, ok := newLayout.At(i + 1)
		if !ok {
			break
		}
		if oldMM.Length != newMM.Length {
			return nil, false
		}
		copy(newData[newMM.StartPos:newMM.EndPos()], oldData[oldMM.StartPos:oldMM.EndPos()])
	}

	// newMM0 is caller-supplied as fully populated and every shifted mipmap
	// was already complete at the old zoom, so the upgraded artifact has no
	// missing indices even if the old one did: the old indices addressed a
	// differently sized mm0 chunk grid and don't carry over.
	if !c.Store(id, zNew, newData, nil, cacheRootForBundle) {
		return nil, false
	}
	c.Invalidate(id, zOld)
	return newData, true
}

// DowngradeZL is UpgradeZL's inverse: old mm0 is discarded and every other
// mipmap shifts down one slot. Rejected unless the resulting mm0 is at
// least 4x4 blocks.
func (c *Cache) DowngradeZL(id cachepath.Identity, zOld int, cacheRootForBundle string) ([]byte, bool) {
	zNew := zOld - 1

	oldData, ok := c.Load(id, zOld, nil, cacheRootForBundle)
	if !ok {
		return nil, false
	}
	oldLayout, err := dds.ParseHeader(oldData)
	if err != nil {
		return nil, false
	}
	if oldLayout.MipmapCount() < 2 {
		return nil, false
	}

	newW, newH := oldLayout.Width/2, oldLayout.Height/2
	if newW < 16 || newH < 16 {
		// New mm0 would be smaller than 4x4 blocks (16x16 pixels).
		return nil, false
	}

	newLayout := dds.NewLayout(newW, newH, oldLayout.Format)
	newData := make([]byte, newLayout.TotalSize)
	copy(newData, newLayout.Header())

	for i := 0; i < newLayout.MipmapCount(); i++ {
		oldMM, ok := oldLayout.At(i + 1)
		if !ok {
			break
		}
		newMM, _ := newLayout.At(i)
		if oldMM.Length != newMM.Length {
			c.logger.Printf("ddscache: downgrade_zl: length mismatch at level %d for %+v", i, id)
			return nil, false
		}
		copy(newData[newMM.StartPos:newMM.EndPos()], oldData[oldMM.StartPos:oldMM.EndPos()])
	}

	// Every shifted mipmap, including the new mm0, was already complete at
	// the old zoom, so the downgraded artifact has no missing indices: the
	// old indices addressed a differently sized mm0 chunk grid.
	if !c.Store(id, zNew, newData, nil, cacheRootForBundle) {
		return nil, false
	}
	c.Invalidate(id, zOld)
	return newData, true
}
