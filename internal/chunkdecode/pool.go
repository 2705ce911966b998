package chunkdecode

import (
	"image"
	"sync"
)

// rgbaPoolKey identifies a pool by image dimensions. Healing re-decodes and
// halves a chunk per missing index, and each step's intermediate RGBA is
// one of a handful of sizes (256, 128, 64, ...), so pooling them cuts
// allocation churn on the hot healing path.
type rgbaPoolKey struct {
	w, h int
}

var rgbaPools sync.Map

// getRGBA returns a zeroed *image.RGBA from the pool, or allocates a new one.
func getRGBA(w, h int) *image.RGBA {
	key := rgbaPoolKey{w, h}
	if p, ok := rgbaPools.Load(key); ok {
		if v := p.(*sync.Pool).Get(); v != nil {
			img := v.(*image.RGBA)
			clear(img.Pix)
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// putRGBA returns an *image.RGBA to the pool for reuse. Nil is ignored.
func putRGBA(img *image.RGBA) {
	if img == nil {
		return
	}
	key := rgbaPoolKey{img.Rect.Dx(), img.Rect.Dy()}
	p, _ := rgbaPools.LoadOrStore(key, &sync.Pool{})
	p.(*sync.Pool).Put(img)
}
