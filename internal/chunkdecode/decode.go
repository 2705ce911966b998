// Package chunkdecode decodes source JPEG/WebP chunks and downsamples them
// to the mipmap pixel sizes the healing dispatcher needs.
package chunkdecode

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/gen2brain/webp"
)

// Decode decodes a source chunk (JPEG or WebP, sniffed from content) into an
// RGBA image. Bundles may carry either format as the source-chunk container
// evolves, so both codecs are tried in the order a real chunk is more likely
// to use JPEG.
func Decode(data []byte) (*image.RGBA, error) {
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return toRGBA(img), nil
	}
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("chunkdecode: neither jpeg nor webp: %w", err)
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

// ResizeTo downsamples src (assumed square, power-of-two edge) to an s x s
// RGBA image by repeated box-filter halving. Returns src unchanged (not
// copied) if s already equals its edge.
func ResizeTo(src *image.RGBA, s int) *image.RGBA {
	cur := src
	for cur.Bounds().Dx() > s {
		next := halve(cur)
		if cur != src {
			putRGBA(cur)
		}
		cur = next
	}
	return cur
}

// halve box-downsamples src to half its width and height, averaging each
// 2x2 source block including alpha.
func halve(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx()/2, b.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := getRGBA(w, h)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			sx, sy := dx*2, dy*2
			p00 := src.RGBAAt(b.Min.X+sx, b.Min.Y+sy)
			p10 := src.RGBAAt(b.Min.X+sx+1, b.Min.Y+sy)
			p01 := src.RGBAAt(b.Min.X+sx, b.Min.Y+sy+1)
			p11 := src.RGBAAt(b.Min.X+sx+1, b.Min.Y+sy+1)
			dst.SetRGBA(dx, dy, average(p00, p10, p01, p11))
		}
	}
	return dst
}

func average(pixels ...color.RGBA) color.RGBA {
	var r, g, b, a uint32
	for _, p := range pixels {
		r += uint32(p.R)
		g += uint32(p.G)
		b += uint32(p.B)
		a += uint32(p.A)
	}
	n := uint32(len(pixels))
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(b / n), A: uint8(a / n)}
}
