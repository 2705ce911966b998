// Package compress implements the block-compression engine: encoding an
// RGBA surface to BC1 (DXT1) or BC3 (DXT5) blocks, with an optional
// stripe-parallel mode distributing horizontal stripes across a worker pool.
package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/ddscache/ddscached/internal/dds"
)

type rgb struct {
	r, g, b uint8
}

// encodeBlockBC1 compresses one 4x4 RGBA block (16 texels, row-major) into
// an 8-byte BC1 block written at dst[0:8].
func encodeBlockBC1(dst []byte, block [16]rgb) {
	c0, c1 := pickEndpoints(block)

	// Order endpoints so the 4-color (non-punch-through-alpha) mode is used:
	// color0 > color1 numerically when compared as packed 565 values.
	p0 := pack565(c0)
	p1 := pack565(c1)
	if p0 < p1 {
		p0, p1 = p1, p0
		c0, c1 = c1, c0
	} else if p0 == p1 {
		// Degenerate (uniform block): force a valid 4-color ordering.
		if p0 == 0 {
			p0 = 1
		} else {
			p1 = p0 - 1
		}
	}

	palette := buildPalette4(unpack565(p0), unpack565(p1))

	var indices uint32
	for i, px := range block {
		idx := nearest(palette[:], px)
		indices |= uint32(idx) << uint(i*2)
	}

	binary.LittleEndian.PutUint16(dst[0:2], p0)
	binary.LittleEndian.PutUint16(dst[2:4], p1)
	binary.LittleEndian.PutUint32(dst[4:8], indices)
}

// encodeBlockBC3 compresses one 4x4 RGBA block into a 16-byte BC3 block:
// 8 bytes of alpha followed by 8 bytes of BC1-style color data.
func encodeBlockBC3(dst []byte, block [16]rgb, alpha [16]uint8) {
	encodeAlphaBlock(dst[0:8], alpha)
	encodeBlockBC1(dst[8:16], block)
}

func encodeAlphaBlock(dst []byte, alpha [16]uint8) {
	a0, a1 := uint8(0), uint8(255)
	for _, a := range alpha {
		if a > a0 {
			a0 = a
		}
		if a < a1 {
			a1 = a
		}
	}
	if a0 == a1 {
		if a0 == 255 {
			a1 = 254
		} else {
			a0 = a1 + 1
		}
	}

	palette := buildAlphaPalette8(a0, a1)

	dst[0] = a0
	dst[1] = a1

	var bits uint64
	for i, a := range alpha {
		idx := nearestAlpha(palette[:], a)
		bits |= uint64(idx) << uint(i*3)
	}
	dst[2] = byte(bits)
	dst[3] = byte(bits >> 8)
	dst[4] = byte(bits >> 16)
	dst[5] = byte(bits >> 24)
	dst[6] = byte(bits >> 32)
	dst[7] = byte(bits >> 40)
}

func buildAlphaPalette8(a0, a1 uint8) [8]uint8 {
	var p [8]uint8
	p[0], p[1] = a0, a1
	if a0 > a1 {
		for i := 1; i <= 6; i++ {
			p[1+i] = uint8((int(a0)*(7-i) + int(a1)*i) / 7)
		}
	} else {
		for i := 1; i <= 4; i++ {
			p[1+i] = uint8((int(a0)*(5-i) + int(a1)*i) / 5)
		}
		p[6] = 0
		p[7] = 255
	}
	return p
}

func nearestAlpha(palette []uint8, a uint8) int {
	best, bestDist := 0, 1<<30
	for i, p := range palette {
		d := int(a) - int(p)
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// pickEndpoints chooses two representative colors for the block: the max
// and min corners of its per-channel RGB bounding box (no principal
// component analysis).
func pickEndpoints(block [16]rgb) (rgb, rgb) {
	minC := rgb{255, 255, 255}
	maxC := rgb{0, 0, 0}
	for _, px := range block {
		if px.r < minC.r {
			minC.r = px.r
		}
		if px.g < minC.g {
			minC.g = px.g
		}
		if px.b < minC.b {
			minC.b = px.b
		}
		if px.r > maxC.r {
			maxC.r = px.r
		}
		if px.g > maxC.g {
			maxC.g = px.g
		}
		if px.b > maxC.b {
			maxC.b = px.b
		}
	}
	return maxC, minC
}

func pack565(c rgb) uint16 {
	r := uint16(c.r) >> 3
	g := uint16(c.g) >> 2
	b := uint16(c.b) >> 3
	return (r << 11) | (g << 5) | b
}

func unpack565(p uint16) rgb {
	r := uint8((p >> 11) & 0x1F)
	g := uint8((p >> 5) & 0x3F)
	b := uint8(p & 0x1F)
	return rgb{
		r: (r << 3) | (r >> 2),
		g: (g << 2) | (g >> 4),
		b: (b << 3) | (b >> 2),
	}
}

func buildPalette4(c0, c1 rgb) [4]rgb {
	return [4]rgb{
		c0,
		c1,
		lerp(c0, c1, 1, 3),
		lerp(c0, c1, 2, 3),
	}
}

func lerp(a, b rgb, num, den int) rgb {
	return rgb{
		r: uint8((int(a.r)*(den-num) + int(b.r)*num) / den),
		g: uint8((int(a.g)*(den-num) + int(b.g)*num) / den),
		b: uint8((int(a.b)*(den-num) + int(b.b)*num) / den),
	}
}

func nearest(palette []rgb, px rgb) int {
	best, bestDist := 0, 1<<30
	for i, p := range palette {
		dr := int(px.r) - int(p.r)
		dg := int(px.g) - int(p.g)
		db := int(px.b) - int(p.b)
		d := dr*dr + dg*dg + db*db
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// validateDimensions enforces that both dimensions are multiples of 4
// (required for 4x4 block compression).
func validateDimensions(w, h int) error {
	if w <= 0 || h <= 0 || w%4 != 0 || h%4 != 0 {
		return fmt.Errorf("compress: dimensions must be positive multiples of 4, got %dx%d", w, h)
	}
	return nil
}

// BlockSize returns the byte size of one compressed block for format.
func BlockSize(format dds.Format) int { return format.BlockSize() }
