package compress

import (
	"image"

	"github.com/ddscache/ddscached/internal/dds"
)

func pixelAt(img *image.RGBA, x, y int) (rgb, uint8) {
	i := img.PixOffset(x, y)
	p := img.Pix
	return rgb{p[i], p[i+1], p[i+2]}, p[i+3]
}

// compressRegion compresses rows [startRow, startRow+height) of img into out
// starting at byte offset outOffset, for the given format. height must be a
// multiple of 4.
func compressRegion(out []byte, outOffset int, img *image.RGBA, width, startRow, height int, format dds.Format) {
	blockSize := format.BlockSize()
	blocksPerRow := width / 4
	pos := outOffset

	for by := startRow; by < startRow+height; by += 4 {
		for bx := 0; bx < width; bx += 4 {
			var colors [16]rgb
			var alphas [16]uint8
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					colors[y*4+x], alphas[y*4+x] = pixelAt(img, bx+x, by+y)
				}
			}

			dst := out[pos : pos+blockSize]
			if format == dds.BC3 {
				encodeBlockBC3(dst, colors, alphas)
			} else {
				encodeBlockBC1(dst, colors)
			}
			pos += blockSize
		}
		_ = blocksPerRow
	}
}

// CompressRGBAToBlocks compresses the full image to BC1/BC3 blocks,
// single-threaded. w and h must be multiples of 4 and must match img's
// bounds.
func CompressRGBAToBlocks(img *image.RGBA, w, h int, format dds.Format) ([]byte, error) {
	if err := validateDimensions(w, h); err != nil {
		return nil, err
	}
	totalBlocks := (w / 4) * (h / 4)
	out := make([]byte, totalBlocks*format.BlockSize())
	compressRegion(out, 0, img, w, 0, h, format)
	return out, nil
}
