package dds

// Mipmap describes one level of the pyramid.
type Mipmap struct {
	Index    int
	Width    int
	Height   int
	StartPos int64
	Length   int64
}

// EndPos is the exclusive end offset of the mipmap's byte range.
func (m Mipmap) EndPos() int64 { return m.StartPos + m.Length }

// HeaderSize is the fixed DDS header size: "DDS " magic (4 bytes) followed
// by the 124-byte DDS_HEADER structure.
const HeaderSize = 128

// Layout is an immutable descriptor of a DDS artifact's mipmap pyramid for a
// given (width, height, format). It has no I/O and no mutable state; every
// downstream component treats it as an oracle for where bytes belong.
type Layout struct {
	Width      int
	Height     int
	Format     Format
	Mipmaps    []Mipmap
	TotalSize  int64 // HeaderSize + sum of mipmap lengths
}

// NewLayout enumerates the mipmap pyramid for (width, height, format).
//
// Mipmap i has width max(1, width>>i), height max(1, height>>i), and byte
// length max(1, (w*h)>>4) * blocksize. Enumeration stops the first time both
// pre-clamp shifted dimensions reach zero, which for a power-of-two texture
// yields the classical pyramid down to the 1x1 level.
func NewLayout(width, height int, format Format) *Layout {
	blockSize := int64(format.BlockSize())
	var mipmaps []Mipmap
	total := int64(HeaderSize)

	for i := 0; ; i++ {
		preW := width >> uint(i)
		preH := height >> uint(i)
		if preW == 0 && preH == 0 {
			break
		}
		w := maxInt(1, preW)
		h := maxInt(1, preH)
		length := maxInt64(1, int64(w*h)>>4) * blockSize
		mipmaps = append(mipmaps, Mipmap{
			Index:    i,
			Width:    w,
			Height:   h,
			StartPos: total,
			Length:   length,
		})
		total += length
	}

	return &Layout{
		Width:     width,
		Height:    height,
		Format:    format,
		Mipmaps:   mipmaps,
		TotalSize: total,
	}
}

// MipmapCount returns the number of mipmap levels in the pyramid.
func (l *Layout) MipmapCount() int { return len(l.Mipmaps) }

// At returns the mipmap descriptor for level i, or the zero value and false
// if i is out of range.
func (l *Layout) At(i int) (Mipmap, bool) {
	if i < 0 || i >= len(l.Mipmaps) {
		return Mipmap{}, false
	}
	return l.Mipmaps[i], true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
