package dds

import (
	"encoding/binary"
	"fmt"
)

// DDS_HEADER flags (see the standard DDS file format reference).
const (
	flagCaps        = 0x1
	flagHeight      = 0x2
	flagWidth       = 0x4
	flagPixelFormat = 0x1000
	flagMipmapCount = 0x20000
	flagLinearSize  = 0x80000
)

const (
	pixelFormatFourCC = 0x4
)

const (
	capsComplex = 0x8
	capsTexture = 0x1000
	capsMipmap  = 0x400000
)

// Header returns the canonical 128-byte DDS header for l's dimensions,
// format, and mipmap count, built to match a standard DDS reader.
func (l *Layout) Header() []byte {
	buf := make([]byte, HeaderSize)

	copy(buf[0:4], "DDS ")

	flags := flagCaps | flagHeight | flagWidth | flagPixelFormat | flagLinearSize
	caps := capsTexture
	if l.MipmapCount() > 1 {
		flags |= flagMipmapCount
		caps |= capsComplex | capsMipmap
	}

	mm0, _ := l.At(0)

	binary.LittleEndian.PutUint32(buf[4:8], 124) // dwSize
	binary.LittleEndian.PutUint32(buf[8:12], uint32(flags))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(l.Height))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(l.Width))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(mm0.Length)) // dwPitchOrLinearSize
	binary.LittleEndian.PutUint32(buf[24:28], 0)                  // dwDepth
	binary.LittleEndian.PutUint32(buf[28:32], uint32(l.MipmapCount()))
	// buf[32:76]: dwReserved1[11], left zero.

	// DDS_PIXELFORMAT at offset 76, 32 bytes.
	pf := buf[76:108]
	binary.LittleEndian.PutUint32(pf[0:4], 32) // dwSize
	binary.LittleEndian.PutUint32(pf[4:8], pixelFormatFourCC)
	copy(pf[8:12], l.Format.FourCC())
	// dwRGBBitCount and bitmasks are meaningless for a fourCC format; left zero.

	binary.LittleEndian.PutUint32(buf[108:112], uint32(caps))
	binary.LittleEndian.PutUint32(buf[112:116], 0) // dwCaps2
	binary.LittleEndian.PutUint32(buf[116:120], 0) // dwCaps3
	binary.LittleEndian.PutUint32(buf[120:124], 0) // dwCaps4
	binary.LittleEndian.PutUint32(buf[124:128], 0) // dwReserved2

	return buf
}

// ParseHeader reads width, height, mipmap count, and format from a 128-byte
// DDS header and returns the resulting Layout.
func ParseHeader(buf []byte) (*Layout, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("dds: header too short: %d bytes (need %d)", len(buf), HeaderSize)
	}
	if string(buf[0:4]) != "DDS " {
		return nil, fmt.Errorf("dds: invalid magic bytes: %q", buf[0:4])
	}

	height := int(binary.LittleEndian.Uint32(buf[12:16]))
	width := int(binary.LittleEndian.Uint32(buf[16:20]))

	fourCC := string(buf[84:88])
	var format Format
	switch fourCC {
	case "DXT1":
		format = BC1
	case "DXT5":
		format = BC3
	default:
		return nil, fmt.Errorf("dds: unsupported fourCC %q", fourCC)
	}

	return NewLayout(width, height, format), nil
}
