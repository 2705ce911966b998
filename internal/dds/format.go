// Package dds implements the layout descriptor for DirectDraw Surface
// texture files: mipmap enumeration, byte offsets, and the 128-byte header.
// It performs no I/O; it is a pure oracle for where bytes belong.
package dds

import "fmt"

// Format identifies the block-compression format used for a DDS's mipmap
// pyramid.
type Format int

const (
	// BC1 is DXT1: 8 bytes per 4x4 pixel block, no alpha gradient.
	BC1 Format = iota
	// BC3 is DXT5: 16 bytes per 4x4 pixel block, with alpha gradient.
	BC3
)

func (f Format) String() string {
	switch f {
	case BC1:
		return "BC1"
	case BC3:
		return "BC3"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// BlockSize returns the number of bytes per 4x4 pixel block.
func (f Format) BlockSize() int {
	switch f {
	case BC1:
		return 8
	case BC3:
		return 16
	default:
		return 0
	}
}

// FourCC returns the DDS pixel-format fourCC tag for f.
func (f Format) FourCC() string {
	switch f {
	case BC1:
		return "DXT1"
	case BC3:
		return "DXT5"
	default:
		return ""
	}
}

// ParseFormat parses the tag strings used in DDM records and configuration.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "BC1":
		return BC1, nil
	case "BC3":
		return BC3, nil
	default:
		return 0, fmt.Errorf("dds: unknown format %q", s)
	}
}
