// Package cachepath implements the path resolver: a pure function from
// tile identity to the on-disk DDS/DDM file pair.
package cachepath

import (
	"fmt"
	"path/filepath"
)

// Identity names a tile independent of the zoom it was built at.
type Identity struct {
	Row, Col     int
	MapType      string
	TilenameZoom int
}

// Paths is the canonical <base>.dds / <base>.ddm pair for an identity at a
// given max_zoom.
type Paths struct {
	DDS string
	DDM string
}

// blockBucket floors v to a multiple of size, rounding towards negative
// infinity so buckets tile the number line without gaps.
func blockBucket(v, size int) int {
	block := (v / size) * size
	if v < 0 && v%size != 0 {
		block -= size
	}
	return block
}

// signedCoord formats a (row, col) pair, each floored to a multiple of size,
// as two signed components of at least three zero-padded digits (e.g.
// "+020-010"), used to shard the cache tree. The raw tile row and col are
// bucketed directly; they are not converted to latitude/longitude degrees.
func signedCoord(row, col, size int) string {
	r := blockBucket(row, size)
	c := blockBucket(col, size)
	return fmt.Sprintf("%s%s", signedComponent(r), signedComponent(c))
}

func signedComponent(v int) string {
	sign := "+"
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%03d", sign, v)
}

// Resolve computes the cache directory and basename for id at maxZoom,
// rooted beneath cacheRoot. Same inputs always produce the same paths;
// different maxZoom values produce different paths.
func Resolve(cacheRoot string, id Identity, maxZoom int) Paths {
	dir := Dir(cacheRoot, id)
	base := fmt.Sprintf("%d_%d_z%d", id.Row, id.Col, maxZoom)

	return Paths{
		DDS: filepath.Join(dir, base+".dds"),
		DDM: filepath.Join(dir, base+".ddm"),
	}
}

// Dir returns the directory Resolve would place the pair in, for callers
// that need to ensure it exists before writing.
func Dir(cacheRoot string, id Identity) string {
	tenDeg := signedCoord(id.Row, id.Col, 10)
	oneDeg := signedCoord(id.Row, id.Col, 1)
	return filepath.Join(cacheRoot, "dds_cache", tenDeg, oneDeg, id.MapType)
}
