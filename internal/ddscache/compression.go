package ddscache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression is the "identity vs zstd-frame" capability: selected once at
// startup, called through uniformly by every store/load path.
type Compression interface {
	// Tag is the disk_compression value this implementation writes ("none"
	// or "zstd").
	Tag() string
	// Wrap compresses data. Implementations that cannot shrink the payload
	// may return it unchanged with ok=false so the caller falls back to
	// storing raw bytes under disk_compression="none".
	Wrap(data []byte) (out []byte, ok bool, err error)
	Unwrap(data []byte) ([]byte, error)
}

// NoneCompression stores bytes as-is.
type NoneCompression struct{}

func (NoneCompression) Tag() string { return "none" }
func (NoneCompression) Wrap(data []byte) ([]byte, bool, error) {
	return data, false, nil
}
func (NoneCompression) Unwrap(data []byte) ([]byte, error) { return data, nil }

// ZstdCompression wraps the whole DDS byte sequence in a single zstd frame.
type ZstdCompression struct {
	Level int
}

func (z ZstdCompression) Tag() string { return "zstd" }

func (z ZstdCompression) Wrap(data []byte) ([]byte, bool, error) {
	level := zstd.SpeedDefault
	switch {
	case z.Level <= 1:
		level = zstd.SpeedFastest
	case z.Level >= 15:
		level = zstd.SpeedBestCompression
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, false, fmt.Errorf("ddscache: zstd writer: %w", err)
	}
	defer enc.Close()
	out := enc.EncodeAll(data, make([]byte, 0, len(data)))
	if len(out) >= len(data) {
		return data, false, nil
	}
	return out, true, nil
}

func (z ZstdCompression) Unwrap(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ddscache: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decode: %v", ErrCorruption, err)
	}
	return out, nil
}
