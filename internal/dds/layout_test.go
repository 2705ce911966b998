package dds

import "testing"

func TestNewLayoutPyramid(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		format     Format
		wantLevels int
	}{
		{"4096 square BC1", 4096, 4096, BC1, 13},
		{"2048 square BC3", 2048, 2048, BC3, 12},
		{"256 square BC1", 256, 256, BC1, 9},
		{"4x4 minimum", 4, 4, BC1, 3},
		{"1x1", 1, 1, BC1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLayout(tt.w, tt.h, tt.format)
			if got := l.MipmapCount(); got != tt.wantLevels {
				t.Fatalf("MipmapCount() = %d, want %d", got, tt.wantLevels)
			}

			last, _ := l.At(l.MipmapCount() - 1)
			if last.Width != 1 || last.Height != 1 {
				t.Errorf("last mipmap = %dx%d, want 1x1", last.Width, last.Height)
			}

			// Offsets must be contiguous and non-overlapping.
			pos := int64(HeaderSize)
			for _, mm := range l.Mipmaps {
				if mm.StartPos != pos {
					t.Fatalf("mipmap %d StartPos = %d, want %d", mm.Index, mm.StartPos, pos)
				}
				pos = mm.EndPos()
			}
			if pos != l.TotalSize {
				t.Errorf("sum of mipmap ranges = %d, TotalSize = %d", pos, l.TotalSize)
			}
		})
	}
}

func TestLayoutRoundTripByteCount(t *testing.T) {
	// total_size must exactly equal the header plus the sum of every
	// mipmap's length, with no gaps or overlaps, for formats used by the
	// cache.
	for _, format := range []Format{BC1, BC3} {
		l := NewLayout(1024, 1024, format)
		var sum int64
		for _, mm := range l.Mipmaps {
			sum += mm.Length
		}
		if got, want := l.TotalSize, sum+HeaderSize; got != want {
			t.Errorf("format %s: TotalSize = %d, want %d", format, got, want)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	for _, format := range []Format{BC1, BC3} {
		l := NewLayout(512, 256, format)
		hdr := l.Header()
		if len(hdr) != HeaderSize {
			t.Fatalf("Header() length = %d, want %d", len(hdr), HeaderSize)
		}

		parsed, err := ParseHeader(hdr)
		if err != nil {
			t.Fatalf("ParseHeader: %v", err)
		}
		if parsed.Width != l.Width || parsed.Height != l.Height || parsed.Format != l.Format {
			t.Errorf("parsed = (%d,%d,%s), want (%d,%d,%s)",
				parsed.Width, parsed.Height, parsed.Format, l.Width, l.Height, l.Format)
		}
		if parsed.MipmapCount() != l.MipmapCount() {
			t.Errorf("parsed MipmapCount = %d, want %d", parsed.MipmapCount(), l.MipmapCount())
		}
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, "NOPE")
	if _, err := ParseHeader(buf); err == nil {
		t.Error("expected error for bad magic bytes")
	}
}

func TestParseHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 10)); err == nil {
		t.Error("expected error for short buffer")
	}
}
