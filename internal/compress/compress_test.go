package compress

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/ddscache/ddscached/internal/dds"
)

func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCompressRGBAToBlocksSize(t *testing.T) {
	tests := []struct {
		w, h   int
		format dds.Format
	}{
		{256, 256, dds.BC1},
		{256, 256, dds.BC3},
		{4, 4, dds.BC1},
	}
	for _, tt := range tests {
		img := uniformImage(tt.w, tt.h, color.RGBA{R: 128, G: 64, B: 32, A: 200})
		out, err := CompressRGBAToBlocks(img, tt.w, tt.h, tt.format)
		if err != nil {
			t.Fatalf("CompressRGBAToBlocks: %v", err)
		}
		want := (tt.w / 4) * (tt.h / 4) * tt.format.BlockSize()
		if len(out) != want {
			t.Errorf("%dx%d %s: output length = %d, want %d", tt.w, tt.h, tt.format, len(out), want)
		}
	}
}

func TestCompressRGBAToBlocksRejectsBadDimensions(t *testing.T) {
	img := uniformImage(10, 10, color.RGBA{})
	if _, err := CompressRGBAToBlocks(img, 10, 10, dds.BC1); err == nil {
		t.Error("expected error for non-multiple-of-4 dimensions")
	}
}

func TestStripeParallelMatchesSequential(t *testing.T) {
	w, h := 256, 256
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x), G: uint8(y), B: uint8(x + y), A: 255,
			})
		}
	}

	for _, format := range []dds.Format{dds.BC1, dds.BC3} {
		seq, err := CompressRGBAToBlocks(img, w, h, format)
		if err != nil {
			t.Fatalf("sequential: %v", err)
		}
		par, err := CompressStripeParallelEphemeral(context.Background(), img, w, h, format, 64, 4)
		if err != nil {
			t.Fatalf("parallel: %v", err)
		}
		if len(seq) != len(par) {
			t.Fatalf("%s: length mismatch seq=%d par=%d", format, len(seq), len(par))
		}
		for i := range seq {
			if seq[i] != par[i] {
				t.Fatalf("%s: byte mismatch at %d: seq=%02x par=%02x", format, i, seq[i], par[i])
			}
		}
	}
}

func TestPoolRunsSuccessiveJobs(t *testing.T) {
	pool := NewPool(2, 1)
	img := uniformImage(64, 64, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	out1, err := pool.CompressStripeParallel(context.Background(), img, 64, 64, dds.BC1, 32)
	if err != nil {
		t.Fatalf("first job: %v", err)
	}
	out2, err := pool.CompressStripeParallel(context.Background(), img, 64, 64, dds.BC1, 32)
	if err != nil {
		t.Fatalf("second job: %v", err)
	}
	if len(out1) != len(out2) {
		t.Errorf("length mismatch between sequential pool jobs")
	}
}
