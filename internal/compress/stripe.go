package compress

import (
	"context"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ddscache/ddscached/internal/dds"
)

// DefaultStripeHeight is the default horizontal stripe height in pixels,
// rounded up to a multiple of 4 by planStripes.
const DefaultStripeHeight = 128

// stripePlan is one unit of stripe-parallel work: a row range and the byte
// offset in the output buffer it must land at.
type stripePlan struct {
	startRow, height int
	outOffset        int
}

func planStripes(width, height, stripeHeightPx int, format dds.Format) []stripePlan {
	if stripeHeightPx <= 0 {
		stripeHeightPx = DefaultStripeHeight
	}
	stripeHeightPx = (stripeHeightPx + 3) / 4 * 4
	blockSize := format.BlockSize()
	blocksPerRow := width / 4

	var plans []stripePlan
	start := 0
	for start < height {
		hh := stripeHeightPx
		if start+hh > height {
			hh = height - start
		}
		// Round up to a multiple of 4, matching the reference engine's
		// stripe-height normalization.
		hh = maxInt((hh+3)/4*4, 4)
		if start+hh > height {
			hh = height - start
		}
		dxtOffset := (start / 4) * blocksPerRow * blockSize
		plans = append(plans, stripePlan{startRow: start, height: hh, outOffset: dxtOffset})
		start += hh
	}
	return plans
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CompressStripeParallelEphemeral compresses img to BC1/BC3 blocks,
// distributing horizontal stripes of stripeHeightPx rows (rounded up to a
// multiple of 4; DefaultStripeHeight if out of range) across an ephemeral
// worker pool spun up for this call and torn down when it returns. Failure
// in any stripe fails the whole call; no partial output is returned.
func CompressStripeParallelEphemeral(ctx context.Context, img *image.RGBA, w, h int, format dds.Format, stripeHeightPx, workers int) ([]byte, error) {
	if err := validateDimensions(w, h); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	totalBlocks := (w / 4) * (h / 4)
	out := make([]byte, totalBlocks*format.BlockSize())
	plans := planStripes(w, h, stripeHeightPx, format)

	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))
	for _, p := range plans {
		p := p
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			compressRegion(out, p.outOffset, img, w, p.startRow, p.height, format)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("compress: stripe compression failed: %w", err)
	}
	return out, nil
}

// Pool is a persistent stripe-compression worker pool with a concurrent-job
// semaphore limiting how many large compression calls may run at once
// (default 1), bounding resource contention when many tiles build
// simultaneously. Unlike CompressStripeParallelEphemeral, the job gate is
// shared across calls; each admitted call still gets its own per-job stripe
// concurrency limit of workers.
type Pool struct {
	workers int
	jobSem  *semaphore.Weighted
}

// NewPool creates a persistent pool. workers bounds per-job stripe
// concurrency (GOMAXPROCS if <= 0); maxConcurrentJobs bounds how many
// top-level CompressStripeParallel calls may run at once (1 if <= 0).
func NewPool(workers, maxConcurrentJobs int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 1
	}
	return &Pool{
		workers: workers,
		jobSem:  semaphore.NewWeighted(int64(maxConcurrentJobs)),
	}
}

// CompressStripeParallel acquires a job slot (blocking if the pool is at its
// concurrent-job limit) then compresses img the same way as
// CompressStripeParallelEphemeral.
func (p *Pool) CompressStripeParallel(ctx context.Context, img *image.RGBA, w, h int, format dds.Format, stripeHeightPx int) ([]byte, error) {
	if err := p.jobSem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.jobSem.Release(1)
	return CompressStripeParallelEphemeral(ctx, img, w, h, format, stripeHeightPx, p.workers)
}
