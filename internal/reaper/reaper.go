// Package reaper implements the source-JPEG reaper: once a DDS store
// completes fully, the chunks that fed it are no longer needed and are
// deleted across every zoom level the mipmap pyramid drew from.
package reaper

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/metrics"
)

// chunkSizePx mirrors the chunk edge length assumed throughout the cache.
const chunkSizePx = 256

// maxDeleteRetries and retryBackoff bound the lock-contention retry the
// reaper uses around each delete.
const (
	maxDeleteRetries = 3
	retryBackoff     = 10 * time.Millisecond
)

// Reaper runs cleanup jobs on a single long-lived worker pool.
type Reaper struct {
	miscRoot string
	minZoom  int
	pool     *workerpool.WorkerPool
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// Options configures a new Reaper.
type Options struct {
	MiscRoot       string
	MinZoom        int
	Metrics        *metrics.Metrics
	Logger         *log.Logger
	WorkerPoolSize int
}

// New constructs a Reaper backed by its own worker pool.
func New(opts Options) *Reaper {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	size := opts.WorkerPoolSize
	if size <= 0 {
		size = 2
	}
	minZoom := opts.MinZoom
	if minZoom <= 0 {
		minZoom = 12
	}
	return &Reaper{
		miscRoot: opts.MiscRoot,
		minZoom:  minZoom,
		pool:     workerpool.New(size),
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Stop waits for in-flight cleanup jobs to finish.
func (r *Reaper) Stop() { r.pool.StopWait() }

// Dispatch schedules cleanup of id's source chunks across every zoom level
// from maxZoom down to the reaper's configured min_zoom, returning
// immediately so the caller's store can return without waiting on disk I/O.
func (r *Reaper) Dispatch(id cachepath.Identity, maxZoom, width, height int) {
	r.pool.Submit(func() {
		n := r.Cleanup(id, maxZoom, width, height)
		if n > 0 && r.metrics != nil {
			r.metrics.ReaperDeletes.Add(float64(n))
		}
	})
}

// Cleanup runs the deletion sweep synchronously and returns the count of
// files actually removed. width/height are chunk-grid dimensions (the
// number of 256px source chunks per row/column at id's tilename_zoom), not
// pixel dimensions.
func (r *Reaper) Cleanup(id cachepath.Identity, maxZoom, width, height int) int {
	deleted := 0
	for zoom := maxZoom; zoom >= r.minZoom; zoom-- {
		deleted += r.cleanupZoom(id, zoom, width, height)
	}
	if deleted > 0 {
		r.logger.Printf("reaper: cleaned up %d source JPEGs for %d_%d_%s z%d", deleted, id.Col, id.Row, id.MapType, maxZoom)
	}
	return deleted
}

// cleanupZoom deletes every chunk JPEG covering id's footprint at zoom.
// Coarser zooms cover the tile with fewer, larger chunks (right shift);
// finer zooms need proportionally more of them (left shift).
func (r *Reaper) cleanupZoom(id cachepath.Identity, zoom, width, height int) int {
	zoomDiff := id.TilenameZoom - zoom
	var col, row, w, h int
	if zoomDiff >= 0 {
		col = id.Col >> uint(zoomDiff)
		row = id.Row >> uint(zoomDiff)
		w = maxInt(1, width>>uint(zoomDiff))
		h = maxInt(1, height>>uint(zoomDiff))
	} else {
		shift := uint(-zoomDiff)
		col = id.Col << shift
		row = id.Row << shift
		w = width << shift
		h = height << shift
	}

	deleted := 0
	for y := row; y < row+h; y++ {
		for x := col; x < col+w; x++ {
			path := filepath.Join(r.miscRoot, fmt.Sprintf("%d_%d_%d_%s.jpg", x, y, zoom, id.MapType))
			if removeWithRetry(path) {
				deleted++
			}
		}
	}
	return deleted
}

// removeWithRetry deletes path, retrying on transient permission errors
// (lock contention from a concurrent writer) up to maxDeleteRetries times.
// It reports whether this call removed the file; a missing file is not an
// error and is not retried, but reports false since nothing was removed.
func removeWithRetry(path string) bool {
	for attempt := 0; attempt <= maxDeleteRetries; attempt++ {
		err := os.Remove(path)
		if err == nil {
			return true
		}
		if os.IsNotExist(err) {
			return false
		}
		if os.IsPermission(err) && attempt < maxDeleteRetries {
			time.Sleep(retryBackoff)
			continue
		}
		return false
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ChunksPerRow computes the chunk-grid width/height for a texture of the
// given pixel dimension, assuming chunkSizePx source chunks.
func ChunksPerRow(dim int) int {
	n := dim / chunkSizePx
	if n < 1 {
		n = 1
	}
	return n
}
