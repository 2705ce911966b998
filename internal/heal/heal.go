// Package heal implements the healing dispatcher: after a serve from an
// incomplete DDS, check whether every missing source chunk now exists on
// local disk, and if so reconstruct them and invoke the cache's in-place
// patch.
package heal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gammazero/workerpool"

	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddscache"
	"github.com/ddscache/ddscached/internal/metrics"
)

// chunkSizePx mirrors internal/ddscache's own constant: the source JPEG
// chunk edge length mm0 is tiled from.
const chunkSizePx = 256

// Dispatcher runs healing attempts on a single long-lived worker pool
// rather than one goroutine per incomplete load.
type Dispatcher struct {
	cache              *ddscache.Cache
	miscRoot           string
	cacheRootForBundle string
	pool               *workerpool.WorkerPool
	logger             *log.Logger
	metrics            *metrics.Metrics
}

// Options configures a new Dispatcher.
type Options struct {
	Cache              *ddscache.Cache
	MiscRoot           string
	CacheRootForBundle string
	Metrics            *metrics.Metrics
	Logger             *log.Logger
	WorkerPoolSize     int
}

// New constructs a Dispatcher backed by its own worker pool.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	size := opts.WorkerPoolSize
	if size <= 0 {
		size = 2
	}
	return &Dispatcher{
		cache:              opts.Cache,
		miscRoot:           opts.MiscRoot,
		cacheRootForBundle: opts.CacheRootForBundle,
		pool:               workerpool.New(size),
		logger:             logger,
		metrics:            opts.Metrics,
	}
}

// Stop waits for in-flight healing attempts to finish.
func (d *Dispatcher) Stop() { d.pool.StopWait() }

// Dispatch schedules a healing attempt for (id, maxZoom) with the given set
// of missing mm0 chunk indices, returning immediately. The caller (the load
// path) never waits on it.
func (d *Dispatcher) Dispatch(id cachepath.Identity, maxZoom int, missingIndices []int) {
	if len(missingIndices) == 0 {
		return
	}
	if d.metrics != nil {
		d.metrics.HealsAttempted.Inc()
	}
	d.pool.Submit(func() {
		d.attempt(id, maxZoom, missingIndices)
	})
}

// attempt looks for every missing chunk's source JPEG on local disk; if any
// is absent or unreadable, the whole attempt aborts without forcing a
// partial patch.
func (d *Dispatcher) attempt(id cachepath.Identity, maxZoom int, missingIndices []int) {
	rec, ok := d.cache.LoadMetadata(id, maxZoom)
	if !ok {
		return
	}
	cpr := chunksPerRow(rec.W)

	chunks := make(map[int][]byte, len(missingIndices))
	for _, idx := range missingIndices {
		cx, cy := idx%cpr, idx/cpr
		path := chunkPath(d.miscRoot, id, maxZoom, cx, cy)
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		chunks[idx] = data
	}

	if d.cache.PatchMissingChunks(id, maxZoom, chunks, d.cacheRootForBundle) {
		healed, ok := d.cache.LoadMetadata(id, maxZoom)
		if ok && !healed.NeedsHealing && d.metrics != nil {
			d.metrics.HealsCompleted.Inc()
		}
	}
}

func chunksPerRow(dim int) int {
	n := dim / chunkSizePx
	if n < 1 {
		n = 1
	}
	return n
}

// chunkPath builds the local source-chunk filename the JPEG fetcher (out of
// scope here) writes chunks to: "<col+cx>_<row+cy>_<max_zoom>_<maptype>.jpg".
func chunkPath(miscRoot string, id cachepath.Identity, maxZoom, cx, cy int) string {
	name := fmt.Sprintf("%d_%d_%d_%s.jpg", id.Col+cx, id.Row+cy, maxZoom, id.MapType)
	return filepath.Join(miscRoot, name)
}
