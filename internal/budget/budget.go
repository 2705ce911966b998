// Package budget implements the disk budget manager: soft,
// percentage-allocated accounting across three disjoint disk pools
// (bundles, DDS artifacts, orphan JPEGs), with background eviction and
// stale-DDS reclamation.
package budget

import (
	"context"
	"log"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/ddscache/ddscached/internal/bundle"
	"github.com/ddscache/ddscached/internal/cachepath"
	"github.com/ddscache/ddscached/internal/ddm"
	"github.com/ddscache/ddscached/internal/ddscache"
	"github.com/ddscache/ddscached/internal/metrics"
)

// hysteresis is the fraction of budget eviction targets down to, so
// eviction doesn't immediately re-trigger right at the limit.
const hysteresis = 0.9

// UsageReport is a snapshot of per-category disk usage against budget.
type UsageReport struct {
	BundleBytes int64
	DDSBytes    int64
	JPEGBytes   int64
	TotalBytes  int64
	BudgetBytes int64
	ScanTimeMs  int64
}

// Manager tracks per-category usage and dispatches eviction/cleanup to a
// single long-lived worker pool.
type Manager struct {
	cacheRoot string
	cache     *ddscache.Cache
	pool      *workerpool.WorkerPool
	logger    *log.Logger
	metrics   *metrics.Metrics

	ddsBudgetBytes    int64
	bundleBudgetBytes int64
	jpegBudgetBytes   int64

	ddsBytes    int64
	bundleBytes int64
	jpegBytes   int64

	ddsEvictionInFlight  int32
	jpegCleanupInFlight  int32
}

// Options configures a new Manager.
type Options struct {
	CacheRoot         string
	Cache             *ddscache.Cache
	TotalBudgetBytes  int64
	DDSBudgetPct      float64
	BundleBudgetPct   float64
	JPEGBudgetPct     float64
	Metrics           *metrics.Metrics
	Logger            *log.Logger
	WorkerPoolSize    int
}

// New constructs a Manager with its per-category budgets already computed
// from the percentages in opts, used as given: New does not clamp or
// renormalize them (config.NormalizeBudgetPercentages does).
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	poolSize := opts.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 2
	}
	m := &Manager{
		cacheRoot:         opts.CacheRoot,
		cache:             opts.Cache,
		pool:              workerpool.New(poolSize),
		logger:            logger,
		metrics:           opts.Metrics,
		ddsBudgetBytes:    int64(float64(opts.TotalBudgetBytes) * opts.DDSBudgetPct / 100),
		bundleBudgetBytes: int64(float64(opts.TotalBudgetBytes) * opts.BundleBudgetPct / 100),
		jpegBudgetBytes:   int64(float64(opts.TotalBudgetBytes) * opts.JPEGBudgetPct / 100),
	}
	if m.metrics != nil {
		m.metrics.BudgetLimitBytes.WithLabelValues("dds").Set(float64(m.ddsBudgetBytes))
		m.metrics.BudgetLimitBytes.WithLabelValues("bundle").Set(float64(m.bundleBudgetBytes))
		m.metrics.BudgetLimitBytes.WithLabelValues("jpeg").Set(float64(m.jpegBudgetBytes))
	}
	return m
}

// Stop waits for in-flight background jobs to finish and releases the pool.
func (m *Manager) Stop() { m.pool.StopWait() }

// AccountDDS adjusts tracked DDS usage and schedules eviction if the
// category is over budget.
func (m *Manager) AccountDDS(deltaBytes int64) {
	v := atomic.AddInt64(&m.ddsBytes, deltaBytes)
	if m.metrics != nil {
		m.metrics.BudgetUsageBytes.WithLabelValues("dds").Set(float64(v))
	}
	if v > m.ddsBudgetBytes {
		m.scheduleDDSEviction()
	}
}

// AccountBundle adjusts tracked bundle usage. Bundles are never evicted by
// this manager; reclamation of bundles themselves is out of scope.
func (m *Manager) AccountBundle(deltaBytes int64) {
	v := atomic.AddInt64(&m.bundleBytes, deltaBytes)
	if m.metrics != nil {
		m.metrics.BudgetUsageBytes.WithLabelValues("bundle").Set(float64(v))
	}
}

func (m *Manager) accountJPEG(deltaBytes int64) {
	v := atomic.AddInt64(&m.jpegBytes, deltaBytes)
	if m.metrics != nil {
		m.metrics.BudgetUsageBytes.WithLabelValues("jpeg").Set(float64(v))
	}
	if v > m.jpegBudgetBytes {
		m.scheduleJPEGCleanup()
	}
}

// scheduleDDSEviction submits exactly one in-flight eviction job per
// category, so a burst of AccountDDS calls while eviction runs is a no-op.
func (m *Manager) scheduleDDSEviction() {
	if !atomic.CompareAndSwapInt32(&m.ddsEvictionInFlight, 0, 1) {
		return
	}
	m.pool.Submit(func() {
		defer atomic.StoreInt32(&m.ddsEvictionInFlight, 0)
		m.CheckAndEvict()
	})
}

func (m *Manager) scheduleJPEGCleanup() {
	if !atomic.CompareAndSwapInt32(&m.jpegCleanupInFlight, 0, 1) {
		return
	}
	m.pool.Submit(func() {
		defer atomic.StoreInt32(&m.jpegCleanupInFlight, 0)
		if _, err := m.CleanupOrphanJPEGs(); err != nil {
			m.logger.Printf("budget: cleanup_orphan_jpegs: %v", err)
		}
	})
}

// CheckAndEvict enforces the hysteresis rule: if DDS usage is over budget,
// it evicts down to 90% of budget; if orphan JPEG usage is over budget, it
// triggers a cleanup pass.
func (m *Manager) CheckAndEvict() {
	current := atomic.LoadInt64(&m.ddsBytes)
	target := int64(float64(m.ddsBudgetBytes) * hysteresis)
	if current > m.ddsBudgetBytes {
		toFree := current - target
		freed := m.cache.EvictLRU(toFree)
		atomic.AddInt64(&m.ddsBytes, -freed)
		if m.metrics != nil {
			m.metrics.CacheEvictions.Add(float64(1))
			m.metrics.BudgetUsageBytes.WithLabelValues("dds").Set(float64(atomic.LoadInt64(&m.ddsBytes)))
		}
	}
	if atomic.LoadInt64(&m.jpegBytes) > m.jpegBudgetBytes {
		if _, err := m.CleanupOrphanJPEGs(); err != nil {
			m.logger.Printf("budget: cleanup_orphan_jpegs: %v", err)
		}
	}
}

// ScanDiskUsage walks bundles/, dds_cache/, and loose JPEGs outside those
// subtrees, summing sizes per category.
func (m *Manager) ScanDiskUsage() (UsageReport, error) {
	start := time.Now()

	bundleBytes, err := bundle.ScanDirSize(filepath.Join(m.cacheRoot, "bundles"))
	if err != nil {
		return UsageReport{}, err
	}
	ddsBytes, err := bundle.ScanDirSize(filepath.Join(m.cacheRoot, "dds_cache"))
	if err != nil {
		return UsageReport{}, err
	}
	jpegBytes, err := bundle.ScanDirSize(filepath.Join(m.cacheRoot, "misc"))
	if err != nil {
		return UsageReport{}, err
	}

	atomic.StoreInt64(&m.bundleBytes, bundleBytes)
	atomic.StoreInt64(&m.ddsBytes, ddsBytes)
	atomic.StoreInt64(&m.jpegBytes, jpegBytes)

	return UsageReport{
		BundleBytes: bundleBytes,
		DDSBytes:    ddsBytes,
		JPEGBytes:   jpegBytes,
		TotalBytes:  bundleBytes + ddsBytes + jpegBytes,
		BudgetBytes: m.ddsBudgetBytes + m.bundleBudgetBytes + m.jpegBudgetBytes,
		ScanTimeMs:  time.Since(start).Milliseconds(),
	}, nil
}

// InitialScan runs the full startup sequence: scan, orphan cleanup,
// stale-DDS cleanup, then a budget check.
func (m *Manager) InitialScan(ctx context.Context) (UsageReport, error) {
	report, err := m.ScanDiskUsage()
	if err != nil {
		return report, err
	}
	if _, err := m.CleanupOrphanJPEGs(); err != nil {
		m.logger.Printf("budget: initial_scan: cleanup_orphan_jpegs: %v", err)
	}
	if _, err := m.CleanupStaleDDS(); err != nil {
		m.logger.Printf("budget: initial_scan: cleanup_stale_dds: %v", err)
	}
	m.CheckAndEvict()
	return report, nil
}

// CleanupStaleDDS deletes every DDS/DDM pair whose source bundle is
// absent, reducing tracked DDS usage.
func (m *Manager) CleanupStaleDDS() (int, error) {
	root := filepath.Join(m.cacheRoot, "dds_cache")
	var freed int64
	count := 0

	err := walkDDS(root, func(ddsPath, ddmPath string) {
		rec, err := ddm.Read(ddmPath)
		if err != nil {
			return
		}
		id := cachepath.Identity{Row: rec.TileRow, Col: rec.TileCol, MapType: rec.Map, TilenameZoom: rec.ZL}
		if bundle.Exists(m.cacheRoot, id) {
			return
		}
		size := fileSize(ddsPath) + fileSize(ddmPath)
		if !m.cache.Invalidate(id, rec.MaxZL) {
			removeQuiet(ddsPath)
			removeQuiet(ddmPath)
		}
		freed += size
		count++
	})
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&m.ddsBytes, -freed)
	return count, nil
}

// CleanupOrphanJPEGs delegates to the bundle subsystem.
func (m *Manager) CleanupOrphanJPEGs() (int, error) {
	count, freed, err := bundle.CleanupOrphanJPEGs(filepath.Join(m.cacheRoot, "misc"))
	if err != nil {
		return 0, err
	}
	atomic.AddInt64(&m.jpegBytes, -freed)
	if m.metrics != nil {
		m.metrics.BudgetUsageBytes.WithLabelValues("jpeg").Set(float64(atomic.LoadInt64(&m.jpegBytes)))
	}
	return count, nil
}
