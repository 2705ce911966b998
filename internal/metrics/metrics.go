// Package metrics exposes cache operation counters and budget gauges via a
// prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter/gauge the budget manager, healer, and reaper
// report through. CacheHits, CacheMisses, CacheStores, and CacheInvalids are
// registered but nothing in this module increments them; ddscache.Cache
// keeps its own counters, exposed by Cache.Stats.
type Metrics struct {
	Registry *prometheus.Registry

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheStores    prometheus.Counter
	CacheEvictions prometheus.Counter
	CacheInvalids  prometheus.Counter
	HealsAttempted prometheus.Counter
	HealsCompleted prometheus.Counter
	ReaperDeletes  prometheus.Counter

	BudgetUsageBytes *prometheus.GaugeVec // label: category
	BudgetLimitBytes *prometheus.GaugeVec // label: category
}

// New constructs a Metrics instance registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		CacheHits:      f.NewCounter(prometheus.CounterOpts{Name: "ddscache_hits_total", Help: "DDS cache load hits."}),
		CacheMisses:    f.NewCounter(prometheus.CounterOpts{Name: "ddscache_misses_total", Help: "DDS cache load misses."}),
		CacheStores:    f.NewCounter(prometheus.CounterOpts{Name: "ddscache_stores_total", Help: "DDS cache store operations."}),
		CacheEvictions: f.NewCounter(prometheus.CounterOpts{Name: "ddscache_evictions_total", Help: "LRU eviction passes run by the budget manager."}),
		CacheInvalids:  f.NewCounter(prometheus.CounterOpts{Name: "ddscache_invalidations_total", Help: "Entries removed by invalidate/staleness."}),
		HealsAttempted: f.NewCounter(prometheus.CounterOpts{Name: "ddscache_heals_attempted_total", Help: "Healing attempts dispatched."}),
		HealsCompleted: f.NewCounter(prometheus.CounterOpts{Name: "ddscache_heals_completed_total", Help: "Healing attempts that fully cleared missing chunks."}),
		ReaperDeletes:  f.NewCounter(prometheus.CounterOpts{Name: "ddscache_reaper_deletes_total", Help: "Source JPEG chunks deleted by the reaper."}),

		BudgetUsageBytes: f.NewGaugeVec(prometheus.GaugeOpts{Name: "ddscache_budget_usage_bytes", Help: "Tracked disk usage per budget category."}, []string{"category"}),
		BudgetLimitBytes: f.NewGaugeVec(prometheus.GaugeOpts{Name: "ddscache_budget_limit_bytes", Help: "Disk budget limit per category."}, []string{"category"}),
	}
}
