// Package config provides a typed configuration record for the cache and
// budget manager.
package config

import (
	"flag"
	"fmt"

	"github.com/docker/go-units"

	"github.com/ddscache/ddscached/internal/dds"
)

// Config is the complete set of options the core reads from an external
// config surface.
type Config struct {
	CacheRoot string

	TotalBudgetBytes int64

	// Budget allocation percentages, clamped to {dds:[10,60],
	// bundle:[30,80], jpeg:[1,20]} and renormalized to sum 100 by
	// NormalizeBudgetPercentages (called from Finalize).
	DDSBudgetPct    float64
	BundleBudgetPct float64
	JPEGBudgetPct   float64

	DiskCompression      string // "none" or "zstd"
	DiskCompressionLevel int    // 1-19, default 3

	Format     dds.Format
	Compressor string

	StripeHeightPx    int
	CompressWorkers   int
	MaxConcurrentJobs int

	// MinZoom bounds the reaper's per-store cleanup sweep: source JPEGs are
	// deleted from max_zoom down to MinZoom, never below it.
	MinZoom int

	MetricsAddr string

	// totalBudgetFlag and formatFlag hold the raw flag strings until
	// Finalize parses and validates them into TotalBudgetBytes and Format.
	totalBudgetFlag *string
	formatFlag      *string
}

// Default returns a Config with the documented defaults, before flag
// parsing or clamping.
func Default() Config {
	return Config{
		CacheRoot:            "./cache",
		TotalBudgetBytes:     2 << 30, // 2 GiB
		DDSBudgetPct:         40,
		BundleBudgetPct:      55,
		JPEGBudgetPct:        5,
		DiskCompression:      "none",
		DiskCompressionLevel: 3,
		Format:               dds.BC1,
		Compressor:           "none",
		StripeHeightPx:       128,
		CompressWorkers:      0,
		MaxConcurrentJobs:    1,
		MinZoom:              12,
		MetricsAddr:          ":9090",
	}
}

// RegisterFlags binds c's fields to flags on fs using the standard library's
// flag.*Var idiom rather than a config file format or a third-party flag
// library.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.CacheRoot, "cache-root", c.CacheRoot, "Root directory of the cache tree")

	var totalBudget string
	fs.StringVar(&totalBudget, "total-budget", units.BytesSize(float64(c.TotalBudgetBytes)), "Combined disk budget across all categories (e.g. 2GiB, 500MB)")
	c.totalBudgetFlag = &totalBudget

	fs.Float64Var(&c.DDSBudgetPct, "dds-budget-pct", c.DDSBudgetPct, "DDS category budget allocation percentage")
	fs.Float64Var(&c.BundleBudgetPct, "bundle-budget-pct", c.BundleBudgetPct, "Bundle category budget allocation percentage")
	fs.Float64Var(&c.JPEGBudgetPct, "jpeg-budget-pct", c.JPEGBudgetPct, "Orphan-JPEG category budget allocation percentage")

	fs.StringVar(&c.DiskCompression, "disk-compression", c.DiskCompression, "DDS on-disk compression: none or zstd")
	fs.IntVar(&c.DiskCompressionLevel, "disk-compression-level", c.DiskCompressionLevel, "Zstd compression level (1-19)")

	var format string
	fs.StringVar(&format, "format", "BC1", "Active block format: BC1 or BC3")
	c.formatFlag = &format

	fs.StringVar(&c.Compressor, "compressor", c.Compressor, "Active compressor identity tag")

	fs.IntVar(&c.StripeHeightPx, "stripe-height", c.StripeHeightPx, "Stripe-parallel compression stripe height in pixels")
	fs.IntVar(&c.CompressWorkers, "compress-workers", c.CompressWorkers, "Stripe compression worker count (0 = GOMAXPROCS)")
	fs.IntVar(&c.MaxConcurrentJobs, "max-concurrent-jobs", c.MaxConcurrentJobs, "Max concurrent large compression jobs")

	fs.IntVar(&c.MinZoom, "min-zoom", c.MinZoom, "Lowest zoom level the source-JPEG reaper sweeps down to")

	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Address to serve /metrics on")
}

// Finalize parses string-typed flags (byte sizes, format tags) into their
// typed fields and clamps/normalizes budget percentages. Must be called
// after flag.Parse.
func (c *Config) Finalize() error {
	if c.totalBudgetFlag != nil {
		n, err := units.RAMInBytes(*c.totalBudgetFlag)
		if err != nil {
			return fmt.Errorf("config: invalid -total-budget: %w", err)
		}
		c.TotalBudgetBytes = n
	}
	if c.formatFlag != nil {
		f, err := dds.ParseFormat(*c.formatFlag)
		if err != nil {
			return fmt.Errorf("config: invalid -format: %w", err)
		}
		c.Format = f
	}

	c.DDSBudgetPct, c.BundleBudgetPct, c.JPEGBudgetPct = NormalizeBudgetPercentages(
		c.DDSBudgetPct, c.BundleBudgetPct, c.JPEGBudgetPct)

	return nil
}

// NormalizeBudgetPercentages clamps each percentage to its documented range
// (dds:[10,60], bundle:[30,80], jpeg:[1,20]) then renormalizes the three so
// they sum to 100.
func NormalizeBudgetPercentages(dds, bundle, jpeg float64) (float64, float64, float64) {
	dds = clamp(dds, 10, 60)
	bundle = clamp(bundle, 30, 80)
	jpeg = clamp(jpeg, 1, 20)

	total := dds + bundle + jpeg
	if total <= 0 {
		return 40, 55, 5
	}
	return dds / total * 100, bundle / total * 100, jpeg / total * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
