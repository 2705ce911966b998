package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddscache/ddscached/internal/budget"
	"github.com/ddscache/ddscached/internal/config"
	"github.com/ddscache/ddscached/internal/ddscache"
	"github.com/ddscache/ddscached/internal/heal"
	"github.com/ddscache/ddscached/internal/metrics"
	"github.com/ddscache/ddscached/internal/reaper"
	"github.com/ddscache/ddscached/internal/service"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cfg := config.Default()
	fs := flag.NewFlagSet("ddscached", flag.ExitOnError)
	cfg.RegisterFlags(fs)

	var (
		showVersion bool
		cpuProfile  string
		memProfile  string
	)
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")
	fs.StringVar(&memProfile, "memprofile", "", "Write memory profile to file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ddscached [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Serve a persistent DDS texture cache over the local filesystem.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Printf("ddscached %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}
	if memProfile != "" {
		defer func() {
			f, err := os.Create(memProfile)
			if err != nil {
				log.Fatalf("Creating memory profile: %v", err)
			}
			defer f.Close()
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				log.Fatalf("Writing memory profile: %v", err)
			}
		}()
	}

	if err := cfg.Finalize(); err != nil {
		log.Fatalf("Config: %v", err)
	}

	logger := log.New(os.Stderr, "ddscached: ", log.LstdFlags)

	run(cfg, logger)
}

func run(cfg config.Config, logger *log.Logger) {
	m := metrics.New()

	var compression ddscache.Compression
	switch cfg.DiskCompression {
	case "zstd":
		compression = ddscache.ZstdCompression{Level: cfg.DiskCompressionLevel}
	default:
		compression = ddscache.NoneCompression{}
	}

	cache := ddscache.New(ddscache.Options{
		CacheRoot:     cfg.CacheRoot,
		Format:        cfg.Format,
		CompressorTag: cfg.Compressor,
		Compression:   compression,
		Logger:        logger,
	})

	logger.Printf("scanning existing cache tree at %s", cfg.CacheRoot)
	n, err := cache.ScanExisting()
	if err != nil {
		logger.Printf("scan_existing: %v", err)
	} else {
		logger.Printf("scan_existing: recovered %d entries", n)
	}

	budgetMgr := budget.New(budget.Options{
		CacheRoot:        cfg.CacheRoot,
		Cache:            cache,
		TotalBudgetBytes: cfg.TotalBudgetBytes,
		DDSBudgetPct:     cfg.DDSBudgetPct,
		BundleBudgetPct:  cfg.BundleBudgetPct,
		JPEGBudgetPct:    cfg.JPEGBudgetPct,
		Metrics:          m,
		Logger:           logger,
	})
	defer budgetMgr.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := budgetMgr.InitialScan(ctx)
	if err != nil {
		logger.Printf("initial_scan: %v", err)
	} else {
		logger.Printf("initial_scan: bundle=%d dds=%d jpeg=%d bytes in %dms", report.BundleBytes, report.DDSBytes, report.JPEGBytes, report.ScanTimeMs)
	}

	healer := heal.New(heal.Options{
		Cache:              cache,
		MiscRoot:           miscRoot(cfg.CacheRoot),
		CacheRootForBundle: cfg.CacheRoot,
		Metrics:            m,
		Logger:             logger,
	})
	defer healer.Stop()

	reap := reaper.New(reaper.Options{
		MiscRoot: miscRoot(cfg.CacheRoot),
		MinZoom:  cfg.MinZoom,
		Metrics:  m,
		Logger:   logger,
	})
	defer reap.Stop()

	// svc is the actual entry point an embedding process calls through; this
	// binary only hosts it alongside maintenance and observability surfaces.
	svc := service.New(cache, healer, reap, cfg.CacheRoot)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/stats", statsHandler(svc, budgetMgr))

	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Printf("serving /metrics on %s", cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("metrics server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")
	server.Shutdown(context.Background())
}

func miscRoot(cacheRoot string) string {
	return cacheRoot + "/misc"
}

// statsHandler exposes cache and budget stats as JSON for tooling and
// dashboards that shouldn't have to scrape /metrics.
func statsHandler(svc *service.Service, budgetMgr *budget.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := budgetMgr.ScanDiskUsage()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Cache  ddscache.Stats     `json:"cache"`
			Budget budget.UsageReport `json:"budget"`
		}{
			Cache:  svc.Cache.Stats(),
			Budget: report,
		})
	}
}
