package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"sharpefeed/internal/analyzer"
	"sharpefeed/internal/cache"
	"sharpefeed/internal/config"
	"sharpefeed/internal/model"
	"sharpefeed/internal/orchestrator"
	"sharpefeed/internal/quote"
	"sharpefeed/internal/recorder"
	"sharpefeed/internal/scheduler"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] sharpefeed starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	tickers := os.Args[1:]
	if len(tickers) == 0 {
		log.Fatal("[FATAL] usage: sharpefeed TICKER [TICKER...]")
	}

	period := model.Period5Y
	if v := os.Getenv("PERIOD"); v != "" {
		period = model.Period(v)
	}

	// Init quote source
	var source quote.Source
	switch cfg.Source.Provider {
	case "mock":
		source = &quote.MockSource{}
	default:
		ys := quote.NewYahooSource(cfg.Proxy)
		if cfg.Source.BaseURL != "" {
			ys.BaseURL = cfg.Source.BaseURL
		}
		source = ys
	}
	log.Printf("[INFO] data source: %s", source.Name())

	policy := quote.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Fetch.MaxRetries
	policy.BaseDelay = cfg.Fetch.BackoffBase.Std()
	policy.Multiplier = cfg.Fetch.BackoffMultiplier

	breaker := quote.NewCircuitBreaker(source.Name(), cfg.Circuit.WindowSize,
		cfg.Circuit.FailureThreshold, cfg.Circuit.Cooldown.Std())

	adapter := quote.NewAdapter(source, policy, breaker, quote.AdapterOptions{
		Timeout:       cfg.Fetch.Timeout.Std(),
		BulkTimeout:   cfg.Fetch.BulkTimeout.Std(),
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
	})

	// Init cache store; any store failure degrades to memory-only.
	var store cache.Store
	switch cfg.Cache.Backend {
	case "sqlite":
		ss, err := cache.NewSQLiteStore(cfg.Cache.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite cache failed, memory only: %v", err)
		} else {
			store = ss
		}
	case "redis":
		rs, err := cache.NewRedisStore(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err != nil {
			log.Printf("[WARN] init redis cache failed, memory only: %v", err)
		} else {
			store = rs
		}
	}

	tc := cache.New[*model.QuoteSeries](cfg.Cache.MemoryCapacity, store)
	defer tc.Close()

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.PostgresDSN != "" {
		pr, err := recorder.NewPostgresRecorder(cfg.Database.PostgresDSN)
		if err != nil {
			log.Printf("[WARN] init postgres recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = pr
			defer pr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch := orchestrator.New(adapter, tc,
		analyzer.New(cfg.Analysis.MinHistoryDays, cfg.Analysis.FullHistoryDays), rec,
		orchestrator.Options{
			RiskFreeRate:  cfg.Analysis.RiskFreeRate,
			CacheTTL:      cfg.Cache.DiskTTL.Std(),
			MaxConcurrent: cfg.Fetch.MaxConcurrent,
			RunTimeout:    cfg.Fetch.BulkTimeout.Std(),
		})

	result, err := orch.AnalyzeTickers(ctx, tickers, period)
	if err != nil {
		log.Fatalf("[FATAL] analyze: %v", err)
	}
	printReport(result)

	// WATCH mode keeps the process alive with periodic cache maintenance.
	if os.Getenv("WATCH") == "true" {
		sched := scheduler.NewScheduler(ctx, tc, adapter)
		if err := sched.RegisterAll(cfg.Schedule.CleanupCron, cfg.Schedule.StatsCron); err != nil {
			log.Fatalf("[FATAL] register cron tasks: %v", err)
		}
		sched.Start()
		defer sched.Stop()

		log.Println("[INFO] sharpefeed is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("[INFO] shutdown signal received, stopping...")
		cancel()
	}

	log.Println("[INFO] sharpefeed stopped")
}

func printReport(res *orchestrator.Result) {
	type row struct {
		ticker string
		m      *model.PerformanceMetrics
	}
	rows := make([]row, 0, len(res.Metrics))
	for t, m := range res.Metrics {
		rows = append(rows, row{t, m})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].m.SharpeRatio > rows[j].m.SharpeRatio })

	log.Printf("[INFO] ===== run %s (%s) =====", res.RunID, res.Period)
	for _, r := range rows {
		flag := ""
		if r.m.Partial {
			flag = " (partial)"
		}
		log.Printf("[INFO] %-8s sharpe %+.3f | return %+.1f%% | vol %.1f%% | %d days%s",
			r.ticker, r.m.SharpeRatio, r.m.AnnualizedReturn*100, r.m.AnnualizedVolatility*100,
			r.m.SampleSize, flag)
	}
	for t, err := range res.Errors {
		log.Printf("[WARN] %-8s failed: %v", t, err)
	}
	log.Printf("[INFO] %d/%d succeeded, %d cache hits, took %s",
		len(res.Metrics), len(res.Metrics)+len(res.Errors), res.CacheHits,
		res.Duration.Round(time.Millisecond))
}
