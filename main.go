package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Pererenchina/home-monitor-bot/config"
	"github.com/Pererenchina/home-monitor-bot/delivery"
	"github.com/Pererenchina/home-monitor-bot/logging"
	"github.com/Pererenchina/home-monitor-bot/normalize"
	"github.com/Pererenchina/home-monitor-bot/scheduler"
	"github.com/Pererenchina/home-monitor-bot/scraper"
	"github.com/Pererenchina/home-monitor-bot/storage"
	"github.com/Pererenchina/home-monitor-bot/workers"
)

var (
	cycleNow = flag.Bool("cycle", false, "Run one monitoring cycle and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("monitor.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting home-monitor-bot...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sources := cfg.EnabledSources()
	log.Printf("Loaded %d source configs (%d enabled)", len(cfg.Sources), len(sources))
	for _, src := range sources {
		log.Printf("  - %s (%s, %s)", src.Name, src.ID, src.Transport)
	}

	ctx := context.Background()

	var store storage.Store
	if cfg.PostgresURL != "" {
		store, err = storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		log.Println("Using Postgres store")
	} else {
		store, err = storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		log.Printf("Using SQLite store: %s", cfg.DBPath)
	}
	defer store.Close()

	var gateway delivery.Gateway
	if cfg.Telegram.BotToken != "" {
		gateway, err = delivery.NewTelegramGateway(cfg.Telegram.BotToken)
		if err != nil {
			log.Fatalf("Failed to connect Telegram gateway: %v", err)
		}
	} else {
		log.Println("No TELEGRAM_BOT_TOKEN set, deliveries will be logged only")
		gateway = delivery.NewLogGateway()
	}

	session := scraper.NewSessionManager(cfg.Fetch.MaxScrolls, cfg.Fetch.ScrollSettle, cfg.Fetch.Timeout)
	fetcher := scraper.NewFetcher(cfg.Fetch.Timeout, session)

	adapters := make([]scraper.Adapter, 0, len(sources))
	for _, src := range sources {
		adapter, err := scraper.NewAdapter(src, fetcher, cfg.Fetch.MaxPerSource)
		if err != nil {
			log.Fatalf("Failed to build adapter for %s: %v", src.ID, err)
		}
		adapters = append(adapters, adapter)
	}

	normalizer := normalize.New(normalize.Options{
		PriceRatioThreshold:   cfg.Price.RatioThreshold,
		PriceAbsThreshold:     cfg.Price.AbsThreshold,
		PriceAbsSoloThreshold: cfg.Price.AbsSoloThreshold,
	})

	orchestrator := scraper.NewOrchestrator(adapters, normalizer, store, gateway, scraper.OrchestratorConfig{
		FetchTimeout: cfg.Fetch.SourceTimeout,
		MaxPerCycle:  cfg.Delivery.MaxPerCycle,
		SendDelay:    cfg.Delivery.SendDelay,
	})

	if *cycleNow {
		log.Println("Running single cycle...")
		run, err := orchestrator.RunCycle(ctx)
		if err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		if run != nil {
			log.Printf("Cycle complete: %d new, %d delivered", run.ListingsNew, run.ListingsDelivered)
		}
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthcheckWorker := workers.NewHealthcheckWorker(store,
		cfg.Workers.HealthcheckInterval, cfg.Workers.StaleAfter, cfg.Workers.HealthcheckBatchSize)
	go healthcheckWorker.Run(ctx)
	log.Println("Healthcheck worker started")

	pruneWorker := workers.NewPruneWorker(store, cfg.Workers.PruneInterval, cfg.Workers.PruneRetention)
	go pruneWorker.Run(ctx)
	log.Println("Prune worker started")

	sched := scheduler.New(cfg, orchestrator)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. SIGHUP triggers a cycle, Ctrl+C stops.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			break
		}
		log.Println("SIGHUP: triggering cycle and maintenance workers")
		healthcheckWorker.Trigger()
		pruneWorker.Trigger()
		go sched.TriggerNow(ctx)
	}

	// Let the in-flight cycle drain its deliveries before the context is
	// cancelled, then cancel to stop the workers.
	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	log.Println("Stopped.")
}
