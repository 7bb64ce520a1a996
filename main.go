package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"pos-analytics/config"
	"pos-analytics/internal/analytics"
	"pos-analytics/internal/api"
	"pos-analytics/internal/cache"
	"pos-analytics/internal/database"
	"pos-analytics/internal/eod"
	"pos-analytics/internal/events"
	"pos-analytics/internal/live"
	"pos-analytics/internal/logging"
	"pos-analytics/internal/notify"
	"pos-analytics/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		Component:  "analytics",
		JSONFormat: cfg.Logging.JSONFormat,
	}))
	log := logging.WithComponent("main")

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		log.Fatal("migrations failed", "error", err)
	}

	cacheSvc := cache.NewCacheService(cfg.Redis)
	defer cacheSvc.Close()

	bus := events.NewBus()
	repo := database.NewRepository(db)

	analyticsSvc := analytics.NewService(repo, cacheSvc, cfg.Analytics)
	builder := eod.NewBuilder(repo, cacheSvc, bus, cfg.EOD)

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	tracker := live.NewTracker(cacheSvc, repo, bus, zlog)

	notifier := notify.NewNotifier(cacheSvc, bus, cfg.Notify)
	go notifier.Run(ctx)

	sched := scheduler.New(repo, builder, analyticsSvc, cfg.EOD)
	sched.Start()
	defer sched.Stop()

	server := api.NewServer(cfg, db, repo, analyticsSvc, builder, tracker, cacheSvc, bus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	cancel()
	log.Info("shutdown complete")
}
