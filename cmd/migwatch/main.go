package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/FairForge/migwatch/internal/api"
	"github.com/FairForge/migwatch/internal/config"
	"github.com/FairForge/migwatch/internal/metrics"
	"github.com/FairForge/migwatch/internal/poll"
	"github.com/FairForge/migwatch/internal/probe"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	interval := flag.String("interval", "", "poll interval in whole seconds")
	flag.Parse()

	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}
	cfg.ApplyDefaults()
	if err := config.LoadFromEnv(cfg); err != nil {
		logger.Fatal("invalid environment configuration", zap.Error(err))
	}
	if *interval != "" {
		n, err := config.ParseInterval(*interval)
		if err != nil {
			logger.Fatal("invalid -interval flag", zap.Error(err))
		}
		cfg.Poll.IntervalSeconds = n
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	prober, err := probe.NewPostgresProber(probe.PostgresConfig{
		Endpoint:     cfg.Store.Endpoint,
		Database:     cfg.Store.Database,
		User:         cfg.Store.User,
		Password:     cfg.Store.Password,
		Table:        cfg.Store.Table,
		SSLMode:      cfg.Store.SSLMode,
		QueryTimeout: cfg.QueryTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to create prober", zap.Error(err))
	}
	defer func() { _ = prober.Close() }()

	collector := metrics.NewCollector()

	loop, err := poll.NewLoop(poll.Config{
		Interval:    cfg.Interval(),
		EventBuffer: cfg.Poll.EventBuffer,
	}, prober, collector, logger)
	if err != nil {
		logger.Fatal("failed to create poll loop", zap.Error(err))
	}

	server := api.NewServer(cfg.Server.ListenAddr, loop, collector.Handler(), logger)

	consumeCtx, stopConsume := context.WithCancel(context.Background())
	defer stopConsume()
	go server.Consume(consumeCtx, loop.Events())

	if err := loop.Start(); err != nil {
		logger.Fatal("failed to start polling", zap.Error(err))
	}

	logger.Info("migration monitor started",
		zap.String("database", cfg.Store.Database),
		zap.String("table", cfg.Store.Table),
		zap.Int("interval_seconds", cfg.Poll.IntervalSeconds),
		zap.String("listen_addr", cfg.Server.ListenAddr))

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("status server failed", zap.Error(err))
	}

	loop.Stop()
	stopConsume()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
