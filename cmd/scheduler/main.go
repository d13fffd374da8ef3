package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalog-ingestion/internal/config"
	"catalog-ingestion/internal/logging"
	"catalog-ingestion/internal/queue"
	"catalog-ingestion/internal/scheduler"
	"catalog-ingestion/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single scheduling pass and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		logger.Info("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Error("run migrations", "error", err)
		os.Exit(1)
	}

	q := queue.New(st.DB(), cfg.MaxAttempts, cfg.ClaimRetries)
	sched := scheduler.New(q, st, cfg.SchedulerInterval, cfg.AssetPrepBatchSize, logger)

	if *once {
		if err := sched.RunOnce(ctx); err != nil {
			logger.Error("scheduling pass failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("scheduler stopped")
}
