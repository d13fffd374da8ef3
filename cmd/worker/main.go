package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-ingestion/internal/adapter"
	"catalog-ingestion/internal/assets"
	"catalog-ingestion/internal/config"
	"catalog-ingestion/internal/logging"
	"catalog-ingestion/internal/queue"
	"catalog-ingestion/internal/ratelimit"
	"catalog-ingestion/internal/store"
	"catalog-ingestion/internal/telemetry"
	"catalog-ingestion/internal/worker"
)

func main() {
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

	var limiter *ratelimit.TokenBucket
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		limiter = ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	registry := adapter.NewRegistry()
	var pinLimiter adapter.Waiter
	if limiter != nil {
		pinLimiter = limiter
	}
	registry.Register(adapter.AdapterTypePinterest,
		adapter.NewPinterest(cfg.PinterestAccessToken, cfg.PinterestBaseURL, st, pinLimiter, logger))
	registry.Register(adapter.AdapterTypeHomeDepot,
		adapter.NewHomeDepotFeed(cfg.HomeDepotFeedURL, cfg.HomeDepotAPIKey, logger))
	registry.Register(adapter.AdapterTypeLowes,
		adapter.NewLowesCatalog(cfg.LowesAPIKey, cfg.LowesAPISecret, logger))

	uploader, err := buildUploader(ctx, cfg, logger)
	if err != nil {
		logger.Error("init asset uploader", "error", err)
		os.Exit(1)
	}
	pipeline := assets.NewPipeline(st, uploader, cfg.ImageDownloadTimeout, cfg.ImageMaxBytes, logger)

	q := queue.New(st.DB(), cfg.MaxAttempts, cfg.ClaimRetries)
	w := worker.New(q, cfg.WorkerPollInterval, logger)
	worker.NewHandlers(st, registry, pipeline, logger).Register(w)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func buildUploader(ctx context.Context, cfg config.Config, logger *slog.Logger) (assets.Uploader, error) {
	if cfg.AssetS3Bucket == "" {
		logger.Info("no asset bucket configured, writing assets to local disk", "dir", cfg.AssetOutputDir)
		return assets.NewLocalUploader(cfg.AssetOutputDir), nil
	}
	return assets.NewS3Uploader(ctx, assets.S3Options{
		Bucket:     cfg.AssetS3Bucket,
		Region:     cfg.AssetS3Region,
		Endpoint:   cfg.AssetS3Endpoint,
		PathStyle:  cfg.AssetS3PathStyle,
		PublicBase: cfg.AssetPublicBase,
	})
}
