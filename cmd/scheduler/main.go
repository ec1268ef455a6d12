package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/app"
	"github.com/leozw/ads-guardian/internal/config"
	"github.com/leozw/ads-guardian/internal/logging"
	"github.com/leozw/ads-guardian/internal/queue"
	"github.com/leozw/ads-guardian/internal/scheduler"
	"github.com/leozw/ads-guardian/internal/storage/redis"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateMonitor(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.Close()

	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	s := scheduler.NewScheduler(scheduler.Options{
		Runner:     a.Monitor(a.Checks()),
		Locker:     scheduler.RedisLocker{Client: cache},
		Cache:      cache,
		Requests:   queue.NewRedisQueue(cache.Client),
		OpenAlerts: a.Alerts,
		Metrics:    a.Metrics,
		Interval:   cfg.Monitor.Interval,
		LockTTL:    cfg.Redis.LockTTL,
		RunTimeout: cfg.Monitor.RunTimeout,
		Logger:     logger.Named("scheduler"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Scheduler started",
		zap.Duration("interval", cfg.Monitor.Interval),
		zap.Int("concurrency", cfg.Monitor.Concurrency),
	)
	s.Start(ctx)

	logger.Info("Scheduler stopped")
}
