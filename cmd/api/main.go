package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/api"
	"github.com/leozw/ads-guardian/internal/api/handlers"
	"github.com/leozw/ads-guardian/internal/app"
	"github.com/leozw/ads-guardian/internal/checks"
	"github.com/leozw/ads-guardian/internal/config"
	"github.com/leozw/ads-guardian/internal/logging"
	"github.com/leozw/ads-guardian/internal/queue"
	"github.com/leozw/ads-guardian/internal/storage/redis"
	"github.com/leozw/ads-guardian/pkg/keycloak"
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

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.Close()

	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	h := handlers.NewHandler(handlers.Options{
		Alerts:   a.AlertService(),
		Runs:     cache,
		Requests: queue.NewRedisQueue(cache.Client),
		DB:       a.DB,
		CheckIDs: checks.Default(checks.Deps{}).IDs(),
		Logger:   logger,
	})

	server := api.NewServer(cfg.Server.Mode, api.Deps{
		Handler:   h,
		Validator: keycloak.NewClient(cfg.Keycloak, logger.Named("keycloak")),
		Gatherer:  a.Metrics.Registry(),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
