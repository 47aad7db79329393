package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/hibiken/asynq"
	"github.com/kubeusers/backend/internal/config"
	"github.com/kubeusers/backend/internal/logger"
	"github.com/kubeusers/backend/internal/metrics"
	"github.com/kubeusers/backend/internal/provisioning"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting provisioning worker", zap.String("redis_addr", cfg.Redis.Addr))

	if cfg.Server.DiagnosticsEnabled {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			logger.Logger.Warn("Failed to start gops agent", zap.Error(err))
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Logger.Warn("Redis ping failed", zap.Error(err))
	}
	cancel()

	client, err := provisioning.NewClientset(cfg.Provisioning.Kubeconfig)
	if err != nil {
		logger.Logger.Fatal("Failed to create kubernetes client", zap.Error(err))
	}

	workerMetrics := metrics.New()
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	provisionLogger := logger.Logger.Named("provisioning")
	handler := provisioning.NewTaskHandler(
		provisioning.NewKubernetesProvisioner(client, provisionLogger),
		provisionLogger,
		workerMetrics,
	)

	worker := provisioning.NewWorker(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Provisioning.WorkerConcurrency, handler, logger.Logger)

	if err := worker.Run(ctx); err != nil {
		logger.Logger.Fatal("Worker stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker exited")
}
