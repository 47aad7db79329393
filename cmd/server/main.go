package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/hibiken/asynq"
	_ "github.com/kubeusers/backend/docs"
	authmw "github.com/kubeusers/backend/internal/auth/middleware"
	"github.com/kubeusers/backend/internal/auth/password"
	"github.com/kubeusers/backend/internal/auth/token"
	"github.com/kubeusers/backend/internal/config"
	"github.com/kubeusers/backend/internal/database"
	"github.com/kubeusers/backend/internal/logger"
	"github.com/kubeusers/backend/internal/metrics"
	"github.com/kubeusers/backend/internal/provisioning"
	"github.com/kubeusers/backend/internal/repositories"
	"github.com/kubeusers/backend/internal/server"
	"github.com/kubeusers/backend/internal/services"
	"go.uber.org/zap"
)

// @title Kubernetes User Management API
// @version 1.0
// @description Account registration, login and administration with per-account namespace provisioning

// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting user management service",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("provisioning_mode", cfg.Provisioning.Mode),
	)

	if cfg.Server.DiagnosticsEnabled {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			logger.Logger.Warn("Failed to start gops agent", zap.Error(err))
		}
	}

	// Connect to database
	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db.DB, cfg.Database.Driver); err != nil {
			logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	hasher, err := password.NewHasher(cfg.Password.Algorithm, cfg.Password.BcryptCost)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize password hasher", zap.Error(err))
	}
	tokenGenerator := token.NewGenerator(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	appMetrics := metrics.New()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db, logger.Logger)

	// Initialize provisioning
	dispatcher, closeProvisioning := setupProvisioning(cfg, logger.Logger, appMetrics)
	defer closeProvisioning()

	// Initialize services
	var provisioner services.NamespaceProvisioner
	if dispatcher != nil {
		provisioner = dispatcher
	}
	accountService := services.NewAccountService(accountRepo, hasher, tokenGenerator, provisioner, appMetrics, logger.Logger)

	if cfg.Seed.Enabled {
		seeds := services.DefaultSeedAccounts(cfg.Seed.AdminUsername, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword, cfg.Seed.TestUser)
		if _, err := accountService.EnsureSeedAccounts(ctx, seeds); err != nil {
			logger.Logger.Fatal("Failed to seed accounts", zap.Error(err))
		}
	}

	guard := authmw.NewGuard(tokenGenerator, accountRepo, logger.Logger, appMetrics)

	// Setup router
	r := server.NewRouter(server.Dependencies{
		Config:   cfg,
		Logger:   logger.Logger,
		Accounts: accountService,
		Guard:    guard,
		DB:       db,
		Metrics:  appMetrics,
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight provisioning finish before the process exits
	if dispatcher != nil {
		if err := dispatcher.Wait(shutdownCtx); err != nil {
			logger.Logger.Warn("Provisioning did not finish before shutdown", zap.Error(err))
		}
	}

	logger.Logger.Info("Server exited")
}

// setupProvisioning builds the dispatcher for the configured mode. A nil dispatcher means
// provisioning is off; accounts are still created.
func setupProvisioning(cfg *config.Config, baseLogger *zap.Logger, m *metrics.Metrics) (*provisioning.Dispatcher, func()) {
	noop := func() {}

	switch cfg.Provisioning.Mode {
	case config.ProvisioningInline:
		client, err := provisioning.NewClientset(cfg.Provisioning.Kubeconfig)
		if err != nil {
			baseLogger.Error("Kubernetes unavailable, namespace provisioning disabled", zap.Error(err))
			return nil, noop
		}
		kp := provisioning.NewKubernetesProvisioner(client, baseLogger.Named("provisioning"))
		return provisioning.NewInlineDispatcher(kp, cfg.Provisioning.Timeout, baseLogger.Named("provisioning"), m), noop

	case config.ProvisioningQueue:
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closeClient := func() {
			if err := client.Close(); err != nil {
				baseLogger.Warn("Failed to close queue client", zap.Error(err))
			}
		}
		return provisioning.NewQueueDispatcher(client, cfg.Provisioning.Timeout, baseLogger.Named("provisioning"), m), closeClient

	default:
		baseLogger.Info("Namespace provisioning disabled")
		return nil, noop
	}
}
