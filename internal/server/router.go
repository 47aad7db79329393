// Package server assembles the HTTP router shared by the server binary and the integration tests
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	authmw "github.com/kubeusers/backend/internal/auth/middleware"
	"github.com/kubeusers/backend/internal/config"
	"github.com/kubeusers/backend/internal/handlers"
	loggerMiddleware "github.com/kubeusers/backend/internal/logger/middleware"
	"github.com/kubeusers/backend/internal/metrics"
	"github.com/kubeusers/backend/internal/middleware"
	"github.com/kubeusers/backend/internal/models"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// Dependencies are the components the router is built from
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Accounts handlers.AccountService
	Guard    *authmw.Guard
	DB       handlers.Pinger
	// Metrics may be nil, in which case /metrics answers 503
	Metrics *metrics.Metrics
}

// NewRouter builds the chi router with the shared middleware chain
func NewRouter(deps Dependencies) chi.Router {
	cfg := deps.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestIDMiddleware)
	r.Use(loggerMiddleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.RecoveryMiddleware(deps.Logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.RequestSizeLimitMiddleware(cfg.Server.MaxRequestSize))
	r.Use(deps.Metrics.Middleware)

	handlers.NewHealthHandler(deps.DB, deps.Logger).RegisterRoutes(r)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	if cfg.Server.SwaggerEnabled {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Logger)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SecureHeadersMiddleware(cfg.Server.Production))
		accountHandler.RegisterRoutes(r, deps.Guard.Require(models.RoleAdmin))
	})

	return r
}
