package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api/handlers"
	custommiddleware "github.com/jmaartens/Portfolio-Performance-Engine/internal/api/middleware"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/config"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	performanceService *service.PerformanceService,
	timelineService *service.TimelineService,
	transactionService *service.TransactionService,
	ingestService *service.IngestService,
	gatewayConfigs *repository.GatewayConfigRepository,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/performance", func(r chi.Router) {
			performanceHandler := handlers.NewPerformanceHandler(performanceService)
			r.Get("/", performanceHandler.Performance)
		})

		r.Route("/positions", func(r chi.Router) {
			positionHandler := handlers.NewPositionHandler(timelineService, transactionService, performanceService)
			r.Get("/", positionHandler.Positions)
		})

		r.Route("/transactions", func(r chi.Router) {
			transactionHandler := handlers.NewTransactionHandler(transactionService, ingestService)
			r.Get("/", transactionHandler.Transactions)
			r.Get("/institutions", transactionHandler.Institutions)
			r.Post("/backfill", transactionHandler.Backfill)
			r.Post("/import", transactionHandler.Import)
		})

		if gatewayConfigs != nil {
			r.Route("/gateway", func(r chi.Router) {
				gatewayHandler := handlers.NewGatewayHandler(gatewayConfigs)
				r.Put("/config", gatewayHandler.SaveConfig)
			})
		}
	})

	return r
}
