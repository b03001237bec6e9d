package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmaartens/Portfolio-Performance-Engine/internal/api"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/config"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/database"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/ibkr"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/repository"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/service"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/tradegate"
	"github.com/jmaartens/Portfolio-Performance-Engine/internal/yahoo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Printf("Connected to database: %s", cfg.Database.Path)

	// Create repositories
	transactionRepo := repository.NewTransactionRepository(db)
	quoteRepo := repository.NewQuoteRepository(db)

	var gatewayRepo *repository.GatewayConfigRepository
	if cfg.Sources.FernetKey != "" {
		gatewayRepo, err = repository.NewGatewayConfigRepository(db, cfg.Sources.FernetKey)
		if err != nil {
			log.Fatalf("Failed to initialize gateway credential store: %v", err)
		}
	} else {
		log.Println("SOURCE_FERNET_KEY not set; gateway credential features disabled")
	}

	// Pricing providers: retail API first, exchange gateway for the
	// derivatives it cannot quote.
	yahooClient := yahoo.NewFinanceClient()
	tradegateClient := tradegate.NewClient()
	providers := []service.PriceProvider{yahooClient, tradegateClient}

	// Create services
	systemService := service.NewSystemService(db)
	normalizerService := service.NewNormalizerService()
	matcherService := service.NewMatcherService()
	timelineService := service.NewTimelineService(matcherService)
	priceService := service.NewPriceService(
		providers,
		quoteRepo,
		cfg.Pricing.CacheTTL,
		cfg.Pricing.CacheVersion,
		cfg.Pricing.WorkerLimit,
		cfg.Pricing.ProviderTimeout,
	)
	fxService := service.NewFXService(yahooClient, quoteRepo, cfg.FX.SettlementCurrency, cfg.Pricing.CacheTTL)
	performanceService := service.NewPerformanceService(
		matcherService,
		timelineService,
		priceService,
		fxService,
		transactionRepo,
	)
	transactionService := service.NewTransactionService(transactionRepo)

	sources := loadSources(gatewayRepo)
	ingestService := service.NewIngestService(sources, normalizerService, transactionRepo)

	// Daily refresh: pull fresh statements and warm the quote store for
	// every currently held instrument.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Pricing.RefreshSchedule, func() {
		refresh(ingestService, transactionService, timelineService, priceService)
	})
	if err != nil {
		log.Fatalf("Invalid refresh schedule %q: %v", cfg.Pricing.RefreshSchedule, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(systemService, performanceService, timelineService, transactionService, ingestService, gatewayRepo, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// loadSources builds a transaction source per institution with automatic
// import enabled.
func loadSources(gatewayRepo *repository.GatewayConfigRepository) []service.TransactionSource {
	if gatewayRepo == nil {
		return nil
	}

	configs, err := gatewayRepo.ListAutoImport()
	if err != nil {
		log.Printf("Failed to load gateway configs: %v", err)
		return nil
	}

	flexClient := ibkr.NewFinanceClient()
	sources := make([]service.TransactionSource, 0, len(configs))
	for _, c := range configs {
		sources = append(sources, ibkr.NewSource(flexClient, c.Institution, c.FlexToken, c.FlexQueryID))
		log.Printf("Auto-import enabled for %s", c.Institution)
	}
	return sources
}

// refresh runs one scheduled ingestion and price-warm cycle.
func refresh(
	ingestService *service.IngestService,
	transactionService *service.TransactionService,
	timelineService *service.TimelineService,
	priceService *service.PriceService,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary, err := ingestService.IngestAll(ctx)
	if err != nil {
		log.Printf("Scheduled ingestion failed: %v", err)
		return
	}
	log.Printf("Scheduled ingestion imported %d of %d records", summary.Imported, summary.Fetched)

	transactions, err := transactionService.GetTransactions("")
	if err != nil {
		log.Printf("Failed to load transactions for price refresh: %v", err)
		return
	}

	now := time.Now().UTC()
	positions, _, err := timelineService.PositionsAsOf(transactions, now)
	if err != nil {
		log.Printf("Failed to reconstruct positions for price refresh: %v", err)
		return
	}

	requests := make([]service.QuoteRequest, 0, len(positions))
	for _, p := range positions {
		requests = append(requests, service.QuoteRequest{
			Instrument: p.Instrument,
			Type:       p.InstrumentType,
			Start:      now.AddDate(0, 0, -7),
			End:        now,
		})
	}

	if _, warnings, err := priceService.ResolveAll(ctx, requests); err != nil {
		log.Printf("Price refresh aborted: %v", err)
	} else if len(warnings) > 0 {
		log.Printf("Price refresh completed with %d warnings", len(warnings))
	}
}
