package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SettleGuard/settleguard/internal/config"
	"github.com/SettleGuard/settleguard/internal/handler"
	"github.com/SettleGuard/settleguard/internal/incident"
	"github.com/SettleGuard/settleguard/internal/ledger"
	"github.com/SettleGuard/settleguard/internal/middleware"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/SettleGuard/settleguard/internal/repository"
	"github.com/SettleGuard/settleguard/internal/settlement"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 0. Initialize Logger
	logger.Init("info")

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Persistence
	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Info("✅ Connected to PostgreSQL")

	ledgerStore := repository.NewPostgresLedgerStore(db)
	earningsRepo := repository.NewPostgresEarningsRepo(db)
	batchRepo := repository.NewPostgresBatchRepo(db)
	evmTxRepo := repository.NewPostgresEvmTxRepo(db)

	// Day lock (Redis > none). Without it the scheduler must not overlap runs.
	var locker ledger.DayLocker
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			locker = redisClient
		} else {
			logger.Error("⚠️ Failed to connect to Redis, integrity runs unlocked", "error", err)
		}
	}

	// 3. Initialize Core Services
	var incidentBuilder incident.Builder = incident.NewPostgresBuilder(db)

	reconciler := ledger.NewEngine(ledgerStore, cfg.Ledger.EpsilonUSDT, cfg.Ledger.CreditPrefixes)
	verifier := ledger.NewVerifier(ledgerStore, cfg.Ledger.FullRescan)
	integrityJob := ledger.NewIntegrityJob(reconciler, verifier, ledgerStore, incidentBuilder, locker)

	registry := settlement.NewRegistry()
	if err := registry.Register(settlement.NewSimulatedAdapter()); err != nil {
		log.Fatalf("Failed to register simulated adapter: %v", err)
	}
	if cfg.Evm.Enabled {
		evmAdapter, err := settlement.NewEvmAdapter(cfg.Evm, cfg.Settlement, evmTxRepo)
		if err != nil {
			logger.Error("⚠️ EVM adapter unavailable, continuing without it", "error", err)
		} else if err := registry.Register(evmAdapter); err != nil {
			log.Fatalf("Failed to register EVM adapter: %v", err)
		}
	}
	if err := registry.SetActive(cfg.Settlement.ActiveAdapter); err != nil {
		logger.Warn("configured active adapter unavailable, falling back to simulated",
			"adapter", cfg.Settlement.ActiveAdapter)
		_ = registry.SetActive(settlement.AdapterNameSimulated)
	}

	settlementEngine := settlement.NewEngine(registry, earningsRepo, batchRepo)

	// 4. Initialize Handlers
	integrityHandler := handler.NewIntegrityHandler(integrityJob, ledgerStore)
	settlementHandler := handler.NewSettlementHandler(settlementEngine, registry)

	// 5. Setup Router
	r := gin.Default()

	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "settleguard"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/integrity/latest", integrityHandler.LatestRun)
		v1.GET("/adapters", settlementHandler.ListAdapters)
		v1.GET("/adapters/:name/health", settlementHandler.AdapterHealth)
		v1.GET("/settlement/batches/:id", settlementHandler.GetBatch)
	}

	admin := r.Group("/v1")
	admin.Use(middleware.AdminMiddleware(cfg))
	{
		admin.POST("/integrity/run", integrityHandler.RunCheck)
		admin.POST("/adapters/active", settlementHandler.SetActiveAdapter)
		admin.POST("/settlement/epochs/:id/settle", settlementHandler.SettleEpoch)
		admin.POST("/settlement/estimate", settlementHandler.EstimateFee)
		admin.POST("/settlement/batches/:id/cancel", settlementHandler.CancelBatch)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 SettleGuard started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
