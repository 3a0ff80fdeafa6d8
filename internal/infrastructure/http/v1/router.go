// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/tx"
	"lotledger/internal/domain/allocation"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/guard"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/purchase"
	"lotledger/internal/domain/receipt"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// RouterConfig holds the wired services the router exposes.
type RouterConfig struct {
	Pool      *postgres.Pool
	TxManager tx.Manager
	Logger    *logger.Logger

	Guard     *guard.Guard
	Registry  *batch.Registry
	Ledger    *ledger.Service
	Engine    *allocation.Engine
	Processor *receipt.Processor
	Purchases purchase.Repository
	Audit     handlers.AuditReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	base := handlers.NewBaseHandler()

	purchaseHandler := handlers.NewPurchaseHandler(base, cfg.Purchases, cfg.Processor, cfg.TxManager, cfg.Audit)
	batchHandler := handlers.NewBatchHandler(base, cfg.Registry, cfg.Ledger)
	movementHandler := handlers.NewMovementHandler(base, cfg.Ledger)
	allocationHandler := handlers.NewAllocationHandler(base, cfg.Engine)
	featureHandler := handlers.NewFeatureHandler(base, cfg.Guard)

	api := router.Group("/api/v1")
	{
		purchases := api.Group("/purchases")
		{
			purchases.POST("", purchaseHandler.Create)
			purchases.GET("", purchaseHandler.List)
			purchases.GET("/:id", purchaseHandler.Get)
			purchases.POST("/:id/receive", purchaseHandler.Receive)
			purchases.GET("/:id/audit", purchaseHandler.Audit)
		}

		batches := api.Group("/batches")
		{
			batches.GET("", batchHandler.List)
			batches.GET("/:id", batchHandler.Get)
			batches.GET("/:id/movements", batchHandler.Movements)
			batches.GET("/:id/reconciliation", batchHandler.Reconciliation)
			batches.POST("/:id/hold", batchHandler.Hold)
			batches.POST("/:id/release", batchHandler.Release)
		}

		movements := api.Group("/movements")
		{
			movements.POST("", movementHandler.Post)
			movements.GET("", movementHandler.History)
			movements.GET("/turnover", movementHandler.Turnover)
			movements.POST("/write-off-expired", movementHandler.WriteOffExpired)
		}

		api.POST("/allocations", allocationHandler.Allocate)

		features := api.Group("/features")
		{
			features.GET("", featureHandler.Config)
			features.POST("/check", featureHandler.Check)
		}
	}

	return router
}
