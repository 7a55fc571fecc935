// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"almacen/internal/app"
	"almacen/internal/core/security"
	"almacen/internal/infrastructure/http/v1/handlers"
	"almacen/internal/infrastructure/http/v1/middleware"
	"almacen/internal/infrastructure/storage/postgres"
	"almacen/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// App holds the wired domain services.
	App *app.App

	// Pool is the database pool for health checks. Nil on the memory driver.
	Pool *postgres.Pool

	// Driver is the storage driver name reported by /health/info.
	Driver string

	// Version is reported by /health/info.
	Version string

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Driver, cfg.Version, cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Auth(cfg.JWTValidator))
	{
		base := handlers.NewBaseHandler()
		registerDocumentRoutes(v1, base, cfg.App)
		registerCatalogRoutes(v1, base, cfg.App)
	}

	return router
}

// registerDocumentRoutes registers request, requisition and order endpoints.
// Entitlements are checked by the domain policy.
func registerDocumentRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, a *app.App) {
	handlers.NewRequestHandler(base, a.Requests, a.Reversal, a.Trace).
		RegisterRoutes(rg.Group("/pedidos"))
	handlers.NewRequisitionHandler(base, a.Requisitions, a.Reversal, a.Trace).
		RegisterRoutes(rg.Group("/solicitudes"))
	handlers.NewOrderHandler(base, a.Orders, a.Reversal, a.Trace).
		RegisterRoutes(rg.Group("/ordenes"))

	history := handlers.NewHistoryHandler(base, a.Requests, a.Requisitions, a.Orders)
	rg.GET("/historial/:entity/:id", history.Get)
}

// registerCatalogRoutes registers catalog endpoints. Reads are open to any
// authenticated actor; writes are limited by role.
func registerCatalogRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, a *app.App) {
	h := handlers.NewCatalogHandler(base,
		a.Stores.Articles, a.Stores.Suppliers, a.Stores.Equipos, a.Stock, a.Now)

	articles := rg.Group("/articulos")
	{
		articles.GET("", h.ListArticles)
		articles.POST("", middleware.RequireRole(security.RoleWarehouse), h.CreateArticle)
		articles.GET("/:id", h.GetArticle)
		articles.POST("/:id/proveedores", middleware.RequireRole(security.RoleWarehouse, security.RolePurchasing), h.LinkSupplier)
		articles.GET("/:id/movimientos", h.Movements)
	}

	suppliers := rg.Group("/proveedores")
	{
		suppliers.POST("", middleware.RequireRole(security.RolePurchasing, security.RoleWarehouse), h.CreateSupplier)
		suppliers.GET("/:id", h.GetSupplier)
	}

	equipos := rg.Group("/equipos")
	{
		equipos.POST("", middleware.RequireRole(), h.CreateEquipo)
		equipos.GET("/:id", h.GetEquipo)
	}
}
