// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/handlers"
	"github.com/javajoker/catalog-backend/internal/metrics"
	"github.com/javajoker/catalog-backend/internal/middleware"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
)

const version = "1.0.0"

func Initialize(db *gorm.DB, cfg *config.Config, svc *services.Container, m *metrics.Collector) (*gin.Engine, error) {
	// Initialize handlers
	productHandler := handlers.NewProductHandler(svc.Catalog)
	vendorHandler := handlers.NewVendorHandler(svc.Vendors, svc.Credentials, svc.Sync)
	syncHandler := handlers.NewSyncHandler(svc.Sync)
	adminHandler := handlers.NewAdminHandler(svc.Vendors)

	metricsHandler, err := metrics.Handler(m)
	if err != nil {
		return nil, err
	}

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	generalLimiter := middleware.NewRateLimiter(rate.Limit(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)
	syncLimiter := middleware.NewRateLimiter(middleware.SyncTriggerRate, cfg.Server.SyncTriggerBurst)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware(cfg.I18n.DefaultLocale))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": version,
			"queue":   svc.Queue.Stats(),
		})
	})
	r.GET("/metrics", gin.WrapH(metricsHandler))

	// API v1 routes
	v1 := r.Group("/v1")
	v1.Use(generalLimiter.Middleware())
	v1.Use(middleware.AuthRequired())
	v1.Use(middleware.AuditLogMiddleware(db))
	{
		// Product routes
		products := v1.Group("/products")
		{
			products.GET("", productHandler.GetProducts)
			products.GET("/:upc", productHandler.GetProduct)
			products.GET("/:upc/sources", productHandler.GetProductSources)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AdminForMutations())
		{
			admin.GET("/stats", adminHandler.GetCatalogStats)
			admin.GET("/audit-logs", adminHandler.GetAuditLogs)
			admin.GET("/queue", syncHandler.GetQueueStats)

			admin.PUT("/products/:upc/archive", productHandler.ArchiveProduct)
			admin.POST("/priorities/recalculate", productHandler.RecalculatePreferredVendors)

			vendors := admin.Group("/vendors")
			{
				vendors.GET("", vendorHandler.GetVendors)
				vendors.POST("", vendorHandler.CreateVendor)
				vendors.PUT("/order", vendorHandler.ReorderVendors)
				vendors.GET("/:slug", vendorHandler.GetVendor)
				vendors.PUT("/:slug/priority", vendorHandler.SetPriority)
				vendors.PUT("/:slug/category-priority", vendorHandler.SetCategoryPriority)
				vendors.PUT("/:slug/status", vendorHandler.SetStatus)
				vendors.PUT("/:slug/image-quality", vendorHandler.SetImageQuality)
				vendors.PUT("/:slug/credentials", vendorHandler.SaveCredentials)
				vendors.POST("/:slug/test-connection", syncLimiter.Middleware(), vendorHandler.TestConnection)
				vendors.POST("/:slug/sync", syncLimiter.Middleware(), syncHandler.StartSync)
				vendors.GET("/:slug/sync-runs", syncHandler.GetRuns)
				vendors.GET("/:slug/sync-runs/latest", syncHandler.GetLatestRun)
			}

			admin.GET("/sync-runs/:id", syncHandler.GetRun)
		}
	}

	return r, nil
}
