package handler

import (
	"goodstewards/internal/config"
	"goodstewards/internal/infrastructure/extraction"
	"goodstewards/internal/infrastructure/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter wires middleware and routes.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, store storage.ObjectStore, extractor extraction.Extractor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, store, extractor)

	api := r.Group("/api/v1")
	api.Use(IdentityMiddleware(db))
	{
		receipts := api.Group("/receipts")
		{
			receipts.POST("/upload", h.UploadReceipt)
			receipts.GET("", h.ListReceipts)
			receipts.GET("/:id", h.GetReceipt)
			receipts.PUT("/:id/approve", h.ApproveReceipt)
			receipts.PUT("/:id/reject", h.RejectReceipt)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/upload-csv", h.UploadPaymentCSV)
			payments.POST("/reconcile", h.Reconcile)
			payments.POST("/match-manual", h.MatchManual)
			payments.GET("/unmatched", h.ListUnmatchedPayments)
			payments.GET("/unpaid-receipts", h.ListUnpaidReceipts)
		}

		forms := api.Group("/forms")
		{
			forms.POST("/generate-refund-package", h.GenerateRefundPackage)
		}

		organizations := api.Group("/organizations")
		{
			organizations.GET("/:id", h.GetOrganization)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
