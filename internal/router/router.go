// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/handlers"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/middleware"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// Initialize wires the service graph and mounts the HTTP API. The returned
// pipeline service is shared with the scheduler.
func Initialize(db *gorm.DB, cfg *config.Config, log *logrus.Logger) (*gin.Engine, *services.PipelineService) {
	// Initialize services
	alertService := services.NewAlertService(db, log)
	storageService, err := services.NewStorageService(cfg)
	if err != nil {
		log.WithError(err).Warn("Report archive disabled")
		storageService = &services.StorageService{}
	}

	extractionService := services.NewExtractionService(alertService,
		utils.LinearBackoff(cfg.Extraction.MaxAttempts, cfg.Extraction.BaseDelay), nil)
	cleaningService := services.NewCleaningService(alertService)
	crossRefService := services.NewCrossRefService(db)
	matchingService := services.NewMatchingService(db, cfg.Matching, crossRefService, alertService)
	reportService := services.NewReportService(db, cfg.Report, alertService)
	processorService := services.NewReportProcessorService(alertService)
	inventoryService := services.NewInventoryService(db, alertService, cfg.Loader.BatchSize)

	pipelineService := services.NewPipelineService(db, cfg, alertService,
		extractionService, cleaningService, matchingService,
		reportService, processorService, inventoryService, storageService)

	// Initialize handlers
	pipelineHandler := handlers.NewPipelineHandler(pipelineService)
	reviewHandler := handlers.NewReviewHandler(crossRefService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService)
	reportHandler := handlers.NewReportHandler(reportService, storageService)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS())
	r.Use(middleware.GeneralRateLimit())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Pipeline triggers and run history
		pipelines := v1.Group("/pipelines")
		pipelines.Use(middleware.TriggerRateLimit())
		{
			pipelines.POST("/matching/run", pipelineHandler.RunMatching)
			pipelines.POST("/report/run", pipelineHandler.RunReport)
		}

		runs := v1.Group("/runs")
		{
			runs.GET("", pipelineHandler.GetRuns)
			runs.GET("/:id", pipelineHandler.GetRun)
		}

		v1.GET("/sources", pipelineHandler.GetSources)

		// Archived report copies
		reports := v1.Group("/reports")
		{
			reports.GET("/:code/archive", reportHandler.GetArchiveLink)
			reports.DELETE("/:code/archive", reportHandler.DeleteArchive)
		}

		// Manual review queue
		review := v1.Group("/review")
		{
			review.GET("/pending", reviewHandler.GetPending)
			review.POST("/:id/verify", reviewHandler.Verify)
		}

		v1.GET("/crossrefs", reviewHandler.Lookup)

		// Inventory lookups
		inventory := v1.Group("/inventory")
		{
			inventory.GET("/:sku", inventoryHandler.GetStock)
		}
	}

	return r, pipelineService
}
