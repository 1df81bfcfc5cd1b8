// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/database"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/router"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	if err := database.SeedInitialData(db); err != nil {
		log.WithError(err).Fatal("Failed to seed initial data")
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router and service graph
	r, pipelineService := router.Initialize(db, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Start periodic pipeline runs
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	if cfg.Scheduler.Enabled {
		startScheduler(schedulerCtx, &wg, cfg, pipelineService, log)
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	stopScheduler()
	wg.Wait()

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}

// startScheduler launches the ticker goroutines that trigger periodic runs.
// ErrRunInProgress is expected when a tick fires while the previous run is
// still going and is logged at debug level only.
func startScheduler(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config,
	pipelines *services.PipelineService, log *logrus.Logger) {

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Scheduler.MatchingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, source := range pipelines.Sources() {
					if _, err := pipelines.RunMatching(ctx, source); err != nil {
						if errors.Is(err, services.ErrRunInProgress) {
							log.WithField("source", source).Debug("Matching run still in progress, skipping tick")
							continue
						}
						log.WithError(err).WithField("source", source).Error("Scheduled matching run failed")
					}
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.Scheduler.ReportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := pipelines.RunReport(ctx); err != nil {
					if errors.Is(err, services.ErrRunInProgress) {
						log.Debug("Report run still in progress, skipping tick")
						continue
					}
					log.WithError(err).Error("Scheduled report run failed")
				}
			}
		}
	}()
}
