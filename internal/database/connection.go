// internal/database/connection.go
package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

var DB *gorm.DB

func Initialize(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var err error
	var gormConfig *gorm.Config

	// Configure GORM logger
	if cfg.LogLevel == "silent" {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	} else {
		gormConfig = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Info),
		}
	}

	// Connect to database
	DB, err = gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Second)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established successfully")
	return DB, nil
}

func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Error getting underlying sql.DB: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	} else {
		log.Println("Database connection closed successfully")
	}
}

func RunMigrations(db *gorm.DB) error {
	log.Println("Running database migrations...")

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Run auto-migrations
	err := db.AutoMigrate(
		&models.MasterProduct{},
		&models.CrossReference{},
		&models.ExtractedRecord{},
		&models.ReportJob{},
		&models.InventoryRecord{},
		&models.PipelineRun{},
		&models.PipelineAlert{},
		&models.WarehouseAlias{},
	)

	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Create indexes
	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Master product indexes
		"CREATE INDEX IF NOT EXISTS idx_master_products_brand_category ON master_products(canonical_brand, canonical_category)",
		"CREATE INDEX IF NOT EXISTS idx_master_products_status ON master_products(status)",

		// Cross-reference indexes
		"CREATE INDEX IF NOT EXISTS idx_xref_verification ON cross_references(verification_status, confidence_score)",
		"CREATE INDEX IF NOT EXISTS idx_xref_last_sync ON cross_references(last_sync_at DESC)",

		// Report job indexes
		"CREATE INDEX IF NOT EXISTS idx_report_jobs_status ON report_jobs(status, requested_at DESC)",

		// Pipeline run indexes
		"CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_pipeline_alerts_created ON pipeline_alerts(created_at DESC)",

		// Full-text search index over canonical names
		"CREATE INDEX IF NOT EXISTS idx_master_products_search ON master_products USING GIN(to_tsvector('simple', canonical_name))",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			log.Printf("Warning: Failed to create index: %s, Error: %v", index, err)
			// Continue with other indexes instead of failing completely
		}
	}

	return nil
}

// Seed initial data
func SeedInitialData(db *gorm.DB) error {
	log.Println("Seeding initial data...")

	// Default warehouse aliases for the known physical warehouses
	defaultAliases := []models.WarehouseAlias{
		{
			CanonicalName: "Moscow Main",
			Variants:      []string{"Moscow Main", "MSK-1", "Moscow-Main", "Moskva Main"},
		},
		{
			CanonicalName: "Saint Petersburg",
			Variants:      []string{"Saint Petersburg", "SPB", "St. Petersburg", "SPb-North"},
		},
		{
			CanonicalName: "Kazan",
			Variants:      []string{"Kazan", "KZN", "Kazan-Hub"},
		},
	}

	for _, alias := range defaultAliases {
		var count int64
		db.Model(&models.WarehouseAlias{}).Where("canonical_name = ?", alias.CanonicalName).Count(&count)

		if count == 0 {
			if err := db.Create(&alias).Error; err != nil {
				log.Printf("Warning: Failed to create warehouse alias %s: %v", alias.CanonicalName, err)
			}
		}
	}

	log.Println("Initial data seeding completed")
	return nil
}

// Transaction helper
func WithTransaction(db *gorm.DB, fn func(*gorm.DB) error) error {
	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit().Error
}
