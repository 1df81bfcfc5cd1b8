// internal/services/inventory_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/database"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

// InventoryService owns the inventory table. Loads are full replacements
// inside one transaction: readers see either the old snapshot or the new one,
// never a mix.
type InventoryService struct {
	db        *gorm.DB
	alerts    AlertSink
	batchSize int
}

func NewInventoryService(db *gorm.DB, alerts AlertSink, batchSize int) *InventoryService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &InventoryService{
		db:        db,
		alerts:    alerts,
		batchSize: batchSize,
	}
}

// Load atomically replaces the inventory table with the given records. An
// empty batch is a no-op: wiping the table over a suspiciously empty report
// is worse than serving stale stock.
func (s *InventoryService) Load(runID *uuid.UUID, records []models.InventoryRecord) (int, error) {
	if len(records) == 0 {
		s.alerts.Warning(runID, "loader", "Empty inventory batch, keeping previous snapshot", nil)
		return 0, nil
	}

	var previous int64
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		if err := tx.Model(&models.InventoryRecord{}).Count(&previous).Error; err != nil {
			return fmt.Errorf("failed to count existing records: %w", err)
		}

		if err := truncateInventory(tx); err != nil {
			return fmt.Errorf("failed to clear inventory table: %w", err)
		}

		if err := tx.CreateInBatches(records, s.batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert inventory records: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, &LoadFailedError{Err: err}
	}

	s.alerts.Info(runID, "loader", "Inventory snapshot replaced", models.JSONB{
		"previous_rows": previous,
		"loaded_rows":   len(records),
	})

	return len(records), nil
}

// GetStock returns the current stock for a (sku, warehouse) pair, or
// (nil, nil) when the pair is absent. When a report carried duplicate rows
// for the pair, the last one loaded wins.
func (s *InventoryService) GetStock(productKey, warehouseName string) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := s.db.Where("product_key = ? AND warehouse_name = ?", productKey, warehouseName).
		Order("id DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	return &record, nil
}

// ListStock returns the stock rows for one product across warehouses.
func (s *InventoryService) ListStock(productKey string) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := s.db.Where("product_key = ?", productKey).
		Order("warehouse_name ASC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stock: %w", err)
	}
	return records, nil
}

// truncateInventory clears the table with the dialect's cheapest full wipe.
// TRUNCATE is not transactional on every backend gorm supports, so non-postgres
// dialects fall back to DELETE.
func truncateInventory(tx *gorm.DB) error {
	table := models.InventoryRecord{}.TableName()
	if tx.Dialector.Name() == "postgres" {
		return tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", table)).Error
	}
	return tx.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error
}
