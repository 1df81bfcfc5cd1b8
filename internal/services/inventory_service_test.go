// internal/services/inventory_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
)

type InventoryServiceTestSuite struct {
	suite.Suite
	db        *gorm.DB
	inventory *InventoryService
	alerts    *recordingAlerts
}

func (suite *InventoryServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.alerts = &recordingAlerts{}
	suite.inventory = NewInventoryService(suite.db, suite.alerts, 2)
}

func stockRecord(sku, warehouse string, present, reserved int) models.InventoryRecord {
	return models.InventoryRecord{
		ProductKey:    sku,
		WarehouseName: warehouse,
		Present:       present,
		Reserved:      reserved,
		Available:     present - reserved,
		UpdatedAt:     time.Now().UTC(),
	}
}

func (suite *InventoryServiceTestSuite) TestLoadReplacesSnapshot() {
	first := []models.InventoryRecord{
		stockRecord("SKU-1", "Moscow Main", 10, 3),
		stockRecord("SKU-2", "Moscow Main", 5, 0),
		stockRecord("SKU-3", "Kazan", 7, 2),
	}
	loaded, err := suite.inventory.Load(nil, first)
	suite.Require().NoError(err)
	suite.Equal(3, loaded)

	second := []models.InventoryRecord{
		stockRecord("SKU-1", "Moscow Main", 4, 1),
	}
	loaded, err = suite.inventory.Load(nil, second)
	suite.Require().NoError(err)
	suite.Equal(1, loaded)

	var count int64
	suite.db.Model(&models.InventoryRecord{}).Count(&count)
	suite.Equal(int64(1), count)

	record, err := suite.inventory.GetStock("SKU-1", "Moscow Main")
	suite.Require().NoError(err)
	suite.Require().NotNil(record)
	suite.Equal(4, record.Present)
	suite.Equal(3, record.Available)

	// SKU-2 is gone with the old snapshot.
	record, err = suite.inventory.GetStock("SKU-2", "Moscow Main")
	suite.Require().NoError(err)
	suite.Nil(record)
}

func (suite *InventoryServiceTestSuite) TestLoadEmptyBatchKeepsSnapshot() {
	initial := []models.InventoryRecord{stockRecord("SKU-1", "Moscow Main", 10, 3)}
	_, err := suite.inventory.Load(nil, initial)
	suite.Require().NoError(err)

	loaded, err := suite.inventory.Load(nil, nil)
	suite.Require().NoError(err)
	suite.Equal(0, loaded)

	var count int64
	suite.db.Model(&models.InventoryRecord{}).Count(&count)
	suite.Equal(int64(1), count)

	suite.Equal(1, suite.alerts.countLevel(models.AlertLevelWarning))
}

func (suite *InventoryServiceTestSuite) TestGetStockLastDuplicateWins() {
	records := []models.InventoryRecord{
		stockRecord("SKU-1", "Moscow Main", 10, 3),
		stockRecord("SKU-1", "Moscow Main", 4, 1),
	}
	_, err := suite.inventory.Load(nil, records)
	suite.Require().NoError(err)

	record, err := suite.inventory.GetStock("SKU-1", "Moscow Main")
	suite.Require().NoError(err)
	suite.Require().NotNil(record)
	suite.Equal(4, record.Present)
	suite.Equal(1, record.Reserved)
}

func (suite *InventoryServiceTestSuite) TestListStockAcrossWarehouses() {
	records := []models.InventoryRecord{
		stockRecord("SKU-1", "Moscow Main", 10, 3),
		stockRecord("SKU-1", "Kazan", 2, 0),
		stockRecord("SKU-2", "Kazan", 1, 0),
	}
	_, err := suite.inventory.Load(nil, records)
	suite.Require().NoError(err)

	stock, err := suite.inventory.ListStock("SKU-1")
	suite.Require().NoError(err)
	suite.Len(stock, 2)
	suite.Equal("Kazan", stock[0].WarehouseName)
	suite.Equal("Moscow Main", stock[1].WarehouseName)
}

func TestInventoryServiceTestSuite(t *testing.T) {
	suite.Run(t, new(InventoryServiceTestSuite))
}
