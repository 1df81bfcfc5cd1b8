// internal/models/inventory.go
package models

import "time"

// InventoryRecord is the current stock for one (productKey, warehouse) pair.
// The table is replaced wholesale on every successful report load; rows are
// never patched individually.
type InventoryRecord struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ProductKey    string    `json:"product_key" gorm:"size:255;not null;index:idx_inventory_product_wh"`
	WarehouseName string    `json:"warehouse_name" gorm:"size:255;not null;index:idx_inventory_product_wh"`
	Present       int       `json:"present" gorm:"not null"`
	Reserved      int       `json:"reserved" gorm:"not null"`
	Available     int       `json:"available" gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (InventoryRecord) TableName() string {
	return "inventory_records"
}
