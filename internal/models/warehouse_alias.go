// internal/models/warehouse_alias.go
package models

import "github.com/lib/pq"

// WarehouseAlias maps variant spellings of a physical warehouse to its
// canonical name. The whole table is loaded once per pipeline run into an
// immutable lookup; components never query it row by row.
type WarehouseAlias struct {
	BaseModel
	CanonicalName string         `json:"canonical_name" gorm:"size:255;not null;uniqueIndex"`
	Variants      pq.StringArray `json:"variants" gorm:"type:text[]"`
}

func (WarehouseAlias) TableName() string {
	return "warehouse_aliases"
}
