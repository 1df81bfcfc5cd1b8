// internal/models/extracted_record.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExtractedRecord is one raw product observation from an upstream source.
// Rows are superseded by a newer extraction with the same (source,
// external_sku) key, never deleted.
type ExtractedRecord struct {
	BaseModel
	Source         string          `json:"source" gorm:"size:100;not null;uniqueIndex:idx_extracted_source_sku" validate:"required"`
	ExternalSKU    string          `json:"external_sku" gorm:"size:255;not null;uniqueIndex:idx_extracted_source_sku" validate:"required,sku"`
	SourceName     string          `json:"source_name" gorm:"size:500" validate:"required"`
	SourceBrand    string          `json:"source_brand" gorm:"size:255"`
	SourceCategory string          `json:"source_category" gorm:"size:255"`
	RawPrice       string          `json:"raw_price,omitempty" gorm:"size:100"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	Attributes     JSONB           `json:"attributes" gorm:"type:jsonb"`
	ExtractedAt    time.Time       `json:"extracted_at" gorm:"index"`
}

func (ExtractedRecord) TableName() string {
	return "extracted_records"
}
