// internal/models/cross_reference.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// CrossReference binds one (source, externalSku) pair to a master product.
// The pair is unique across the table; re-matching updates the existing row.
type CrossReference struct {
	BaseModel
	Source             string             `json:"source" gorm:"size:100;not null;uniqueIndex:idx_xref_source_sku"`
	ExternalSKU        string             `json:"external_sku" gorm:"size:255;not null;uniqueIndex:idx_xref_source_sku"`
	MasterID           uuid.UUID          `json:"master_id" gorm:"type:uuid;not null;index"`
	ConfidenceScore    float64            `json:"confidence_score" gorm:"type:decimal(4,3);not null"`
	VerificationStatus VerificationStatus `json:"verification_status" gorm:"type:varchar(10);default:'pending';index"`
	LastSyncAt         time.Time          `json:"last_sync_at"`

	// Relationships
	Master MasterProduct `json:"master,omitempty" gorm:"foreignKey:MasterID"`
}
