// internal/models/master_product.go
package models

type MasterProduct struct {
	BaseModel
	CanonicalName     string              `json:"canonical_name" gorm:"size:500;not null;index"`
	CanonicalBrand    string              `json:"canonical_brand" gorm:"size:255;index"`
	CanonicalCategory string              `json:"canonical_category" gorm:"size:255;index"`
	Attributes        JSONB               `json:"attributes" gorm:"type:jsonb"`
	Status            MasterProductStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`

	// Relationships
	CrossReferences []CrossReference `json:"cross_references,omitempty" gorm:"foreignKey:MasterID"`
}
