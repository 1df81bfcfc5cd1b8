// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the ID client-side when the dialect has no uuid
// default (sqlite in tests).
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type MasterProductStatus string

const (
	MasterProductStatusActive        MasterProductStatus = "active"
	MasterProductStatusInactive      MasterProductStatus = "inactive"
	MasterProductStatusPendingReview MasterProductStatus = "pending_review"
)

type VerificationStatus string

const (
	VerificationStatusAuto    VerificationStatus = "auto"
	VerificationStatusManual  VerificationStatus = "manual"
	VerificationStatusPending VerificationStatus = "pending"
)

type ReportStatus string

const (
	ReportStatusRequested  ReportStatus = "REQUESTED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusSuccess    ReportStatus = "SUCCESS"
	ReportStatusError      ReportStatus = "ERROR"
	ReportStatusTimeout    ReportStatus = "TIMEOUT"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ReportStatus) IsTerminal() bool {
	return s == ReportStatusSuccess || s == ReportStatusError || s == ReportStatusTimeout
}

type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

type PipelineType string

const (
	PipelineTypeMatching PipelineType = "matching"
	PipelineTypeReport   PipelineType = "report"
)

type AlertLevel string

const (
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
	AlertLevelFatal   AlertLevel = "fatal"
)
