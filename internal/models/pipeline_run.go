// internal/models/pipeline_run.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// PipelineRun records one end-to-end execution of a pipeline for a given
// source or report kind.
type PipelineRun struct {
	BaseModel
	PipelineType     PipelineType `json:"pipeline_type" gorm:"type:varchar(20);not null;index:idx_runs_type_key"`
	Key              string       `json:"key" gorm:"size:100;not null;index:idx_runs_type_key"`
	Status           RunStatus    `json:"status" gorm:"type:varchar(10);default:'running';index"`
	RecordsExtracted int          `json:"records_extracted"`
	RecordsLoaded    int          `json:"records_loaded"`
	ErrorCount       int          `json:"error_count"`
	QualityScore     float64      `json:"quality_score" gorm:"type:decimal(5,2)"`
	Stats            JSONB        `json:"stats" gorm:"type:jsonb"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`
	DurationMs       int64        `json:"duration_ms"`
}

// PipelineAlert is one structured event emitted by a pipeline component.
// WARNING and above are persisted so operators can triage failed runs.
type PipelineAlert struct {
	BaseModel
	RunID   *uuid.UUID `json:"run_id,omitempty" gorm:"type:uuid;index"`
	Level   AlertLevel `json:"level" gorm:"type:varchar(10);not null;index"`
	Source  string     `json:"source" gorm:"size:100;index"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Context JSONB      `json:"context" gorm:"type:jsonb"`
}
