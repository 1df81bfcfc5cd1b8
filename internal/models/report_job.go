// internal/models/report_job.go
package models

import "time"

// ReportJob tracks one request/poll/download cycle against the report
// generator. Terminal statuses (SUCCESS, ERROR, TIMEOUT) are never rewritten.
type ReportJob struct {
	BaseModel
	ReportCode        string       `json:"report_code" gorm:"size:255;not null;uniqueIndex"`
	Status            ReportStatus `json:"status" gorm:"type:varchar(12);default:'REQUESTED';index"`
	RequestParameters JSONB        `json:"request_parameters" gorm:"type:jsonb"`
	DownloadURL       string       `json:"download_url" gorm:"size:2048"`
	ArchiveKey        string       `json:"archive_key" gorm:"size:512"`
	ErrorMessage      string       `json:"error_message" gorm:"type:text"`
	RequestedAt       time.Time    `json:"requested_at"`
	CompletedAt       *time.Time   `json:"completed_at,omitempty"`
}
