// internal/services/errors.go
package services

import (
	"errors"
	"fmt"
	"time"
)

// ErrRunInProgress is returned when a pipeline run is requested while another
// run for the same (pipelineType, key) still holds the run lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// SourceUnavailableError means the upstream source could not be reached after
// all retry attempts. Retryable at the run level.
type SourceUnavailableError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable after %d attempts: %v", e.Source, e.Attempts, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// RecordValidationError means an extracted batch violated the minimal shape
// contract: not a single record passed the checks. Not retryable.
type RecordValidationError struct {
	Source string
	Reason string
}

func (e *RecordValidationError) Error() string {
	return fmt.Sprintf("extraction from %s produced no valid records: %s", e.Source, e.Reason)
}

// MalformedReportError means the downloaded report is structurally unusable.
type MalformedReportError struct {
	MissingColumns []string
}

func (e *MalformedReportError) Error() string {
	return fmt.Sprintf("malformed report: missing required columns %v", e.MissingColumns)
}

// TooManyValidationErrors means more than half the report rows failed
// row-level validation; the report is treated as corrupt, not salvaged.
type TooManyValidationErrors struct {
	Dropped int
	Total   int
}

func (e *TooManyValidationErrors) Error() string {
	return fmt.Sprintf("report rejected: %d of %d rows failed validation", e.Dropped, e.Total)
}

// ReportGenerationFailedError means the upstream never produced a usable
// report (terminal ERROR status or poll retries exhausted).
type ReportGenerationFailedError struct {
	ReportCode string
	Err        error
}

func (e *ReportGenerationFailedError) Error() string {
	return fmt.Sprintf("report %s generation failed: %v", e.ReportCode, e.Err)
}

func (e *ReportGenerationFailedError) Unwrap() error { return e.Err }

// ReportTimeoutError means the report never reached a terminal upstream state
// within maxWait. The timeout is decided locally.
type ReportTimeoutError struct {
	ReportCode string
	Waited     time.Duration
}

func (e *ReportTimeoutError) Error() string {
	return fmt.Sprintf("report %s did not complete within %s", e.ReportCode, e.Waited)
}

// ConflictError means an automated update tried to change the master binding
// of a manually verified cross-reference without an explicit override.
type ConflictError struct {
	Source      string
	ExternalSKU string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cross-reference (%s, %s) is manually verified; refusing automated overwrite", e.Source, e.ExternalSKU)
}

// LoadFailedError wraps any failure inside the atomic inventory swap. The
// transaction rollback guarantees no partial state is visible.
type LoadFailedError struct {
	Err error
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("inventory load failed: %v", e.Err)
}

func (e *LoadFailedError) Unwrap() error { return e.Err }
