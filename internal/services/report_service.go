// internal/services/report_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// ReportService drives the asynchronous report cycle against the warehouse
// API: request, poll until terminal, download. Every job is tracked as a
// ReportJob row so an interrupted cycle leaves an audit trail.
type ReportService struct {
	db      *gorm.DB
	cfg     config.ReportConfig
	alerts  AlertSink
	http    *http.Client
	sleeper utils.Sleeper
	now     func() time.Time
}

func NewReportService(db *gorm.DB, cfg config.ReportConfig, alerts AlertSink) *ReportService {
	return &ReportService{
		db:      db,
		cfg:     cfg,
		alerts:  alerts,
		http:    &http.Client{Timeout: 60 * time.Second},
		sleeper: utils.NewSleeper(),
		now:     time.Now,
	}
}

type reportCreateRequest struct {
	ReportType string            `json:"report_type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

type reportCreateResponse struct {
	Result struct {
		Code string `json:"code"`
	} `json:"result"`
}

type reportInfoResponse struct {
	Result struct {
		Status string `json:"status"`
		File   string `json:"file"`
		Error  string `json:"error"`
	} `json:"result"`
}

// RequestReport asks the warehouse API to start generating a report and
// records the job in REQUESTED state.
func (s *ReportService) RequestReport(ctx context.Context, runID *uuid.UUID, params map[string]string) (*models.ReportJob, error) {
	payload := reportCreateRequest{
		ReportType: s.cfg.ReportType,
		Parameters: params,
	}

	var created reportCreateResponse
	if err := s.postJSON(ctx, "/v1/report/create", payload, &created); err != nil {
		return nil, &ReportGenerationFailedError{ReportCode: "", Err: err}
	}
	if created.Result.Code == "" {
		return nil, &ReportGenerationFailedError{ReportCode: "", Err: errors.New("report api returned no report code")}
	}

	jsonParams := models.JSONB{"report_type": s.cfg.ReportType}
	for k, v := range params {
		jsonParams[k] = v
	}

	job := &models.ReportJob{
		ReportCode:        created.Result.Code,
		Status:            models.ReportStatusRequested,
		RequestParameters: jsonParams,
		RequestedAt:       s.now(),
	}
	if err := s.db.Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to record report job: %w", err)
	}

	s.alerts.Info(runID, "report", "Report requested", models.JSONB{
		"report_code": job.ReportCode,
	})

	return job, nil
}

// GetStatus queries the generator for the remote state of a report.
func (s *ReportService) GetStatus(ctx context.Context, reportCode string) (models.ReportStatus, string, string, error) {
	payload := map[string]string{"code": reportCode}

	var info reportInfoResponse
	if err := s.postJSON(ctx, "/v1/report/info", payload, &info); err != nil {
		return "", "", "", err
	}

	status := models.ReportStatus(strings.ToUpper(strings.TrimSpace(info.Result.Status)))
	switch status {
	case models.ReportStatusRequested, models.ReportStatusProcessing,
		models.ReportStatusSuccess, models.ReportStatusError:
		return status, info.Result.File, info.Result.Error, nil
	default:
		return "", "", "", fmt.Errorf("report api returned unknown status %q", info.Result.Status)
	}
}

// WaitForCompletion polls the generator at the configured interval until the
// report reaches a terminal state or the local deadline passes. Transient
// status-check failures retry with exponential backoff and count against
// MaxRetries; the deadline is enforced locally so a generator that never
// answers cannot hang the pipeline.
func (s *ReportService) WaitForCompletion(ctx context.Context, runID *uuid.UUID, job *models.ReportJob) error {
	deadline := s.now().Add(s.cfg.MaxWait)
	backoff := utils.ExponentialBackoff(s.cfg.MaxRetries, s.cfg.BackoffBase, s.cfg.BackoffCap)
	failures := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		status, file, remoteErr, err := s.GetStatus(ctx, job.ReportCode)
		if err != nil {
			failures++
			s.alerts.Warning(runID, "report", "Report status check failed", models.JSONB{
				"report_code": job.ReportCode,
				"attempt":     failures,
				"error":       err.Error(),
			})
			if failures > s.cfg.MaxRetries {
				genErr := &ReportGenerationFailedError{ReportCode: job.ReportCode, Err: err}
				s.failJob(runID, job, models.ReportStatusError, genErr.Error())
				return genErr
			}
			s.sleeper.Sleep(backoff.Delay(failures))
			continue
		}
		failures = 0

		switch status {
		case models.ReportStatusSuccess:
			return s.completeJob(runID, job, file)
		case models.ReportStatusError:
			genErr := &ReportGenerationFailedError{
				ReportCode: job.ReportCode,
				Err:        fmt.Errorf("generator reported failure: %s", remoteErr),
			}
			s.failJob(runID, job, models.ReportStatusError, remoteErr)
			return genErr
		case models.ReportStatusProcessing:
			if job.Status != models.ReportStatusProcessing {
				s.transition(job, models.ReportStatusProcessing, nil)
			}
		}

		if s.now().After(deadline) {
			waited := s.cfg.MaxWait
			s.failJob(runID, job, models.ReportStatusTimeout,
				fmt.Sprintf("no terminal status after %s", waited))
			return &ReportTimeoutError{ReportCode: job.ReportCode, Waited: waited}
		}

		s.sleeper.Sleep(s.cfg.PollInterval)
	}
}

// Download fetches the finished report body from the URL the generator
// published.
func (s *ReportService) Download(ctx context.Context, job *models.ReportJob) ([]byte, error) {
	if job.Status != models.ReportStatusSuccess || job.DownloadURL == "" {
		return nil, fmt.Errorf("report %s has no downloadable file", job.ReportCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.DownloadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download report %s: %w", job.ReportCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("report download returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report body: %w", err)
	}
	return body, nil
}

// GetJob looks a report job up by its generator-issued code, or (nil, nil)
// when no such job exists.
func (s *ReportService) GetJob(reportCode string) (*models.ReportJob, error) {
	var job models.ReportJob
	err := s.db.First(&job, "report_code = ?", reportCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report job %s: %w", reportCode, err)
	}
	return &job, nil
}

// ClearArchiveKey detaches a job from its archived copy after the archive has
// been removed from storage.
func (s *ReportService) ClearArchiveKey(job *models.ReportJob) error {
	if err := s.db.Model(job).Update("archive_key", "").Error; err != nil {
		return fmt.Errorf("failed to clear archive key for report %s: %w", job.ReportCode, err)
	}
	job.ArchiveKey = ""
	return nil
}

func (s *ReportService) completeJob(runID *uuid.UUID, job *models.ReportJob, file string) error {
	job.DownloadURL = file
	if err := s.transition(job, models.ReportStatusSuccess, map[string]interface{}{
		"download_url": file,
	}); err != nil {
		return err
	}
	s.alerts.Info(runID, "report", "Report ready", models.JSONB{
		"report_code": job.ReportCode,
	})
	return nil
}

func (s *ReportService) failJob(runID *uuid.UUID, job *models.ReportJob, status models.ReportStatus, message string) {
	if err := s.transition(job, status, map[string]interface{}{
		"error_message": message,
	}); err != nil {
		s.alerts.Error(runID, "report", "Failed to record report failure", models.JSONB{
			"report_code": job.ReportCode,
			"error":       err.Error(),
		})
	}
	s.alerts.Error(runID, "report", "Report job failed", models.JSONB{
		"report_code": job.ReportCode,
		"status":      string(status),
		"reason":      message,
	})
}

// transition moves the job to a new status. Terminal statuses are immutable:
// a second transition attempt is a programming error and is rejected.
func (s *ReportService) transition(job *models.ReportJob, status models.ReportStatus, extra map[string]interface{}) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("report %s already terminal (%s), refusing transition to %s",
			job.ReportCode, job.Status, status)
	}

	updates := map[string]interface{}{"status": status}
	for k, v := range extra {
		updates[k] = v
	}
	if status.IsTerminal() {
		completed := s.now()
		updates["completed_at"] = &completed
		job.CompletedAt = &completed
	}

	if err := s.db.Model(job).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update report job %s: %w", job.ReportCode, err)
	}

	job.Status = status
	if msg, ok := updates["error_message"].(string); ok {
		job.ErrorMessage = msg
	}
	return nil
}

func (s *ReportService) postJSON(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.cfg.APIKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("report api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("report api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode report api response: %w", err)
	}
	return nil
}
