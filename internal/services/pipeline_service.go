// internal/services/pipeline_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// runLocks serializes pipeline runs per (pipelineType, key): a second trigger
// for the same scope is rejected instead of queued.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[string]*sync.Mutex)}
}

func (r *runLocks) acquire(pipelineType models.PipelineType, key string) (func(), error) {
	r.mu.Lock()
	lock, ok := r.locks[string(pipelineType)+"\x00"+key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[string(pipelineType)+"\x00"+key] = lock
	}
	r.mu.Unlock()

	if !lock.TryLock() {
		return nil, ErrRunInProgress
	}
	return lock.Unlock, nil
}

// PipelineService orchestrates both pipelines end to end and records every
// execution as a PipelineRun row.
type PipelineService struct {
	db         *gorm.DB
	cfg        *config.Config
	alerts     AlertSink
	extraction *ExtractionService
	cleaning   *CleaningService
	matching   *MatchingService
	reports    *ReportService
	processor  *ReportProcessorService
	inventory  *InventoryService
	storage    *StorageService
	extractors map[string]Extractor
	locks      *runLocks
}

func NewPipelineService(
	db *gorm.DB,
	cfg *config.Config,
	alerts AlertSink,
	extraction *ExtractionService,
	cleaning *CleaningService,
	matching *MatchingService,
	reports *ReportService,
	processor *ReportProcessorService,
	inventory *InventoryService,
	storage *StorageService,
) *PipelineService {
	extractors := make(map[string]Extractor, len(cfg.Extraction.Sources))
	for _, source := range cfg.Extraction.Sources {
		extractors[source.Name] = NewHTTPSourceExtractor(source, cfg.Extraction.PageSize)
	}

	return &PipelineService{
		db:         db,
		cfg:        cfg,
		alerts:     alerts,
		extraction: extraction,
		cleaning:   cleaning,
		matching:   matching,
		reports:    reports,
		processor:  processor,
		inventory:  inventory,
		storage:    storage,
		extractors: extractors,
		locks:      newRunLocks(),
	}
}

// RegisterExtractor installs or replaces the extractor for a source. Used by
// tests and by sources that need a non-HTTP transport.
func (s *PipelineService) RegisterExtractor(extractor Extractor) {
	s.extractors[extractor.SourceName()] = extractor
}

// MatchingRunStats summarizes one matching run for the stats JSONB column.
type MatchingRunStats struct {
	Extracted     int     `json:"extracted"`
	Cleaned       int     `json:"cleaned"`
	Accepted      int     `json:"accepted"`
	PendingReview int     `json:"pending_review"`
	Created       int     `json:"created"`
	MatchErrors   int     `json:"match_errors"`
	QualityScore  float64 `json:"quality_score"`
}

// RunMatching executes the full matching pipeline for one source: probe,
// extract, stage, clean, and match every record. A second concurrent run for
// the same source returns ErrRunInProgress.
func (s *PipelineService) RunMatching(ctx context.Context, source string) (*models.PipelineRun, error) {
	extractor, ok := s.extractors[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	release, err := s.locks.acquire(models.PipelineTypeMatching, source)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := s.startRun(models.PipelineTypeMatching, source)
	if err != nil {
		return nil, err
	}

	// A failed liveness probe fails the run up front instead of burning the
	// extraction retry budget against a source that is known to be down.
	if !extractor.IsAvailable(ctx) {
		probeErr := &SourceUnavailableError{
			Source:   source,
			Attempts: 0,
			Err:      errors.New("availability probe failed"),
		}
		s.alerts.Error(&run.ID, source, "Source availability probe failed", nil)
		s.finishRun(run, models.RunStatusFailed, 0, 0, 1, 0, models.JSONB{"error": probeErr.Error()})
		return run, probeErr
	}

	records, err := s.extraction.ExtractWithRetry(ctx, extractor, nil)
	if err != nil {
		s.finishRun(run, models.RunStatusFailed, 0, 0, 1, 0, models.JSONB{"error": err.Error()})
		return run, err
	}

	cleaned, quality := s.cleaning.CleanBatch(records)

	if err := s.stageRecords(cleaned); err != nil {
		s.finishRun(run, models.RunStatusFailed, len(records), 0, 1, quality.Score, models.JSONB{"error": err.Error()})
		return run, err
	}

	stats := MatchingRunStats{
		Extracted:    len(records),
		Cleaned:      len(cleaned),
		QualityScore: quality.Score,
	}

	for i := range cleaned {
		if ctx.Err() != nil {
			s.finishRun(run, models.RunStatusFailed, stats.Extracted, i, stats.MatchErrors+1, quality.Score, s.matchingStats(stats, quality))
			return run, ctx.Err()
		}

		outcome, err := s.matching.Match(&run.ID, &cleaned[i])
		if err != nil {
			stats.MatchErrors++
			s.alerts.Error(&run.ID, source, "Failed to match record", models.JSONB{
				"external_sku": cleaned[i].ExternalSKU,
				"error":        err.Error(),
			})
			continue
		}

		switch outcome.Kind {
		case MatchOutcomeAccepted:
			stats.Accepted++
		case MatchOutcomePendingReview:
			stats.PendingReview++
		case MatchOutcomeCreated:
			stats.Created++
		}
	}

	status := models.RunStatusSuccess
	if stats.MatchErrors > 0 {
		status = models.RunStatusPartial
	}
	if stats.MatchErrors == len(cleaned) && len(cleaned) > 0 {
		status = models.RunStatusFailed
	}

	s.finishRun(run, status, stats.Extracted, stats.Accepted+stats.PendingReview+stats.Created,
		stats.MatchErrors, quality.Score, s.matchingStats(stats, quality))

	return run, nil
}

func (s *PipelineService) matchingStats(stats MatchingRunStats, quality QualityReport) models.JSONB {
	return models.JSONB{
		"extracted":      stats.Extracted,
		"cleaned":        stats.Cleaned,
		"accepted":       stats.Accepted,
		"pending_review": stats.PendingReview,
		"created":        stats.Created,
		"match_errors":   stats.MatchErrors,
		"quality":        quality.ToJSONB(),
	}
}

// stageRecords upserts cleaned records into the staging table keyed by
// (source, externalSku), superseding the previous extraction.
func (s *PipelineService) stageRecords(records []models.ExtractedRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range records {
			record := &records[i]

			var existing models.ExtractedRecord
			err := tx.Where("source = ? AND external_sku = ?", record.Source, record.ExternalSKU).
				First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				if createErr := tx.Create(record).Error; createErr != nil {
					return fmt.Errorf("failed to stage record %s/%s: %w", record.Source, record.ExternalSKU, createErr)
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to look up staged record: %w", err)
			}

			updates := map[string]interface{}{
				"source_name":     record.SourceName,
				"source_brand":    record.SourceBrand,
				"source_category": record.SourceCategory,
				"raw_price":       record.RawPrice,
				"price":           record.Price,
				"attributes":      record.Attributes,
				"extracted_at":    record.ExtractedAt,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update staged record: %w", err)
			}
			record.ID = existing.ID
		}
		return nil
	})
}

// RunReport executes the report pipeline: request, poll, download, archive,
// parse, and atomically load the inventory snapshot.
func (s *PipelineService) RunReport(ctx context.Context) (*models.PipelineRun, error) {
	release, err := s.locks.acquire(models.PipelineTypeReport, s.cfg.Report.ReportType)
	if err != nil {
		return nil, err
	}
	defer release()

	run, err := s.startRun(models.PipelineTypeReport, s.cfg.Report.ReportType)
	if err != nil {
		return nil, err
	}

	fail := func(stage string, err error) (*models.PipelineRun, error) {
		s.finishRun(run, models.RunStatusFailed, 0, 0, 1, 0, models.JSONB{
			"stage": stage,
			"error": err.Error(),
		})
		return run, err
	}

	job, err := s.reports.RequestReport(ctx, &run.ID, nil)
	if err != nil {
		return fail("request", err)
	}

	if err := s.reports.WaitForCompletion(ctx, &run.ID, job); err != nil {
		return fail("poll", err)
	}

	data, err := s.reports.Download(ctx, job)
	if err != nil {
		return fail("download", err)
	}

	// Archive failures never fail the run: the snapshot load matters more
	// than the audit copy.
	if key, archiveErr := s.storage.ArchiveReport(job.ReportCode, data); archiveErr != nil {
		s.alerts.Warning(&run.ID, "report", "Failed to archive report", models.JSONB{
			"report_code": job.ReportCode,
			"error":       archiveErr.Error(),
		})
	} else if key != "" {
		if err := s.db.Model(job).Update("archive_key", key).Error; err != nil {
			s.alerts.Warning(&run.ID, "report", "Failed to record archive key", models.JSONB{
				"report_code": job.ReportCode,
				"error":       err.Error(),
			})
		}
	}

	aliases, err := LoadWarehouseAliases(s.db)
	if err != nil {
		return fail("aliases", err)
	}

	records, err := s.processor.Parse(&run.ID, aliases, data)
	if err != nil {
		return fail("parse", err)
	}

	loaded, err := s.inventory.Load(&run.ID, records)
	if err != nil {
		return fail("load", err)
	}

	s.finishRun(run, models.RunStatusSuccess, len(records), loaded, 0, 0, models.JSONB{
		"report_code": job.ReportCode,
		"rows_parsed": len(records),
		"rows_loaded": loaded,
	})

	return run, nil
}

func (s *PipelineService) startRun(pipelineType models.PipelineType, key string) (*models.PipelineRun, error) {
	run := &models.PipelineRun{
		PipelineType: pipelineType,
		Key:          key,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now(),
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}

	s.alerts.Info(&run.ID, key, "Pipeline run started", models.JSONB{
		"pipeline_type": string(pipelineType),
	})
	return run, nil
}

func (s *PipelineService) finishRun(run *models.PipelineRun, status models.RunStatus,
	extracted, loaded, errorCount int, qualityScore float64, stats models.JSONB) {
	finished := time.Now()
	duration := finished.Sub(run.StartedAt).Milliseconds()

	updates := map[string]interface{}{
		"status":            status,
		"records_extracted": extracted,
		"records_loaded":    loaded,
		"error_count":       errorCount,
		"quality_score":     qualityScore,
		"stats":             stats,
		"finished_at":       &finished,
		"duration_ms":       duration,
	}

	if err := s.db.Model(run).Updates(updates).Error; err != nil {
		s.alerts.Error(&run.ID, run.Key, "Failed to finalize pipeline run", models.JSONB{
			"error": err.Error(),
		})
	}

	run.Status = status
	run.RecordsExtracted = extracted
	run.RecordsLoaded = loaded
	run.ErrorCount = errorCount
	run.QualityScore = qualityScore
	run.Stats = stats
	run.FinishedAt = &finished
	run.DurationMs = duration

	s.alerts.Info(&run.ID, run.Key, "Pipeline run finished", models.JSONB{
		"status":      string(status),
		"duration_ms": duration,
	})
}

// GetRun loads one pipeline run by id.
func (s *PipelineService) GetRun(id uuid.UUID) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := s.db.First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline run: %w", err)
	}
	return &run, nil
}

// Allowed sort columns for run history queries.
var runSortFields = []string{"started_at", "finished_at", "duration_ms", "created_at"}

// ListRuns pages through run history, optionally filtered by pipeline type.
func (s *PipelineService) ListRuns(pipelineType string, params utils.PaginationParams) ([]models.PipelineRun, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 || params.Limit > 100 {
		params.Limit = 20
	}
	if params.Sort == "" {
		params.Sort = "started_at"
	}
	if params.Order != "asc" && params.Order != "desc" {
		params.Order = "desc"
	}

	query := s.db.Model(&models.PipelineRun{})
	if pipelineType != "" {
		query = query.Where("pipeline_type = ?", pipelineType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count pipeline runs: %w", err)
	}

	var runs []models.PipelineRun
	query = utils.ApplySort(query, params, runSortFields)
	if err := utils.ApplyPagination(query, params).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list pipeline runs: %w", err)
	}

	return runs, total, nil
}

// Sources lists the configured extraction source names.
func (s *PipelineService) Sources() []string {
	names := make([]string, 0, len(s.extractors))
	for name := range s.extractors {
		names = append(names, name)
	}
	return names
}
