// internal/services/pipeline_service_test.go
package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// fakeExtractor serves a canned batch or a canned error.
type fakeExtractor struct {
	name    string
	records []models.ExtractedRecord
	err     error
	down    bool
	calls   int
}

func (f *fakeExtractor) Extract(ctx context.Context, filters Filters) ([]models.ExtractedRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.ExtractedRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeExtractor) IsAvailable(ctx context.Context) bool { return !f.down }

func (f *fakeExtractor) SourceName() string { return f.name }

type PipelineServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	pipeline *PipelineService
	reports  *ReportService
	cfg      *config.Config
}

func (suite *PipelineServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())

	suite.cfg = &config.Config{
		Extraction: config.ExtractionConfig{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			PageSize:    100,
		},
		Matching: config.MatchingConfig{
			NameWeight:      0.4,
			BrandWeight:     0.3,
			CategoryWeight:  0.2,
			AttributeWeight: 0.1,
			AutoThreshold:   0.90,
			ReviewThreshold: 0.70,
		},
		Loader: config.LoaderConfig{BatchSize: 100},
		Report: config.ReportConfig{
			APIKey:       "test-key",
			PollInterval: 5 * time.Minute,
			MaxWait:      10 * time.Minute,
			BackoffBase:  30 * time.Second,
			BackoffCap:   120 * time.Second,
			MaxRetries:   2,
			ReportType:   "warehouse_stock",
		},
	}

	alerts := nopAlerts{}
	xrefs := NewCrossRefService(suite.db)
	extraction := NewExtractionService(alerts,
		utils.LinearBackoff(suite.cfg.Extraction.MaxAttempts, suite.cfg.Extraction.BaseDelay),
		&fakeSleeper{})
	cleaning := NewCleaningService(alerts)
	matching := NewMatchingService(suite.db, suite.cfg.Matching, xrefs, alerts)
	reports := NewReportService(suite.db, suite.cfg.Report, alerts)
	processor := NewReportProcessorService(alerts)
	inventory := NewInventoryService(suite.db, alerts, suite.cfg.Loader.BatchSize)

	suite.reports = reports
	suite.pipeline = NewPipelineService(suite.db, suite.cfg, alerts,
		extraction, cleaning, matching, reports, processor, inventory, &StorageService{})
}

func (suite *PipelineServiceTestSuite) TestRunMatchingEndToEnd() {
	now := time.Now().UTC()
	suite.pipeline.RegisterExtractor(&fakeExtractor{
		name: "marketplace",
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "SKU-1", SourceName: "Widget", SourceBrand: "Acme", SourceCategory: "Tools", RawPrice: "10.00", ExtractedAt: now},
			{Source: "marketplace", ExternalSKU: "SKU-2", SourceName: "Gadget", SourceBrand: "Globex", SourceCategory: "Toys", RawPrice: "20.00", ExtractedAt: now},
			{Source: "marketplace", ExternalSKU: "", SourceName: "No SKU", ExtractedAt: now},
		},
	})

	run, err := suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().NoError(err)

	suite.Equal(models.RunStatusSuccess, run.Status)
	suite.Equal(2, run.RecordsExtracted)
	suite.Equal(2, run.RecordsLoaded)
	suite.NotNil(run.FinishedAt)

	// Both records were new: two masters, two cross-references.
	var masters, xrefs, staged int64
	suite.db.Model(&models.MasterProduct{}).Count(&masters)
	suite.db.Model(&models.CrossReference{}).Count(&xrefs)
	suite.db.Model(&models.ExtractedRecord{}).Count(&staged)
	suite.Equal(int64(2), masters)
	suite.Equal(int64(2), xrefs)
	suite.Equal(int64(2), staged)

	var stored models.PipelineRun
	suite.Require().NoError(suite.db.First(&stored, "id = ?", run.ID).Error)
	suite.Equal(models.RunStatusSuccess, stored.Status)
	suite.Equal(float64(2), stored.Stats["created"])
}

func (suite *PipelineServiceTestSuite) TestRunMatchingStagingSupersedes() {
	now := time.Now().UTC()
	extractor := &fakeExtractor{
		name: "marketplace",
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "SKU-1", SourceName: "Widget", SourceBrand: "Acme", SourceCategory: "Tools", RawPrice: "10.00", ExtractedAt: now},
		},
	}
	suite.pipeline.RegisterExtractor(extractor)

	_, err := suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().NoError(err)

	extractor.records[0].SourceName = "Widget Pro"
	extractor.records[0].ExtractedAt = now.Add(time.Hour)

	_, err = suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().NoError(err)

	var staged []models.ExtractedRecord
	suite.Require().NoError(suite.db.Find(&staged).Error)
	suite.Require().Len(staged, 1)
	suite.Equal("Widget Pro", staged[0].SourceName)
}

func (suite *PipelineServiceTestSuite) TestRunMatchingSourceDownMarksRunFailed() {
	suite.pipeline.RegisterExtractor(&fakeExtractor{
		name: "marketplace",
		err:  errors.New("connection refused"),
	})

	run, err := suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().Error(err)

	var unavailable *SourceUnavailableError
	suite.Require().ErrorAs(err, &unavailable)
	suite.Equal(2, unavailable.Attempts)

	suite.Require().NotNil(run)
	suite.Equal(models.RunStatusFailed, run.Status)
	suite.Equal(1, run.ErrorCount)
}

func (suite *PipelineServiceTestSuite) TestRunMatchingUnknownSource() {
	_, err := suite.pipeline.RunMatching(context.Background(), "nope")
	suite.Error(err)
}

func (suite *PipelineServiceTestSuite) TestConcurrentRunRejected() {
	suite.pipeline.RegisterExtractor(&fakeExtractor{name: "marketplace"})

	release, err := suite.pipeline.locks.acquire(models.PipelineTypeMatching, "marketplace")
	suite.Require().NoError(err)
	defer release()

	_, err = suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.ErrorIs(err, ErrRunInProgress)
}

func (suite *PipelineServiceTestSuite) TestRunLockIsScopedPerSource() {
	release, err := suite.pipeline.locks.acquire(models.PipelineTypeMatching, "marketplace")
	suite.Require().NoError(err)
	defer release()

	other, err := suite.pipeline.locks.acquire(models.PipelineTypeMatching, "other-source")
	suite.Require().NoError(err)
	other()

	report, err := suite.pipeline.locks.acquire(models.PipelineTypeReport, "warehouse_stock")
	suite.Require().NoError(err)
	report()
}

func (suite *PipelineServiceTestSuite) TestListRunsFilterAndOrder() {
	suite.pipeline.RegisterExtractor(&fakeExtractor{
		name: "marketplace",
		records: []models.ExtractedRecord{
			{Source: "marketplace", ExternalSKU: "SKU-1", SourceName: "Widget", ExtractedAt: time.Now().UTC()},
		},
	})

	_, err := suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().NoError(err)

	runs, total, err := suite.pipeline.ListRuns("matching", utils.PaginationParams{Page: 1, Limit: 10})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Require().Len(runs, 1)
	suite.Equal("marketplace", runs[0].Key)

	runs, total, err = suite.pipeline.ListRuns("report", utils.PaginationParams{Page: 1, Limit: 10})
	suite.Require().NoError(err)
	suite.Equal(int64(0), total)
	suite.Empty(runs)
}

func (suite *PipelineServiceTestSuite) TestRunMatchingProbeFailureShortCircuits() {
	extractor := &fakeExtractor{name: "marketplace", down: true}
	suite.pipeline.RegisterExtractor(extractor)

	run, err := suite.pipeline.RunMatching(context.Background(), "marketplace")
	suite.Require().Error(err)

	var unavailable *SourceUnavailableError
	suite.Require().ErrorAs(err, &unavailable)
	suite.Equal("marketplace", unavailable.Source)
	suite.Equal(0, unavailable.Attempts)

	suite.Require().NotNil(run)
	suite.Equal(models.RunStatusFailed, run.Status)
	// The extraction retry budget was never touched.
	suite.Equal(0, extractor.calls)
}

func (suite *PipelineServiceTestSuite) TestRunReportEndToEnd() {
	suite.Require().NoError(suite.db.Create(&models.WarehouseAlias{
		CanonicalName: "Moscow Main",
		Variants:      []string{"MSK-1", "Moscow-Main"},
	}).Error)

	// A stale snapshot that the load must replace.
	suite.Require().NoError(suite.db.Create(&models.InventoryRecord{
		ProductKey: "SKU-OLD", WarehouseName: "Kazan", Present: 1, Available: 1,
	}).Error)

	csvBody := "SKU,Warehouse name,Present,Reserved\n" +
		"SKU-1,MSK-1,10,4\n" +
		"SKU-2,Moscow Main,5,0\n"

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/report/create":
			writeJSON(w, map[string]interface{}{"result": map[string]string{"code": "REP-E2E"}})
		case "/v1/report/info":
			writeJSON(w, map[string]interface{}{"result": map[string]string{
				"status": "SUCCESS",
				"file":   server.URL + "/report.csv",
			}})
		case "/report.csv":
			w.Write([]byte(csvBody))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()
	suite.reports.cfg.BaseURL = server.URL

	run, err := suite.pipeline.RunReport(context.Background())
	suite.Require().NoError(err)

	suite.Equal(models.RunStatusSuccess, run.Status)
	suite.Equal(2, run.RecordsExtracted)
	suite.Equal(2, run.RecordsLoaded)
	suite.Equal("REP-E2E", run.Stats["report_code"])

	var count int64
	suite.db.Model(&models.InventoryRecord{}).Count(&count)
	suite.Equal(int64(2), count)

	// The alias map canonicalized MSK-1 before the load.
	var record models.InventoryRecord
	suite.Require().NoError(suite.db.
		Where("product_key = ? AND warehouse_name = ?", "SKU-1", "Moscow Main").
		First(&record).Error)
	suite.Equal(10, record.Present)
	suite.Equal(6, record.Available)

	var job models.ReportJob
	suite.Require().NoError(suite.db.First(&job, "report_code = ?", "REP-E2E").Error)
	suite.Equal(models.ReportStatusSuccess, job.Status)
}

func (suite *PipelineServiceTestSuite) TestRunReportTimeoutKeepsInventory() {
	existing := []models.InventoryRecord{
		{ProductKey: "SKU-1", WarehouseName: "Moscow Main", Present: 10, Reserved: 3, Available: 7},
		{ProductKey: "SKU-2", WarehouseName: "Kazan", Present: 5, Available: 5},
	}
	suite.Require().NoError(suite.db.Create(&existing).Error)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/report/create":
			writeJSON(w, map[string]interface{}{"result": map[string]string{"code": "REP-STUCK"}})
		case "/v1/report/info":
			writeJSON(w, map[string]interface{}{"result": map[string]string{"status": "PROCESSING"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	// The clock advances 4 minutes per observation against a 10 minute budget,
	// so the generator stuck in PROCESSING trips the local deadline.
	suite.reports.cfg.BaseURL = server.URL
	suite.reports.sleeper = &fakeSleeper{}
	suite.reports.now = newFakeClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), 4*time.Minute).Now

	run, err := suite.pipeline.RunReport(context.Background())
	suite.Require().Error(err)

	var timeout *ReportTimeoutError
	suite.Require().ErrorAs(err, &timeout)
	suite.Equal("REP-STUCK", timeout.ReportCode)

	suite.Require().NotNil(run)
	suite.Equal(models.RunStatusFailed, run.Status)
	suite.Equal("poll", run.Stats["stage"])

	var job models.ReportJob
	suite.Require().NoError(suite.db.First(&job, "report_code = ?", "REP-STUCK").Error)
	suite.Equal(models.ReportStatusTimeout, job.Status)

	// The previous snapshot survives the failed run untouched.
	var count int64
	suite.db.Model(&models.InventoryRecord{}).Count(&count)
	suite.Equal(int64(2), count)

	var record models.InventoryRecord
	suite.Require().NoError(suite.db.
		Where("product_key = ? AND warehouse_name = ?", "SKU-1", "Moscow Main").
		First(&record).Error)
	suite.Equal(7, record.Available)
}

func TestPipelineServiceTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineServiceTestSuite))
}
