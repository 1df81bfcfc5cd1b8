// internal/handlers/report_test.go
package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/config"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/models"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
)

// noAlerts discards all pipeline events.
type noAlerts struct{}

func (noAlerts) Info(*uuid.UUID, string, string, models.JSONB)    {}
func (noAlerts) Warning(*uuid.UUID, string, string, models.JSONB) {}
func (noAlerts) Error(*uuid.UUID, string, string, models.JSONB)   {}
func (noAlerts) Fatal(*uuid.UUID, string, string, models.JSONB)   {}

type ReportHandlerTestSuite struct {
	suite.Suite
	db      *gorm.DB
	cfg     *config.Config
	reports *services.ReportService
}

func (suite *ReportHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", suite.T().Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	suite.Require().NoError(err)
	suite.Require().NoError(db.AutoMigrate(&models.ReportJob{}))
	suite.db = db

	suite.cfg = &config.Config{
		AWS: config.AWSConfig{
			Region:          "us-east-1",
			AccessKeyID:     "test-access-key",
			SecretAccessKey: "test-secret-key",
			S3Bucket:        "test-archive",
		},
	}
	suite.reports = services.NewReportService(db, config.ReportConfig{}, noAlerts{})
}

func (suite *ReportHandlerTestSuite) newRouter(storage *services.StorageService) *gin.Engine {
	handler := NewReportHandler(suite.reports, storage)

	r := gin.New()
	reports := r.Group("/v1/reports")
	{
		reports.GET("/:code/archive", handler.GetArchiveLink)
		reports.DELETE("/:code/archive", handler.DeleteArchive)
	}
	return r
}

func (suite *ReportHandlerTestSuite) seedJob(code, archiveKey string) *models.ReportJob {
	completed := time.Now()
	job := &models.ReportJob{
		ReportCode:  code,
		Status:      models.ReportStatusSuccess,
		ArchiveKey:  archiveKey,
		RequestedAt: time.Now(),
		CompletedAt: &completed,
	}
	suite.Require().NoError(suite.db.Create(job).Error)
	return job
}

func (suite *ReportHandlerTestSuite) TestGetArchiveLinkStorageDisabled() {
	router := suite.newRouter(&services.StorageService{})

	req, _ := http.NewRequest("GET", "/v1/reports/REP-1/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	suite.Equal(http.StatusServiceUnavailable, w.Code)
}

func (suite *ReportHandlerTestSuite) TestGetArchiveLinkUnknownJob() {
	storage, err := services.NewStorageService(suite.cfg)
	suite.Require().NoError(err)
	router := suite.newRouter(storage)

	req, _ := http.NewRequest("GET", "/v1/reports/REP-MISSING/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *ReportHandlerTestSuite) TestGetArchiveLinkJobWithoutArchive() {
	storage, err := services.NewStorageService(suite.cfg)
	suite.Require().NoError(err)
	suite.seedJob("REP-NOARCH", "")
	router := suite.newRouter(storage)

	req, _ := http.NewRequest("GET", "/v1/reports/REP-NOARCH/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *ReportHandlerTestSuite) TestGetArchiveLinkPresigns() {
	storage, err := services.NewStorageService(suite.cfg)
	suite.Require().NoError(err)
	suite.seedJob("REP-OK", "reports/2026/08/01/REP-OK.csv")
	router := suite.newRouter(storage)

	req, _ := http.NewRequest("GET", "/v1/reports/REP-OK/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Presigning is a local signature computation, no S3 round trip.
	suite.Equal(http.StatusOK, w.Code)
	suite.Contains(w.Body.String(), "REP-OK.csv")
	suite.Contains(w.Body.String(), "X-Amz-Signature")
}

func (suite *ReportHandlerTestSuite) TestDeleteArchiveStorageDisabled() {
	router := suite.newRouter(&services.StorageService{})

	req, _ := http.NewRequest("DELETE", "/v1/reports/REP-1/archive", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	suite.Equal(http.StatusServiceUnavailable, w.Code)
}

func TestReportHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(ReportHandlerTestSuite))
}
