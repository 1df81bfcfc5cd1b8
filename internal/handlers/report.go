// internal/handlers/report.go
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

// How long a presigned archive download link stays valid.
const archiveLinkTTL = 15 * time.Minute

type ReportHandler struct {
	reportService  *services.ReportService
	storageService *services.StorageService
}

func NewReportHandler(reportService *services.ReportService, storageService *services.StorageService) *ReportHandler {
	return &ReportHandler{
		reportService:  reportService,
		storageService: storageService,
	}
}

// GET /reports/:code/archive
func (h *ReportHandler) GetArchiveLink(c *gin.Context) {
	if !h.storageService.Enabled() {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "ARCHIVE_DISABLED",
			"Report archiving is not configured", nil)
		return
	}

	job, err := h.reportService.GetJob(c.Param("code"))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if job == nil {
		utils.NotFoundResponse(c, "Report job")
		return
	}
	if job.ArchiveKey == "" {
		utils.NotFoundResponse(c, "Report archive")
		return
	}

	url, err := h.storageService.GeneratePresignedURL(job.ArchiveKey, archiveLinkTTL)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"report_code": job.ReportCode,
		"url":         url,
		"expires_in":  int(archiveLinkTTL.Seconds()),
	})
}

// DELETE /reports/:code/archive
func (h *ReportHandler) DeleteArchive(c *gin.Context) {
	if !h.storageService.Enabled() {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "ARCHIVE_DISABLED",
			"Report archiving is not configured", nil)
		return
	}

	job, err := h.reportService.GetJob(c.Param("code"))
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if job == nil {
		utils.NotFoundResponse(c, "Report job")
		return
	}
	if job.ArchiveKey == "" {
		utils.NotFoundResponse(c, "Report archive")
		return
	}

	if err := h.storageService.DeleteArchive(job.ArchiveKey); err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if err := h.reportService.ClearArchiveKey(job); err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"report_code": job.ReportCode, "deleted": true})
}
