// internal/handlers/pipeline.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

type PipelineHandler struct {
	pipelineService *services.PipelineService
}

func NewPipelineHandler(pipelineService *services.PipelineService) *PipelineHandler {
	return &PipelineHandler{pipelineService: pipelineService}
}

type runMatchingRequest struct {
	Source string `json:"source" validate:"required,source_key"`
}

// POST /pipelines/matching/run
func (h *PipelineHandler) RunMatching(c *gin.Context) {
	var req runMatchingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	run, err := h.pipelineService.RunMatching(c.Request.Context(), req.Source)
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			utils.ConflictResponse(c, "A matching run for this source is already in progress")
			return
		}
		if run != nil {
			// Run record exists; surface it with the failure.
			utils.ErrorResponse(c, http.StatusInternalServerError, "RUN_FAILED", err.Error(), run)
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, run)
}

// POST /pipelines/report/run
func (h *PipelineHandler) RunReport(c *gin.Context) {
	run, err := h.pipelineService.RunReport(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			utils.ConflictResponse(c, "A report run is already in progress")
			return
		}
		if run != nil {
			utils.ErrorResponse(c, http.StatusInternalServerError, "RUN_FAILED", err.Error(), run)
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, run)
}

// GET /runs
func (h *PipelineHandler) GetRuns(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	pipelineType := c.Query("pipeline_type")

	runs, total, err := h.pipelineService.ListRuns(pipelineType, params)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(runs, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /runs/:id
func (h *PipelineHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid run ID", nil)
		return
	}

	run, err := h.pipelineService.GetRun(id)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if run == nil {
		utils.NotFoundResponse(c, "Pipeline run")
		return
	}

	utils.SuccessResponse(c, run)
}

// GET /sources
func (h *PipelineHandler) GetSources(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{"sources": h.pipelineService.Sources()})
}
