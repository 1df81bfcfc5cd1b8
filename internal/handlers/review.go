// internal/handlers/review.go
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

type ReviewHandler struct {
	crossRefService *services.CrossRefService
}

func NewReviewHandler(crossRefService *services.CrossRefService) *ReviewHandler {
	return &ReviewHandler{crossRefService: crossRefService}
}

type verifyRequest struct {
	Accept   bool       `json:"accept"`
	MasterID *uuid.UUID `json:"master_id,omitempty"`
}

// GET /review/pending
func (h *ReviewHandler) GetPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := h.crossRefService.FindPendingReview(limit)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, entries)
}

// POST /review/:id/verify
func (h *ReviewHandler) Verify(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid cross-reference ID", nil)
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	entry, err := h.crossRefService.VerifyEntry(id, req.Accept, req.MasterID)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.SuccessResponse(c, entry)
}

// GET /crossrefs
func (h *ReviewHandler) Lookup(c *gin.Context) {
	source := c.Query("source")
	sku := c.Query("external_sku")
	if source == "" || sku == "" {
		utils.BadRequestResponse(c, "source and external_sku are required", nil)
		return
	}

	entry, err := h.crossRefService.FindBySource(source, sku)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if entry == nil {
		utils.NotFoundResponse(c, "Cross-reference")
		return
	}

	utils.SuccessResponse(c, entry)
}
