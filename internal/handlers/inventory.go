// internal/handlers/inventory.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/Arbitr3103/mi-core-etl-sub023/internal/services"
	"github.com/Arbitr3103/mi-core-etl-sub023/internal/utils"
)

type InventoryHandler struct {
	inventoryService *services.InventoryService
}

func NewInventoryHandler(inventoryService *services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventoryService: inventoryService}
}

// GET /inventory/:sku
func (h *InventoryHandler) GetStock(c *gin.Context) {
	sku := c.Param("sku")

	if warehouse := c.Query("warehouse"); warehouse != "" {
		record, err := h.inventoryService.GetStock(sku, warehouse)
		if err != nil {
			utils.InternalErrorResponse(c, err.Error())
			return
		}
		if record == nil {
			utils.NotFoundResponse(c, "Stock record")
			return
		}
		utils.SuccessResponse(c, record)
		return
	}

	records, err := h.inventoryService.ListStock(sku)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}
	if len(records) == 0 {
		utils.NotFoundResponse(c, "Stock record")
		return
	}

	utils.SuccessResponse(c, records)
}
