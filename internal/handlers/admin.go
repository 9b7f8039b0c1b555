// internal/handlers/admin.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
)

type AdminHandler struct {
	vendorService *services.VendorService
}

func NewAdminHandler(vendorService *services.VendorService) *AdminHandler {
	return &AdminHandler{
		vendorService: vendorService,
	}
}

// GET /admin/stats
func (h *AdminHandler) GetCatalogStats(c *gin.Context) {
	stats, err := h.vendorService.GetCatalogStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"stats": stats,
	})
}

// GET /admin/audit-logs
func (h *AdminHandler) GetAuditLogs(c *gin.Context) {
	params := utils.GetPaginationParams(c, "created_at")

	filter := services.AuditLogFilter{
		PaginationParams: params,
		Actor:            c.Query("actor"),
		ResourceType:     c.Query("resource_type"),
		ResourceID:       c.Query("resource_id"),
	}

	logs, total, err := h.vendorService.GetAuditLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(logs, total, params)
	utils.PaginatedResponse(c, result)
}
