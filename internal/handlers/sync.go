// internal/handlers/sync.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/catalog-backend/internal/i18n"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// POST /admin/vendors/:slug/sync
func (h *SyncHandler) StartSync(c *gin.Context) {
	var req struct {
		Mode     models.SyncMode `json:"mode"`
		TenantID string          `json:"tenant_id" validate:"max=64"`
		Async    bool            `json:"async"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	syncReq := services.RunSyncRequest{
		VendorSlug: c.Param("slug"),
		Mode:       req.Mode,
		TenantID:   req.TenantID,
	}

	if req.Async {
		run, err := h.syncService.StartSyncPass(c.Request.Context(), syncReq)
		if err != nil {
			respondError(c, err)
			return
		}
		utils.AcceptedResponse(c, gin.H{
			"message": i18n.T(utils.GetLangFromContext(c), i18n.KeySyncStarted),
			"run":     run,
		})
		return
	}

	run, err := h.syncService.RunSyncPass(c.Request.Context(), syncReq)
	if err != nil {
		var batchErr *services.BatchError
		if errors.As(err, &batchErr) {
			batchFailed(c, batchErr, run)
			return
		}
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, run)
}

// GET /admin/vendors/:slug/sync-runs
func (h *SyncHandler) GetRuns(c *gin.Context) {
	params := utils.GetPaginationParams(c, "started_at")

	runs, total, err := h.syncService.ListRuns(c.Request.Context(), c.Param("slug"), params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(runs, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /admin/vendors/:slug/sync-runs/latest
func (h *SyncHandler) GetLatestRun(c *gin.Context) {
	run, err := h.syncService.LatestRun(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, run)
}

// GET /admin/sync-runs/:id
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "run ID"), nil)
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, run)
}

// GET /admin/queue
func (h *SyncHandler) GetQueueStats(c *gin.Context) {
	utils.SuccessResponse(c, h.syncService.QueueStats())
}
