// internal/handlers/vendor.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/catalog-backend/internal/i18n"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
	"github.com/javajoker/catalog-backend/internal/vendors"
)

type VendorHandler struct {
	vendorService     *services.VendorService
	credentialService *services.CredentialService
	syncService       *services.SyncService
}

func NewVendorHandler(vendorService *services.VendorService, credentialService *services.CredentialService, syncService *services.SyncService) *VendorHandler {
	return &VendorHandler{
		vendorService:     vendorService,
		credentialService: credentialService,
		syncService:       syncService,
	}
}

// GET /admin/vendors
func (h *VendorHandler) GetVendors(c *gin.Context) {
	list, err := h.vendorService.ListVendors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"vendors": list,
	})
}

// GET /admin/vendors/:slug
func (h *VendorHandler) GetVendor(c *gin.Context) {
	vendor, err := h.vendorService.GetVendor(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, vendor)
}

// POST /admin/vendors
func (h *VendorHandler) CreateVendor(c *gin.Context) {
	var req services.CreateVendorRequest
	if !bindJSON(c, &req) {
		return
	}

	vendor, err := h.vendorService.CreateVendor(c.Request.Context(), &req, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, vendor)
}

// PUT /admin/vendors/order
func (h *VendorHandler) ReorderVendors(c *gin.Context) {
	var req struct {
		Slugs []string `json:"slugs" validate:"required,min=1,dive,slug"`
	}
	if !bindJSON(c, &req) {
		return
	}

	list, err := h.vendorService.Reorder(c.Request.Context(), req.Slugs, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"vendors": list,
	})
}

// PUT /admin/vendors/:slug/priority
func (h *VendorHandler) SetPriority(c *gin.Context) {
	var req struct {
		Priority int `json:"priority" validate:"required,min=1"`
	}
	if !bindJSON(c, &req) {
		return
	}

	vendor, err := h.vendorService.SetPriority(c.Request.Context(), c.Param("slug"), req.Priority, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, vendor)
}

// PUT /admin/vendors/:slug/category-priority
func (h *VendorHandler) SetCategoryPriority(c *gin.Context) {
	var req struct {
		Category string `json:"category" validate:"required,max=100"`
		Priority int    `json:"priority" validate:"min=0"`
	}
	if !bindJSON(c, &req) {
		return
	}

	vendor, err := h.vendorService.SetCategoryPriority(c.Request.Context(), c.Param("slug"), req.Category, req.Priority, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, vendor)
}

// PUT /admin/vendors/:slug/status
func (h *VendorHandler) SetStatus(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" validate:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	vendor, err := h.vendorService.SetEnabled(c.Request.Context(), c.Param("slug"), *req.Enabled, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, vendor)
}

// PUT /admin/vendors/:slug/image-quality
func (h *VendorHandler) SetImageQuality(c *gin.Context) {
	var req struct {
		ImageQuality models.ImageQuality `json:"image_quality" validate:"required,oneof=high low"`
	}
	if !bindJSON(c, &req) {
		return
	}

	vendor, err := h.vendorService.SetImageQuality(c.Request.Context(), c.Param("slug"), req.ImageQuality, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, vendor)
}

// PUT /admin/vendors/:slug/credentials
func (h *VendorHandler) SaveCredentials(c *gin.Context) {
	var req services.SaveCredentialsRequest
	if !bindJSON(c, &req) {
		return
	}

	cred, err := h.credentialService.SaveCredentials(c.Request.Context(), c.Param("slug"), &req, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	cred.HasPassword = cred.PasswordCipher != ""
	cred.HasAPIKey = cred.APIKeyCipher != ""
	utils.SuccessResponse(c, gin.H{
		"message":     i18n.T(utils.GetLangFromContext(c), i18n.KeyCredentialsSaved),
		"credentials": cred,
	})
}

// POST /admin/vendors/:slug/test-connection
func (h *VendorHandler) TestConnection(c *gin.Context) {
	var req struct {
		TenantID    string               `json:"tenant_id" validate:"max=64"`
		Credentials *vendors.Credentials `json:"credentials,omitempty"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	result, err := h.syncService.TestConnection(c.Request.Context(), c.Param("slug"), req.TenantID, req.Credentials)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}
