// internal/handlers/product.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/javajoker/catalog-backend/internal/i18n"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
)

type ProductHandler struct {
	catalogService *services.CatalogService
}

func NewProductHandler(catalogService *services.CatalogService) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
	}
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params := services.ProductSearchParams{
		PaginationParams: utils.GetPaginationParams(c, "updated_at"),
		Brand:            c.Query("brand"),
		Category:         c.Query("category"),
		Vendor:           c.Query("vendor"),
	}

	if status := c.Query("status"); status != "" {
		s := models.ProductStatus(status)
		params.Status = &s
	}

	products, total, err := h.catalogService.SearchProducts(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	result := utils.CreatePaginationResult(products, total, params.PaginationParams)
	utils.PaginatedResponse(c, result)
}

// GET /products/:upc
func (h *ProductHandler) GetProduct(c *gin.Context) {
	upc, ok := upcParam(c)
	if !ok {
		return
	}

	product, err := h.catalogService.GetProduct(c.Request.Context(), upc)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, product)
}

// GET /products/:upc/sources
func (h *ProductHandler) GetProductSources(c *gin.Context) {
	upc, ok := upcParam(c)
	if !ok {
		return
	}

	sources, err := h.catalogService.ListProductSources(c.Request.Context(), upc)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"upc":     upc,
		"sources": sources,
	})
}

// PUT /admin/products/:upc/archive
func (h *ProductHandler) ArchiveProduct(c *gin.Context) {
	upc, ok := upcParam(c)
	if !ok {
		return
	}

	product, err := h.catalogService.ArchiveProduct(c.Request.Context(), upc, utils.GetActorFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyProductArchived),
		"product": product,
	})
}

// POST /admin/priorities/recalculate
func (h *ProductHandler) RecalculatePreferredVendors(c *gin.Context) {
	changed, err := h.catalogService.RecalculatePreferredVendors(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(utils.GetLangFromContext(c), i18n.KeyPrioritiesRecomputed),
		"changed": changed,
	})
}

func upcParam(c *gin.Context) (string, bool) {
	upc := c.Param("upc")
	if !utils.IsValidUPC(upc) {
		utils.BadRequestResponse(c, i18n.T(utils.GetLangFromContext(c), i18n.KeyValidationInvalid, "UPC"), nil)
		return "", false
	}
	return upc, true
}
