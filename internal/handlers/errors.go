package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/catalog-backend/internal/i18n"
	"github.com/javajoker/catalog-backend/internal/services"
	"github.com/javajoker/catalog-backend/internal/utils"
)

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	if details := utils.GetValidationErrors(err); len(details) > 0 {
		utils.ValidationErrorResponse(c, details)
		return
	}

	switch {
	case errors.Is(err, services.ErrVendorNotFound):
		utils.NotFoundResponse(c, "vendor")
	case errors.Is(err, services.ErrProductNotFound):
		utils.NotFoundResponse(c, "product")
	case errors.Is(err, services.ErrRunNotFound):
		utils.NotFoundResponse(c, "sync_run")
	case errors.Is(err, services.ErrCredentialsNotFound):
		utils.NotFoundResponse(c, "credentials")
	case errors.Is(err, services.ErrSyncInProgress):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeySyncInProgress))
	case errors.Is(err, services.ErrDuplicatePriority):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyPriorityDuplicate))
	case errors.Is(err, services.ErrVendorExists):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyVendorExists))
	case errors.Is(err, services.ErrVendorDisabled):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyVendorDisabled))
	case errors.Is(err, services.ErrInvalidPriority):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPriorityInvalid), nil)
	case errors.Is(err, services.ErrInvalidOrder):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyOrderInvalid), nil)
	case errors.Is(err, services.ErrInvalidImageQuality):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyImageQualityInvalid), nil)
	case errors.Is(err, services.ErrInvalidSyncMode):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeySyncModeInvalid), nil)
	default:
		logrus.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		utils.InternalErrorResponse(c, "")
	}
}

// bindJSON binds and validates a request body, writing the 400 itself.
func bindJSON(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return false
	}
	return true
}

func batchFailed(c *gin.Context, batchErr *services.BatchError, run interface{}) {
	lang := utils.GetLangFromContext(c)
	utils.ErrorResponse(c, http.StatusBadGateway, "SYNC_FAILED", i18n.T(lang, i18n.KeySyncFailed), gin.H{
		"run":        run,
		"error_kind": batchErr.Kind,
		"message":    batchErr.Message,
	})
}
