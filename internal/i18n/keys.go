// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"
	KeyRateLimited       = "admin.rate_limited"

	// Products
	KeyProductNotFound = "product.not_found"
	KeyProductArchived = "product.archived"

	// Vendors
	KeyVendorNotFound       = "vendor.not_found"
	KeyVendorDisabled       = "vendor.disabled"
	KeyVendorExists         = "vendor.exists"
	KeyVendorUpdated        = "vendor.updated"
	KeyPriorityDuplicate    = "vendor.priority_duplicate"
	KeyPriorityInvalid      = "vendor.priority_invalid"
	KeyOrderInvalid         = "vendor.order_invalid"
	KeyImageQualityInvalid  = "vendor.image_quality_invalid"
	KeyCredentialsSaved     = "vendor.credentials_saved"
	KeyCredentialsNotFound  = "credentials.not_found"
	KeyPrioritiesRecomputed = "vendor.priorities_recalculated"

	// Sync runs
	KeySyncRunNotFound = "sync_run.not_found"
	KeySyncInProgress  = "sync.in_progress"
	KeySyncModeInvalid = "sync.mode_invalid"
	KeySyncStarted     = "sync.started"
	KeySyncFailed      = "sync.failed"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"
)
