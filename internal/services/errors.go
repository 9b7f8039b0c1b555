package services

import "errors"

var (
	ErrVendorNotFound      = errors.New("vendor not found")
	ErrVendorDisabled      = errors.New("vendor is disabled")
	ErrVendorExists        = errors.New("vendor already exists")
	ErrSyncInProgress      = errors.New("sync already in progress for vendor")
	ErrDuplicatePriority   = errors.New("priority already assigned to another vendor")
	ErrInvalidPriority     = errors.New("priority is out of range")
	ErrInvalidOrder        = errors.New("order must list every vendor exactly once")
	ErrInvalidImageQuality = errors.New("image quality must be 'high' or 'low'")
	ErrInvalidSyncMode     = errors.New("sync mode must be 'full' or 'incremental'")
	ErrProductNotFound     = errors.New("product not found")
	ErrRunNotFound         = errors.New("sync run not found")
	ErrCredentialsNotFound = errors.New("vendor credentials not found")
)
