// internal/models/vendor_product.go
package models

import (
	"time"
)

// VendorProduct maps a vendor SKU onto a canonical UPC. TenantID is empty for
// untenanted feeds. It is refreshed on every pass whether or not the
// canonical product changed.
type VendorProduct struct {
	UPC              string     `json:"upc" gorm:"primaryKey;size:14"`
	VendorSlug       string     `json:"vendor_slug" gorm:"primaryKey;size:50"`
	TenantID         string     `json:"tenant_id" gorm:"primaryKey;size:64;default:''"`
	VendorSKU        string     `json:"vendor_sku" gorm:"size:100;index"`
	Cost             *float64   `json:"cost" gorm:"type:decimal(10,2)"`
	MAPPrice         *float64   `json:"map_price" gorm:"type:decimal(10,2)"`
	MSRP             *float64   `json:"msrp" gorm:"type:decimal(10,2)"`
	Quantity         *int       `json:"quantity"`
	PricingUpdatedAt *time.Time `json:"pricing_updated_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
	LastRunID        uint       `json:"last_run_id"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
