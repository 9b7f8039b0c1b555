// internal/models/vendor.go
package models

import (
	"time"
)

// Vendor is keyed by an immutable slug; DisplayName is presentation only and
// never compared in reconciliation logic.
type Vendor struct {
	Slug         string       `json:"slug" gorm:"primaryKey;size:50"`
	DisplayName  string       `json:"display_name" gorm:"size:100;not null"`
	Priority     int          `json:"priority" gorm:"not null;uniqueIndex"`
	ImageQuality ImageQuality `json:"image_quality" gorm:"type:varchar(10);not null;default:'low'"`
	Enabled      bool         `json:"enabled" gorm:"not null;default:true"`
	FeedType     FeedType     `json:"feed_type" gorm:"type:varchar(20);not null"`
	Endpoint     string       `json:"endpoint" gorm:"size:255"`
	FeedPath     string       `json:"feed_path" gorm:"size:255"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	CategoryPriorities []VendorCategoryPriority `json:"category_priorities,omitempty" gorm:"foreignKey:VendorSlug;references:Slug"`
}

// VendorCategoryPriority overrides the vendor's global rank inside one category.
type VendorCategoryPriority struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	VendorSlug string    `json:"vendor_slug" gorm:"size:50;not null;uniqueIndex:idx_vendor_category"`
	Category   string    `json:"category" gorm:"size:100;not null;uniqueIndex:idx_vendor_category;uniqueIndex:idx_category_priority"`
	Priority   int       `json:"priority" gorm:"not null;uniqueIndex:idx_category_priority"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
