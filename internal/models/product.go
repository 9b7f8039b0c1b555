// internal/models/product.go
package models

import (
	"time"
)

// Product is the canonical record for one UPC. Only the merge engine mutates it.
type Product struct {
	UPC            string     `json:"upc" gorm:"primaryKey;size:14"`
	Name           string     `json:"name" gorm:"size:255"`
	Description    string     `json:"description" gorm:"type:text"`
	Brand          string     `json:"brand" gorm:"size:100;index"`
	Model          string     `json:"model" gorm:"size:100"`
	PartNumbers    StringList `json:"part_numbers"`
	Caliber        string     `json:"caliber" gorm:"size:50"`
	BarrelLength   string     `json:"barrel_length" gorm:"size:50"`
	Category       string     `json:"category" gorm:"size:100;index"`
	Subcategory1   string     `json:"subcategory1" gorm:"size:100"`
	Subcategory2   string     `json:"subcategory2" gorm:"size:100"`
	Subcategory3   string     `json:"subcategory3" gorm:"size:100"`
	Specifications JSONB      `json:"specifications" gorm:"type:jsonb"`

	ImageURL       string       `json:"image_url" gorm:"type:text"`
	SourceImageURL string       `json:"source_image_url" gorm:"type:text"`
	ImageQuality   ImageQuality `json:"image_quality" gorm:"type:varchar(10)"`
	ImageVendor    string       `json:"image_vendor" gorm:"size:50"`

	ContributingVendor     string     `json:"contributing_vendor" gorm:"size:50;index"`
	PreferredVendor        string     `json:"preferred_vendor" gorm:"size:50;index"`
	PreferredPriority      int        `json:"preferred_priority"`
	PriorityRecalculatedAt *time.Time `json:"priority_recalculated_at"`
	LastWinningVendor      string     `json:"last_winning_vendor" gorm:"size:50"`
	LastMergedAt           *time.Time `json:"last_merged_at"`

	Status    ProductStatus `json:"status" gorm:"type:varchar(20);default:'active';index"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	Sources []VendorProduct `json:"sources,omitempty" gorm:"foreignKey:UPC;references:UPC"`
}

// HasCategory reports whether any level of the category group is populated.
func (p *Product) HasCategory() bool {
	return p.Category != "" || p.Subcategory1 != "" || p.Subcategory2 != "" || p.Subcategory3 != ""
}
