// Package reconcile decides how one vendor's report of a product is folded
// into the canonical catalog record. It performs no I/O.
package reconcile

import (
	"errors"
	"time"

	"github.com/javajoker/catalog-backend/internal/models"
)

var (
	ErrIdentityMismatch = errors.New("candidate UPC does not match existing product")
	ErrInvalidUPC       = errors.New("invalid UPC")
)

// CategoryPath is the category plus up to three subcategory levels. It is
// written as a unit.
type CategoryPath struct {
	Category     string `json:"category"`
	Subcategory1 string `json:"subcategory1"`
	Subcategory2 string `json:"subcategory2"`
	Subcategory3 string `json:"subcategory3"`
}

func (c CategoryPath) IsEmpty() bool {
	return c.Category == "" && c.Subcategory1 == "" && c.Subcategory2 == "" && c.Subcategory3 == ""
}

// Pricing is the optional cost snapshot some feeds embed next to catalog data.
type Pricing struct {
	Cost      *float64
	MAPPrice  *float64
	MSRP      *float64
	Quantity  *int
	UpdatedAt *time.Time
}

func (p *Pricing) IsEmpty() bool {
	return p == nil || (p.Cost == nil && p.MAPPrice == nil && p.MSRP == nil && p.Quantity == nil)
}

// Candidate is one vendor's proposed data for a UPC in one sync pass.
type Candidate struct {
	UPC            string
	VendorSKU      string
	Name           string
	Description    string
	Brand          string
	Model          string
	PartNumbers    []string
	Caliber        string
	BarrelLength   string
	Category       CategoryPath
	Specifications map[string]string
	ImageURL       string
	Pricing        *Pricing
}

// Source identifies the vendor a candidate came from, with its tier and
// resolved rank. Ranked is false when the vendor has no rank configured.
type Source struct {
	VendorSlug   string
	ImageQuality models.ImageQuality
	Priority     int
	Ranked       bool
}

// ValidateUPC accepts the GTIN lengths vendors report (EAN-8, UPC-A, EAN-13,
// GTIN-14). Check digits are not verified.
func ValidateUPC(upc string) error {
	switch len(upc) {
	case 8, 12, 13, 14:
	default:
		return ErrInvalidUPC
	}
	for i := 0; i < len(upc); i++ {
		if upc[i] < '0' || upc[i] > '9' {
			return ErrInvalidUPC
		}
	}
	return nil
}
