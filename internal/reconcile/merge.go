package reconcile

import (
	"sort"
	"time"

	"github.com/javajoker/catalog-backend/internal/models"
)

type Outcome string

const (
	OutcomeInsert   Outcome = "insert"
	OutcomeUpdate   Outcome = "update"
	OutcomeNoChange Outcome = "no_change"
)

// Product columns written by Merge.
const (
	ColName                   = "name"
	ColDescription            = "description"
	ColBrand                  = "brand"
	ColModel                  = "model"
	ColPartNumbers            = "part_numbers"
	ColCaliber                = "caliber"
	ColBarrelLength           = "barrel_length"
	ColSpecifications         = "specifications"
	ColCategory               = "category"
	ColSubcategory1           = "subcategory1"
	ColSubcategory2           = "subcategory2"
	ColSubcategory3           = "subcategory3"
	ColImageURL               = "image_url"
	ColSourceImageURL         = "source_image_url"
	ColImageQuality           = "image_quality"
	ColImageVendor            = "image_vendor"
	ColPreferredVendor        = "preferred_vendor"
	ColPreferredPriority      = "preferred_priority"
	ColPriorityRecalculatedAt = "priority_recalculated_at"
	ColLastWinningVendor      = "last_winning_vendor"
	ColLastMergedAt           = "last_merged_at"
)

// Result is the merge decision for one candidate. Changes holds the columns
// to write on Update; on Insert, Product is the full new row. NoChange
// carries neither and must not touch storage.
type Result struct {
	Outcome       Outcome
	Product       *models.Product
	Changes       map[string]interface{}
	ChangedFields []string
	ImageAdopted  bool
}

// Merge folds cand into existing (nil when the UPC has never been seen).
// existing is not modified; Result.Product is a merged copy.
func Merge(existing *models.Product, cand *Candidate, src Source, now time.Time) (*Result, error) {
	if err := ValidateUPC(cand.UPC); err != nil {
		return nil, err
	}
	if existing == nil {
		return insert(cand, src, now), nil
	}
	if existing.UPC != cand.UPC {
		return nil, ErrIdentityMismatch
	}

	merged := *existing
	changes := make(map[string]interface{})

	fillString(changes, ColName, &merged.Name, cand.Name)
	fillString(changes, ColDescription, &merged.Description, cand.Description)
	fillString(changes, ColBrand, &merged.Brand, cand.Brand)
	fillString(changes, ColModel, &merged.Model, cand.Model)
	fillString(changes, ColCaliber, &merged.Caliber, cand.Caliber)
	fillString(changes, ColBarrelLength, &merged.BarrelLength, cand.BarrelLength)

	if len(merged.PartNumbers) == 0 && len(cand.PartNumbers) > 0 {
		merged.PartNumbers = models.StringList(append([]string(nil), cand.PartNumbers...))
		changes[ColPartNumbers] = merged.PartNumbers
	}
	if len(merged.Specifications) == 0 && len(cand.Specifications) > 0 {
		merged.Specifications = specsToJSONB(cand.Specifications)
		changes[ColSpecifications] = merged.Specifications
	}

	if !merged.HasCategory() && cand.Category.Category != "" {
		setCategory(&merged, cand.Category)
		changes[ColCategory] = merged.Category
		changes[ColSubcategory1] = merged.Subcategory1
		changes[ColSubcategory2] = merged.Subcategory2
		changes[ColSubcategory3] = merged.Subcategory3
	}

	imageAdopted := false
	if DecideImage(merged.ImageURL, merged.ImageQuality, cand.ImageURL, src.ImageQuality) == UseCandidate {
		setImage(&merged, cand.ImageURL, src)
		changes[ColImageURL] = merged.ImageURL
		changes[ColSourceImageURL] = merged.SourceImageURL
		changes[ColImageQuality] = merged.ImageQuality
		changes[ColImageVendor] = merged.ImageVendor
		imageAdopted = true
	}

	if prefers(&merged, src) {
		merged.PreferredVendor = src.VendorSlug
		merged.PreferredPriority = src.Priority
		merged.PriorityRecalculatedAt = &now
		changes[ColPreferredVendor] = merged.PreferredVendor
		changes[ColPreferredPriority] = merged.PreferredPriority
		changes[ColPriorityRecalculatedAt] = now
	}

	if len(changes) == 0 {
		return &Result{Outcome: OutcomeNoChange}, nil
	}

	fields := changedFields(changes)
	merged.LastWinningVendor = src.VendorSlug
	merged.LastMergedAt = &now
	changes[ColLastWinningVendor] = src.VendorSlug
	changes[ColLastMergedAt] = now

	return &Result{
		Outcome:       OutcomeUpdate,
		Product:       &merged,
		Changes:       changes,
		ChangedFields: fields,
		ImageAdopted:  imageAdopted,
	}, nil
}

func insert(cand *Candidate, src Source, now time.Time) *Result {
	p := &models.Product{
		UPC:                cand.UPC,
		Name:               cand.Name,
		Description:        cand.Description,
		Brand:              cand.Brand,
		Model:              cand.Model,
		Caliber:            cand.Caliber,
		BarrelLength:       cand.BarrelLength,
		ContributingVendor: src.VendorSlug,
		LastWinningVendor:  src.VendorSlug,
		LastMergedAt:       &now,
		Status:             models.ProductStatusActive,
	}
	if len(cand.PartNumbers) > 0 {
		p.PartNumbers = models.StringList(append([]string(nil), cand.PartNumbers...))
	}
	if len(cand.Specifications) > 0 {
		p.Specifications = specsToJSONB(cand.Specifications)
	}
	if cand.Category.Category != "" {
		setCategory(p, cand.Category)
	}

	imageAdopted := false
	if DecideImage("", models.ImageQualityNone, cand.ImageURL, src.ImageQuality) == UseCandidate {
		setImage(p, cand.ImageURL, src)
		imageAdopted = true
	}
	if src.Ranked {
		p.PreferredVendor = src.VendorSlug
		p.PreferredPriority = src.Priority
		p.PriorityRecalculatedAt = &now
	}

	return &Result{
		Outcome:       OutcomeInsert,
		Product:       p,
		ChangedFields: populatedFields(p),
		ImageAdopted:  imageAdopted,
	}
}

func fillString(changes map[string]interface{}, col string, dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
		changes[col] = v
	}
}

func setCategory(p *models.Product, c CategoryPath) {
	p.Category = c.Category
	p.Subcategory1 = c.Subcategory1
	p.Subcategory2 = c.Subcategory2
	p.Subcategory3 = c.Subcategory3
}

func setImage(p *models.Product, url string, src Source) {
	q := src.ImageQuality
	if !q.Valid() {
		q = models.ImageQualityLow
	}
	p.ImageURL = url
	p.SourceImageURL = url
	p.ImageQuality = q
	p.ImageVendor = src.VendorSlug
}

// prefers reports whether src should become (or refresh) the preferred
// vendor. Unranked vendors never do.
func prefers(p *models.Product, src Source) bool {
	if !src.Ranked {
		return false
	}
	switch {
	case p.PreferredVendor == "":
		return true
	case p.PreferredVendor == src.VendorSlug:
		return p.PreferredPriority != src.Priority
	default:
		return src.Priority < p.PreferredPriority
	}
}

func specsToJSONB(specs map[string]string) models.JSONB {
	out := make(models.JSONB, len(specs))
	for k, v := range specs {
		out[k] = v
	}
	return out
}

func changedFields(changes map[string]interface{}) []string {
	fields := make([]string, 0, len(changes))
	for col := range changes {
		fields = append(fields, col)
	}
	sort.Strings(fields)
	return fields
}

func populatedFields(p *models.Product) []string {
	var fields []string
	add := func(col string, set bool) {
		if set {
			fields = append(fields, col)
		}
	}
	add(ColName, p.Name != "")
	add(ColDescription, p.Description != "")
	add(ColBrand, p.Brand != "")
	add(ColModel, p.Model != "")
	add(ColPartNumbers, len(p.PartNumbers) > 0)
	add(ColCaliber, p.Caliber != "")
	add(ColBarrelLength, p.BarrelLength != "")
	add(ColSpecifications, len(p.Specifications) > 0)
	add(ColCategory, p.Category != "")
	add(ColImageURL, p.ImageURL != "")
	sort.Strings(fields)
	return fields
}
