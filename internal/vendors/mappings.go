package vendors

import "github.com/javajoker/catalog-backend/internal/models"

func src(keys ...string) FieldRule {
	return FieldRule{Sources: keys}
}

func srcT(t Transform, keys ...string) FieldRule {
	return FieldRule{Sources: keys, Transform: t}
}

// DefaultMappings returns the field mapping table for every supported vendor.
func DefaultMappings() []*FieldMapping {
	return []*FieldMapping{
		ridgelineMapping(),
		cascadeMapping(),
		prairieMapping(),
	}
}

// Ridgeline serves nested JSON from a REST API.
func ridgelineMapping() *FieldMapping {
	return &FieldMapping{
		VendorSlug:   "ridgeline",
		ImageQuality: models.ImageQualityHigh,
		Fields: map[Field]FieldRule{
			FieldUPC:              srcT(NormalizeUPC, "upc", "gtin"),
			FieldSKU:              src("item_number"),
			FieldName:             src("title", "name"),
			FieldDescription:      srcT(StripHTML, "description_html", "description"),
			FieldBrand:            src("brand.name", "manufacturer"),
			FieldModel:            src("model"),
			FieldPartNumbers:      src("mfg_part_numbers", "mfg_part_number"),
			FieldCaliber:          src("attributes.caliber"),
			FieldBarrelLength:     src("attributes.barrel_length"),
			FieldCategory:         src("taxonomy.department"),
			FieldSubcategory1:     src("taxonomy.category"),
			FieldSubcategory2:     src("taxonomy.subcategory"),
			FieldSubcategory3:     src("taxonomy.type"),
			FieldImageURL:         src("images.0.url", "image_url"),
			FieldCost:             src("pricing.cost"),
			FieldMAPPrice:         src("pricing.map"),
			FieldMSRP:             src("pricing.msrp"),
			FieldQuantity:         src("inventory.quantity"),
			FieldPricingUpdatedAt: src("pricing.updated_at"),
		},
		Specs: map[string]FieldRule{
			"weight":   src("attributes.weight"),
			"finish":   src("attributes.finish"),
			"capacity": src("attributes.capacity"),
			"action":   src("attributes.action"),
		},
		SkipRules: []SkipRule{
			{Key: "item_type", Values: []string{"service", "fee", "gift_card"}, Reason: "non-catalog item type"},
		},
	}
}

// Cascade serves flat Item elements from a SOAP service.
func cascadeMapping() *FieldMapping {
	return &FieldMapping{
		VendorSlug:   "cascade",
		ImageQuality: models.ImageQualityLow,
		Fields: map[Field]FieldRule{
			FieldUPC:          srcT(NormalizeUPC, "UPC", "EAN"),
			FieldSKU:          src("ItemNo"),
			FieldName:         src("ShortDescription", "ItemName"),
			FieldDescription:  srcT(StripHTML, "LongDescription"),
			FieldBrand:        srcT(Title, "Manufacturer"),
			FieldModel:        src("ModelNumber"),
			FieldPartNumbers:  src("MfgPartNo"),
			FieldCaliber:      src("Caliber"),
			FieldBarrelLength: src("BarrelLength"),
			FieldCategory:     src("Category"),
			FieldSubcategory1: src("SubCategory"),
			FieldSubcategory2: src("SubCategory2"),
			FieldSubcategory3: src("SubCategory3"),
			FieldImageURL:     src("ImageURL", "Images.LargeImage", "Images.Image"),
			FieldCost:         src("DealerPrice"),
			FieldMAPPrice:     src("MAP"),
			FieldMSRP:         src("MSRP"),
			FieldQuantity:     src("QtyAvailable"),
		},
		Specs: map[string]FieldRule{
			"action":   src("Action"),
			"capacity": src("Capacity"),
			"finish":   src("Finish"),
			"weight":   src("Weight"),
		},
		SkipRules: []SkipRule{
			{Key: "ItemType", Values: []string{"Service", "Freight"}, Reason: "non-catalog item type"},
		},
	}
}

// Prairie drops a flat CSV on FTP; header names are lowercased on read.
func prairieMapping() *FieldMapping {
	return &FieldMapping{
		VendorSlug:   "prairie",
		ImageQuality: models.ImageQualityLow,
		Fields: map[Field]FieldRule{
			FieldUPC:          srcT(NormalizeUPC, "upc_code", "upc"),
			FieldSKU:          src("item_no"),
			FieldName:         srcT(Title, "item_description"),
			FieldDescription:  src("extended_description"),
			FieldBrand:        srcT(Title, "brand"),
			FieldModel:        src("model_no"),
			FieldPartNumbers:  src("mfg_part"),
			FieldCaliber:      src("caliber"),
			FieldBarrelLength: src("barrel_len"),
			FieldCategory:     src("dept"),
			FieldSubcategory1: src("class"),
			FieldSubcategory2: src("subclass"),
			FieldSubcategory3: src("subclass2"),
			FieldImageURL:     src("image_link"),
			FieldCost:         src("cost"),
			FieldMAPPrice:     src("map_price"),
			FieldMSRP:         src("retail"),
			FieldQuantity:     src("qty_on_hand"),
		},
		Specs: map[string]FieldRule{
			"capacity": src("capacity"),
			"finish":   src("finish"),
		},
		SkipRules: []SkipRule{
			{Key: "record_type", Values: []string{"H", "T"}, Reason: "header or trailer row"},
			{Key: "item_type", Values: []string{"NON-STOCK"}, Reason: "non-stock item"},
		},
	}
}
