package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/catalog-backend/internal/config"
	"github.com/javajoker/catalog-backend/internal/models"
)

func TestFieldMappingApply(t *testing.T) {
	m := ridgelineMapping()

	cand, err := m.Apply(RawRecord{
		"gtin":                     "0001-1122-2333",
		"item_number":              "RL-9",
		"name":                     "Scope",
		"description_html":         "<p>Bright &amp; clear</p>",
		"manufacturer":             "Optix",
		"mfg_part_number":          "A1|A2; A1",
		"taxonomy.department":      "Optics",
		"taxonomy.category":        "Scopes",
		"images.0.url":             "https://cdn/x.jpg",
		"attributes.weight":        "1.2 lb",
		"pricing.cost":             "$1,024.50",
		"inventory.quantity":       "7",
		"pricing.updated_at":       "2024-05-01T10:00:00Z",
		"attributes.barrel_length": "",
	})
	require.NoError(t, err)

	assert.Equal(t, "000111222333", cand.UPC)
	assert.Equal(t, "RL-9", cand.VendorSKU)
	assert.Equal(t, "Scope", cand.Name)
	assert.Equal(t, "Bright & clear", cand.Description)
	assert.Equal(t, "Optix", cand.Brand)
	assert.Equal(t, []string{"A1", "A2"}, cand.PartNumbers)
	assert.Equal(t, "Optics", cand.Category.Category)
	assert.Equal(t, "Scopes", cand.Category.Subcategory1)
	assert.Equal(t, "https://cdn/x.jpg", cand.ImageURL)
	assert.Equal(t, map[string]string{"weight": "1.2 lb"}, cand.Specifications)
	require.NotNil(t, cand.Pricing)
	assert.InDelta(t, 1024.50, *cand.Pricing.Cost, 0.001)
	assert.Equal(t, 7, *cand.Pricing.Quantity)
	assert.NotNil(t, cand.Pricing.UpdatedAt)
	assert.Nil(t, cand.Pricing.MSRP)
}

func TestFieldMappingApply_PrimaryBeatsFallback(t *testing.T) {
	cand, err := ridgelineMapping().Apply(RawRecord{"upc": "000111222333", "title": "Primary", "name": "Fallback"})
	require.NoError(t, err)
	assert.Equal(t, "Primary", cand.Name)
	assert.Nil(t, cand.Pricing)
}

func TestFieldMappingApply_Errors(t *testing.T) {
	m := prairieMapping()

	tests := []struct {
		name string
		raw  RawRecord
		want error
	}{
		{"trailer row skipped", RawRecord{"record_type": "T", "upc_code": "000111222333"}, ErrSkipRecord},
		{"non-stock skipped", RawRecord{"item_type": "non-stock", "upc_code": "000111222333"}, ErrSkipRecord},
		{"missing upc", RawRecord{"item_no": "P-1"}, ErrInvalidRecord},
		{"bad upc", RawRecord{"upc_code": "ABC123"}, ErrInvalidRecord},
		{"bad price", RawRecord{"upc_code": "000111222333", "cost": "call"}, ErrInvalidRecord},
		{"bad quantity", RawRecord{"upc_code": "000111222333", "qty_on_hand": "many"}, ErrInvalidRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Apply(tt.raw)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransforms(t *testing.T) {
	assert.Equal(t, "012345678905", NormalizeUPC("12345678905"))
	assert.Equal(t, "012345678905", NormalizeUPC(" 0-12345-67890-5 "))
	assert.Equal(t, "4006381333931", NormalizeUPC("4006381333931"))

	assert.Equal(t, "Optix Arms", Title("OPTIX ARMS"))
	assert.Equal(t, "McMillan", Title("McMillan"))

	assert.Equal(t, "a b", StripHTML("<b>a</b>\n<br/>b"))
	assert.Equal(t, "X", Chain(StripHTML, Upper)("<i>x</i>"))

	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList("a, b,,a"))
}

func TestDefaultMappingsCoverSeedVendors(t *testing.T) {
	tiers := map[string]models.ImageQuality{}
	for _, m := range DefaultMappings() {
		tiers[m.VendorSlug] = m.ImageQuality
		assert.Contains(t, m.Fields, FieldUPC, m.VendorSlug)
	}

	assert.Equal(t, models.ImageQualityHigh, tiers["ridgeline"])
	assert.Equal(t, models.ImageQualityLow, tiers["cascade"])
	assert.Equal(t, models.ImageQualityLow, tiers["prairie"])
}

func TestRegistryAdapter(t *testing.T) {
	r := NewRegistry(config.SyncConfig{FetchAttempts: 2, PageSize: 10, RequestsPerSec: 5}, DefaultMappings()...)

	a, err := r.Adapter(&models.Vendor{Slug: "ridgeline", FeedType: models.FeedTypeREST, Endpoint: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, &RESTAdapter{}, a)

	a, err = r.Adapter(&models.Vendor{Slug: "cascade", FeedType: models.FeedTypeSOAP})
	require.NoError(t, err)
	assert.IsType(t, &SOAPAdapter{}, a)

	a, err = r.Adapter(&models.Vendor{Slug: "prairie", FeedType: models.FeedTypeFTPCSV})
	require.NoError(t, err)
	assert.IsType(t, &FTPCSVAdapter{}, a)

	_, err = r.Adapter(&models.Vendor{Slug: "odd", FeedType: "edi"})
	assert.ErrorIs(t, err, ErrFeedConfig)

	_, err = r.Mapping("unknown")
	assert.ErrorIs(t, err, ErrNoMapping)

	// Adapters for one vendor share its rate limiter.
	assert.Same(t, r.limiter("ridgeline"), r.limiter("ridgeline"))
}
