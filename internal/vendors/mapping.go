package vendors

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/reconcile"
)

// Field names a canonical candidate field a mapping rule fills.
type Field string

const (
	FieldUPC              Field = "upc"
	FieldSKU              Field = "sku"
	FieldName             Field = "name"
	FieldDescription      Field = "description"
	FieldBrand            Field = "brand"
	FieldModel            Field = "model"
	FieldPartNumbers      Field = "part_numbers"
	FieldCaliber          Field = "caliber"
	FieldBarrelLength     Field = "barrel_length"
	FieldCategory         Field = "category"
	FieldSubcategory1     Field = "subcategory1"
	FieldSubcategory2     Field = "subcategory2"
	FieldSubcategory3     Field = "subcategory3"
	FieldImageURL         Field = "image_url"
	FieldCost             Field = "cost"
	FieldMAPPrice         Field = "map_price"
	FieldMSRP             Field = "msrp"
	FieldQuantity         Field = "quantity"
	FieldPricingUpdatedAt Field = "pricing_updated_at"
)

// Transform is a pure rewrite applied to the selected source value.
type Transform func(string) string

// FieldRule selects the first non-empty source key (primary, then fallbacks)
// and applies the optional transform.
type FieldRule struct {
	Sources   []string
	Transform Transform
}

// SkipRule excludes records whose raw Key equals one of Values, compared
// case-insensitively.
type SkipRule struct {
	Key    string
	Values []string
	Reason string
}

// FieldMapping is the declarative per-vendor translation from raw feed rows
// to candidates.
type FieldMapping struct {
	VendorSlug   string
	ImageQuality models.ImageQuality
	Fields       map[Field]FieldRule
	Specs        map[string]FieldRule
	SkipRules    []SkipRule
}

func (m *FieldMapping) value(raw RawRecord, rule FieldRule) string {
	for _, key := range rule.Sources {
		v := strings.TrimSpace(raw[key])
		if v == "" {
			continue
		}
		if rule.Transform != nil {
			v = strings.TrimSpace(rule.Transform(v))
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// Value returns the mapped value of f for raw, or "" when no source is set.
func (m *FieldMapping) Value(raw RawRecord, f Field) string {
	rule, ok := m.Fields[f]
	if !ok {
		return ""
	}
	return m.value(raw, rule)
}

// Apply builds a candidate from raw. It returns ErrSkipRecord for rows a
// vendor rule excludes and ErrInvalidRecord for rows that cannot be used.
func (m *FieldMapping) Apply(raw RawRecord) (*reconcile.Candidate, error) {
	for _, rule := range m.SkipRules {
		v := strings.TrimSpace(raw[rule.Key])
		for _, skip := range rule.Values {
			if strings.EqualFold(v, skip) {
				return nil, fmt.Errorf("%w: %s", ErrSkipRecord, rule.Reason)
			}
		}
	}

	upc := m.Value(raw, FieldUPC)
	if upc == "" {
		return nil, fmt.Errorf("%w: missing UPC", ErrInvalidRecord)
	}
	if err := reconcile.ValidateUPC(upc); err != nil {
		return nil, fmt.Errorf("%w: UPC %q: %v", ErrInvalidRecord, upc, err)
	}

	cand := &reconcile.Candidate{
		UPC:          upc,
		VendorSKU:    m.Value(raw, FieldSKU),
		Name:         m.Value(raw, FieldName),
		Description:  m.Value(raw, FieldDescription),
		Brand:        m.Value(raw, FieldBrand),
		Model:        m.Value(raw, FieldModel),
		PartNumbers:  SplitList(m.Value(raw, FieldPartNumbers)),
		Caliber:      m.Value(raw, FieldCaliber),
		BarrelLength: m.Value(raw, FieldBarrelLength),
		Category: reconcile.CategoryPath{
			Category:     m.Value(raw, FieldCategory),
			Subcategory1: m.Value(raw, FieldSubcategory1),
			Subcategory2: m.Value(raw, FieldSubcategory2),
			Subcategory3: m.Value(raw, FieldSubcategory3),
		},
		ImageURL: m.Value(raw, FieldImageURL),
	}

	for name, rule := range m.Specs {
		if v := m.value(raw, rule); v != "" {
			if cand.Specifications == nil {
				cand.Specifications = make(map[string]string)
			}
			cand.Specifications[name] = v
		}
	}

	pricing, err := m.pricing(raw)
	if err != nil {
		return nil, err
	}
	if !pricing.IsEmpty() {
		cand.Pricing = pricing
	}

	return cand, nil
}

func (m *FieldMapping) pricing(raw RawRecord) (*reconcile.Pricing, error) {
	var p reconcile.Pricing
	var err error

	if p.Cost, err = parseMoney(m.Value(raw, FieldCost)); err != nil {
		return nil, fmt.Errorf("%w: cost: %v", ErrInvalidRecord, err)
	}
	if p.MAPPrice, err = parseMoney(m.Value(raw, FieldMAPPrice)); err != nil {
		return nil, fmt.Errorf("%w: map price: %v", ErrInvalidRecord, err)
	}
	if p.MSRP, err = parseMoney(m.Value(raw, FieldMSRP)); err != nil {
		return nil, fmt.Errorf("%w: msrp: %v", ErrInvalidRecord, err)
	}
	if q := m.Value(raw, FieldQuantity); q != "" {
		n, err := strconv.Atoi(strings.ReplaceAll(q, ",", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: quantity: %v", ErrInvalidRecord, err)
		}
		p.Quantity = &n
	}
	if ts := m.Value(raw, FieldPricingUpdatedAt); ts != "" {
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, fmt.Errorf("%w: pricing timestamp: %v", ErrInvalidRecord, err)
		}
		p.UpdatedAt = &t
	}

	return &p, nil
}

func parseMoney(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	if v < 0 {
		return nil, fmt.Errorf("negative amount %v", v)
	}
	return &v, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// SplitList splits a multi-value cell on "|", ";" or "," and drops blanks
// and duplicates.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ';' || r == ','
	})

	seen := make(map[string]bool, len(parts))
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Transforms

// NormalizeUPC strips separators and restores the leading zero spreadsheets
// drop from 12-digit UPCs.
func NormalizeUPC(s string) string {
	s = strings.NewReplacer(" ", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
	if len(s) == 11 && isDigits(s) {
		return "0" + s
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// Title upper-cases the first letter of each word of an all-caps or
// all-lowercase value and leaves mixed case alone.
func Title(s string) string {
	if s != strings.ToUpper(s) && s != strings.ToLower(s) {
		return s
	}
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func Upper(s string) string {
	return strings.ToUpper(s)
}

// Chain applies transforms left to right.
func Chain(ts ...Transform) Transform {
	return func(s string) string {
		for _, t := range ts {
			s = t(s)
		}
		return s
	}
}
