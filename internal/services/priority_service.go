package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/catalog-backend/internal/cache"
	"github.com/javajoker/catalog-backend/internal/models"
	"github.com/javajoker/catalog-backend/internal/reconcile"
)

// LowestPriority is returned for vendors with no rank. It loses every
// comparison against a ranked vendor.
const LowestPriority = math.MaxInt32

// RankTable is the cached rank document for one vendor.
type RankTable struct {
	VendorSlug   string              `json:"vendor_slug"`
	Found        bool                `json:"found"`
	Global       int                 `json:"global"`
	ImageQuality models.ImageQuality `json:"image_quality"`
	Enabled      bool                `json:"enabled"`
	Categories   map[string]int      `json:"categories,omitempty"`
}

// Priority resolves the rank for a category. A category override is
// authoritative; the global rank is the fallback.
func (t *RankTable) Priority(category string) (int, bool) {
	if t == nil || !t.Found {
		return LowestPriority, false
	}
	if category != "" {
		if p, ok := t.Categories[category]; ok && p > 0 {
			return p, true
		}
	}
	if t.Global > 0 {
		return t.Global, true
	}
	return LowestPriority, false
}

// Source builds the merge source for a candidate in category.
func (t *RankTable) Source(category string) reconcile.Source {
	p, ranked := t.Priority(category)
	src := reconcile.Source{Priority: p, Ranked: ranked}
	if t != nil {
		src.VendorSlug = t.VendorSlug
		src.ImageQuality = t.ImageQuality
	}
	return src
}

type PriorityService struct {
	db    *gorm.DB
	cache cache.Cache
	ttl   time.Duration
}

func NewPriorityService(db *gorm.DB, c cache.Cache, ttl time.Duration) *PriorityService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PriorityService{db: db, cache: c, ttl: ttl}
}

func priorityCacheKey(slug string) string {
	return "priority:" + slug
}

// Ranks returns the vendor's rank document, from cache when fresh. Unknown
// vendors yield a table with Found false, which is cached like any other.
func (s *PriorityService) Ranks(ctx context.Context, slug string) (*RankTable, error) {
	var table RankTable
	err := cache.GetJSON(ctx, s.cache, priorityCacheKey(slug), &table)
	if err == nil {
		return &table, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logrus.WithError(err).WithField("vendor", slug).Warn("Priority cache read failed")
	}

	loaded, err := s.load(ctx, slug)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, s.cache, priorityCacheKey(slug), loaded, s.ttl); err != nil {
		logrus.WithError(err).WithField("vendor", slug).Warn("Priority cache write failed")
	}
	return loaded, nil
}

// Priority never fails: lookup errors are logged and resolve to
// LowestPriority.
func (s *PriorityService) Priority(ctx context.Context, slug, category string) int {
	table, err := s.Ranks(ctx, slug)
	if err != nil {
		logrus.WithError(err).WithField("vendor", slug).Error("Priority lookup failed")
		return LowestPriority
	}
	p, _ := table.Priority(category)
	return p
}

// Invalidate drops cached rank documents so the next lookup reads the
// database.
func (s *PriorityService) Invalidate(ctx context.Context, slugs ...string) {
	if len(slugs) == 0 {
		return
	}
	keys := make([]string, len(slugs))
	for i, slug := range slugs {
		keys[i] = priorityCacheKey(slug)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		logrus.WithError(err).WithField("vendors", slugs).Warn("Priority cache invalidation failed")
	}
}

func (s *PriorityService) load(ctx context.Context, slug string) (*RankTable, error) {
	var vendor models.Vendor
	err := s.db.WithContext(ctx).Preload("CategoryPriorities").First(&vendor, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &RankTable{VendorSlug: slug}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vendor ranks: %w", err)
	}

	table := &RankTable{
		VendorSlug:   vendor.Slug,
		Found:        true,
		Global:       vendor.Priority,
		ImageQuality: vendor.ImageQuality,
		Enabled:      vendor.Enabled,
	}
	if len(vendor.CategoryPriorities) > 0 {
		table.Categories = make(map[string]int, len(vendor.CategoryPriorities))
		for _, cp := range vendor.CategoryPriorities {
			table.Categories[cp.Category] = cp.Priority
		}
	}
	return table, nil
}
